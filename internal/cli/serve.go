package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
	"yieldbot/internal/api"
	"yieldbot/internal/chat"
	"yieldbot/internal/finance"
	"yieldbot/internal/knowledge"
	"yieldbot/internal/linking"
	"yieldbot/internal/messagestore"
	"yieldbot/internal/telegram"
	"yieldbot/internal/users"
	"yieldbot/pkg/config"
	"yieldbot/pkg/db"

	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

type stores struct {
	sessions messagestore.Store
	users    users.Store
	accounts chat.AccountSource
	close    func()
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.StorageDriver {
	case config.StorageMemory:
		logrus.Warn("Using in-memory storage, conversations are lost on restart")
		return &stores{
			sessions: messagestore.NewMemoryStore(),
			users:    users.NewMemoryRepository(),
			close:    func() {},
		}, nil
	case config.StoragePostgres:
		database, err := db.NewPostgresDB(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Migrate(ctx, database); err != nil {
			database.Close()
			return nil, err
		}
		return &stores{
			sessions: messagestore.NewRepository(database),
			users:    users.NewRepository(database),
			accounts: finance.NewService(database),
			close:    func() { database.Close() },
		}, nil
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	kb, err := knowledge.Load(cfg.KnowledgeBasePath)
	if err != nil {
		return err
	}
	responder, err := newResponder(cfg, kb)
	if err != nil {
		return err
	}

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	chatService := chat.NewService(messagestore.NewService(st.sessions), responder, st.accounts, cfg.AIHistoryLimit)
	userService := users.NewService(st.users)
	linkingSvc := linking.NewService()
	go linkingSvc.Run(ctx)

	var webhook http.Handler
	var botUsername string
	if cfg.TelegramToken != "" {
		bot, err := telegram.NewBot(cfg.TelegramToken)
		if err != nil {
			return err
		}
		botUsername = bot.Username()
		if cfg.WebhookHost != "" {
			if err := bot.SetupWebhook(cfg.WebhookHost, cfg.ServerPort); err != nil {
				return err
			}
		}

		var transcriber telegram.Transcriber
		if cfg.OpenAIKey != "" {
			transcriber = newOpenAI(cfg)
		}
		tg := telegram.NewHandler(bot, chatService, kb, userService, linkingSvc, transcriber)
		webhook = http.HandlerFunc(tg.HandleWebhook)
	} else {
		logrus.Warn("TELEGRAM_TOKEN is not set, Telegram bot disabled. Link URLs will omit the bot name")
	}

	router := api.NewRouter(api.RouterDependencies{
		Handler:        api.NewHandler(chatService, kb, userService, linkingSvc, cfg.JWTSigningKey, botUsername),
		WebhookHandler: webhook,
		JWTSigningKey:  cfg.JWTSigningKey,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})

	server := &http.Server{
		Addr:              cfg.ServerHost + ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logrus.Infof("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logrus.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	logrus.Info("Server stopped")
	return nil
}
