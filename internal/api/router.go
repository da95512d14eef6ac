package api

import (
	"net/http"
	"time"
	"yieldbot/internal/auth"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

type RouterDependencies struct {
	Handler        *Handler
	WebhookHandler http.Handler
	JWTSigningKey  string
	AllowedOrigins []string
}

func NewRouter(deps RouterDependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", WalletHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.WebhookHandler != nil {
		r.Method(http.MethodPost, "/webhook", deps.WebhookHandler)
	} else {
		logrus.Info("Telegram webhook disabled, /webhook not mounted")
	}

	h := deps.Handler
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", h.RegisterWebUserHandler)
		r.Post("/auth/login", h.AuthLoginHandler)

		r.With(auth.JWTMiddleware(deps.JWTSigningKey)).Post("/users/me/link-telegram", h.GenerateTelegramLinkHandler)

		r.Route("/ai", func(r chi.Router) {
			r.Get("/explain", h.ExplainTermHandler)
			r.Get("/strategies", h.StrategiesHandler)

			r.Group(func(r chi.Router) {
				r.Use(IdentityMiddleware(deps.JWTSigningKey))
				r.Post("/chat", h.ChatHandler)
				r.Get("/conversations", h.ListConversationsHandler)
				r.Get("/conversations/{sessionID}", h.ConversationHistoryHandler)
				r.Delete("/conversations/{sessionID}", h.DeleteConversationHandler)
				r.Post("/conversations/{sessionID}/feedback", h.FeedbackHandler)
			})
		})
	})

	return r
}
