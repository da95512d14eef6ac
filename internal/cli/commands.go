// Package cli holds the yieldbot command tree.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"yieldbot/internal/assistant"
	"yieldbot/internal/chatgpt"
	"yieldbot/internal/gemini"
	"yieldbot/internal/knowledge"
	"yieldbot/internal/llm"
	"yieldbot/internal/messagestore/models"
	"yieldbot/pkg/config"
	"yieldbot/pkg/db"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type app struct {
	cfg *config.Config
}

// NewRootCmd builds the command tree. Running it without a subcommand serves.
func NewRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "yieldbot",
		Short:         "yieldbot - AI assistant for the savings platform",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logrus.SetFormatter(&logrus.JSONFormatter{})
			logrus.SetOutput(cmd.ErrOrStderr())

			a.cfg = config.LoadConfig()
			logrus.SetLevel(a.cfg.ParsedLogLevel())
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				logrus.SetLevel(logrus.DebugLevel)
			}
			if path, _ := cmd.Flags().GetString("knowledge"); path != "" {
				a.cfg.KnowledgeBasePath = path
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), a.cfg)
		},
	}

	rootCmd.AddCommand(newServeCmd(a))
	rootCmd.AddCommand(newAskCmd(a))
	rootCmd.AddCommand(newExplainCmd(a))
	rootCmd.AddCommand(newStrategiesCmd(a))
	rootCmd.AddCommand(newMigrateCmd(a))

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("knowledge", "", "Knowledge base YAML file (embedded copy when empty)")

	return rootCmd
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the Telegram webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), a.cfg)
		},
	}
}

func newAskCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [MESSAGE]",
		Short: "Ask the assistant a single question without storing it",
		Long: `Ask sends one message through the configured model provider and prints the reply.
When the provider is unavailable the keyword fallback answers instead.
Example: yieldbot ask "Which strategy suits me?" --balance=250 --strategy=balanced`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uc, err := userContextFromFlags(cmd)
			if err != nil {
				return err
			}
			kb, err := knowledge.Load(a.cfg.KnowledgeBasePath)
			if err != nil {
				return err
			}
			responder, err := newResponder(a.cfg, kb)
			if err != nil {
				return err
			}

			turns := []llm.Turn{{Role: models.RoleUser, Text: strings.Join(args, " ")}}
			reply := responder.Respond(cmd.Context(), turns, uc)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, reply.Text)
			if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
				fmt.Fprintf(out, "\nsource: %s", reply.Origin)
				if reply.Model != "" {
					fmt.Fprintf(out, ", model: %s, tokens: %d", reply.Model, reply.Tokens)
				}
				if reply.ErrorDetail != "" {
					fmt.Fprintf(out, ", error: %s", reply.ErrorDetail)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().String("balance", "", "Current balance in cUSD")
	cmd.Flags().String("deposited", "", "Total deposited in cUSD")
	cmd.Flags().String("earned", "", "Total earned in cUSD")
	cmd.Flags().String("strategy", "", "Current strategy key")
	cmd.Flags().BoolP("verbose", "v", false, "Print where the reply came from")

	return cmd
}

// userContextFromFlags treats the caller as new unless a deposit total is given.
func userContextFromFlags(cmd *cobra.Command) (*assistant.UserContext, error) {
	uc := assistant.NewUserContext()

	amounts := []struct {
		flag string
		dst  **decimal.Decimal
	}{
		{"balance", &uc.Balance},
		{"deposited", &uc.TotalDeposited},
		{"earned", &uc.TotalEarned},
	}
	for _, amount := range amounts {
		raw, _ := cmd.Flags().GetString(amount.flag)
		if raw == "" {
			continue
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid --%s %q: %w", amount.flag, raw, err)
		}
		*amount.dst = &d
	}

	uc.Strategy, _ = cmd.Flags().GetString("strategy")
	if uc.TotalDeposited != nil && uc.TotalDeposited.IsPositive() {
		uc.IsNewUser = false
	}
	return uc, nil
}

func newExplainCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "explain [TERM]",
		Short: "Explain a DeFi term from the glossary",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kb, err := knowledge.Load(a.cfg.KnowledgeBasePath)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), kb.ExplainTerm(strings.Join(args, " ")))
			return nil
		},
	}
}

func newStrategiesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "Compare the available savings strategies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kb, err := knowledge.Load(a.cfg.KnowledgeBasePath)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), kb.CompareStrategies())
			return nil
		},
	}
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.NewPostgresDB(a.cfg)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer database.Close()
			return db.Migrate(cmd.Context(), database)
		},
	}
}

func newResponder(cfg *config.Config, kb *knowledge.Base) (*assistant.Responder, error) {
	classifier, err := assistant.NewClassifier(kb)
	if err != nil {
		return nil, err
	}
	provider, err := newProvider(cfg, kb)
	if err != nil {
		return nil, err
	}
	return assistant.NewResponder(kb, provider, classifier), nil
}

func newProvider(cfg *config.Config, kb *knowledge.Base) (llm.Provider, error) {
	switch cfg.AIProvider {
	case config.ProviderGemini:
		if cfg.GoogleAPIKey == "" {
			logrus.Warn("GOOGLE_API_KEY is not set, every reply will use the fallback")
		}
		return gemini.NewClient(gemini.Options{
			APIKey:          cfg.GoogleAPIKey,
			Endpoint:        cfg.GeminiAPIURL,
			Model:           cfg.GeminiModel,
			Timeout:         cfg.AITimeout,
			Acknowledgement: kb.Acknowledgement,
		}), nil
	case config.ProviderOpenAI:
		if cfg.OpenAIKey == "" {
			logrus.Warn("OPENAI_KEY is not set, every reply will use the fallback")
		}
		return newOpenAI(cfg), nil
	default:
		return nil, fmt.Errorf("unknown AI_PROVIDER %q", cfg.AIProvider)
	}
}

func newOpenAI(cfg *config.Config) *chatgpt.Service {
	return chatgpt.NewService(chatgpt.Options{
		APIKey:  cfg.OpenAIKey,
		Model:   cfg.OpenAIModel,
		Timeout: cfg.AITimeout,
	})
}

// Execute runs the root command and exits non-zero on error.
func Execute(ctx context.Context) {
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}
