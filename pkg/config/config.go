package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	PostgresHost       string
	PostgresPort       string
	PostgresUser       string
	PostgresPassword   string
	PostgresDB         string
	StorageDriver      string
	TelegramToken      string
	WebhookHost        string
	ServerHost         string
	ServerPort         string
	JWTSigningKey      string
	LogLevel           string
	CORSAllowedOrigins []string

	AIProvider        string
	GoogleAPIKey      string
	GeminiAPIURL      string
	GeminiModel       string
	OpenAIKey         string
	OpenAIModel       string
	AITimeout         time.Duration
	AIHistoryLimit    int
	KnowledgeBasePath string
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Warn(".env file not found, using process environment")
	}

	return &Config{
		PostgresHost:       getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:       getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:       getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword:   getEnv("POSTGRES_PASSWORD", "postgres"),
		PostgresDB:         getEnv("POSTGRES_DB", "yieldbot"),
		StorageDriver:      getEnv("STORAGE_DRIVER", StoragePostgres),
		TelegramToken:      getEnv("TELEGRAM_TOKEN", ""),
		WebhookHost:        getEnv("WEBHOOK_HOST", ""),
		ServerHost:         getEnv("SERVER_HOST", "0.0.0.0"),
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		JWTSigningKey:      getEnv("JWT_SIGNING_KEY", "your-secret-signing-key"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "https://*.vercel.app"}),

		AIProvider:        strings.ToLower(getEnv("AI_PROVIDER", ProviderGemini)),
		GoogleAPIKey:      getEnv("GOOGLE_API_KEY", ""),
		GeminiAPIURL:      getEnv("GEMINI_API_URL", "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash-exp:generateContent"),
		GeminiModel:       getEnv("GEMINI_MODEL", "gemini-2.0-flash-exp"),
		OpenAIKey:         getEnv("OPENAI_KEY", ""),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4.1"),
		AITimeout:         time.Duration(getEnvInt("AI_TIMEOUT_SECONDS", 30)) * time.Second,
		AIHistoryLimit:    getEnvInt("AI_HISTORY_LIMIT", 10),
		KnowledgeBasePath: getEnv("KNOWLEDGE_BASE_PATH", ""),
	}
}

// ParsedLogLevel falls back to info for unknown values.
func (c *Config) ParsedLogLevel() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		logrus.Warnf("Unknown LOG_LEVEL %q, using info", c.LogLevel)
		return logrus.InfoLevel
	}
	return level
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		logrus.Warnf("Invalid %s=%q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
