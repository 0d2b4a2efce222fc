package config

import (
	"log/slog"
	"os"
	"strings"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    slog.Level

	RedisURL    string
	PostgresURL string

	LLMProvider     string
	ModelName       string
	AnthropicAPIKey string

	EmbeddingModel string
	OllamaURL      string

	WorkerID string
}

func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    parseLogLevel(getEnv("LOG_LEVEL", "info")),

		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),
		PostgresURL: getEnv("POSTGRES_URL", ""),

		LLMProvider:     getEnv("LLM_PROVIDER", "anthropic"),
		ModelName:       getEnv("MODEL_NAME", "claude-sonnet-4-20250514"),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),

		EmbeddingModel: getEnv("EMBEDDING_MODEL", "nomic-embed-text"),
		OllamaURL:      getEnv("OLLAMA_URL", "http://localhost:11434"),

		WorkerID: getEnv("WORKER_ID", hostname()),
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func hostname() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "worker"
}
