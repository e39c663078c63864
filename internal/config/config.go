// Package config loads service configuration from the environment (with
// optional .env support). The loaded Config is passed explicitly to the
// components that need it; there is no package-level config state.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend names for the persistence layer.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Config holds all configuration for the ledger engine.
type Config struct {
	Port     string
	LogLevel slog.Level

	// Persistence
	Backend     string // "file" or "postgres"
	DataDir     string // file backend
	DatabaseURL string // postgres backend
	RedisURL    string // optional read-through cache over the primary store
	CacheTTL    time.Duration

	// Trading policy
	SingleSymbolPolicy bool

	// Market data
	QuoteBaseURL  string
	QuoteCacheTTL time.Duration
}

// Load reads configuration from a .env file (if present) and the process
// environment.
func Load() (*Config, error) {
	godotenv.Load() // missing .env is fine; rely on the OS environment

	backend := strings.ToLower(getEnv("STORE_BACKEND", BackendFile))
	if backend != BackendFile && backend != BackendPostgres {
		return nil, fmt.Errorf("config: unknown STORE_BACKEND %q", backend)
	}
	if backend == BackendPostgres && os.Getenv("DATABASE_URL") == "" {
		return nil, fmt.Errorf("config: STORE_BACKEND=postgres requires DATABASE_URL")
	}

	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel: parseLevel(getEnv("LOG_LEVEL", "info")),

		Backend:     backend,
		DataDir:     getEnv("DATA_DIR", "./data"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		CacheTTL:    getEnvAsDuration("CACHE_TTL", 30*time.Second),

		SingleSymbolPolicy: getEnvAsBool("SINGLE_SYMBOL_POLICY", false),

		QuoteBaseURL:  getEnv("QUOTE_BASE_URL", "https://query1.finance.yahoo.com"),
		QuoteCacheTTL: getEnvAsDuration("QUOTE_CACHE_TTL", 5*time.Minute),
	}, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// getEnv retrieves an environment variable or returns a fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvAsBool retrieves an environment variable as a bool or returns a
// fallback.
func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	slog.Warn("invalid bool value, using default", "key", key, "value", valueStr, "default", fallback)
	return fallback
}

// getEnvAsDuration retrieves an environment variable as a time.Duration or
// returns a fallback.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	slog.Warn("invalid duration value, using default", "key", key, "value", valueStr, "default", fallback.String())
	return fallback
}
