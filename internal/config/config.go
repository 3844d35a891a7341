// Package config loads server configuration from the environment, with
// an optional .env file for development.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all server settings.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string

	// DataDir holds the SQLite database.
	DataDir string

	// SyncIntervalMinutes is the periodic sync cadence, clamped to
	// [1, 60] by the scheduler.
	SyncIntervalMinutes int

	// CacheTTL bounds how stale a served feed may be.
	CacheTTL time.Duration

	// Cloudbeds API endpoints; empty selects production.
	CloudbedsAPIURL   string
	CloudbedsTokenURL string

	// Optional initial OAuth app credentials. When set and no
	// credentials are stored yet, they seed the credential row.
	CloudbedsClientID     string
	CloudbedsClientSecret string

	LogLevel string
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Addr:                  getEnv("ADDR", ":8080"),
		DataDir:               getEnv("DATA_DIR", "./data"),
		SyncIntervalMinutes:   getEnvInt("SYNC_INTERVAL_MINUTES", 5),
		CacheTTL:              getEnvDuration("FEED_CACHE_TTL", 5*time.Minute),
		CloudbedsAPIURL:       os.Getenv("CLOUDBEDS_API_URL"),
		CloudbedsTokenURL:     os.Getenv("CLOUDBEDS_TOKEN_URL"),
		CloudbedsClientID:     os.Getenv("CLOUDBEDS_CLIENT_ID"),
		CloudbedsClientSecret: os.Getenv("CLOUDBEDS_CLIENT_SECRET"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
