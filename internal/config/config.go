package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the server.
type Config struct {
	// Server
	Port        string
	BearerToken string

	// Storage
	DatabaseURL   string
	RedisURL      string
	MigrationsDir string
	ImageCacheTTL time.Duration

	// Search
	BaseURL       string
	Origin        string
	SearchTimeout time.Duration
	BatchSize     int
	FallbackTerm  string
	FallbackLimit int
}

// Load reads configuration from a .env file when present, then from the
// environment. DATABASE_URL, REDIS_URL and BEARER_TOKEN are required.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		BearerToken: os.Getenv("BEARER_TOKEN"),

		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		MigrationsDir: getEnv("MIGRATIONS_DIR", "migrations"),
		ImageCacheTTL: time.Duration(getEnvAsInt("IMAGE_CACHE_TTL_HOURS", 24)) * time.Hour,

		BaseURL:       getEnv("SKYPICKER_BASE_URL", "https://api.skypicker.com"),
		Origin:        getEnv("SEARCH_ORIGIN", "antalya_tr"),
		SearchTimeout: time.Duration(getEnvAsInt("SEARCH_TIMEOUT_SECONDS", 15)) * time.Second,
		BatchSize:     getEnvAsInt("EXPLORE_BATCH_SIZE", 50),
		FallbackTerm:  getEnv("FALLBACK_TERM", "spain"),
		FallbackLimit: getEnvAsInt("FALLBACK_LIMIT", 5),
	}

	var missing []string
	for key, v := range map[string]string{
		"DATABASE_URL": cfg.DatabaseURL,
		"REDIS_URL":    cfg.RedisURL,
		"BEARER_TOKEN": cfg.BearerToken,
	} {
		if v == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}

	if cfg.SearchTimeout <= 0 || cfg.BatchSize <= 0 || cfg.FallbackLimit <= 0 {
		return nil, fmt.Errorf("SEARCH_TIMEOUT_SECONDS, EXPLORE_BATCH_SIZE and FALLBACK_LIMIT must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}
