// Package config provides configuration loading and validation from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	LogLevel          string // debug, info, warn, error
	LogFile           string // Optional: rotating log file in addition to stdout
	ListenAddr        string // Server listen address (e.g., ":8080")
	MetricsListenAddr string // Metrics listener address (e.g., "localhost:9090")
	DatabasePath      string // SQLite database path

	GatewayAdminURL   string        // Required: base URL of the gateway admin API
	GatewayAdminToken string        // Optional: sent as Kong-Admin-Token
	GatewayServiceID  string        // Required: service every managed route is attached to
	GatewayTimeout    time.Duration // HTTP client timeout for admin API calls

	SyncConcurrency int  // 1 = sequential full sync
	SyncOnMutation  bool // push endpoint changes to the gateway as they are written

	AdminTokenHash string        // Required: bcrypt hash of the admin API token
	CacheTTL       time.Duration // read-path cache lifetime

	OTelEnabled  bool
	OTelEndpoint string
}

// LoadEnvFile preloads variables from a dotenv file. Variables already present in
// the environment win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load parses configuration from environment variables.
// Optional settings fall back to defaults; malformed numbers, booleans and durations are errors.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:          getenv("LOG_LEVEL", "info"),
		LogFile:           os.Getenv("LOG_FILE"),
		ListenAddr:        getenv("LISTEN_ADDR", ":8080"),
		MetricsListenAddr: getenv("METRICS_LISTEN_ADDR", "localhost:9090"),
		DatabasePath:      getenv("DATABASE_PATH", "/data/reconciler.db"),
		GatewayAdminURL:   strings.TrimRight(os.Getenv("GATEWAY_ADMIN_URL"), "/"),
		GatewayAdminToken: os.Getenv("GATEWAY_ADMIN_TOKEN"),
		GatewayServiceID:  os.Getenv("GATEWAY_SERVICE_ID"),
		AdminTokenHash:    os.Getenv("ADMIN_TOKEN_HASH"),
		OTelEndpoint:      getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
	}

	var err error
	if cfg.GatewayTimeout, err = durationEnv("GATEWAY_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = durationEnv("CACHE_TTL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.SyncConcurrency, err = intEnv("SYNC_CONCURRENCY", 1); err != nil {
		return nil, err
	}
	if cfg.SyncOnMutation, err = boolEnv("SYNC_ON_MUTATION", true); err != nil {
		return nil, err
	}
	if cfg.OTelEnabled, err = boolEnv("OTEL_ENABLED", false); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks all configuration constraints.
func (c *Config) Validate() error {
	if c.GatewayAdminURL == "" {
		return fmt.Errorf("GATEWAY_ADMIN_URL environment variable is required")
	}
	if !strings.HasPrefix(c.GatewayAdminURL, "http://") && !strings.HasPrefix(c.GatewayAdminURL, "https://") {
		return fmt.Errorf("GATEWAY_ADMIN_URL must be an http(s) URL, got %q", c.GatewayAdminURL)
	}
	if c.GatewayServiceID == "" {
		return fmt.Errorf("GATEWAY_SERVICE_ID environment variable is required")
	}
	if c.AdminTokenHash == "" {
		return fmt.Errorf("ADMIN_TOKEN_HASH environment variable is required")
	}
	if !strings.HasPrefix(c.AdminTokenHash, "$2") {
		return fmt.Errorf("ADMIN_TOKEN_HASH must be a bcrypt hash")
	}
	if c.SyncConcurrency < 1 {
		return fmt.Errorf("SYNC_CONCURRENCY must be at least 1, got %d", c.SyncConcurrency)
	}
	if c.GatewayTimeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT must be positive")
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func boolEnv(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}
