// Package config provides configuration loading and validation from environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Fallback secrets used when the environment does not provide one.
// These exist for local development only; Warnings reports when they are in effect.
const (
	FallbackAdminPassword = "admin"
	FallbackIngestKey     = "dev-ingest-key"
	FallbackBackendURL    = "http://localhost:4000"
)

// backendURLVars lists the variables consulted for the backend base URL, highest precedence first.
var backendURLVars = []string{"BACKEND_API_URL", "API_BASE_URL", "NEXT_PUBLIC_API_URL"}

// ingestKeyVars lists the variables consulted for the internal service key, highest precedence first.
var ingestKeyVars = []string{"INTERNAL_INGEST_KEY", "INGEST_API_KEY"}

// Config holds all application configuration.
type Config struct {
	LogLevel            string // debug, info, warn, error
	ListenAddr          string // Server listen address (e.g., ":8080")
	MetricsListenAddr   string // Metrics listener address (e.g., "localhost:9090")
	DatabasePath        string // SQLite audit database path
	AdminPassword       string // Plain admin password compared on login
	AdminPasswordBcrypt string // Optional: bcrypt hash that replaces the plain comparison
	IngestKey           string // Internal service key attached to every backend call
	BackendURL          string // Base URL of the editorial backend API
	PublicBaseURL       string // Base URL used to build public upload URLs
	UploadsPrefix       string // Path prefix identifying local uploads (e.g., "/uploads/")
	ProtectedPrefix     string // Path prefix gated by the session cookie
	LoginPath           string // Redirect target for unauthenticated requests
	MaxBodyBytes        int64  // Inbound request body limit

	warnings []string
}

// Load parses configuration from environment variables.
// A .env file in the working directory (or the file named by ENV_FILE) is loaded first;
// variables already present in the environment take precedence over it.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		ListenAddr:          getEnv("LISTEN_ADDR", ":8080"),
		MetricsListenAddr:   getEnv("METRICS_LISTEN_ADDR", "localhost:9090"),
		DatabasePath:        getEnv("DATABASE_PATH", "/data/editor-gateway.db"),
		AdminPasswordBcrypt: os.Getenv("ADMIN_PASSWORD_BCRYPT"),
		UploadsPrefix:       getEnv("UPLOADS_PREFIX", "/uploads/"),
		ProtectedPrefix:     getEnv("PROTECTED_PREFIX", "/admin"),
		LoginPath:           getEnv("LOGIN_PATH", "/login"),
	}

	cfg.AdminPassword = os.Getenv("ADMIN_PASSWORD")
	if cfg.AdminPassword == "" && cfg.AdminPasswordBcrypt == "" {
		cfg.AdminPassword = FallbackAdminPassword
		cfg.warnings = append(cfg.warnings, "ADMIN_PASSWORD not set, using built-in fallback password")
	}

	cfg.IngestKey = firstEnv(ingestKeyVars)
	if cfg.IngestKey == "" {
		cfg.IngestKey = FallbackIngestKey
		cfg.warnings = append(cfg.warnings, "INTERNAL_INGEST_KEY not set, using built-in fallback key")
	}

	cfg.BackendURL = strings.TrimRight(firstEnv(backendURLVars), "/")
	if cfg.BackendURL == "" {
		cfg.BackendURL = FallbackBackendURL
		cfg.warnings = append(cfg.warnings, "BACKEND_API_URL not set, using "+FallbackBackendURL)
	}

	cfg.PublicBaseURL = strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/")
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = cfg.BackendURL
	}

	cfg.MaxBodyBytes = 10 << 20
	if v := os.Getenv("MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_BODY_BYTES %q: %w", v, err)
		}
		cfg.MaxBodyBytes = n
	}

	return cfg, nil
}

// Validate checks all configuration constraints.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL %q: must be debug, info, warn or error", c.LogLevel)
	}

	for name, raw := range map[string]string{"backend URL": c.BackendURL, "PUBLIC_BASE_URL": c.PublicBaseURL} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid %s %q: must be an absolute http(s) URL", name, raw)
		}
	}

	if !strings.HasPrefix(c.UploadsPrefix, "/") {
		return fmt.Errorf("UPLOADS_PREFIX must start with /")
	}
	if !strings.HasPrefix(c.ProtectedPrefix, "/") || !strings.HasPrefix(c.LoginPath, "/") {
		return fmt.Errorf("PROTECTED_PREFIX and LOGIN_PATH must start with /")
	}
	if prefix := strings.TrimRight(c.ProtectedPrefix, "/"); prefix == "" ||
		c.LoginPath == prefix || strings.HasPrefix(c.LoginPath, prefix+"/") {
		return fmt.Errorf("LOGIN_PATH %q must not live under PROTECTED_PREFIX %q", c.LoginPath, c.ProtectedPrefix)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive")
	}
	return nil
}

// Warnings lists the built-in fallbacks that are in effect.
// Each one is a deployment misconfiguration outside local development.
func (c *Config) Warnings() []string {
	return c.warnings
}

func loadDotEnv() error {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = ".env"
		if _, err := os.Stat(path); err != nil {
			return nil
		}
	}
	// godotenv.Load never overrides variables that are already set
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstEnv(keys []string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
