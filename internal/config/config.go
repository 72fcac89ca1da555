package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds the application configuration
type Config struct {
	// Database connection string (DSN). Postgres URLs get the pgdriver
	// backend, anything else is treated as a SQLite path.
	DatabaseURL string

	// Server bind address (host:port)
	ServerAddr string

	// Enable debug logging
	Debug bool

	// Shared secret for bearer token validation. When empty the API runs
	// in development mode and trusts the X-Actor-ID header instead.
	AuthTokenSecret string

	// Path to a permission catalog file loaded at startup. Empty skips
	// the startup bootstrap; the catalog can still be loaded via CLI.
	CatalogPath string

	// Decision cache tuning
	Cache CacheConfig

	// Audit pipeline tuning
	Audit AuditConfig

	// Expired-grant sweep tuning
	Sweep SweepConfig

	// OpenTelemetry export configuration
	Observability ObservabilityConfig
}

// CacheConfig tunes the in-memory decision cache.
type CacheConfig struct {
	// Disabled turns the decision cache into a no-op. Every check hits
	// the database; results stay correct, only slower.
	Disabled bool

	// Size is the maximum number of cached decisions before LRU eviction.
	Size int

	// TTL bounds how stale a cached decision may be.
	TTL time.Duration
}

// AuditConfig tunes the asynchronous audit writer.
type AuditConfig struct {
	// RetentionDays bounds how long terminal grants are kept before the
	// sweep retires them.
	RetentionDays int

	// RedrivePerSecond paces dead-letter retries so a recovering
	// database is not hammered.
	RedrivePerSecond int

	// DeadLetterLimit caps the dead-letter buffer. Beyond it the oldest
	// failed entries are dropped and counted.
	DeadLetterLimit int
}

// SweepConfig tunes the periodic expired-grant sweep.
type SweepConfig struct {
	// Interval between background sweep runs.
	Interval time.Duration

	// BatchLimit caps how many grants one sweep pass transitions.
	BatchLimit int
}

// ObservabilityConfig holds OpenTelemetry export settings. An empty
// OTLPEndpoint disables telemetry entirely.
type ObservabilityConfig struct {
	OTLPEndpoint   string
	OTLPProtocol   string
	OTLPInsecure   bool
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// Load reads configuration from environment variables with fallback defaults
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		ServerAddr:      getEnv("SERVER_ADDR", "localhost:8080"),
		Debug:           getEnvBool("DEBUG", false),
		AuthTokenSecret: getEnv("AUTH_TOKEN_SECRET", ""),
		CatalogPath:     getEnv("CATALOG_PATH", ""),
		Cache: CacheConfig{
			Disabled: getEnvBool("CACHE_DISABLED", false),
			Size:     getEnvInt("CACHE_SIZE", 10000),
			TTL:      getEnvDuration("CACHE_TTL", 30*time.Second),
		},
		Audit: AuditConfig{
			RetentionDays:    getEnvInt("AUDIT_RETENTION_DAYS", 90),
			RedrivePerSecond: getEnvInt("AUDIT_REDRIVE_RPS", 10),
			DeadLetterLimit:  getEnvInt("AUDIT_DEAD_LETTER_LIMIT", 1000),
		},
		Sweep: SweepConfig{
			Interval:   getEnvDuration("SWEEP_INTERVAL", time.Minute),
			BatchLimit: getEnvInt("SWEEP_BATCH_LIMIT", 500),
		},
		Observability: ObservabilityConfig{
			OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			OTLPProtocol:   getEnv("OTEL_EXPORTER_OTLP_PROTOCOL", "http/protobuf"),
			OTLPInsecure:   getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "authzapi"),
			ServiceVersion: getEnv("SERVICE_VERSION", "dev"),
			Environment:    getEnv("ENVIRONMENT", "development"),
		},
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if !cfg.Cache.Disabled {
		if cfg.Cache.Size <= 0 {
			return nil, fmt.Errorf("CACHE_SIZE must be positive, got %d", cfg.Cache.Size)
		}
		if cfg.Cache.TTL <= 0 {
			return nil, fmt.Errorf("CACHE_TTL must be positive, got %v", cfg.Cache.TTL)
		}
	}

	if cfg.Audit.RetentionDays <= 0 {
		return nil, fmt.Errorf("AUDIT_RETENTION_DAYS must be positive, got %d", cfg.Audit.RetentionDays)
	}
	if cfg.Audit.RedrivePerSecond <= 0 {
		return nil, fmt.Errorf("AUDIT_REDRIVE_RPS must be positive, got %d", cfg.Audit.RedrivePerSecond)
	}
	if cfg.Audit.DeadLetterLimit <= 0 {
		return nil, fmt.Errorf("AUDIT_DEAD_LETTER_LIMIT must be positive, got %d", cfg.Audit.DeadLetterLimit)
	}

	if cfg.Sweep.Interval < time.Second {
		return nil, fmt.Errorf("SWEEP_INTERVAL must be at least 1s, got %v", cfg.Sweep.Interval)
	}
	if cfg.Sweep.BatchLimit <= 0 {
		return nil, fmt.Errorf("SWEEP_BATCH_LIMIT must be positive, got %d", cfg.Sweep.BatchLimit)
	}

	return cfg, nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (Go duration
// syntax, e.g. "90s", "5m") or returns a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if dur, err := time.ParseDuration(value); err == nil {
			return dur
		}
	}
	return defaultValue
}
