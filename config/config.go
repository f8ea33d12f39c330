package config

import (
	"log/slog"
	"os"
	"strings"
	"time"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: Authentication backend and session persistence
//   - database.go: Postgres and Redis connections, store selection
//   - observability.go: Metrics and notification fan-out
type AppConfig struct {
	// IsDev controls development mode behavior (text logs, in-memory defaults).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Authentication configuration
	Auth AuthConfig

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Store    StoreConfig

	// Coordinator configuration
	Coordinator CoordinatorConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// CoordinatorConfig tunes the session coordinator.
type CoordinatorConfig struct {
	// ResolveTimeout bounds a single profile/role resolution. Zero disables the bound.
	ResolveTimeout time.Duration `env:"COORDINATOR_RESOLVE_TIMEOUT" envDefault:"15s"`
}

// Sanitize clamps values.
func (c *CoordinatorConfig) Sanitize() {
	if c.ResolveTimeout < 0 {
		c.ResolveTimeout = 0
	}
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.detectDevMode()

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.Auth.Sanitize()
	c.Postgres.Sanitize()
	c.Store.Sanitize()
	c.Coordinator.Sanitize()
	c.Observability.Sanitize()
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// SlogLevel maps LogLevel to a slog level. Unknown values yield info.
func (c *AppConfig) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
