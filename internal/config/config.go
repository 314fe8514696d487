// Package config provides configuration loading using koanf.
// Precedence: environment variables over compiled defaults; required keys
// missing in prod fail startup (ADR-021 §7).
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/aelexs/edge-session-gateway/internal/domain"
)

// Config holds all service configuration.
type Config struct {
	// Environment identifier: "local", "dev", "prod"
	Environment string `koanf:"environment"`

	Log LogConfig `koanf:"log"`

	Edge    EdgeConfig    `koanf:"edge"`
	Session SessionConfig `koanf:"session"`
	Backend BackendConfig `koanf:"backend"`
	Policy  PolicyConfig  `koanf:"policy"`

	Redis RedisConfig `koanf:"redis"`

	// OpenTelemetry configuration
	OTEL OTELConfig `koanf:"otel"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// EdgeConfig holds the gateway's HTTP surface configuration.
type EdgeConfig struct {
	Port int `koanf:"port"`
	// Upstream is the base URL of the application the edge fronts.
	// Empty in local mode serves a placeholder upstream.
	Upstream string `koanf:"upstream"`
	// Login is the path unauthenticated users are redirected to.
	Login string `koanf:"login"`
}

// SessionConfig holds cookie and refresh configuration.
type SessionConfig struct {
	// Cookie is the session cookie name.
	Cookie string `koanf:"cookie"`
	// Secret signs the session cookie. Required outside local.
	Secret domain.SecretString `koanf:"secret"`
	// Secure controls the cookie Secure attribute. Disable only for
	// localhost development over plain HTTP.
	Secure bool `koanf:"secure"`
	// Skew is how far before access expiry the edge refreshes proactively.
	Skew time.Duration `koanf:"skew"`
	// TTL is the cookie max-age; it must track the refresh token lifetime.
	TTL time.Duration `koanf:"ttl"`
}

// BackendConfig holds the auth backend endpoint configuration.
type BackendConfig struct {
	// URL is the backend base URL. Empty in local mode selects the
	// in-process backend.
	URL     string              `koanf:"url"`
	Timeout time.Duration       `koanf:"timeout"`
	Key     domain.SecretString `koanf:"key"` // service credential, optional
}

// PolicyConfig holds the route policy source.
type PolicyConfig struct {
	// File is the YAML policy file path. Empty in local mode uses the
	// built-in permissive policy.
	File string `koanf:"file"`
}

// RedisConfig holds Redis configuration. Empty addr disables the
// denylist and rate limit adapters.
type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	Timeout  time.Duration `koanf:"timeout"`
}

// OTELConfig holds OpenTelemetry configuration.
type OTELConfig struct {
	Endpoint string `koanf:"endpoint"` // Empty disables OTLP export
}

// defaults returns a Config with compiled default values.
// These match normative limits from ADR-021.
func defaults() *Config {
	return &Config{
		Environment: "local",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},

		Edge: EdgeConfig{
			Port:  8080,
			Login: domain.DefaultLoginPath,
		},
		Session: SessionConfig{
			Cookie: domain.SessionCookieName,
			Secure: true,
			Skew:   domain.RefreshSkew,
			TTL:    domain.SessionCookieMaxAge,
		},
		Backend: BackendConfig{
			Timeout: domain.BackendCallTimeout,
		},

		Redis: RedisConfig{
			DB:      0,
			Timeout: domain.RedisTimeout,
		},
	}
}

// Load loads configuration following the precedence:
// 1. Environment variables (highest)
// 2. Compiled defaults (lowest)
//
// Required keys missing → startup failure.
// Optional keys missing → fallback to defaults.
func Load(ctx context.Context) (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	k := koanf.New(".")

	// Start with compiled defaults
	cfg := defaults()

	// Load environment variables
	// Prefix: none (we use full names like SESSION_SECRET)
	// Delimiter: _ maps to . for nested config
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(s), "_", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	// Unmarshal into config struct
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Validate required fields
	if err := validateRequired(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateRequired checks that required configuration is present.
// Required key failure → startup failure.
func validateRequired(cfg *Config) error {
	// In local environment, everything has an in-process fallback
	if cfg.Environment == "local" {
		return nil
	}

	// Outside local, the edge cannot invent its dependencies
	if cfg.Backend.URL == "" {
		return fmt.Errorf("%w: backend.url", domain.ErrConfigRequired)
	}
	if cfg.Session.Secret.IsEmpty() {
		return fmt.Errorf("%w: session.secret", domain.ErrConfigRequired)
	}
	if cfg.Policy.File == "" {
		return fmt.Errorf("%w: policy.file", domain.ErrConfigRequired)
	}

	if cfg.Environment == "prod" {
		if cfg.Edge.Upstream == "" {
			return fmt.Errorf("%w: edge.upstream", domain.ErrConfigRequired)
		}
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("%w: redis.addr", domain.ErrConfigRequired)
		}
	}

	return nil
}

// IsLocal returns true if running in local development environment.
func (c *Config) IsLocal() bool {
	return c.Environment == "local"
}

// IsProd returns true if running in production environment.
func (c *Config) IsProd() bool {
	return c.Environment == "prod"
}
