package config_test

import (
	"context"
	"testing"

	"github.com/aelexs/edge-session-gateway/internal/config"
	"github.com/aelexs/edge-session-gateway/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := config.Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Environment)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	// Edge surface
	assert.Equal(t, 8080, cfg.Edge.Port)
	assert.Equal(t, domain.DefaultLoginPath, cfg.Edge.Login)
	assert.Empty(t, cfg.Edge.Upstream)

	// Session defaults
	assert.Equal(t, domain.SessionCookieName, cfg.Session.Cookie)
	assert.True(t, cfg.Session.Secure)
	assert.Equal(t, domain.RefreshSkew, cfg.Session.Skew)
	assert.Equal(t, domain.SessionCookieMaxAge, cfg.Session.TTL)

	// Infrastructure defaults
	assert.Equal(t, domain.BackendCallTimeout, cfg.Backend.Timeout)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)
	assert.Equal(t, domain.RedisTimeout, cfg.Redis.Timeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("EDGE_PORT", "9999")
	t.Setenv("EDGE_LOGIN", "/signin")
	t.Setenv("SESSION_COOKIE", "app_session")
	t.Setenv("SESSION_SKEW", "45s")
	t.Setenv("BACKEND_URL", "https://auth.internal:9443")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := config.Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Edge.Port)
	assert.Equal(t, "/signin", cfg.Edge.Login)
	assert.Equal(t, "app_session", cfg.Session.Cookie)
	assert.Equal(t, "45s", cfg.Session.Skew.String())
	assert.Equal(t, "https://auth.internal:9443", cfg.Backend.URL)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestSessionSecretIsRedacted(t *testing.T) {
	t.Setenv("SESSION_SECRET", "super-secret-signing-key")

	cfg, err := config.Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "super-secret-signing-key", cfg.Session.Secret.Expose())
	assert.Equal(t, "[REDACTED]", cfg.Session.Secret.String())
}

func TestIsLocal(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want bool
	}{
		{"local returns true", "local", true},
		{"prod returns false", "prod", false},
		{"dev returns false", "dev", false},
		{"empty returns false", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Environment: tt.env}

			assert.Equal(t, tt.want, cfg.IsLocal())
		})
	}
}

func TestIsProd(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want bool
	}{
		{"prod returns true", "prod", true},
		{"local returns false", "local", false},
		{"dev returns false", "dev", false},
		{"empty returns false", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Environment: tt.env}

			assert.Equal(t, tt.want, cfg.IsProd())
		})
	}
}

func TestValidateRequired_LocalAllowsMissingFields(t *testing.T) {
	t.Setenv("ENVIRONMENT", "local")

	cfg, err := config.Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Environment)
}

func TestValidateRequired_NonLocalRequiresBackendURL(t *testing.T) {
	t.Setenv("ENVIRONMENT", "dev")

	_, err := config.Load(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigRequired)
	assert.Contains(t, err.Error(), "backend.url")
}

func TestValidateRequired_NonLocalRequiresCookieSecret(t *testing.T) {
	t.Setenv("ENVIRONMENT", "dev")
	t.Setenv("BACKEND_URL", "https://auth.internal:9443")

	_, err := config.Load(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigRequired)
	assert.Contains(t, err.Error(), "session.secret")
}

func TestValidateRequired_ProdRequiresUpstreamAndRedis(t *testing.T) {
	t.Setenv("ENVIRONMENT", "prod")
	t.Setenv("BACKEND_URL", "https://auth.internal:9443")
	t.Setenv("SESSION_SECRET", "k")
	t.Setenv("POLICY_FILE", "/etc/edge/policy.yaml")

	_, err := config.Load(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigRequired)
	assert.Contains(t, err.Error(), "edge.upstream")

	t.Setenv("EDGE_UPSTREAM", "http://app.internal:3000")

	_, err = config.Load(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigRequired)
	assert.Contains(t, err.Error(), "redis.addr")
}
