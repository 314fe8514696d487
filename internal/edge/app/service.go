// Package app implements the session edge flows: sign-in, refresh, and
// sign-out (ADR-021). The package owns the business rules; transports live
// in port and concrete backends in adapter.
package app

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"github.com/aelexs/edge-session-gateway/internal/domain"
)

var tracer = otel.Tracer("edge/app")

var (
	refreshTotal            metric.Int64Counter
	refreshCoalescedTotal   metric.Int64Counter
	loginsTotal             metric.Int64Counter
	authFailuresTotal       metric.Int64Counter
	rateLimitsTotal         metric.Int64Counter
	sessionRevocationsTotal metric.Int64Counter
)

func init() {
	m := otel.Meter("edge/app")

	refreshTotal, _ = m.Int64Counter("session_refresh_total",
		metric.WithDescription("Total session refresh attempts by outcome"))
	refreshCoalescedTotal, _ = m.Int64Counter("session_refresh_coalesced_total",
		metric.WithDescription("Total refresh attempts coalesced into an in-flight exchange"))
	loginsTotal, _ = m.Int64Counter("session_logins_total",
		metric.WithDescription("Total successful logins"))
	authFailuresTotal, _ = m.Int64Counter("security_auth_failures_total",
		metric.WithDescription("Total authentication failures"))
	rateLimitsTotal, _ = m.Int64Counter("security_rate_limits_total",
		metric.WithDescription("Total rate limit hits"))
	sessionRevocationsTotal, _ = m.Int64Counter("security_session_revocations_total",
		metric.WithDescription("Total session revocations"))
}

// Grant is a successful token exchange result from the auth backend.
type Grant struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Subject      string
}

// Backend exchanges tokens and credentials with the auth backend. All three
// calls cross a trust boundary; implementations translate transport failures
// into the domain error taxonomy.
type Backend interface {
	ExchangeRefreshToken(ctx context.Context, refreshToken string) (*Grant, error)
	ExchangeCredentials(ctx context.Context, username, password string) (*Grant, error)
	Revoke(ctx context.Context, refreshToken string) error
}

// Denylist tracks revoked refresh tokens until they would have expired
// anyway. Keys are token hashes, never raw tokens.
type Denylist interface {
	Revoke(ctx context.Context, tokenHash string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenHash string) (bool, error)
}

// RateLimiter checks and enforces rate limits.
type RateLimiter interface {
	CheckAndIncrement(ctx context.Context, key string, limit, windowSeconds int) (bool, error)
}

// ServiceConfig holds the dependencies for Service.
type ServiceConfig struct {
	Backend Backend
	// Denylist may be nil when no Redis is configured; revocation then
	// relies on the backend alone.
	Denylist Denylist
	// RateLimiter may be nil when no Redis is configured.
	RateLimiter RateLimiter
	Clock       domain.Clock
	Logger      *slog.Logger
}

// Service orchestrates the three session edge flows: Login, Refresh, and
// Logout (ADR-021 §4).
type Service struct {
	backend     Backend
	denylist    Denylist
	rateLimiter RateLimiter
	clock       domain.Clock
	logger      *slog.Logger

	// refreshGroup coalesces concurrent refreshes of the same session so a
	// burst of parallel requests costs one backend exchange.
	refreshGroup singleflight.Group
}

// NewService creates a new Service with the given dependencies.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		backend:     cfg.Backend,
		denylist:    cfg.Denylist,
		rateLimiter: cfg.RateLimiter,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
	}
}
