package app_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/aelexs/edge-session-gateway/internal/domain"
	"github.com/aelexs/edge-session-gateway/internal/domain/domaintest"
	"github.com/aelexs/edge-session-gateway/internal/edge/app"
	"github.com/aelexs/edge-session-gateway/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testStart = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

// stubBackend implements app.Backend with function fields. The zero value
// behaves like a backend that knows no tokens and no users.
type stubBackend struct {
	exchangeRefreshFn     func(ctx context.Context, refreshToken string) (*app.Grant, error)
	exchangeCredentialsFn func(ctx context.Context, username, password string) (*app.Grant, error)
	revokeFn              func(ctx context.Context, refreshToken string) error
}

func (s *stubBackend) ExchangeRefreshToken(ctx context.Context, refreshToken string) (*app.Grant, error) {
	if s.exchangeRefreshFn != nil {
		return s.exchangeRefreshFn(ctx, refreshToken)
	}
	return nil, domain.ErrRefreshTokenInvalid
}

func (s *stubBackend) ExchangeCredentials(ctx context.Context, username, password string) (*app.Grant, error) {
	if s.exchangeCredentialsFn != nil {
		return s.exchangeCredentialsFn(ctx, username, password)
	}
	return nil, domain.ErrInvalidCredentials
}

func (s *stubBackend) Revoke(ctx context.Context, refreshToken string) error {
	if s.revokeFn != nil {
		return s.revokeFn(ctx, refreshToken)
	}
	return nil
}

// stubDenylist implements app.Denylist with function fields.
type stubDenylist struct {
	revokeFn    func(ctx context.Context, tokenHash string, ttl time.Duration) error
	isRevokedFn func(ctx context.Context, tokenHash string) (bool, error)
}

func (s *stubDenylist) Revoke(ctx context.Context, tokenHash string, ttl time.Duration) error {
	if s.revokeFn != nil {
		return s.revokeFn(ctx, tokenHash, ttl)
	}
	return nil
}

func (s *stubDenylist) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	if s.isRevokedFn != nil {
		return s.isRevokedFn(ctx, tokenHash)
	}
	return false, nil
}

// stubRateLimiter implements app.RateLimiter with a function field.
type stubRateLimiter struct {
	checkAndIncrementFn func(ctx context.Context, key string, limit, windowSeconds int) (bool, error)
}

func (s *stubRateLimiter) CheckAndIncrement(ctx context.Context, key string, limit, windowSeconds int) (bool, error) {
	if s.checkAndIncrementFn != nil {
		return s.checkAndIncrementFn(ctx, key, limit, windowSeconds)
	}
	return true, nil
}

// testHarness holds all stubs and the constructed Service for a test.
type testHarness struct {
	svc         *app.Service
	clock       *domaintest.FakeClock
	backend     *stubBackend
	denylist    *stubDenylist
	rateLimiter *stubRateLimiter
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	h := &testHarness{
		clock:       domaintest.NewFakeClock(testStart),
		backend:     &stubBackend{},
		denylist:    &stubDenylist{},
		rateLimiter: &stubRateLimiter{},
	}

	h.svc = app.NewService(app.ServiceConfig{
		Backend:     h.backend,
		Denylist:    h.denylist,
		RateLimiter: h.rateLimiter,
		Clock:       h.clock,
		Logger:      slog.Default(),
	})

	return h
}

// sampleArtifact returns a valid artifact expiring at the given instant.
func sampleArtifact(expiresAt time.Time) *session.Artifact {
	return &session.Artifact{
		AccessToken:  "access-token-1",
		RefreshToken: "refresh-token-1",
		ExpiresAt:    expiresAt.Unix(),
		Subject:      "subj-42",
		Seq:          3,
	}
}

// sampleGrant returns the grant a healthy backend would answer with.
func sampleGrant(clock domain.Clock) *app.Grant {
	return &app.Grant{
		AccessToken:  "access-token-2",
		RefreshToken: "refresh-token-2",
		ExpiresAt:    clock.Now().UTC().Add(domain.AccessTokenLifetime),
		Subject:      "subj-42",
	}
}
