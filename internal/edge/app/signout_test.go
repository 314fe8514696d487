package app_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/edge-session-gateway/internal/domain"
	"github.com/aelexs/edge-session-gateway/internal/edge/app"
	"github.com/aelexs/edge-session-gateway/internal/token"
)

func TestLogout(t *testing.T) {
	t.Run("revokes at backend and denylists the hash", func(t *testing.T) {
		h := newTestHarness(t)
		artifact := sampleArtifact(testStart)

		var revokedToken string
		h.backend.revokeFn = func(_ context.Context, refreshToken string) error {
			revokedToken = refreshToken
			return nil
		}

		var denylistedHash string
		var denylistTTL time.Duration
		h.denylist.revokeFn = func(_ context.Context, tokenHash string, ttl time.Duration) error {
			denylistedHash = tokenHash
			denylistTTL = ttl
			return nil
		}

		err := h.svc.Logout(context.Background(), artifact)
		require.NoError(t, err)
		assert.Equal(t, artifact.RefreshToken, revokedToken)
		assert.Equal(t, token.Hash(artifact.RefreshToken), denylistedHash)
		assert.Equal(t, domain.RefreshTokenLifetime, denylistTTL, "entry lives as long as the token could have")
	})

	t.Run("nil artifact and tokenless artifact are no-ops", func(t *testing.T) {
		h := newTestHarness(t)

		h.backend.revokeFn = func(_ context.Context, _ string) error {
			t.Fatal("backend must not be called")
			return nil
		}

		require.NoError(t, h.svc.Logout(context.Background(), nil))

		a := sampleArtifact(testStart)
		a.RefreshToken = ""
		require.NoError(t, h.svc.Logout(context.Background(), a))
	})

	t.Run("backend failure still denylists locally", func(t *testing.T) {
		h := newTestHarness(t)

		errBackend := errors.New("backend: 502")
		h.backend.revokeFn = func(_ context.Context, _ string) error {
			return errBackend
		}

		denylisted := false
		h.denylist.revokeFn = func(_ context.Context, _ string, _ time.Duration) error {
			denylisted = true
			return nil
		}

		err := h.svc.Logout(context.Background(), sampleArtifact(testStart))
		require.Error(t, err)
		assert.ErrorIs(t, err, errBackend)
		assert.True(t, denylisted, "local revocation must not depend on the backend")
	})

	t.Run("denylist failure is reported", func(t *testing.T) {
		h := newTestHarness(t)

		errRedis := errors.New("redis: connection refused")
		h.denylist.revokeFn = func(_ context.Context, _ string, _ time.Duration) error {
			return errRedis
		}

		err := h.svc.Logout(context.Background(), sampleArtifact(testStart))
		assert.ErrorIs(t, err, errRedis)
	})

	t.Run("no denylist configured: backend revocation alone", func(t *testing.T) {
		h := newTestHarness(t)

		revoked := false
		h.backend.revokeFn = func(_ context.Context, _ string) error {
			revoked = true
			return nil
		}

		svc := app.NewService(app.ServiceConfig{
			Backend: h.backend,
			Clock:   h.clock,
			Logger:  slog.Default(),
		})

		require.NoError(t, svc.Logout(context.Background(), sampleArtifact(testStart)))
		assert.True(t, revoked)
	})
}
