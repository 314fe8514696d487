package adapter_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/edge-session-gateway/internal/domain"
	"github.com/aelexs/edge-session-gateway/internal/edge/adapter"
	redisclient "github.com/aelexs/edge-session-gateway/internal/redis"
	"github.com/aelexs/edge-session-gateway/internal/token"
)

func newTestDenylist(t *testing.T) (*adapter.Denylist, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redisclient.NewClient(redisclient.Config{
		Addr:         mr.Addr(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})
	t.Cleanup(func() {
		require.NoError(t, client.Close())
	})

	return adapter.NewDenylist(client.RDB), mr
}

func TestDenylist_Revoke(t *testing.T) {
	t.Run("creates keyed entry with the given TTL", func(t *testing.T) {
		dl, mr := newTestDenylist(t)
		ctx := context.Background()

		hash := token.Hash("refresh-token-1")
		err := dl.Revoke(ctx, hash, domain.RefreshTokenLifetime)

		require.NoError(t, err)
		assert.True(t, mr.Exists("revoked_rt:"+hash), "denylist key should exist")
		assert.Equal(t, domain.RefreshTokenLifetime, mr.TTL("revoked_rt:"+hash))
	})

	t.Run("revoking the same hash twice succeeds", func(t *testing.T) {
		dl, mr := newTestDenylist(t)
		ctx := context.Background()

		hash := token.Hash("refresh-token-2")
		require.NoError(t, dl.Revoke(ctx, hash, time.Hour))
		require.NoError(t, dl.Revoke(ctx, hash, time.Hour))

		assert.True(t, mr.Exists("revoked_rt:"+hash))
	})

	t.Run("non-positive TTL still writes an entry", func(t *testing.T) {
		dl, mr := newTestDenylist(t)
		ctx := context.Background()

		hash := token.Hash("refresh-token-3")
		require.NoError(t, dl.Revoke(ctx, hash, 0))

		assert.True(t, mr.Exists("revoked_rt:"+hash))
	})
}

func TestDenylist_IsRevoked(t *testing.T) {
	t.Run("unknown hash is not revoked", func(t *testing.T) {
		dl, _ := newTestDenylist(t)

		revoked, err := dl.IsRevoked(context.Background(), token.Hash("never-seen"))

		require.NoError(t, err)
		assert.False(t, revoked)
	})

	t.Run("revoked hash is reported until the TTL runs out", func(t *testing.T) {
		dl, mr := newTestDenylist(t)
		ctx := context.Background()

		hash := token.Hash("refresh-token-4")
		require.NoError(t, dl.Revoke(ctx, hash, time.Hour))

		revoked, err := dl.IsRevoked(ctx, hash)
		require.NoError(t, err)
		assert.True(t, revoked)

		mr.FastForward(time.Hour + time.Second)

		revoked, err = dl.IsRevoked(ctx, hash)
		require.NoError(t, err)
		assert.False(t, revoked, "entry should expire with the token lifetime")
	})

	t.Run("redis failure surfaces the error", func(t *testing.T) {
		dl, mr := newTestDenylist(t)
		mr.Close()

		revoked, err := dl.IsRevoked(context.Background(), token.Hash("refresh-token-5"))

		require.Error(t, err)
		assert.False(t, revoked, "errors report not-revoked so the caller can fail open")
	})
}
