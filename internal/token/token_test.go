package token_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/edge-session-gateway/internal/token"
)

func TestGenerate(t *testing.T) {
	t.Run("produces 43-char base64url string", func(t *testing.T) {
		tok, err := token.Generate()
		require.NoError(t, err)
		assert.Len(t, tok, 43) // 32 bytes base64url (no padding) = 43 chars
	})

	t.Run("produces different tokens", func(t *testing.T) {
		t1, err := token.Generate()
		require.NoError(t, err)
		t2, err := token.Generate()
		require.NoError(t, err)
		assert.NotEqual(t, t1, t2)
	})
}

func TestHash(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		h1 := token.Hash("some-token")
		h2 := token.Hash("some-token")
		assert.Equal(t, h1, h2)
	})

	t.Run("different tokens produce different hashes", func(t *testing.T) {
		h1 := token.Hash("token-a")
		h2 := token.Hash("token-b")
		assert.NotEqual(t, h1, h2)
	})

	t.Run("produces 64-char hex SHA-256", func(t *testing.T) {
		h := token.Hash("some-token")
		assert.Len(t, h, 64)
	})
}

func TestVerifyHash(t *testing.T) {
	tok := "dGhpcyBpcyBhIHJlZnJlc2ggdG9rZW4AAAA"
	hash := token.Hash(tok)

	t.Run("matching token validates", func(t *testing.T) {
		assert.True(t, token.VerifyHash(tok, hash))
	})

	t.Run("different token rejects", func(t *testing.T) {
		assert.False(t, token.VerifyHash("wrong-token", hash))
	})

	t.Run("empty token rejects", func(t *testing.T) {
		assert.False(t, token.VerifyHash("", hash))
	})
}
