package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aelexs/edge-session-gateway/internal/domain"
	"github.com/aelexs/edge-session-gateway/internal/session"
)

var testStart = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func sampleArtifact(expiresAt time.Time) *session.Artifact {
	return &session.Artifact{
		AccessToken:  "access-token-1",
		RefreshToken: "refresh-token-1",
		ExpiresAt:    expiresAt.Unix(),
		Subject:      "subj-42",
		Seq:          3,
	}
}

func TestArtifactValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*session.Artifact)
		wantErr bool
	}{
		{"valid artifact", func(a *session.Artifact) {}, false},
		{"empty refresh token is allowed", func(a *session.Artifact) { a.RefreshToken = "" }, false},
		{"missing access token", func(a *session.Artifact) { a.AccessToken = "" }, true},
		{"missing subject", func(a *session.Artifact) { a.Subject = "" }, true},
		{"zero expiry", func(a *session.Artifact) { a.ExpiresAt = 0 }, true},
		{"negative expiry", func(a *session.Artifact) { a.ExpiresAt = -5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := sampleArtifact(testStart.Add(time.Hour))
			tt.mutate(a)

			err := a.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	t.Run("nil artifact", func(t *testing.T) {
		var a *session.Artifact
		assert.ErrorIs(t, a.Validate(), domain.ErrInvalidInput)
	})
}

func TestArtifactExpiry(t *testing.T) {
	now := testStart

	t.Run("expiring in 5s is inside a 30s skew window", func(t *testing.T) {
		a := sampleArtifact(now.Add(5 * time.Second))
		assert.True(t, a.ExpiresWithin(now, 30*time.Second))
		assert.False(t, a.Expired(now))
	})

	t.Run("expiring in 120s is outside a 30s skew window", func(t *testing.T) {
		a := sampleArtifact(now.Add(120 * time.Second))
		assert.False(t, a.ExpiresWithin(now, 30*time.Second))
		assert.False(t, a.Expired(now))
	})

	t.Run("expiry exactly at the window edge triggers refresh", func(t *testing.T) {
		a := sampleArtifact(now.Add(30 * time.Second))
		assert.True(t, a.ExpiresWithin(now, 30*time.Second))
	})

	t.Run("past expiry is both expired and inside any window", func(t *testing.T) {
		a := sampleArtifact(now.Add(-1 * time.Minute))
		assert.True(t, a.Expired(now))
		assert.True(t, a.ExpiresWithin(now, 30*time.Second))
	})

	t.Run("expiry exactly now counts as expired", func(t *testing.T) {
		a := sampleArtifact(now)
		assert.True(t, a.Expired(now))
	})
}

func TestArtifactClone(t *testing.T) {
	t.Run("clone is independent", func(t *testing.T) {
		a := sampleArtifact(testStart.Add(time.Hour))
		c := a.Clone()

		c.AccessToken = "mutated"
		c.Seq = 99

		assert.Equal(t, "access-token-1", a.AccessToken)
		assert.Equal(t, uint64(3), a.Seq)
	})

	t.Run("nil clones to nil", func(t *testing.T) {
		var a *session.Artifact
		assert.Nil(t, a.Clone())
	})
}
