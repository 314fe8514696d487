// Package session holds the session artifact, the signed cookie codec, the
// cookie transport, and the per-request store. The artifact is the only
// session state the platform keeps: the edge is stateless and the cookie
// carries everything (ADR-021 §1).
package session

import (
	"fmt"
	"time"

	"github.com/aelexs/edge-session-gateway/internal/domain"
)

// Artifact is the session state carried by the cookie. Artifacts are
// replaced wholesale on refresh, never field-patched.
type Artifact struct {
	AccessToken  string
	RefreshToken string
	// ExpiresAt is the access token expiry as UTC epoch seconds.
	ExpiresAt int64
	// Subject is the opaque subject identifier minted by the auth backend.
	Subject string
	// Seq is the monotonic refresh sequence number. Each successful refresh
	// increments it; stores reject artifacts older than what they hold.
	Seq uint64
}

// Validate reports whether the artifact is well-formed enough to encode.
// RefreshToken may be empty: such a session works until access expiry and
// then cannot be renewed.
func (a *Artifact) Validate() error {
	if a == nil {
		return fmt.Errorf("%w: nil artifact", domain.ErrInvalidInput)
	}
	if a.AccessToken == "" {
		return fmt.Errorf("%w: access token required", domain.ErrInvalidInput)
	}
	if a.Subject == "" {
		return fmt.Errorf("%w: subject required", domain.ErrInvalidInput)
	}
	if a.ExpiresAt <= 0 {
		return fmt.Errorf("%w: expiry required", domain.ErrInvalidInput)
	}
	return nil
}

// Expired reports whether the access token is past its expiry at now.
func (a *Artifact) Expired(now time.Time) bool {
	return !domain.FromSeconds(a.ExpiresAt).After(now)
}

// ExpiresWithin reports whether the access token expires within skew of
// now. This is the proactive-refresh trigger: an artifact inside the skew
// window is refreshed before it goes stale in a downstream call.
func (a *Artifact) ExpiresWithin(now time.Time, skew time.Duration) bool {
	return !domain.FromSeconds(a.ExpiresAt).After(now.Add(skew))
}

// Clone returns an independent copy of the artifact.
func (a *Artifact) Clone() *Artifact {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
