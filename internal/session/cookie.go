package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aelexs/edge-session-gateway/internal/domain"
)

// CookieConfig holds the transport attributes of the session cookie.
type CookieConfig struct {
	Name string
	// Secure should only be disabled for localhost development.
	Secure bool
	// MaxAge must track the refresh token lifetime: the cookie has to
	// outlive the access token or the refresh token inside it is lost.
	MaxAge time.Duration
}

// Transport reads and writes the session cookie on HTTP exchanges.
// The cookie is HttpOnly and SameSite=Lax: scripts never see it, and
// top-level navigations (login links in email, external redirects) still
// carry the session (ADR-021 §3).
type Transport struct {
	codec *Codec
	cfg   CookieConfig
}

// NewTransport creates a cookie transport around the given codec.
func NewTransport(codec *Codec, cfg CookieConfig) *Transport {
	if cfg.Name == "" {
		cfg.Name = domain.SessionCookieName
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = domain.SessionCookieMaxAge
	}
	return &Transport{codec: codec, cfg: cfg}
}

// Read extracts and decodes the session artifact from the request.
// A missing cookie is ErrNoSession; an undecodable one is ErrCookieInvalid.
// Both are recovered by the pipeline as the no-session state.
func (t *Transport) Read(r *http.Request) (*Artifact, error) {
	c, err := r.Cookie(t.cfg.Name)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return nil, domain.ErrNoSession
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrCookieInvalid, err)
	}
	if c.Value == "" {
		return nil, domain.ErrNoSession
	}
	return t.codec.Decode(c.Value)
}

// Write encodes the artifact and sets the session cookie on the response.
func (t *Transport) Write(w http.ResponseWriter, a *Artifact) error {
	value, err := t.codec.Encode(a)
	if err != nil {
		return fmt.Errorf("encode session cookie: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     t.cfg.Name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(t.cfg.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   t.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear expires the session cookie on the response.
func (t *Transport) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     t.cfg.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   t.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Name returns the configured cookie name.
func (t *Transport) Name() string {
	return t.cfg.Name
}
