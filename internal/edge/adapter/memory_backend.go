package adapter

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/aelexs/edge-session-gateway/internal/domain"
	"github.com/aelexs/edge-session-gateway/internal/edge/app"
	"github.com/aelexs/edge-session-gateway/internal/token"
)

// Compile-time check: MemoryBackend satisfies app.Backend.
var _ app.Backend = (*MemoryBackend)(nil)

// MemoryBackend is an in-process auth backend for local development and
// tests. It implements the same contract as the real backend: HS256 access
// tokens, refresh token rotation on every exchange, and family revocation
// when a rotated-out token comes back (reuse detection, ADR-021 §4.5).
// Never run it outside local setups; state dies with the process.
type MemoryBackend struct {
	signKey    domain.SecretBytes
	clock      domain.Clock
	accessTTL  time.Duration
	refreshTTL time.Duration

	mu       sync.Mutex
	users    map[string]memoryUser
	sessions map[string]*memorySession // keyed by refresh token hash
}

type memoryUser struct {
	password string
	subject  string
}

type memorySession struct {
	subject   string
	family    string
	rotatedTo string // hash of the successor token, "" while current
	expiresAt time.Time
	revoked   bool
}

// MemoryBackendConfig holds the settings for MemoryBackend.
type MemoryBackendConfig struct {
	// SignKey signs minted access tokens. Required.
	SignKey domain.SecretBytes
	Clock   domain.Clock
	// AccessTTL defaults to domain.AccessTokenLifetime.
	AccessTTL time.Duration
	// RefreshTTL defaults to domain.RefreshTokenLifetime.
	RefreshTTL time.Duration
}

// NewMemoryBackend creates an empty MemoryBackend. Seed accounts with AddUser.
func NewMemoryBackend(cfg MemoryBackendConfig) *MemoryBackend {
	clock := cfg.Clock
	if clock == nil {
		clock = domain.RealClock{}
	}
	accessTTL := cfg.AccessTTL
	if accessTTL <= 0 {
		accessTTL = domain.AccessTokenLifetime
	}
	refreshTTL := cfg.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = domain.RefreshTokenLifetime
	}

	return &MemoryBackend{
		signKey:    cfg.SignKey,
		clock:      clock,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		users:      make(map[string]memoryUser),
		sessions:   make(map[string]*memorySession),
	}
}

// AddUser registers an account. Existing usernames are overwritten.
func (b *MemoryBackend) AddUser(username, password, subject string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[username] = memoryUser{password: password, subject: subject}
}

// ExchangeCredentials verifies the password and opens a new session family.
func (b *MemoryBackend) ExchangeCredentials(_ context.Context, username, password string) (*app.Grant, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	user, ok := b.users[username]
	if !ok || subtle.ConstantTimeCompare([]byte(user.password), []byte(password)) != 1 {
		return nil, domain.ErrInvalidCredentials
	}

	return b.openSession(user.subject, uuid.NewString())
}

// ExchangeRefreshToken rotates the refresh token within its family. A
// token that was already rotated out revokes the whole family and reports
// reuse.
func (b *MemoryBackend) ExchangeRefreshToken(_ context.Context, refreshToken string) (*app.Grant, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now().UTC()
	hash := token.Hash(refreshToken)

	sess, ok := b.sessions[hash]
	switch {
	case !ok:
		return nil, domain.ErrRefreshTokenInvalid
	case sess.revoked:
		return nil, domain.ErrSessionRevoked
	case sess.rotatedTo != "":
		b.revokeFamily(sess.family)
		return nil, domain.ErrRefreshTokenReuse
	case now.After(sess.expiresAt):
		return nil, domain.ErrRefreshTokenExpired
	}

	grant, err := b.openSession(sess.subject, sess.family)
	if err != nil {
		return nil, err
	}
	sess.rotatedTo = token.Hash(grant.RefreshToken)
	return grant, nil
}

// Revoke invalidates the token's whole session family. Unknown tokens
// succeed; revocation is idempotent.
func (b *MemoryBackend) Revoke(_ context.Context, refreshToken string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sess, ok := b.sessions[token.Hash(refreshToken)]; ok {
		b.revokeFamily(sess.family)
	}
	return nil
}

// openSession mints a grant and records its refresh token. Callers hold b.mu.
func (b *MemoryBackend) openSession(subject, family string) (*app.Grant, error) {
	refresh, err := token.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	now := b.clock.Now().UTC()
	expiresAt := now.Add(b.accessTTL)

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "edge-local",
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.signKey.Expose())
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}

	b.sessions[token.Hash(refresh)] = &memorySession{
		subject:   subject,
		family:    family,
		expiresAt: now.Add(b.refreshTTL),
	}

	return &app.Grant{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
		Subject:      subject,
	}, nil
}

// revokeFamily marks every session in the family revoked. Callers hold b.mu.
func (b *MemoryBackend) revokeFamily(family string) {
	for _, sess := range b.sessions {
		if sess.family == family {
			sess.revoked = true
		}
	}
}
