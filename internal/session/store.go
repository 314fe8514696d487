package session

import (
	"context"
	"sync"

	"github.com/aelexs/edge-session-gateway/internal/domain"
)

// Capability tags a store handle with what its holder may do.
type Capability int

const (
	// ReadWrite is the edge pipeline's handle: it may replace or clear the
	// artifact as refresh outcomes dictate.
	ReadWrite Capability = iota
	// ReadOnly is the rendering context's handle: handlers may read the
	// session of the current request but never mutate it mid-render.
	ReadOnly
)

// Store holds the session artifact for one request. All handles derived
// from the same store observe the same state; capability only restricts
// mutation. The zero value is not usable, construct with NewStore.
type Store struct {
	state      *storeState
	capability Capability
}

type storeState struct {
	mu       sync.Mutex
	artifact *Artifact
}

// NewStore creates a store holding the given artifact (nil for no session).
// The artifact is cloned: callers cannot mutate store state through the
// pointer they passed in.
func NewStore(a *Artifact, capability Capability) *Store {
	return &Store{
		state:      &storeState{artifact: a.Clone()},
		capability: capability,
	}
}

// Capability returns the handle's capability tag.
func (s *Store) Capability() Capability {
	return s.capability
}

// Current returns a copy of the held artifact and whether one is present.
func (s *Store) Current() (*Artifact, bool) {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if s.state.artifact == nil {
		return nil, false
	}
	return s.state.artifact.Clone(), true
}

// Authenticated reports whether a session is present.
func (s *Store) Authenticated() bool {
	_, ok := s.Current()
	return ok
}

// Subject returns the subject ID of the held session, if any.
func (s *Store) Subject() (string, bool) {
	a, ok := s.Current()
	if !ok {
		return "", false
	}
	return a.Subject, true
}

// Replace swaps the held artifact atomically. Read-only handles are
// rejected. Writes carrying a sequence number lower than the held one are
// rejected as stale; an equal sequence is idempotent (coalesced refresh
// waiters all carry the same artifact).
func (s *Store) Replace(a *Artifact) error {
	if s.capability == ReadOnly {
		return domain.ErrReadOnlySession
	}
	if err := a.Validate(); err != nil {
		return err
	}

	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if s.state.artifact != nil && a.Seq < s.state.artifact.Seq {
		return domain.ErrStaleArtifact
	}
	s.state.artifact = a.Clone()
	return nil
}

// Clear drops the held artifact. Read-only handles are rejected.
func (s *Store) Clear() error {
	if s.capability == ReadOnly {
		return domain.ErrReadOnlySession
	}
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	s.state.artifact = nil
	return nil
}

// View returns a read-only handle onto the same state. Later pipeline
// mutations remain visible through the view.
func (s *Store) View() *Store {
	return &Store{state: s.state, capability: ReadOnly}
}

type ctxKey struct{}

// WithSession attaches a store handle to the context. The pipeline attaches
// a read-only view before invoking the wrapped handler.
func WithSession(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the store handle attached to the context, if any.
func FromContext(ctx context.Context) (*Store, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Store)
	return s, ok
}
