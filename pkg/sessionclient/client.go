// Package sessionclient maintains a refreshing token pair for Go clients
// of the auth backend. The edge gateway does this for browsers through the
// session cookie; this package is the equivalent for embedded services,
// CLIs, and probes that hold their tokens directly (ADR-021 §8).
package sessionclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrNoSession is returned when no grant has been seeded with Set.
	ErrNoSession = errors.New("sessionclient: no session")

	// ErrSessionInvalid is returned when the backend definitively rejected
	// the refresh token. The session is over; the caller must authenticate
	// again and Set a new grant.
	ErrSessionInvalid = errors.New("sessionclient: session invalid")

	// ErrUnavailable is returned when the exchange could not run and no
	// live access token remains to serve.
	ErrUnavailable = errors.New("sessionclient: backend unavailable")

	// ErrRejected marks a definitive backend rejection. Exchanger
	// implementations wrap it when the backend rejected the grant itself;
	// any error not wrapping it is treated as transient.
	ErrRejected = errors.New("sessionclient: rejected by backend")
)

// Grant is one issued token pair.
type Grant struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Subject      string
}

func (g *Grant) clone() *Grant {
	if g == nil {
		return nil
	}
	c := *g
	return &c
}

// Exchanger trades a refresh token for the next grant.
type Exchanger interface {
	Exchange(ctx context.Context, refreshToken string) (*Grant, error)
}

const (
	defaultSkew            = 30 * time.Second
	defaultExchangeTimeout = 10 * time.Second
	retryInterval          = 5 * time.Second
)

// Config holds the dependencies for Client.
type Config struct {
	Exchanger Exchanger
	// Skew is how far before expiry Token refreshes proactively.
	Skew time.Duration
	// ExchangeTimeout bounds one exchange call.
	ExchangeTimeout time.Duration
	Logger          *slog.Logger
	// Now overrides the time source, for tests.
	Now func() time.Time
}

// Client holds the current grant and refreshes it on demand. It is safe
// for concurrent use; concurrent refreshes of the same grant coalesce
// into a single exchange.
type Client struct {
	exchanger Exchanger
	skew      time.Duration
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	current *Grant
	// gen counts session replacements, so an exchange that raced with Set
	// or Clear cannot clobber the newer session.
	gen uint64
}

// New creates a Client around the given exchanger.
func New(cfg Config) (*Client, error) {
	if cfg.Exchanger == nil {
		return nil, errors.New("sessionclient: Exchanger is required")
	}

	c := &Client{
		exchanger: cfg.Exchanger,
		skew:      cfg.Skew,
		timeout:   cfg.ExchangeTimeout,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if c.skew <= 0 {
		c.skew = defaultSkew
	}
	if c.timeout <= 0 {
		c.timeout = defaultExchangeTimeout
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

// Set seeds or replaces the session, typically after an interactive login.
func (c *Client) Set(g *Grant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.current = g.clone()
}

// Clear drops the session.
func (c *Client) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.current = nil
}

// Current returns a copy of the held grant, if any.
func (c *Client) Current() (*Grant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, false
	}
	return c.current.clone(), true
}

// Token returns an access token for the session. Inside the skew window
// it refreshes first; when the backend is unreachable it serves the held
// token for as long as it lives, so an outage does not take clients down
// with it.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	g, gen := c.current.clone(), c.gen
	c.mu.Unlock()

	if g == nil {
		return "", ErrNoSession
	}

	now := c.now()
	if now.Before(g.ExpiresAt.Add(-c.skew)) {
		return g.AccessToken, nil
	}

	next, err := c.refresh(ctx, gen, g)
	switch {
	case err == nil:
		return next.AccessToken, nil
	case errors.Is(err, ErrRejected):
		return "", fmt.Errorf("%w: %s", ErrSessionInvalid, err)
	case now.Before(g.ExpiresAt):
		return g.AccessToken, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnavailable, err)
	}
}

// AutoRefresh keeps the session fresh in the background until ctx ends,
// rotating skew ahead of expiry and retrying on transient failures. It
// returns ctx.Err() on cancellation and ErrSessionInvalid when the
// backend rejects the session for good.
func (c *Client) AutoRefresh(ctx context.Context) error {
	for {
		c.mu.Lock()
		g, gen := c.current.clone(), c.gen
		c.mu.Unlock()

		if g == nil {
			return ErrNoSession
		}

		if wait := g.ExpiresAt.Add(-c.skew).Sub(c.now()); wait > 0 {
			if err := sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		if _, err := c.refresh(ctx, gen, g); err != nil {
			if errors.Is(err, ErrRejected) {
				return fmt.Errorf("%w: %s", ErrSessionInvalid, err)
			}
			c.logger.Warn("session refresh failed, will retry", "error", err)
			if err := sleep(ctx, retryInterval); err != nil {
				return err
			}
		}
	}
}

// refresh runs one coalesced exchange and applies the result unless the
// session was replaced while it ran.
func (c *Client) refresh(ctx context.Context, gen uint64, prior *Grant) (*Grant, error) {
	v, err, _ := c.group.Do(prior.RefreshToken, func() (any, error) {
		// The exchange must complete even if the triggering caller gives
		// up: the backend rotates the refresh token on success, and a
		// discarded result would burn the session.
		exCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		next, err := c.exchanger.Exchange(exCtx, prior.RefreshToken)
		if err != nil {
			if errors.Is(err, ErrRejected) {
				c.mu.Lock()
				if c.gen == gen {
					c.gen++
					c.current = nil
				}
				c.mu.Unlock()
			}
			return nil, err
		}

		c.mu.Lock()
		if c.gen == gen {
			c.gen++
			c.current = next.clone()
		}
		c.mu.Unlock()
		return next.clone(), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Grant), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
