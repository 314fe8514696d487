// Package port contains the HTTP surface of the edge: the session pipeline
// that fronts the upstream app and the auth endpoints browsers talk to.
package port

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aelexs/edge-session-gateway/internal/domain"
	"github.com/aelexs/edge-session-gateway/internal/edge/app"
	"github.com/aelexs/edge-session-gateway/internal/observability"
	"github.com/aelexs/edge-session-gateway/internal/policy"
	"github.com/aelexs/edge-session-gateway/internal/session"
)

// Identity headers forwarded to the upstream. Inbound values are always
// stripped; only the pipeline may set them.
const (
	HeaderSubject = "X-Auth-Subject"
)

var guardDecisionsTotal metric.Int64Counter

func init() {
	m := otel.Meter("edge/port")

	guardDecisionsTotal, _ = m.Int64Counter("guard_decisions_total",
		metric.WithDescription("Total route guard decisions by kind"))
}

// sessionService is a narrow, consumer-defined interface for the app
// operations the pipeline requires. The *app.Service satisfies this.
type sessionService interface {
	Refresh(ctx context.Context, prior *session.Artifact) app.RefreshOutcome
	Revoked(ctx context.Context, a *session.Artifact) bool
}

// PipelineConfig holds the dependencies for Pipeline.
type PipelineConfig struct {
	Service   *app.Service
	Transport *session.Transport
	Policy    *policy.Policy
	Clock     domain.Clock
	// Skew is how far before expiry the pipeline refreshes proactively.
	// Defaults to domain.RefreshSkew.
	Skew   time.Duration
	Logger *slog.Logger
}

// Pipeline carries each request through the session state machine: decode
// the cookie, refresh the artifact if it is about to expire, evaluate the
// route policy, then proxy, redirect, or deny (ADR-021 §3).
type Pipeline struct {
	svc       sessionService
	transport *session.Transport
	policy    *policy.Policy
	clock     domain.Clock
	skew      time.Duration
	logger    *slog.Logger
}

// NewPipeline creates a Pipeline with the given dependencies.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	skew := cfg.Skew
	if skew <= 0 {
		skew = domain.RefreshSkew
	}

	return &Pipeline{
		svc:       cfg.Service,
		transport: cfg.Transport,
		policy:    cfg.Policy,
		clock:     cfg.Clock,
		skew:      skew,
		logger:    cfg.Logger,
	}
}

// Wrap returns a handler that runs the session pipeline in front of next.
// next sees the request with identity headers set and a read-only session
// view in the context; it is never reached on redirect or deny.
func (p *Pipeline) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := observability.WithTraceID(ctx, p.logger)

		// 1. Decode the session cookie. A malformed or tampered cookie is
		// recovered by treating the visitor as anonymous, never with an
		// error page.
		store, original, rejected := p.decode(ctx, r, logger)

		// 2. A denylisted session is dead regardless of its expiry.
		if a, ok := store.Current(); ok && p.svc.Revoked(ctx, a) {
			logger.InfoContext(ctx, "session.rejected_revoked", "subject_id", a.Subject)
			_ = store.Clear()
		}

		// 3. Refresh when the access token is inside the skew window, so
		// the upstream never receives a token about to die mid-request.
		now := p.clock.Now().UTC()
		if a, ok := store.Current(); ok && a.ExpiresWithin(now, p.skew) {
			p.refresh(ctx, store, a, logger)
		}

		// 4. Evaluate the route policy.
		current, _ := store.Current()
		authenticated := current != nil && !current.Expired(now)
		decision := p.policy.Decide(authenticated, r.URL.RequestURI())

		guardDecisionsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("decision", decision.Kind.String()),
		))

		// 5. Respond. A denied request mutates nothing, not even cookie
		// repairs; allow and redirect carry any session change out.
		switch decision.Kind {
		case policy.Deny:
			writeError(w, domain.ErrNoSession)
		case policy.Redirect:
			p.setCookies(w, original, current, rejected, logger)
			http.Redirect(w, r, decision.Location, http.StatusSeeOther)
		default:
			p.setCookies(w, original, current, rejected, logger)
			next.ServeHTTP(w, p.upstreamRequest(r, store, authenticated))
		}
	})
}

// decode reads the cookie into a fresh read-write store. The returned
// artifact is the decoded original, nil when absent or unusable; rejected
// reports a cookie that was present but failed verification.
func (p *Pipeline) decode(ctx context.Context, r *http.Request, logger *slog.Logger) (*session.Store, *session.Artifact, bool) {
	artifact, err := p.transport.Read(r)
	if err != nil {
		rejected := errors.Is(err, domain.ErrCookieInvalid)
		if rejected {
			logger.WarnContext(ctx, "session.cookie_rejected", "error", err)
		}
		return session.NewStore(nil, session.ReadWrite), nil, rejected
	}
	return session.NewStore(artifact, session.ReadWrite), artifact, false
}

// refresh runs one refresh attempt and applies the outcome to the store.
func (p *Pipeline) refresh(ctx context.Context, store *session.Store, prior *session.Artifact, logger *slog.Logger) {
	out := p.svc.Refresh(ctx, prior)

	switch out.State {
	case app.RefreshSuccess:
		if err := store.Replace(out.Artifact); err != nil {
			logger.WarnContext(ctx, "session.replace_rejected", "error", err, "seq", out.Artifact.Seq)
		}
	case app.RefreshUnreachable:
		// Keep the prior artifact: if its access token is still inside
		// the skew window it can serve this request, and a later request
		// retries the exchange.
	case app.RefreshExpiredNoRefresh, app.RefreshInvalid:
		_ = store.Clear()
	}
}

// setCookies writes the session delta to the response: a rotation writes
// the new cookie, a cleared or rejected session expires it, an untouched
// one stays silent so responses remain cacheable.
func (p *Pipeline) setCookies(w http.ResponseWriter, original, current *session.Artifact, rejected bool, logger *slog.Logger) {
	switch {
	case current == nil && (original != nil || rejected):
		p.transport.Clear(w)
	case current != nil && (original == nil || current.Seq != original.Seq):
		if err := p.transport.Write(w, current); err != nil {
			// Serving with the old cookie beats failing the request; the
			// next request refreshes again.
			logger.Warn("session.cookie_write_failed", "error", err)
		}
	}
}

// upstreamRequest prepares the request the upstream sees: spoofable
// identity headers stripped, real identity attached, and a read-only
// session view in the context for in-process handlers.
func (p *Pipeline) upstreamRequest(r *http.Request, store *session.Store, authenticated bool) *http.Request {
	r2 := r.Clone(session.WithSession(r.Context(), store.View()))
	r2.Header.Del(HeaderSubject)

	if authenticated {
		if a, ok := store.Current(); ok {
			r2.Header.Set(HeaderSubject, a.Subject)
			r2.Header.Set("Authorization", "Bearer "+a.AccessToken)
		}
	}

	return r2
}
