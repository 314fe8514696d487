package app

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/aelexs/edge-session-gateway/internal/domain"
	"github.com/aelexs/edge-session-gateway/internal/observability"
	"github.com/aelexs/edge-session-gateway/internal/session"
	"github.com/aelexs/edge-session-gateway/internal/token"
)

// RefreshState classifies the outcome of a refresh attempt. The pipeline
// switches on it: only Unreachable keeps the prior artifact alive.
type RefreshState int

const (
	// RefreshSuccess carries a rotated artifact in Outcome.Artifact.
	RefreshSuccess RefreshState = iota
	// RefreshExpiredNoRefresh means the session cannot be renewed because
	// it carries no refresh token. The caller clears the session.
	RefreshExpiredNoRefresh
	// RefreshUnreachable means the backend did not answer. The caller
	// keeps the prior artifact; a later request retries.
	RefreshUnreachable
	// RefreshInvalid means the backend rejected the refresh token. The
	// caller clears the session.
	RefreshInvalid
)

func (s RefreshState) String() string {
	switch s {
	case RefreshSuccess:
		return "success"
	case RefreshExpiredNoRefresh:
		return "expired_no_refresh"
	case RefreshUnreachable:
		return "backend_unreachable"
	case RefreshInvalid:
		return "invalid_refresh_token"
	default:
		return "unknown"
	}
}

// RefreshOutcome is the full result of a refresh attempt. Artifact is set
// only on RefreshSuccess; Err carries the underlying cause on the two
// failure states, for logs.
type RefreshOutcome struct {
	State    RefreshState
	Artifact *session.Artifact
	Err      error
}

// Refresh exchanges the artifact's refresh token for a new grant
// (ADR-021 §4.1). Concurrent calls holding the same refresh token coalesce
// into one backend exchange, and an exchange already in flight completes
// even if the request that started it disconnects.
//
// Every failure maps to a RefreshState, so there is no error return: the
// caller acts on the state, never on the cause.
func (s *Service) Refresh(ctx context.Context, prior *session.Artifact) RefreshOutcome {
	ctx, span := tracer.Start(ctx, "session.refresh")
	defer span.End()

	logger := observability.WithTraceID(ctx, s.logger)

	// 1. A session without a refresh token cannot be renewed.
	if prior == nil || prior.RefreshToken == "" {
		refreshTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", RefreshExpiredNoRefresh.String())))
		span.SetStatus(codes.Error, "no refresh token")
		return RefreshOutcome{State: RefreshExpiredNoRefresh}
	}

	// 2. Coalesce on the refresh token hash: every request carrying the
	// same session joins the same exchange.
	key := token.Hash(prior.RefreshToken)
	v, _, shared := s.refreshGroup.Do(key, func() (any, error) {
		return s.exchange(ctx, prior), nil
	})
	if shared {
		refreshCoalescedTotal.Add(ctx, 1)
	}
	out := v.(RefreshOutcome)

	refreshTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", out.State.String())))

	switch out.State {
	case RefreshSuccess:
		logger.InfoContext(ctx, "session.refreshed",
			"subject_id", out.Artifact.Subject,
			"seq", out.Artifact.Seq,
			"coalesced", shared,
		)
	case RefreshUnreachable:
		span.SetStatus(codes.Error, "backend unreachable")
		logger.WarnContext(ctx, "session.refresh_unreachable", "error", out.Err)
	case RefreshInvalid:
		authFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "invalid_refresh_token")))
		span.SetStatus(codes.Error, "refresh token rejected")
		logger.WarnContext(ctx, "session.refresh_rejected",
			"subject_id", prior.Subject,
			"error", out.Err,
		)
	}

	return out
}

// exchange performs the backend call and classifies the result. It detaches
// from the caller's cancellation so an exchange outlives the request that
// started it; coalesced followers still consume the result.
func (s *Service) exchange(ctx context.Context, prior *session.Artifact) RefreshOutcome {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), domain.BackendCallTimeout)
	defer cancel()

	grant, err := s.backend.ExchangeRefreshToken(ctx, prior.RefreshToken)
	if err != nil {
		return RefreshOutcome{State: classifyExchangeErr(err), Err: err}
	}

	next := &session.Artifact{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    grant.ExpiresAt.Unix(),
		Subject:      grant.Subject,
		Seq:          prior.Seq + 1,
	}
	if next.Subject == "" {
		next.Subject = prior.Subject
	}

	return RefreshOutcome{State: RefreshSuccess, Artifact: next}
}

// classifyExchangeErr folds backend errors into the two failure states.
// Unknown errors count as unreachable: a backend bug must not log every
// visitor out.
func classifyExchangeErr(err error) RefreshState {
	switch {
	case errors.Is(err, domain.ErrRefreshTokenInvalid),
		errors.Is(err, domain.ErrRefreshTokenExpired),
		errors.Is(err, domain.ErrRefreshTokenReuse),
		errors.Is(err, domain.ErrSessionRevoked):
		return RefreshInvalid
	default:
		return RefreshUnreachable
	}
}

// Revoked reports whether the artifact's refresh token is on the denylist.
// Denylist reads fail open: when Redis is down the edge keeps serving and
// revocation falls back to the backend's own checks (ADR-021 §5.2).
func (s *Service) Revoked(ctx context.Context, a *session.Artifact) bool {
	if s.denylist == nil || a == nil || a.RefreshToken == "" {
		return false
	}

	revoked, err := s.denylist.IsRevoked(ctx, token.Hash(a.RefreshToken))
	if err != nil {
		observability.WithTraceID(ctx, s.logger).WarnContext(ctx, "session.denylist_unavailable", "error", err)
		return false
	}
	if revoked {
		authFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "session_revoked")))
	}
	return revoked
}
