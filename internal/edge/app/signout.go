package app

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/aelexs/edge-session-gateway/internal/domain"
	"github.com/aelexs/edge-session-gateway/internal/observability"
	"github.com/aelexs/edge-session-gateway/internal/session"
	"github.com/aelexs/edge-session-gateway/internal/token"
)

// Logout revokes the artifact's refresh token at the backend and denylists
// it locally (ADR-021 §4.3). It is idempotent and best effort: the caller
// clears the cookie whether or not revocation succeeded, so a returned
// error means a token may stay live until it expires, not that logout
// failed.
func (s *Service) Logout(ctx context.Context, a *session.Artifact) error {
	ctx, span := tracer.Start(ctx, "session.logout")
	defer span.End()

	logger := observability.WithTraceID(ctx, s.logger)

	// Nothing to revoke without a refresh token.
	if a == nil || a.RefreshToken == "" {
		return nil
	}

	var firstErr error

	// 1. Revoke at the backend.
	revCtx, cancel := context.WithTimeout(ctx, domain.BackendCallTimeout)
	defer cancel()
	if err := s.backend.Revoke(revCtx, a.RefreshToken); err != nil {
		logger.WarnContext(ctx, "session.logout_revoke_failed", "error", err, "subject_id", a.Subject)
		span.RecordError(err)
		firstErr = fmt.Errorf("revoke refresh token: %w", err)
	}

	// 2. Denylist locally so other edge instances reject the token even
	// before the backend change propagates.
	if s.denylist != nil {
		if err := s.denylist.Revoke(ctx, token.Hash(a.RefreshToken), domain.RefreshTokenLifetime); err != nil {
			logger.WarnContext(ctx, "session.logout_denylist_failed", "error", err, "subject_id", a.Subject)
			span.RecordError(err)
			if firstErr == nil {
				firstErr = fmt.Errorf("denylist refresh token: %w", err)
			}
		}
	}

	if firstErr != nil {
		span.SetStatus(codes.Error, firstErr.Error())
		return firstErr
	}

	sessionRevocationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "logout")))
	logger.InfoContext(ctx, "session.logout", "subject_id", a.Subject)

	return nil
}
