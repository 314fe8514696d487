package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/aelexs/edge-session-gateway/internal/domain"
	"github.com/aelexs/edge-session-gateway/internal/observability"
	"github.com/aelexs/edge-session-gateway/internal/session"
	"github.com/aelexs/edge-session-gateway/internal/token"
)

// Login exchanges credentials for a fresh session artifact (ADR-021 §4.2).
// The raw credentials cross this function once and are never stored or
// logged; only the backend sees them.
func (s *Service) Login(ctx context.Context, username, password, clientIP string) (*session.Artifact, error) {
	ctx, span := tracer.Start(ctx, "session.login")
	defer span.End()

	logger := observability.WithTraceID(ctx, s.logger)

	// 1. Validate inputs before touching any shared infrastructure.
	if err := validateCredentials(username, password); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// 2. Rate limit: account fail-closed, IP fail-open.
	if err := s.checkLoginRateLimits(ctx, username, clientIP, logger); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// 3. Exchange credentials with the backend.
	exCtx, cancel := context.WithTimeout(ctx, domain.BackendCallTimeout)
	defer cancel()

	grant, err := s.backend.ExchangeCredentials(exCtx, username, password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			authFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "invalid_credentials")))
			logger.InfoContext(ctx, "session.login_rejected")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	artifact := &session.Artifact{
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    grant.ExpiresAt.Unix(),
		Subject:      grant.Subject,
		Seq:          1,
	}
	if err := artifact.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("backend grant unusable: %w", err)
	}

	loginsTotal.Add(ctx, 1)
	logger.InfoContext(ctx, "session.login", "subject_id", artifact.Subject)

	return artifact, nil
}

func validateCredentials(username, password string) error {
	if username == "" || password == "" {
		return fmt.Errorf("username and password are required: %w", domain.ErrInvalidInput)
	}
	if len(username) > domain.MaxCredentialLength || len(password) > domain.MaxCredentialLength {
		return fmt.Errorf("credential too long: %w", domain.ErrInvalidInput)
	}
	return nil
}

// checkLoginRateLimits enforces the login rate limits. The account limit
// fails closed; the IP limit fails open so a Redis outage does not lock the
// whole site out (ADR-021 §5.1, same split ADR-013 uses).
func (s *Service) checkLoginRateLimits(ctx context.Context, username, clientIP string, logger *slog.Logger) error {
	if s.rateLimiter == nil {
		return nil
	}

	window := int(domain.AuthRateLimitWindow.Seconds())

	allowed, err := s.rateLimiter.CheckAndIncrement(
		ctx,
		"login:user:"+token.Hash(username),
		domain.LoginRateLimitPerUser,
		window,
	)
	if err != nil {
		return fmt.Errorf("check login rate limit: %w", errors.Join(err, domain.ErrUnavailable))
	}
	if !allowed {
		rateLimitsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("endpoint", "login"),
			attribute.String("limit_type", "user"),
		))
		return domain.ErrRateLimited
	}

	if clientIP == "" {
		return nil
	}
	ipAllowed, ipErr := s.rateLimiter.CheckAndIncrement(
		ctx,
		"login:ip:"+clientIP,
		domain.LoginRateLimitPerIP,
		window,
	)
	if ipErr != nil {
		logger.WarnContext(ctx, "session.rate_limit_unavailable", "error", ipErr, "limit_type", "ip")
		return nil
	}
	if !ipAllowed {
		rateLimitsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("endpoint", "login"),
			attribute.String("limit_type", "ip"),
		))
		return domain.ErrRateLimited
	}

	return nil
}
