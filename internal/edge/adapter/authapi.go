package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/aelexs/edge-session-gateway/internal/domain"
	"github.com/aelexs/edge-session-gateway/internal/edge/app"
)

// maxResponseBytes bounds how much of a backend response we read. Token
// responses are a few hundred bytes; anything near the limit is broken.
const maxResponseBytes = 1 << 20

// Compile-time check: AuthAPI satisfies app.Backend.
var _ app.Backend = (*AuthAPI)(nil)

// AuthAPIConfig holds the settings for the auth backend client.
type AuthAPIConfig struct {
	// BaseURL is the backend origin, e.g. https://auth.internal:8443.
	BaseURL string
	// Key authenticates this edge to the backend. Optional in local setups.
	Key domain.SecretString
	// Timeout bounds each backend call. Defaults to domain.BackendCallTimeout.
	Timeout time.Duration
	Clock   domain.Clock
}

// AuthAPI exchanges tokens and credentials with the auth backend over its
// HTTP token API (ADR-021 §4.4). Backend error codes translate into the
// domain taxonomy here; callers never see transport detail.
type AuthAPI struct {
	base   string
	key    domain.SecretString
	client *http.Client
	clock  domain.Clock
}

// NewAuthAPI creates an AuthAPI client for the given backend.
func NewAuthAPI(cfg AuthAPIConfig) *AuthAPI {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = domain.BackendCallTimeout
	}
	clock := cfg.Clock
	if clock == nil {
		clock = domain.RealClock{}
	}

	return &AuthAPI{
		base:   cfg.BaseURL,
		key:    cfg.Key,
		client: &http.Client{Timeout: timeout},
		clock:  clock,
	}
}

// tokenRequest is the POST /v1/token body. Exactly one grant shape is set,
// selected by GrantType.
type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
}

// tokenResponse is the success body of POST /v1/token.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Subject      string `json:"subject"`
}

// errorResponse is the failure body shared by all backend endpoints.
type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// ExchangeRefreshToken trades a refresh token for a rotated grant.
func (a *AuthAPI) ExchangeRefreshToken(ctx context.Context, refreshToken string) (*app.Grant, error) {
	return a.exchange(ctx, "authapi.exchange_refresh", tokenRequest{
		GrantType:    "refresh_token",
		RefreshToken: refreshToken,
	})
}

// ExchangeCredentials trades a username and password for a fresh grant.
func (a *AuthAPI) ExchangeCredentials(ctx context.Context, username, password string) (*app.Grant, error) {
	return a.exchange(ctx, "authapi.exchange_credentials", tokenRequest{
		GrantType: "password",
		Username:  username,
		Password:  password,
	})
}

// Revoke invalidates a refresh token and its session at the backend.
// Revoking an unknown token succeeds; revocation is idempotent.
func (a *AuthAPI) Revoke(ctx context.Context, refreshToken string) error {
	ctx, span := tracer.Start(ctx, "authapi.revoke")
	defer span.End()
	span.SetAttributes(attribute.String("http.route", "/v1/revoke"))

	resp, err := a.post(ctx, "/v1/revoke", map[string]string{"refresh_token": refreshToken})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: revoke: %s", domain.ErrBackendUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	err = a.classify(resp)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (a *AuthAPI) exchange(ctx context.Context, spanName string, req tokenRequest) (*app.Grant, error) {
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.route", "/v1/token"),
		attribute.String("auth.grant_type", req.GrantType),
	)

	resp, err := a.post(ctx, "/v1/token", req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: token exchange: %s", domain.ErrBackendUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := a.classify(resp)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var tr tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&tr); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: decode token response: %s", domain.ErrBackendUnreachable, err)
	}
	if tr.AccessToken == "" || tr.ExpiresIn <= 0 {
		err := fmt.Errorf("%w: token response missing access_token or expires_in", domain.ErrBackendUnreachable)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return &app.Grant{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    a.clock.Now().UTC().Add(time.Duration(tr.ExpiresIn) * time.Second),
		Subject:      tr.Subject,
	}, nil
}

func (a *AuthAPI) post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if !a.key.IsEmpty() {
		req.Header.Set("Authorization", "Bearer "+a.key.Expose())
	}

	return a.client.Do(req)
}

// classify folds a non-200 backend response into the domain taxonomy.
// Unrecognized client errors stay unclassified so the refresh path treats
// them as transient instead of logging everyone out on a protocol drift.
func (a *AuthAPI) classify(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	var er errorResponse
	_ = json.Unmarshal(body, &er)

	switch {
	case er.Error == "invalid_grant":
		return fmt.Errorf("%w: backend rejected grant", domain.ErrRefreshTokenInvalid)
	case er.Error == "expired_grant":
		return fmt.Errorf("%w: backend reports grant expired", domain.ErrRefreshTokenExpired)
	case er.Error == "grant_reused":
		return fmt.Errorf("%w: backend detected reuse", domain.ErrRefreshTokenReuse)
	case er.Error == "invalid_credentials":
		return domain.ErrInvalidCredentials
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: backend throttled", domain.ErrRateLimited)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: backend returned %d", domain.ErrBackendUnreachable, resp.StatusCode)
	default:
		return fmt.Errorf("backend returned %d (%s)", resp.StatusCode, er.Error)
	}
}
