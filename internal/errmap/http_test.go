package errmap_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aelexs/edge-session-gateway/internal/domain"
	"github.com/aelexs/edge-session-gateway/internal/errmap"
)

func TestToHTTPError(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		wantStatusCode int
		wantCode       string
	}{
		// Nil error
		{"nil error", nil, http.StatusOK, ""},

		// Auth errors
		{"ErrNoSession", domain.ErrNoSession, http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"ErrCookieInvalid", domain.ErrCookieInvalid, http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"ErrSessionExpired", domain.ErrSessionExpired, http.StatusUnauthorized, "SESSION_EXPIRED"},
		{"ErrSessionRevoked", domain.ErrSessionRevoked, http.StatusUnauthorized, "SESSION_REVOKED"},
		{"ErrRefreshTokenInvalid", domain.ErrRefreshTokenInvalid, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN"},
		{"ErrRefreshTokenExpired", domain.ErrRefreshTokenExpired, http.StatusUnauthorized, "REFRESH_TOKEN_EXPIRED"},
		{"ErrRefreshTokenReuse", domain.ErrRefreshTokenReuse, http.StatusUnauthorized, "REFRESH_TOKEN_REUSE"},
		{"ErrInvalidCredentials", domain.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},

		// Validation errors
		{"ErrInvalidInput", domain.ErrInvalidInput, http.StatusBadRequest, "INVALID_ARGUMENT"},

		// Concurrency errors
		{"ErrStaleArtifact", domain.ErrStaleArtifact, http.StatusConflict, "STALE_SESSION"},

		// Operational errors
		{"ErrRateLimited", domain.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},
		{"ErrBackendUnreachable", domain.ErrBackendUnreachable, http.StatusServiceUnavailable, "UNAVAILABLE"},
		{"ErrUnavailable", domain.ErrUnavailable, http.StatusServiceUnavailable, "UNAVAILABLE"},

		// Wrapped errors
		{"wrapped ErrInvalidCredentials", fmt.Errorf("login: %w", domain.ErrInvalidCredentials), http.StatusUnauthorized, "INVALID_CREDENTIALS"},

		// Unknown errors map to Internal
		{"unknown error", fmt.Errorf("unexpected"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errmap.ToHTTPError(tt.err)

			assert.Equal(t, tt.wantStatusCode, got.StatusCode)
			assert.Equal(t, tt.wantCode, got.Code)
		})
	}
}

func TestToHTTPError_InternalHidesDetail(t *testing.T) {
	got := errmap.ToHTTPError(fmt.Errorf("dial tcp 10.0.0.3:9443: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, got.StatusCode)
	assert.Equal(t, "internal error", got.Message)
	assert.NotContains(t, got.Message, "10.0.0.3")
}

func TestToHTTPStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusOK, errmap.ToHTTPStatusCode(nil))
	assert.Equal(t, http.StatusUnauthorized, errmap.ToHTTPStatusCode(domain.ErrNoSession))
	assert.Equal(t, http.StatusInternalServerError, errmap.ToHTTPStatusCode(fmt.Errorf("boom")))
}
