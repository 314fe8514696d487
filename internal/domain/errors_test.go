package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aelexs/edge-session-gateway/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"ErrUnavailable", domain.ErrUnavailable, true},
		{"ErrBackendUnreachable", domain.ErrBackendUnreachable, true},
		{"ErrRateLimited", domain.ErrRateLimited, true},
		{"ErrNoSession", domain.ErrNoSession, false},
		{"ErrRefreshTokenInvalid", domain.ErrRefreshTokenInvalid, false},
		{"wrapped ErrBackendUnreachable", fmt.Errorf("exchange: %w", domain.ErrBackendUnreachable), true},
		{"random error", errors.New("something else"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := domain.IsRetryable(tt.err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsClientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"ErrNoSession", domain.ErrNoSession, true},
		{"ErrCookieInvalid", domain.ErrCookieInvalid, true},
		{"ErrSessionExpired", domain.ErrSessionExpired, true},
		{"ErrSessionRevoked", domain.ErrSessionRevoked, true},
		{"ErrRefreshTokenInvalid", domain.ErrRefreshTokenInvalid, true},
		{"ErrRefreshTokenExpired", domain.ErrRefreshTokenExpired, true},
		{"ErrRefreshTokenReuse", domain.ErrRefreshTokenReuse, true},
		{"ErrInvalidCredentials", domain.ErrInvalidCredentials, true},
		{"ErrInvalidInput", domain.ErrInvalidInput, true},
		{"ErrBackendUnreachable", domain.ErrBackendUnreachable, false},
		{"ErrUnavailable", domain.ErrUnavailable, false},
		{"ErrConfigRequired", domain.ErrConfigRequired, false},
		{"wrapped ErrCookieInvalid", fmt.Errorf("decode: %w", domain.ErrCookieInvalid), true},
		{"random error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := domain.IsClientError(tt.err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsAuthFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"ErrNoSession", domain.ErrNoSession, true},
		{"ErrSessionExpired", domain.ErrSessionExpired, true},
		{"ErrSessionRevoked", domain.ErrSessionRevoked, true},
		{"ErrRefreshTokenInvalid", domain.ErrRefreshTokenInvalid, true},
		{"ErrRefreshTokenExpired", domain.ErrRefreshTokenExpired, true},
		{"ErrRefreshTokenReuse", domain.ErrRefreshTokenReuse, true},
		{"ErrInvalidCredentials", domain.ErrInvalidCredentials, true},
		{"ErrCookieInvalid is recovered, not an auth failure", domain.ErrCookieInvalid, false},
		{"ErrBackendUnreachable", domain.ErrBackendUnreachable, false},
		{"wrapped ErrSessionRevoked", fmt.Errorf("denylist: %w", domain.ErrSessionRevoked), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := domain.IsAuthFailure(tt.err)
			assert.Equal(t, tt.want, got)
		})
	}
}
