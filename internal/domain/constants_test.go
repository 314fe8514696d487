package domain_test

import (
	"testing"

	"github.com/aelexs/edge-session-gateway/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestIsValidRequirement(t *testing.T) {
	tests := []struct {
		name string
		req  domain.RouteRequirement
		want bool
	}{
		{name: "public is valid", req: "public", want: true},
		{name: "authenticated is valid", req: "authenticated", want: true},
		{name: "authenticated_redirect is valid", req: "authenticated_redirect", want: true},
		{name: "authenticated_deny is valid", req: "authenticated_deny", want: true},
		{name: "empty is invalid", req: "", want: false},
		{name: "anonymous is invalid", req: "anonymous", want: false},
		{name: "PUBLIC is invalid (case-sensitive)", req: "PUBLIC", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := domain.IsValidRequirement(tt.req)

			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCookieLifetimeTracksRefreshLifetime(t *testing.T) {
	// The cookie must outlive the access token or the refresh token inside
	// it is lost before it can ever be exchanged.
	assert.Equal(t, domain.RefreshTokenLifetime, domain.SessionCookieMaxAge)
	assert.Greater(t, int64(domain.SessionCookieMaxAge), int64(domain.AccessTokenLifetime))
	assert.Greater(t, int64(domain.AccessTokenLifetime), int64(domain.RefreshSkew))
}
