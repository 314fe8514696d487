// Package domain contains pure business logic and types.
// No external dependencies allowed - this is the innermost ring of Clean Architecture.
package domain

import "time"

// Normative limits from ADR-021 (Edge Sessions).
// These are compiled defaults that can be overridden via configuration.
const (
	// Token configuration (ADR-021 §2)
	AccessTokenLifetime  = 1 * time.Hour       // Access token validity
	RefreshTokenLifetime = 30 * 24 * time.Hour // Refresh token validity (30 days)

	// RefreshSkew is how far before access-token expiry the edge refreshes
	// proactively, so tokens forwarded upstream never arrive already dead.
	RefreshSkew = 30 * time.Second

	// Cookie transport (ADR-021 §3)
	SessionCookieName = "__edge_session"
	// SessionCookieMaxAge tracks the refresh token lifetime: the cookie must
	// outlive the access token or refresh could never happen.
	SessionCookieMaxAge = RefreshTokenLifetime

	// Redirect contract
	LoginNextParam   = "next" // query parameter carrying the pre-login path
	DefaultLoginPath = "/login"

	// Artifact limits
	MaxCookieValueLength = 4096 // browsers truncate beyond ~4 KB per cookie
	MaxCredentialLength  = 512  // max length for submitted email or password

	// Rate limiting (ADR-021 §5)
	LoginRateLimitPerUser = 5                // Max login attempts per account per window
	LoginRateLimitPerIP   = 10               // Max login attempts per IP per window
	RefreshRateLimitPerIP = 60               // Max refresh exchanges per IP per window
	AuthRateLimitWindow   = 15 * time.Minute // Rate limit window for auth endpoints

	// Timeout contracts (ADR-009 §1)
	BackendCallTimeout = 10 * time.Second // Max time for an auth backend exchange
	RedisTimeout       = 2 * time.Second  // Max time for Redis operations
	UpstreamTimeout    = 30 * time.Second // Max time proxying to the upstream app

	// Graceful shutdown (ADR-014 §4.1)
	GracefulShutdownTimeout = 30 * time.Second // Max time to drain connections on shutdown
	ShutdownDrainDelay      = 2 * time.Second  // Let load balancers see the 503 first
	ShutdownHTTPTimeout     = 10 * time.Second // Max time to drain in-flight requests
	ShutdownOTELTimeout     = 5 * time.Second  // Max time to flush telemetry
)

// Requirement names accepted in route policy files.
type RouteRequirement string

const (
	RequirePublic           RouteRequirement = "public"
	RequireAuthenticated    RouteRequirement = "authenticated"
	RequireAuthRedirect     RouteRequirement = "authenticated_redirect"
	RequireAuthenticatedAPI RouteRequirement = "authenticated_deny"
)

// IsValidRequirement checks if a policy requirement is supported.
func IsValidRequirement(r RouteRequirement) bool {
	switch r {
	case RequirePublic, RequireAuthenticated, RequireAuthRedirect, RequireAuthenticatedAPI:
		return true
	}
	return false
}
