package domain

import "errors"

// Sentinel errors for domain error conditions.
// Use errors.Is() for matching - never compare error strings.
var (
	// Session state errors
	ErrNoSession       = errors.New("no session present")
	ErrCookieInvalid   = errors.New("session cookie failed verification")
	ErrSessionExpired  = errors.New("session has expired")
	ErrSessionRevoked  = errors.New("session has been revoked")
	ErrReadOnlySession = errors.New("session is read-only in this context")
	ErrStaleArtifact   = errors.New("session artifact is older than the current one")

	// Refresh errors (ADR-021)
	ErrRefreshTokenInvalid = errors.New("invalid refresh token")
	ErrRefreshTokenExpired = errors.New("refresh token has expired")
	ErrRefreshTokenReuse   = errors.New("refresh token reuse detected")
	ErrBackendUnreachable  = errors.New("auth backend unreachable")

	// Credential errors
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Validation errors
	ErrInvalidInput = errors.New("invalid input")

	// Route policy errors
	ErrPolicyInvalid = errors.New("invalid route policy")

	// Operational errors
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrUnavailable = errors.New("service temporarily unavailable")

	// Configuration errors
	ErrConfigRequired = errors.New("required configuration key missing")
)

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrBackendUnreachable) ||
		errors.Is(err, ErrRateLimited)
}

// clientErrors enumerates all domain errors that represent client-side issues.
var clientErrors = []error{
	ErrNoSession,
	ErrCookieInvalid,
	ErrSessionExpired,
	ErrSessionRevoked,
	ErrRefreshTokenInvalid,
	ErrRefreshTokenExpired,
	ErrRefreshTokenReuse,
	ErrInvalidCredentials,
	ErrInvalidInput,
}

// IsClientError returns true if the error represents a client-side issue
// that will not succeed on retry without client-side changes.
func IsClientError(err error) bool {
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsAuthFailure returns true if the error means the caller's session or
// credentials were rejected and re-authentication is required.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrNoSession) ||
		errors.Is(err, ErrSessionExpired) ||
		errors.Is(err, ErrSessionRevoked) ||
		errors.Is(err, ErrRefreshTokenInvalid) ||
		errors.Is(err, ErrRefreshTokenExpired) ||
		errors.Is(err, ErrRefreshTokenReuse) ||
		errors.Is(err, ErrInvalidCredentials)
}
