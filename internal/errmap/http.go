// Package errmap provides wire mappers for domain errors.
// Every domain error that can reach an auth endpoint has an explicit HTTP
// mapping; unknown errors collapse to 500 INTERNAL with no detail leakage.
package errmap

import (
	"errors"
	"net/http"

	"github.com/aelexs/edge-session-gateway/internal/domain"
)

// HTTPError represents an HTTP error response.
type HTTPError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e HTTPError) Error() string {
	return e.Message
}

// httpMapping defines a domain error to HTTP status/code mapping.
type httpMapping struct {
	err        error
	statusCode int
	code       string
}

// httpMappings maps domain errors to HTTP status codes and error codes.
// Order matters: first match wins (via errors.Is).
var httpMappings = []httpMapping{
	// Auth errors — 401 (ADR-021)
	{domain.ErrNoSession, http.StatusUnauthorized, "UNAUTHENTICATED"},
	{domain.ErrCookieInvalid, http.StatusUnauthorized, "UNAUTHENTICATED"},
	{domain.ErrSessionExpired, http.StatusUnauthorized, "SESSION_EXPIRED"},
	{domain.ErrSessionRevoked, http.StatusUnauthorized, "SESSION_REVOKED"},
	{domain.ErrRefreshTokenInvalid, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN"},
	{domain.ErrRefreshTokenExpired, http.StatusUnauthorized, "REFRESH_TOKEN_EXPIRED"},
	{domain.ErrRefreshTokenReuse, http.StatusUnauthorized, "REFRESH_TOKEN_REUSE"},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},

	// Validation errors — 400
	{domain.ErrInvalidInput, http.StatusBadRequest, "INVALID_ARGUMENT"},

	// Concurrency errors — 409
	{domain.ErrStaleArtifact, http.StatusConflict, "STALE_SESSION"},

	// Rate limiting — 429
	{domain.ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},

	// Availability — the backend being down is the edge being degraded,
	// not the caller being wrong
	{domain.ErrBackendUnreachable, http.StatusServiceUnavailable, "UNAVAILABLE"},
	{domain.ErrUnavailable, http.StatusServiceUnavailable, "UNAVAILABLE"},
}

// ToHTTPError converts a domain error to an HTTP error.
func ToHTTPError(err error) HTTPError {
	if err == nil {
		return HTTPError{StatusCode: http.StatusOK}
	}
	for _, m := range httpMappings {
		if errors.Is(err, m.err) {
			return HTTPError{StatusCode: m.statusCode, Code: m.code, Message: err.Error()}
		}
	}
	// Never expose internal error details to clients
	return HTTPError{StatusCode: http.StatusInternalServerError, Code: "INTERNAL", Message: "internal error"}
}

// ToHTTPStatusCode extracts just the HTTP status code for a domain error.
func ToHTTPStatusCode(err error) int {
	return ToHTTPError(err).StatusCode
}
