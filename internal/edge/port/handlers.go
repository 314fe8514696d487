package port

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/aelexs/edge-session-gateway/internal/domain"
	"github.com/aelexs/edge-session-gateway/internal/edge/app"
	"github.com/aelexs/edge-session-gateway/internal/errmap"
	"github.com/aelexs/edge-session-gateway/internal/observability"
	"github.com/aelexs/edge-session-gateway/internal/session"
)

// authService is a narrow, consumer-defined interface for the app
// operations the auth endpoints require. The *app.Service satisfies this.
type authService interface {
	Login(ctx context.Context, username, password, clientIP string) (*session.Artifact, error)
	Logout(ctx context.Context, a *session.Artifact) error
}

// AuthHandlerConfig holds the dependencies for AuthHandler.
type AuthHandlerConfig struct {
	Service   *app.Service
	Transport *session.Transport
	Clock     domain.Clock
	// LoginPath is where form-based logout lands. Defaults to
	// domain.DefaultLoginPath.
	LoginPath string
	Logger    *slog.Logger
}

// AuthHandler serves the auth endpoints: login, logout, and session
// introspection. It owns the session cookie on these routes, so it is
// mounted beside the pipeline, not behind it.
type AuthHandler struct {
	svc       authService
	transport *session.Transport
	clock     domain.Clock
	loginPath string
	logger    *slog.Logger
}

// NewAuthHandler creates an AuthHandler with the given dependencies.
func NewAuthHandler(cfg AuthHandlerConfig) *AuthHandler {
	clock := cfg.Clock
	if clock == nil {
		clock = domain.RealClock{}
	}

	loginPath := cfg.LoginPath
	if loginPath == "" {
		loginPath = domain.DefaultLoginPath
	}

	return &AuthHandler{
		svc:       cfg.Service,
		transport: cfg.Transport,
		clock:     clock,
		loginPath: loginPath,
		logger:    cfg.Logger,
	}
}

// Register mounts the auth endpoints on mux.
func (h *AuthHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)
	mux.HandleFunc("GET /auth/session", h.handleSession)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Next     string `json:"next"`
}

type loginResponse struct {
	Subject   string `json:"subject"`
	ExpiresAt int64  `json:"expires_at"`
}

// handleLogin exchanges credentials for a session. Form posts come back
// as redirects, JSON posts as JSON, so both server-rendered pages and
// fetch calls can drive it.
func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithTraceID(ctx, h.logger)

	req, asJSON, err := readLoginRequest(w, r)
	if err != nil {
		h.loginFailure(w, r, asJSON, err)
		return
	}

	artifact, err := h.svc.Login(ctx, req.Username, req.Password, extractClientIP(r))
	if err != nil {
		h.loginFailure(w, r, asJSON, err)
		return
	}

	if err := h.transport.Write(w, artifact); err != nil {
		logger.ErrorContext(ctx, "session.cookie_write_failed", "error", err)
		h.loginFailure(w, r, asJSON, err)
		return
	}

	if asJSON {
		writeJSON(w, http.StatusOK, loginResponse{
			Subject:   artifact.Subject,
			ExpiresAt: artifact.ExpiresAt,
		})
		return
	}
	http.Redirect(w, r, sanitizeNext(req.Next), http.StatusSeeOther)
}

// handleLogout revokes the session and clears the cookie. It succeeds
// even when there is nothing to revoke or the backend is down: logout
// must never strand a user in a session they asked to leave.
func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithTraceID(ctx, h.logger)

	artifact, err := h.transport.Read(r)
	if err != nil {
		artifact = nil
	}

	if err := h.svc.Logout(ctx, artifact); err != nil {
		logger.WarnContext(ctx, "session.logout_incomplete", "error", err)
	}

	h.transport.Clear(w)

	if wantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, h.loginPath, http.StatusSeeOther)
}

type sessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	Subject       string `json:"subject,omitempty"`
	ExpiresAt     int64  `json:"expires_at,omitempty"`
}

// handleSession reports the state of the caller's session cookie. It is
// read-only: no refresh, no cookie writes, so page scripts can poll it.
func (h *AuthHandler) handleSession(w http.ResponseWriter, r *http.Request) {
	artifact, err := h.transport.Read(r)
	if err != nil || artifact.Expired(h.clock.Now().UTC()) {
		writeJSON(w, http.StatusOK, sessionResponse{Authenticated: false})
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		Authenticated: true,
		Subject:       artifact.Subject,
		ExpiresAt:     artifact.ExpiresAt,
	})
}

// loginFailure reports a failed login in the shape the caller speaks.
func (h *AuthHandler) loginFailure(w http.ResponseWriter, r *http.Request, asJSON bool, err error) {
	if asJSON {
		writeError(w, err)
		return
	}

	// Form flows land back on the login page with a coarse error code;
	// the message detail stays out of the query string.
	he := errmap.ToHTTPError(err)
	target := h.loginPath + "?error=" + strings.ToLower(he.Code)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// readLoginRequest decodes credentials from a JSON or form body. The
// second return reports whether the caller speaks JSON.
func readLoginRequest(w http.ResponseWriter, r *http.Request) (loginRequest, bool, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		var req loginRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBodyBytes)).Decode(&req); err != nil {
			return loginRequest{}, true, fmt.Errorf("%w: malformed login body", domain.ErrInvalidInput)
		}
		return req, true, nil
	}

	if err := r.ParseForm(); err != nil {
		return loginRequest{}, false, fmt.Errorf("%w: malformed login form", domain.ErrInvalidInput)
	}
	return loginRequest{
		Username: r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
		Next:     r.PostFormValue(domain.LoginNextParam),
	}, false, nil
}

const maxLoginBodyBytes = 16 << 10

// sanitizeNext confines a post-login redirect to a local path. Anything
// absolute, protocol-relative, or otherwise suspicious falls back to the
// site root so the login form cannot be used as an open redirector.
func sanitizeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") {
		return "/"
	}
	if strings.HasPrefix(next, "//") || strings.Contains(next, "\\") {
		return "/"
	}
	return next
}

// wantsJSON reports whether the client asked for a JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// extractClientIP returns the originating client address, preferring the
// first hop recorded by upstream proxies.
func extractClientIP(r *http.Request) string {
	if fwd := r.Header.Get("x-forwarded-for"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeJSON writes v as a JSON response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes err as a JSON error response with the mapped status.
func writeError(w http.ResponseWriter, err error) {
	he := errmap.ToHTTPError(err)
	writeJSON(w, he.StatusCode, he)
}
