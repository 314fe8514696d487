// Package main provides a CI-friendly smoke test for the edge session
// gateway. It drives a full browser-style session against a running
// edge, cookies and all.
//
// It validates:
//   - anonymous bounce from a protected path to the login page
//   - form login establishing the session cookie
//   - authenticated pass-through to the protected path
//   - session introspection via /auth/session
//   - logout clearing the cookie and restoring the bounce
//
// The probed path must be protected by the edge's route policy, e.g.
// run the edge with POLICY_FILE pointing at:
//
//	rules:
//	  - pattern: /app/*
//	    require: authenticated
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"
)

const maxReadBytes = 1 << 20 // 1MiB

type smokeClient struct {
	base   *url.URL
	client *http.Client
}

type sessionState struct {
	Authenticated bool   `json:"authenticated"`
	Subject       string `json:"subject"`
	ExpiresAt     int64  `json:"expires_at"`
}

func main() {
	var (
		baseURL  = flag.String("url", "http://127.0.0.1:8080", "Base URL of the edge")
		username = flag.String("username", "dev@example.com", "Login username")
		password = flag.String("password", "devpass", "Login password")
		path     = flag.String("path", "/app/home", "Protected path to probe")
		login    = flag.String("login", "/login", "Login page path the edge redirects to")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	c := mustClient(*baseURL)
	root := context.Background()

	mustBounce(root, c, *path, *login, *timeout)
	if *verbose {
		fmt.Printf("anonymous %s bounced to %s\n", *path, *login)
	}

	anon := mustSessionState(root, c, *timeout)
	if anon.Authenticated {
		fatalf("anonymous /auth/session reports authenticated")
	}

	mustLogin(root, c, *username, *password, *path, *timeout)
	if !hasSessionCookie(c) {
		fatalf("login succeeded but no session cookie was stored")
	}
	if *verbose {
		fmt.Printf("logged in as %s\n", *username)
	}

	mustGetOK(root, c, *path, *timeout)

	state := mustSessionState(root, c, *timeout)
	if !state.Authenticated {
		fatalf("/auth/session reports anonymous after login")
	}
	if strings.TrimSpace(state.Subject) == "" {
		fatalf("/auth/session missing subject")
	}
	if state.ExpiresAt <= time.Now().Unix() {
		fatalf("/auth/session expiry not in the future: %d", state.ExpiresAt)
	}

	mustLogout(root, c, *timeout)
	mustBounce(root, c, *path, *login, *timeout)

	fmt.Printf("OK: subject=%s path=%s expires_at=%d\n", state.Subject, *path, state.ExpiresAt)
}

// mustClient builds an HTTP client with a cookie jar that stops at
// redirects, so each step can assert the exact status and Location.
// The jar still records Set-Cookie from the stopped response.
func mustClient(base string) *smokeClient {
	u, err := url.Parse(base)
	if err != nil {
		fatalf("invalid -url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		fatalf("invalid -url: unsupported scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		fatalf("invalid -url: missing host")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		fatalf("create cookie jar: %v", err)
	}

	return &smokeClient{
		base: u,
		client: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (c *smokeClient) do(parent context.Context, req *http.Request, stepTimeout time.Duration) *http.Response {
	ctx, cancel := context.WithTimeout(parent, stepTimeout)
	defer cancel()

	resp, err := c.client.Do(req.WithContext(ctx))
	if err != nil {
		fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	return resp
}

func (c *smokeClient) url(path string) string {
	return c.base.JoinPath(path).String()
}

func mustBounce(parent context.Context, c *smokeClient, path, login string, stepTimeout time.Duration) {
	req, err := http.NewRequest(http.MethodGet, c.url(path), nil)
	if err != nil {
		fatalf("build request: %v", err)
	}

	resp := c.do(parent, req, stepTimeout)
	drainBody(resp)

	if resp.StatusCode != http.StatusSeeOther {
		fatalf("GET %s: got=%d want=%d (is the path protected by the policy?)", path, resp.StatusCode, http.StatusSeeOther)
	}
	loc := resp.Header.Get("Location")
	if !strings.HasPrefix(loc, login) {
		fatalf("GET %s: redirect to %q, want prefix %q", path, loc, login)
	}
	if !strings.Contains(loc, "next=") {
		fatalf("GET %s: login redirect %q does not carry the return path", path, loc)
	}
}

func mustLogin(parent context.Context, c *smokeClient, username, password, next string, stepTimeout time.Duration) {
	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)
	form.Set("next", next)

	req, err := http.NewRequest(http.MethodPost, c.url("/auth/login"), strings.NewReader(form.Encode()))
	if err != nil {
		fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp := c.do(parent, req, stepTimeout)
	drainBody(resp)

	if resp.StatusCode != http.StatusSeeOther {
		fatalf("login: got=%d want=%d", resp.StatusCode, http.StatusSeeOther)
	}
	if loc := resp.Header.Get("Location"); loc != next {
		fatalf("login: redirect to %q, want %q", loc, next)
	}
}

func mustGetOK(parent context.Context, c *smokeClient, path string, stepTimeout time.Duration) {
	req, err := http.NewRequest(http.MethodGet, c.url(path), nil)
	if err != nil {
		fatalf("build request: %v", err)
	}

	resp := c.do(parent, req, stepTimeout)
	drainBody(resp)

	if resp.StatusCode != http.StatusOK {
		fatalf("GET %s after login: got=%d want=%d", path, resp.StatusCode, http.StatusOK)
	}
}

func mustSessionState(parent context.Context, c *smokeClient, stepTimeout time.Duration) sessionState {
	req, err := http.NewRequest(http.MethodGet, c.url("/auth/session"), nil)
	if err != nil {
		fatalf("build request: %v", err)
	}

	resp := c.do(parent, req, stepTimeout)
	defer drainBody(resp)

	if resp.StatusCode != http.StatusOK {
		fatalf("GET /auth/session: got=%d want=%d", resp.StatusCode, http.StatusOK)
	}

	var state sessionState
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxReadBytes)).Decode(&state); err != nil {
		fatalf("decode /auth/session: %v", err)
	}
	return state
}

func mustLogout(parent context.Context, c *smokeClient, stepTimeout time.Duration) {
	req, err := http.NewRequest(http.MethodPost, c.url("/auth/logout"), nil)
	if err != nil {
		fatalf("build request: %v", err)
	}
	req.Header.Set("Accept", "application/json")

	resp := c.do(parent, req, stepTimeout)
	drainBody(resp)

	if resp.StatusCode != http.StatusNoContent {
		fatalf("logout: got=%d want=%d", resp.StatusCode, http.StatusNoContent)
	}
}

func hasSessionCookie(c *smokeClient) bool {
	return len(c.client.Jar.Cookies(c.base)) > 0
}

func drainBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxReadBytes))
	_ = resp.Body.Close()
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
