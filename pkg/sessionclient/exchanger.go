package sessionclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxResponseBytes = 1 << 20

// HTTPExchanger exchanges grants against the auth backend's token
// endpoint. It implements Exchanger.
type HTTPExchanger struct {
	base   string
	key    string
	client *http.Client
}

var _ Exchanger = (*HTTPExchanger)(nil)

// HTTPExchangerConfig holds the backend endpoint configuration.
type HTTPExchangerConfig struct {
	// BaseURL is the backend base URL, e.g. "https://auth.internal:9443".
	BaseURL string
	// Key authenticates this client to the backend as a bearer
	// credential. Optional.
	Key string
	// HTTPClient overrides the default client with a 10s timeout.
	HTTPClient *http.Client
}

// NewHTTPExchanger creates an exchanger for the given backend.
func NewHTTPExchanger(cfg HTTPExchangerConfig) *HTTPExchanger {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultExchangeTimeout}
	}
	return &HTTPExchanger{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		key:    cfg.Key,
		client: client,
	}
}

type tokenRequest struct {
	GrantType    string `json:"grant_type"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Subject      string `json:"subject"`
}

type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// Exchange trades a refresh token for the next grant.
func (e *HTTPExchanger) Exchange(ctx context.Context, refreshToken string) (*Grant, error) {
	return e.exchange(ctx, tokenRequest{
		GrantType:    "refresh_token",
		RefreshToken: refreshToken,
	})
}

// ExchangeCredentials trades a username and password for an initial
// grant, for seeding a Client non-interactively.
func (e *HTTPExchanger) ExchangeCredentials(ctx context.Context, username, password string) (*Grant, error) {
	return e.exchange(ctx, tokenRequest{
		GrantType: "password",
		Username:  username,
		Password:  password,
	})
}

func (e *HTTPExchanger) exchange(ctx context.Context, req tokenRequest) (*Grant, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("sessionclient: encode token request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.base+"/v1/token", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("sessionclient: build token request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.key)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sessionclient: token exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classify(resp)
	}

	var tr tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&tr); err != nil {
		return nil, fmt.Errorf("sessionclient: decode token response: %w", err)
	}
	if tr.AccessToken == "" || tr.ExpiresIn <= 0 {
		return nil, fmt.Errorf("sessionclient: token response missing grant fields")
	}

	return &Grant{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    time.Now().UTC().Add(time.Duration(tr.ExpiresIn) * time.Second),
		Subject:      tr.Subject,
	}, nil
}

// classify separates definitive rejections from transient failures.
// Unknown client errors stay transient so a backend protocol drift does
// not kill every session holding client.
func classify(resp *http.Response) error {
	var er errorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&er)

	switch er.Error {
	case "invalid_grant", "expired_grant", "grant_reused", "invalid_credentials":
		return fmt.Errorf("%w: %s", ErrRejected, er.Error)
	}
	if er.Description != "" {
		return fmt.Errorf("sessionclient: backend returned %d (%s: %s)", resp.StatusCode, er.Error, er.Description)
	}
	return fmt.Errorf("sessionclient: backend returned %d", resp.StatusCode)
}
