package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrExchangeFailed indicates the provider rejected the authorization code.
var ErrExchangeFailed = errors.New("identity: code exchange failed")

// ExchangerConfig configures an Exchanger.
type ExchangerConfig struct {
	// BaseURL is the identity provider auth API base, e.g.
	// https://id.example.com/auth/v1.
	BaseURL string

	// APIKey is the provider's public API key sent with exchange requests.
	APIKey string

	HTTPClient *http.Client
}

// Exchanger turns one-time authorization codes from the sign-in redirect
// into provider sessions.
type Exchanger struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// NewExchanger creates a code exchanger.
func NewExchanger(cfg ExchangerConfig) *Exchanger {
	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	return &Exchanger{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpc:   httpc,
	}
}

// TokenResponse is the provider session returned by a successful exchange.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email,omitempty"`
	} `json:"user"`
}

// ExchangeCode redeems the authorization code for a provider session.
func (e *Exchanger) ExchangeCode(ctx context.Context, code string) (*TokenResponse, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrExchangeFailed
	}

	body, err := json.Marshal(map[string]string{"auth_code": code})
	if err != nil {
		return nil, fmt.Errorf("encoding exchange request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		e.baseURL+"/token?grant_type=authorization_code", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building exchange request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", e.apiKey)

	resp, err := e.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exchange request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: provider returned %d", ErrExchangeFailed, resp.StatusCode)
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("decoding exchange response: %w", err)
	}
	if token.AccessToken == "" || token.User.ID == "" {
		return nil, ErrExchangeFailed
	}
	return &token, nil
}
