package connecthub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Sentinel errors for provider failures the caller must distinguish.
var (
	// ErrMissingAPIKey indicates the provider credential is not configured.
	// This is a deployment problem, never a request-level error.
	ErrMissingAPIKey = errors.New("connecthub: api key is not configured")

	// ErrNotFound indicates the connected account or toolkit does not exist.
	ErrNotFound = errors.New("connecthub: not found")

	// ErrTimeout indicates a wait did not resolve before its deadline.
	ErrTimeout = errors.New("connecthub: wait timed out")

	// ErrConnectionFailed indicates the connection reached a failed or
	// expired terminal state.
	ErrConnectionFailed = errors.New("connecthub: connection failed")
)

const (
	// DefaultWaitTimeout bounds a wait when the caller supplies none.
	DefaultWaitTimeout = 60 * time.Second

	// MaxWaitTimeout caps caller-supplied wait timeouts.
	MaxWaitTimeout = 5 * time.Minute

	// waitPollInterval is the delay between status probes during a wait.
	waitPollInterval = time.Second

	defaultBaseURL     = "https://backend.connecthub.dev/api/v3"
	defaultHTTPTimeout = 30 * time.Second
	apiKeyHeader       = "x-api-key"
)

// Config configures a Client.
type Config struct {
	// BaseURL overrides the provider API base URL.
	BaseURL string

	// APIKey authenticates against the provider. An empty key produces
	// ErrMissingAPIKey on every call rather than a constructor failure, so
	// the server can start and report misconfiguration per request.
	APIKey string

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client talks to the tool-connection provider REST API.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	log     *slog.Logger
}

// NewClient creates a provider client.
func NewClient(cfg Config) *Client {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: defaultHTTPTimeout}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{baseURL: base, apiKey: cfg.APIKey, httpc: httpc, log: log}
}

// Configured reports whether the provider credential is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

func (c *Client) ready() error {
	if !c.Configured() {
		return ErrMissingAPIKey
	}
	return nil
}

// GetConnectedAccount retrieves a single connected account.
func (c *Client) GetConnectedAccount(ctx context.Context, id string) (*ConnectedAccount, error) {
	var account ConnectedAccount
	if err := c.do(ctx, http.MethodGet, "/connected_accounts/"+url.PathEscape(id), nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// ListConnectedAccounts lists connected accounts matching the filters. The
// filter set is passed through to the provider verbatim.
func (c *Client) ListConnectedAccounts(ctx context.Context, filters url.Values) (*ConnectedAccountList, error) {
	path := "/connected_accounts"
	if len(filters) > 0 {
		path += "?" + filters.Encode()
	}
	var list ConnectedAccountList
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// RefreshConnectedAccount re-initiates authorization for an account. The
// response may carry a new status and/or a redirect URL the user must visit.
func (c *Client) RefreshConnectedAccount(ctx context.Context, id string) (*RefreshResponse, error) {
	var resp RefreshResponse
	if err := c.do(ctx, http.MethodPost, "/connected_accounts/"+url.PathEscape(id)+"/refresh", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteConnectedAccount removes an account linkage. Deleting an already
// deleted account yields ErrNotFound, which callers treat as success.
func (c *Client) DeleteConnectedAccount(ctx context.Context, id string) (*DeleteResponse, error) {
	var resp DeleteResponse
	if err := c.do(ctx, http.MethodDelete, "/connected_accounts/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetToolkit retrieves toolkit display metadata by slug.
func (c *Client) GetToolkit(ctx context.Context, slug string) (*Toolkit, error) {
	var tk Toolkit
	if err := c.do(ctx, http.MethodGet, "/toolkits/"+url.PathEscape(slug), nil, &tk); err != nil {
		return nil, err
	}
	return &tk, nil
}

// WaitForConnection blocks until the connected account reaches a terminal
// state or the timeout elapses. A zero timeout uses DefaultWaitTimeout;
// timeouts above MaxWaitTimeout are capped. The account is returned on
// StatusActive; StatusFailed and StatusExpired yield ErrConnectionFailed;
// the deadline yields ErrTimeout. Context cancellation propagates as-is so
// callers can distinguish a user cancel from a timeout.
func (c *Client) WaitForConnection(ctx context.Context, id string, timeout time.Duration) (*ConnectedAccount, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	if timeout > MaxWaitTimeout {
		timeout = MaxWaitTimeout
	}

	// The deadline bounds the in-flight poll too, not just the gaps between
	// polls; a slow provider response must not overrun the caller's timeout.
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	for {
		account, err := c.GetConnectedAccount(waitCtx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, ErrTimeout
			}
			return nil, err
		}
		switch account.Status {
		case StatusActive:
			return account, nil
		case StatusFailed, StatusExpired:
			return nil, fmt.Errorf("%w: status %s", ErrConnectionFailed, account.Status)
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, ErrTimeout
		case <-ticker.C:
		}
	}
}

// providerError is the error envelope the provider returns on failures.
type providerError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.ready(); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("provider request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		return c.mapError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding provider response: %w", err)
	}
	return nil
}

// mapError converts a provider error response to a sentinel where possible.
func (c *Client) mapError(resp *http.Response) error {
	var envelope providerError
	message := ""
	if data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); err == nil {
		if json.Unmarshal(data, &envelope) == nil {
			message = envelope.Error.Message
		}
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		if message != "" {
			return fmt.Errorf("%w: %s", ErrNotFound, message)
		}
		return ErrNotFound
	case http.StatusConflict:
		if message != "" {
			return fmt.Errorf("%w: %s", ErrConnectionFailed, message)
		}
		return ErrConnectionFailed
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ErrTimeout
	}

	c.log.Warn("connecthub: provider error",
		"status", resp.StatusCode, "code", envelope.Error.Code)
	if message != "" {
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, message)
	}
	return fmt.Errorf("provider returned %d", resp.StatusCode)
}
