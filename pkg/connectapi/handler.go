// Package connectapi provides the REST endpoints the chat client uses to
// manage tool connections: connected account retrieval, refresh, delete,
// listing, and the wait-for-connection long poll.
package connectapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oakline/agent-console/pkg/connecthub"
)

// Error codes returned in the {error:{code,message}} envelope.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeInvalidQuery   = "INVALID_QUERY"
	CodeMissingAPIKey  = "MISSING_API_KEY"
	CodeNotFound       = "NOT_FOUND"
	CodeTimeout        = "TIMEOUT"
	CodeFailed         = "FAILED"
	CodeUnknown        = "UNKNOWN"
)

// Handler serves the connection lifecycle REST API.
type Handler struct {
	mux         *http.ServeMux
	hub         *connecthub.Client
	toolkits    *ToolkitCache
	defaultWait time.Duration
	log         *slog.Logger
}

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	Hub      *connecthub.Client
	Toolkits *ToolkitCache

	// DefaultWaitTimeout bounds waits when the request omits timeoutMs.
	// Zero falls through to the provider client's own default.
	DefaultWaitTimeout time.Duration

	Logger *slog.Logger
}

// NewHandler creates the connection API handler.
func NewHandler(cfg HandlerConfig) *Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{
		mux:         http.NewServeMux(),
		hub:         cfg.Hub,
		toolkits:    cfg.Toolkits,
		defaultWait: cfg.DefaultWaitTimeout,
		log:         log,
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /api/v1/connected-account/{id}", h.getConnectedAccount)
	h.mux.HandleFunc("POST /api/v1/connected-account/{id}/refresh", h.refreshConnectedAccount)
	h.mux.HandleFunc("DELETE /api/v1/connected-account/{id}", h.deleteConnectedAccount)
	h.mux.HandleFunc("GET /api/v1/connected-accounts", h.listConnectedAccounts)
	h.mux.HandleFunc("POST /api/v1/wait-for-connection", h.waitForConnection)
}

// connectedAccountResponse is returned by the single-account endpoint.
// Toolkit is best effort; metadata failures degrade to null.
type connectedAccountResponse struct {
	ConnectedAccount *connecthub.ConnectedAccount `json:"connectedAccount"`
	Toolkit          *connecthub.Toolkit          `json:"toolkit"`
}

func (h *Handler) getConnectedAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}

	account, err := h.hub.GetConnectedAccount(r.Context(), id)
	if err != nil {
		h.writeHubError(w, err, "Unable to retrieve the connected account.")
		return
	}

	var toolkit *connecthub.Toolkit
	if account.Toolkit != nil && account.Toolkit.Slug != "" {
		toolkit = h.toolkits.Get(r.Context(), account.Toolkit.Slug)
	}

	writeJSON(w, http.StatusOK, connectedAccountResponse{
		ConnectedAccount: account,
		Toolkit:          toolkit,
	})
}

func (h *Handler) refreshConnectedAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}

	resp, err := h.hub.RefreshConnectedAccount(r.Context(), id)
	if err != nil {
		h.writeHubError(w, err, "Unable to refresh the connected account.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"response": resp})
}

func (h *Handler) deleteConnectedAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := h.accountID(w, r)
	if !ok {
		return
	}

	resp, err := h.hub.DeleteConnectedAccount(r.Context(), id)
	if err != nil {
		h.writeHubError(w, err, "Unable to delete the connected account.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"response": resp})
}

// listResponse pairs the account page with a toolkit side-table keyed by
// slug so the client renders logos without extra round trips.
type listResponse struct {
	ConnectedAccounts *connecthub.ConnectedAccountList `json:"connectedAccounts"`
	Toolkits          map[string]*connecthub.Toolkit   `json:"toolkits,omitempty"`
}

func (h *Handler) listConnectedAccounts(w http.ResponseWriter, r *http.Request) {
	filters, err := normalizeFilters(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidQuery,
			"The provided query parameters are invalid for this request.")
		return
	}

	list, err := h.hub.ListConnectedAccounts(r.Context(), filters)
	if err != nil {
		h.writeHubError(w, err, "Unable to retrieve the list of connected accounts.")
		return
	}

	toolkits := h.hydrateToolkits(r.Context(), list.Items)
	resp := listResponse{ConnectedAccounts: list}
	if len(toolkits) > 0 {
		resp.Toolkits = toolkits
	}
	writeJSON(w, http.StatusOK, resp)
}

// hydrateToolkits builds the slug-keyed toolkit side-table. Lookup failures
// are non-fatal: the entry is simply absent and the client shows no logo.
func (h *Handler) hydrateToolkits(ctx context.Context, items []connecthub.ConnectedAccount) map[string]*connecthub.Toolkit {
	toolkits := make(map[string]*connecthub.Toolkit)
	for _, item := range items {
		if item.Toolkit == nil || item.Toolkit.Slug == "" {
			continue
		}
		slug := item.Toolkit.Slug
		if _, seen := toolkits[slug]; seen {
			continue
		}
		if tk := h.toolkits.Get(ctx, slug); tk != nil {
			toolkits[slug] = tk
		}
	}
	return toolkits
}

// waitRequest is the wait-for-connection request body.
type waitRequest struct {
	ConnectedAccountID string `json:"connectedAccountId"`
	TimeoutMs          int64  `json:"timeoutMs,omitempty"`
}

func (h *Handler) waitForConnection(w http.ResponseWriter, r *http.Request) {
	var req waitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest,
			"A valid connectedAccountId string is required.")
		return
	}
	id := strings.TrimSpace(req.ConnectedAccountID)
	if id == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest,
			"A valid connectedAccountId string is required.")
		return
	}

	timeout := h.defaultWait
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}

	account, err := h.hub.WaitForConnection(r.Context(), id, timeout)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Client went away; nothing useful to write.
			return
		}
		h.writeHubError(w, err, "Unable to verify the connection.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"connectedAccount": account})
}

// accountID extracts and validates the {id} path parameter.
func (h *Handler) accountID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest,
			"A valid connected account id is required.")
		return "", false
	}
	return id, true
}

// normalizeFilters validates pass-through list filters, dropping empty
// values and rejecting keys that are empty after trimming.
func normalizeFilters(query url.Values) (url.Values, error) {
	filters := url.Values{}
	for key, values := range query {
		if strings.TrimSpace(key) == "" {
			return nil, errors.New("empty filter key")
		}
		for _, v := range values {
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				filters.Add(key, trimmed)
			}
		}
	}
	return filters, nil
}

// writeHubError maps provider errors onto the HTTP error taxonomy. The
// missing-credential case is always a distinct 500 so operators can tell a
// misconfigured deployment from an upstream failure.
func (h *Handler) writeHubError(w http.ResponseWriter, err error, generic string) {
	switch {
	case errors.Is(err, connecthub.ErrMissingAPIKey):
		writeError(w, http.StatusInternalServerError, CodeMissingAPIKey,
			"The tool-connection provider API key is not configured on the server.")
	case errors.Is(err, connecthub.ErrNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, errMessage(err, generic))
	case errors.Is(err, connecthub.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, CodeTimeout,
			"Timed out waiting for the connection to become active.")
	case errors.Is(err, connecthub.ErrConnectionFailed):
		writeError(w, http.StatusConflict, CodeFailed, errMessage(err, generic))
	default:
		h.log.Error("connectapi: provider call failed", "error", err)
		writeError(w, http.StatusInternalServerError, CodeUnknown, generic)
	}
}

func errMessage(err error, fallback string) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error envelope.
func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": msg},
	})
}
