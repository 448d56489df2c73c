package connectapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakline/agent-console/pkg/connecthub"
)

// fakeProvider simulates the upstream tool-connection provider.
type fakeProvider struct {
	mux *http.ServeMux
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{mux: http.NewServeMux()}
}

func (f *fakeProvider) handle(pattern string, fn http.HandlerFunc) {
	f.mux.HandleFunc(pattern, fn)
}

func newTestHandler(t *testing.T, provider *fakeProvider) *Handler {
	t.Helper()
	srv := httptest.NewServer(provider.mux)
	t.Cleanup(srv.Close)

	hub := connecthub.NewClient(connecthub.Config{
		BaseURL: srv.URL,
		APIKey:  "provider-key",
	})
	cache := NewToolkitCache(hub, ToolkitCacheConfig{Size: 16, TTL: time.Minute}, nil)
	return NewHandler(HandlerConfig{Hub: hub, Toolkits: cache})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) (code, message string) {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code, body.Error.Message
}

func TestGetConnectedAccount_WithToolkit(t *testing.T) {
	provider := newFakeProvider()
	provider.handle("GET /connected_accounts/ca_1", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(connecthub.ConnectedAccount{
			ID:      "ca_1",
			Status:  connecthub.StatusActive,
			Toolkit: &connecthub.ToolkitRef{Slug: "github"},
		})
	})
	provider.handle("GET /toolkits/github", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(connecthub.Toolkit{
			Slug: "github",
			Name: "GitHub",
			Meta: &connecthub.ToolkitMeta{Logo: "https://cdn.example/gh.png"},
		})
	})

	handler := newTestHandler(t, provider)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/connected-account/ca_1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		ConnectedAccount *connecthub.ConnectedAccount `json:"connectedAccount"`
		Toolkit          *connecthub.Toolkit          `json:"toolkit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ca_1", resp.ConnectedAccount.ID)
	require.NotNil(t, resp.Toolkit)
	assert.Equal(t, "GitHub", resp.Toolkit.Name)
}

func TestGetConnectedAccount_ToolkitFailureIsSilent(t *testing.T) {
	provider := newFakeProvider()
	provider.handle("GET /connected_accounts/ca_1", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(connecthub.ConnectedAccount{
			ID:      "ca_1",
			Status:  connecthub.StatusActive,
			Toolkit: &connecthub.ToolkitRef{Slug: "broken"},
		})
	})
	provider.handle("GET /toolkits/broken", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	handler := newTestHandler(t, provider)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/connected-account/ca_1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Toolkit *connecthub.Toolkit `json:"toolkit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Toolkit)
}

func TestGetConnectedAccount_NotFound(t *testing.T) {
	provider := newFakeProvider()
	provider.handle("GET /connected_accounts/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"NOT_FOUND","message":"gone"}}`))
	})

	handler := newTestHandler(t, provider)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/connected-account/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	code, _ := decodeError(t, rec)
	assert.Equal(t, CodeNotFound, code)
}

func TestMissingAPIKey_IsDistinct500(t *testing.T) {
	hub := connecthub.NewClient(connecthub.Config{BaseURL: "http://unused.invalid"})
	cache := NewToolkitCache(hub, ToolkitCacheConfig{}, nil)
	handler := NewHandler(HandlerConfig{Hub: hub, Toolkits: cache})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/connected-account/ca_1", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	code, msg := decodeError(t, rec)
	assert.Equal(t, CodeMissingAPIKey, code)
	assert.Contains(t, msg, "not configured")
}

func TestRefreshConnectedAccount(t *testing.T) {
	provider := newFakeProvider()
	provider.handle("POST /connected_accounts/ca_1/refresh", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(connecthub.RefreshResponse{
			Status:      connecthub.StatusInitiated,
			RedirectURL: "https://auth.example/x",
		})
	})

	handler := newTestHandler(t, provider)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/connected-account/ca_1/refresh", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Response connecthub.RefreshResponse `json:"response"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "https://auth.example/x", resp.Response.RedirectURL)
}

func TestDeleteConnectedAccount(t *testing.T) {
	provider := newFakeProvider()
	provider.handle("DELETE /connected_accounts/ca_1", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(connecthub.DeleteResponse{ID: "ca_1", Status: "deleted"})
	})

	handler := newTestHandler(t, provider)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/connected-account/ca_1", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListConnectedAccounts_HydratesToolkits(t *testing.T) {
	provider := newFakeProvider()
	provider.handle("GET /connected_accounts", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "github", r.URL.Query().Get("toolkit_slug"))
		_ = json.NewEncoder(w).Encode(connecthub.ConnectedAccountList{
			Items: []connecthub.ConnectedAccount{
				{ID: "ca_1", Status: connecthub.StatusActive, Toolkit: &connecthub.ToolkitRef{Slug: "github"}},
				{ID: "ca_2", Status: connecthub.StatusInactive, Toolkit: &connecthub.ToolkitRef{Slug: "github"}},
			},
		})
	})
	var toolkitCalls int
	provider.handle("GET /toolkits/github", func(w http.ResponseWriter, _ *http.Request) {
		toolkitCalls++
		_ = json.NewEncoder(w).Encode(connecthub.Toolkit{Slug: "github", Name: "GitHub"})
	})

	handler := newTestHandler(t, provider)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/connected-accounts?toolkit_slug=github", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		ConnectedAccounts *connecthub.ConnectedAccountList `json:"connectedAccounts"`
		Toolkits          map[string]*connecthub.Toolkit   `json:"toolkits"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.ConnectedAccounts.Items, 2)
	require.Contains(t, resp.Toolkits, "github")
	assert.Equal(t, "GitHub", resp.Toolkits["github"].Name)
	assert.Equal(t, 1, toolkitCalls, "duplicate slugs should hydrate once")
}

func TestWaitForConnection_Resolves(t *testing.T) {
	provider := newFakeProvider()
	provider.handle("GET /connected_accounts/abc123", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(connecthub.ConnectedAccount{
			ID:     "abc123",
			Status: connecthub.StatusActive,
		})
	})

	handler := newTestHandler(t, provider)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/wait-for-connection",
		strings.NewReader(`{"connectedAccountId":"abc123"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		ConnectedAccount *connecthub.ConnectedAccount `json:"connectedAccount"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, connecthub.StatusActive, resp.ConnectedAccount.Status)
}

func TestWaitForConnection_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		status     string
		wantStatus int
		wantCode   string
	}{
		{name: "failed state", status: connecthub.StatusFailed, wantStatus: http.StatusConflict, wantCode: CodeFailed},
		{name: "pending times out", status: connecthub.StatusPending, wantStatus: http.StatusGatewayTimeout, wantCode: CodeTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newFakeProvider()
			provider.handle("GET /connected_accounts/abc123", func(w http.ResponseWriter, _ *http.Request) {
				_ = json.NewEncoder(w).Encode(connecthub.ConnectedAccount{
					ID:     "abc123",
					Status: tt.status,
				})
			})

			handler := newTestHandler(t, provider)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/wait-for-connection",
				strings.NewReader(`{"connectedAccountId":"abc123","timeoutMs":50}`)))

			assert.Equal(t, tt.wantStatus, rec.Code)
			code, _ := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestWaitForConnection_ConfiguredDefaultTimeout(t *testing.T) {
	provider := newFakeProvider()
	provider.handle("GET /connected_accounts/abc123", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(connecthub.ConnectedAccount{
			ID:     "abc123",
			Status: connecthub.StatusPending,
		})
	})
	srv := httptest.NewServer(provider.mux)
	t.Cleanup(srv.Close)

	hub := connecthub.NewClient(connecthub.Config{BaseURL: srv.URL, APIKey: "provider-key"})
	handler := NewHandler(HandlerConfig{
		Hub:                hub,
		Toolkits:           NewToolkitCache(hub, ToolkitCacheConfig{}, nil),
		DefaultWaitTimeout: 50 * time.Millisecond,
	})

	// No timeoutMs in the body: the server-side default must bound the wait.
	start := time.Now()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/wait-for-connection",
		strings.NewReader(`{"connectedAccountId":"abc123"}`)))

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	code, _ := decodeError(t, rec)
	assert.Equal(t, CodeTimeout, code)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestWaitForConnection_NotFound(t *testing.T) {
	provider := newFakeProvider()
	provider.handle("GET /connected_accounts/ghost", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	handler := newTestHandler(t, provider)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/wait-for-connection",
		strings.NewReader(`{"connectedAccountId":"ghost"}`)))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	code, _ := decodeError(t, rec)
	assert.Equal(t, CodeNotFound, code)
}

func TestWaitForConnection_BadBody(t *testing.T) {
	handler := newTestHandler(t, newFakeProvider())

	for _, body := range []string{"not json", `{"connectedAccountId":"  "}`, `{}`} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/wait-for-connection",
			strings.NewReader(body)))

		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
		code, _ := decodeError(t, rec)
		assert.Equal(t, CodeInvalidRequest, code)
	}
}
