package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakline/agent-console/pkg/session"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Identity.SigningSecret = "test-secret"
	s, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.store.Close() })
	return s
}

func TestVersionDefault(t *testing.T) {
	assert.Equal(t, "dev", Version)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Identity.SigningSecret = ""
	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Not ready until Run is called.
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAPIRequiresCredentials(t *testing.T) {
	s := newTestServer(t)

	for _, target := range []string{
		"/api/v1/connected-accounts",
		"/api/v1/connected-account/ca_1",
		"/api/v1/agents",
	} {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "target %s", target)
	}
}

func TestAuthCallback_MissingCodeRedirectsWithError(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/auth/callback", nil)
	r.Host = "console.example.com"
	s.Handler().ServeHTTP(rec, r)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "http://console.example.com/?authError=signin_failed",
		rec.Header().Get("Location"))
}

func TestAuthLogout_ClearsCookie(t *testing.T) {
	s := newTestServer(t)

	sess := &session.Session{ID: "sess-1", UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, s.store.Create(context.Background(), sess))

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	r.AddCookie(&http.Cookie{Name: session.CookieName, Value: "sess-1"})
	s.Handler().ServeHTTP(rec, r)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, -1, cookies[0].MaxAge)

	got, err := s.store.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRun_GracefulShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Identity.SigningSecret = "test-secret"
	cfg.Server.Address = "127.0.0.1:0"
	s, err := New(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	assert.NoError(t, <-done)
}
