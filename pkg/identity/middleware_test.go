package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/oakline/agent-console/pkg/session"
)

func newMiddlewareFixture(t *testing.T) (*session.CookieManager, *Verifier) {
	t.Helper()
	store := session.NewMemoryStore(time.Hour)
	t.Cleanup(func() { _ = store.Close() })
	cookies := session.NewCookieManager(session.CookieManagerConfig{
		Store: store,
		TTL:   time.Hour,
	})
	verifier := NewVerifier(VerifierConfig{SigningSecret: verifierTestSecret})
	return cookies, verifier
}

func captureUser(t *testing.T) (http.Handler, **User) {
	t.Helper()
	var captured *User
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = UserFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	return handler, &captured
}

func TestRequireUser_CookieSession(t *testing.T) {
	cookies, verifier := newMiddlewareFixture(t)

	w := httptest.NewRecorder()
	sess, err := cookies.Issue(context.Background(), w, "user-1", "dev@example.com", "tok")
	require.NoError(t, err)

	inner, captured := captureUser(t)
	handler := RequireUser(cookies, verifier)(inner)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/connected-accounts", nil)
	r.AddCookie(&http.Cookie{Name: session.CookieName, Value: sess.ID})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, *captured)
	assert.Equal(t, "user-1", (*captured).ID)
	assert.Equal(t, "tok", (*captured).AccessToken)
}

func TestRequireUser_BearerFallback(t *testing.T) {
	cookies, verifier := newMiddlewareFixture(t)

	token := signTestToken(t, verifierTestSecret, jwt.MapClaims{
		"sub": "user-7",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	inner, captured := captureUser(t)
	handler := RequireUser(cookies, verifier)(inner)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/connected-accounts", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, *captured)
	assert.Equal(t, "user-7", (*captured).ID)
}

func TestRequireUser_NoCredentials(t *testing.T) {
	cookies, verifier := newMiddlewareFixture(t)

	inner, captured := captureUser(t)
	handler := RequireUser(cookies, verifier)(inner)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/connected-accounts", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, *captured)
}

func TestRequireUser_InvalidBearer(t *testing.T) {
	cookies, verifier := newMiddlewareFixture(t)

	inner, _ := captureUser(t)
	handler := RequireUser(cookies, verifier)(inner)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/connected-accounts", nil)
	r.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireServiceKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("agent-key"), bcrypt.MinCost)
	require.NoError(t, err)

	handler := RequireServiceKey([]ServiceKey{{Name: "agent", Hash: string(hash)}})(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	r := httptest.NewRequest(http.MethodGet, "/tools", nil)
	r.Header.Set("X-Service-Key", "agent-key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)

	r = httptest.NewRequest(http.MethodGet, "/tools", nil)
	r.Header.Set("X-Service-Key", "wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	r = httptest.NewRequest(http.MethodGet, "/tools", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
