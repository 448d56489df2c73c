package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// CookieName is the browser session cookie.
const CookieName = "agent_console_session"

// CookieManagerConfig configures a CookieManager.
type CookieManagerConfig struct {
	Store Store
	TTL   time.Duration

	// Secure marks issued cookies Secure. Leave false only for local
	// development over plain HTTP.
	Secure bool
}

// CookieManager issues and resolves browser session cookies backed by a
// Store.
type CookieManager struct {
	store  Store
	ttl    time.Duration
	secure bool
}

// NewCookieManager creates a cookie manager.
func NewCookieManager(cfg CookieManagerConfig) *CookieManager {
	return &CookieManager{
		store:  cfg.Store,
		ttl:    cfg.TTL,
		secure: cfg.Secure,
	}
}

// Issue creates a session for the authenticated user and sets the session
// cookie on the response.
func (m *CookieManager) Issue(ctx context.Context, w http.ResponseWriter, userID, email, accessToken string) (*Session, error) {
	now := time.Now()
	sess := &Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		Email:        email,
		AccessToken:  accessToken,
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(m.ttl),
		State:        make(map[string]any),
	}
	if err := m.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    sess.ID,
		Path:     "/",
		MaxAge:   int(m.ttl / time.Second),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return sess, nil
}

// FromRequest resolves the session referenced by the request cookie.
// Returns nil, nil when no cookie is present or the session is gone; store
// failures are returned as errors.
func (m *CookieManager) FromRequest(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil //nolint:nilnil // absent cookie means anonymous, not an error
	}

	sess, err := m.store.Get(ctx, cookie.Value)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if sess == nil {
		return nil, nil //nolint:nilnil // expired or unknown session
	}

	// Touch asynchronously so lookups stay cheap on the request path.
	go func() {
		_ = m.store.Touch(context.WithoutCancel(ctx), sess.ID)
	}()
	return sess, nil
}

// Revoke deletes the request's session, if any, and clears the cookie.
func (m *CookieManager) Revoke(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		if err := m.store.Delete(ctx, cookie.Value); err != nil {
			return fmt.Errorf("deleting session: %w", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
