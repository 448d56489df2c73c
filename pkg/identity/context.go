// Package identity provides session authentication against a third-party
// identity provider: bearer token verification, the code-for-session
// exchange used by the sign-in callback, and the HTTP middleware protecting
// the console API.
package identity

import "context"

// contextKey is a private type for context keys.
type contextKey int

const userContextKey contextKey = iota

// User holds the authenticated caller for a request.
type User struct {
	ID    string
	Email string

	// AccessToken is the provider token used for proxied agent requests.
	AccessToken string

	// SessionID identifies the backing browser session, when the caller
	// authenticated with a cookie. Empty for bearer-token callers.
	SessionID string
}

// WithUser adds the authenticated user to the context.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userContextKey, u)
}

// UserFrom retrieves the authenticated user from the context, or nil.
func UserFrom(ctx context.Context) *User {
	if u, ok := ctx.Value(userContextKey).(*User); ok {
		return u
	}
	return nil
}
