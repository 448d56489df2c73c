package identity

import (
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/oakline/agent-console/pkg/session"
)

// RequireUser protects API routes. The cookie session wins; a bearer token
// is validated as a fallback for non-browser callers. Requests with neither
// get 401.
func RequireUser(cookies *session.CookieManager, verifier *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if cookies != nil {
				sess, err := cookies.FromRequest(ctx, r)
				if err != nil {
					slog.Error("identity: session lookup failed", "error", err)
					http.Error(w, "internal server error", http.StatusInternalServerError)
					return
				}
				if sess != nil {
					ctx = WithUser(ctx, &User{
						ID:          sess.UserID,
						Email:       sess.Email,
						AccessToken: sess.AccessToken,
						SessionID:   sess.ID,
					})
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			if token := bearerToken(r); token != "" && verifier != nil {
				user, err := verifier.Verify(token)
				if err == nil {
					next.ServeHTTP(w, r.WithContext(WithUser(ctx, user)))
					return
				}
			}

			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		})
	}
}

// bearerToken extracts the bearer credential from the Authorization header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// ServiceKey defines a non-browser caller (the agent process) authorized via
// a pre-shared key. Hash is a bcrypt digest; plaintext keys are never stored
// in config.
type ServiceKey struct {
	Name string
	Hash string
}

// RequireServiceKey authenticates machine callers by comparing the presented
// X-Service-Key header against the configured bcrypt hashes.
func RequireServiceKey(keys []ServiceKey) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get("X-Service-Key")
			if presented == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			for _, key := range keys {
				if bcrypt.CompareHashAndPassword([]byte(key.Hash), []byte(presented)) == nil {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		})
	}
}
