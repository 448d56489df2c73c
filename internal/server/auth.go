package server

import (
	"net/http"
)

// authCallback completes the identity provider redirect flow: the one-time
// code is exchanged for a provider session, a console session cookie is
// issued, and the browser is sent back to the app. Failures redirect with an
// authError marker instead of rendering an error page.
func (s *Server) authCallback(w http.ResponseWriter, r *http.Request) {
	base := s.origins.Resolve(r)

	code := r.URL.Query().Get("code")
	if code == "" {
		s.redirectWithError(w, r, base)
		return
	}

	token, err := s.exchanger.ExchangeCode(r.Context(), code)
	if err != nil {
		s.log.Warn("auth: code exchange failed", "error", err)
		s.redirectWithError(w, r, base)
		return
	}

	if _, err := s.cookies.Issue(r.Context(), w, token.User.ID, token.User.Email, token.AccessToken); err != nil {
		s.log.Error("auth: issuing session failed", "error", err)
		s.redirectWithError(w, r, base)
		return
	}

	next := r.URL.Query().Get("next")
	if next == "" || next[0] != '/' {
		next = "/"
	}
	http.Redirect(w, r, base+next, http.StatusFound)
}

func (s *Server) redirectWithError(w http.ResponseWriter, r *http.Request, base string) {
	http.Redirect(w, r, base+"/?authError=signin_failed", http.StatusFound)
}

// authLogout revokes the console session and clears the cookie.
func (s *Server) authLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.cookies.Revoke(r.Context(), w, r); err != nil {
		s.log.Error("auth: revoking session failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
