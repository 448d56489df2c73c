// Package origin resolves the effective request origin behind reverse
// proxies. Deployments terminate TLS at the edge, so the scheme and host the
// browser sees arrive in forwarding headers rather than on the request.
package origin

import "net/http"

// Resolver resolves request origins. SiteURL, when set, overrides header
// resolution entirely; it is used for deployments where the public URL is
// known at configuration time (e.g. the auth callback target).
type Resolver struct {
	SiteURL string
}

// Resolve returns the effective origin for the request, preferring
// X-Forwarded-Proto and X-Forwarded-Host, then the plain Host header with
// the request's own scheme, and finally the configured site URL.
func (res *Resolver) Resolve(r *http.Request) string {
	if res != nil && res.SiteURL != "" {
		return res.SiteURL
	}

	proto := r.Header.Get("X-Forwarded-Proto")
	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	if host == "" {
		return ""
	}
	if proto == "" {
		if r.TLS != nil {
			proto = "https"
		} else {
			proto = "http"
		}
	}
	return proto + "://" + host
}

// Resolve is a convenience for header-only resolution without a configured
// site URL.
func Resolve(r *http.Request) string {
	return (&Resolver{}).Resolve(r)
}
