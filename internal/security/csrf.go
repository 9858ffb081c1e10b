package security

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/noah-isme/toko-checkout/internal/common"
)

// CSRF protects cookie-authenticated writes using the double-submit technique.
// Requests carrying a bearer token, or no session cookie at all, are not
// exposed to cross-site forgery and pass through.
type CSRF struct {
	Header string
	// SessionCookie is the access token cookie whose presence turns the check on.
	SessionCookie string
}

// Middleware enforces that unsafe requests include a CSRF header matching the cookie of the same name.
func (c CSRF) Middleware(next http.Handler) http.Handler {
	headerName := strings.TrimSpace(c.Header)
	if headerName == "" {
		headerName = "X-CSRF-Token"
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
			next.ServeHTTP(w, r)
			return
		}
		if auth := strings.TrimSpace(r.Header.Get("Authorization")); strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			next.ServeHTTP(w, r)
			return
		}
		if c.SessionCookie != "" {
			if _, err := r.Cookie(c.SessionCookie); err != nil {
				next.ServeHTTP(w, r)
				return
			}
		}

		token := strings.TrimSpace(r.Header.Get(headerName))
		if token == "" {
			common.JSONError(w, http.StatusForbidden, "CSRF_REJECTED", "missing csrf token", nil)
			return
		}
		cookie, err := r.Cookie(headerName)
		if err != nil || strings.TrimSpace(cookie.Value) == "" {
			common.JSONError(w, http.StatusForbidden, "CSRF_REJECTED", "missing csrf cookie", nil)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(cookie.Value)) != 1 {
			common.JSONError(w, http.StatusForbidden, "CSRF_REJECTED", "invalid csrf token", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}
