package security

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func okHandler(status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
}

func TestBodyLimitAllowsWithinLimit(t *testing.T) {
	var captured string
	handler := BodyLimit{Max: 10}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		captured = string(data)
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader("hello")))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "hello", captured)
}

func TestBodyLimitRejectsOversized(t *testing.T) {
	handler := BodyLimit{Max: 5}.Middleware(okHandler(http.StatusOK))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader("excessive")))
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	require.Contains(t, rr.Body.String(), "PAYLOAD_TOO_LARGE")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader("content"))
	req.ContentLength = 100
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestCSRF(t *testing.T) {
	csrf := CSRF{Header: "X-CSRF-Token", SessionCookie: "access_token"}
	handler := csrf.Middleware(okHandler(http.StatusAccepted))

	cases := []struct {
		name  string
		setup func(*http.Request)
		want  int
	}{
		{name: "guest without session", setup: func(*http.Request) {}, want: http.StatusAccepted},
		{name: "bearer token", setup: func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "access_token", Value: "jwt"})
			r.Header.Set("Authorization", "Bearer abc.def")
		}, want: http.StatusAccepted},
		{name: "cookie session missing token", setup: func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "access_token", Value: "jwt"})
		}, want: http.StatusForbidden},
		{name: "cookie session mismatched token", setup: func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "access_token", Value: "jwt"})
			r.AddCookie(&http.Cookie{Name: "X-CSRF-Token", Value: "one"})
			r.Header.Set("X-CSRF-Token", "two")
		}, want: http.StatusForbidden},
		{name: "cookie session valid token", setup: func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "access_token", Value: "jwt"})
			r.AddCookie(&http.Cookie{Name: "X-CSRF-Token", Value: "secure-token"})
			r.Header.Set("X-CSRF-Token", "secure-token")
		}, want: http.StatusAccepted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
			tc.setup(req)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			require.Equal(t, tc.want, rr.Code)
		})
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "jwt"})
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusAccepted, rr.Code)
}

func TestHeadersMiddleware(t *testing.T) {
	handler := Headers{EnableHSTS: true, HSTSMaxAge: 600, HSTSIncludeSubdomains: true}.Middleware(okHandler(http.StatusOK))

	req := httptest.NewRequest(http.MethodGet, "https://shop.example.com/api/v1/cart", nil)
	req.TLS = &tls.ConnectionState{}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	headers := rr.Result().Header
	require.Equal(t, "nosniff", headers.Get("X-Content-Type-Options"))
	require.Equal(t, "no-store", headers.Get("Cache-Control"))
	require.Equal(t, "max-age=600; includeSubDomains", headers.Get("Strict-Transport-Security"))

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "http://shop.example.com/api/v1/cart", nil))
	require.Empty(t, rr.Result().Header.Get("Strict-Transport-Security"))
}
