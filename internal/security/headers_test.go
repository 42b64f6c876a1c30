package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
}

func TestHeadersMiddlewareSetsSecurityHeaders(t *testing.T) {
	handler := Headers{Enable: true, EnableHSTS: true, HSTSIncludeSubdomains: true}.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodGet, "https://api.example.com/api/v1/products", nil)
	req.TLS = &tls.ConnectionState{}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	require.Contains(t, rr.Header().Get("Content-Security-Policy"), "default-src 'none'")
	require.Equal(t, "cross-origin", rr.Header().Get("Cross-Origin-Resource-Policy"))
	require.Equal(t, "max-age=31536000; includeSubDomains", rr.Header().Get("Strict-Transport-Security"))
}

func TestHeadersMiddlewareHSTSBehindProxy(t *testing.T) {
	handler := Headers{Enable: true, EnableHSTS: true, HSTSMaxAge: 600}.Middleware(okHandler())

	plain := httptest.NewRecorder()
	handler.ServeHTTP(plain, httptest.NewRequest(http.MethodGet, "http://api.example.com/", nil))
	require.Empty(t, plain.Header().Get("Strict-Transport-Security"))

	req := httptest.NewRequest(http.MethodGet, "http://api.example.com/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	proxied := httptest.NewRecorder()
	handler.ServeHTTP(proxied, req)
	require.Equal(t, "max-age=600", proxied.Header().Get("Strict-Transport-Security"))
}

func TestHeadersMiddlewareDisabled(t *testing.T) {
	rr := httptest.NewRecorder()
	Headers{Enable: false, EnableHSTS: true}.Middleware(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "http://example.com", nil))
	require.Empty(t, rr.Header().Get("X-Content-Type-Options"))
}
