package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// =============================================================================
// Security Headers Middleware Tests
// =============================================================================

func serveWithHeaders(mw *SecurityHeadersMiddleware, method, path string) *httptest.ResponseRecorder {
	h := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestSecurityHeadersMiddleware_SetsAllHeaders(t *testing.T) {
	rec := serveWithHeaders(NewSecurityHeadersMiddleware(true, "/docs/"), http.MethodGet, "/api/crops/diseases")

	tests := []struct {
		header   string
		expected string
	}{
		{"X-Frame-Options", "DENY"},
		{"X-Content-Type-Options", "nosniff"},
		{"Referrer-Policy", "strict-origin-when-cross-origin"},
		{"Strict-Transport-Security", "max-age=31536000; includeSubDomains"},
		{"Permissions-Policy", "geolocation=(), microphone=(), camera=()"},
	}

	for _, tc := range tests {
		if got := rec.Header().Get(tc.header); got != tc.expected {
			t.Errorf("%s: expected %q, got %q", tc.header, tc.expected, got)
		}
	}
}

func TestSecurityHeadersMiddleware_NoHSTSInDevelopment(t *testing.T) {
	rec := serveWithHeaders(NewSecurityHeadersMiddleware(false, "/docs/"), http.MethodGet, "/")

	if hsts := rec.Header().Get("Strict-Transport-Security"); hsts != "" {
		t.Errorf("HSTS should not be set in development, got %q", hsts)
	}
}

func TestSecurityHeadersMiddleware_APICSP(t *testing.T) {
	rec := serveWithHeaders(NewSecurityHeadersMiddleware(false, "/docs/"), http.MethodPost, "/api/crops/diagnose")

	csp := rec.Header().Get("Content-Security-Policy")
	if !strings.HasPrefix(csp, "default-src 'none'") {
		t.Errorf("API CSP should deny by default: %s", csp)
	}
	if strings.Contains(csp, "unsafe-inline") {
		t.Errorf("API CSP should not allow inline scripts: %s", csp)
	}
	if !strings.Contains(csp, "frame-ancestors 'none'") {
		t.Errorf("CSP should prevent framing: %s", csp)
	}
}

func TestSecurityHeadersMiddleware_DocsCSP(t *testing.T) {
	rec := serveWithHeaders(NewSecurityHeadersMiddleware(false, "/docs/"), http.MethodGet, "/docs/index.html")

	csp := rec.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "script-src 'self' 'unsafe-inline'") {
		t.Errorf("docs CSP should allow the Swagger UI scripts: %s", csp)
	}
}

func TestSecurityHeadersMiddleware_PassesThroughRequests(t *testing.T) {
	rec := serveWithHeaders(NewSecurityHeadersMiddleware(false, ""), http.MethodPost, "/api/crops/diagnose")

	if rec.Code != http.StatusCreated {
		t.Errorf("expected handler status 201, got %d", rec.Code)
	}
}
