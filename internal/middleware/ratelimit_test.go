package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/agropal/agropal/internal/handler"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLimiter(t *testing.T, max int, window time.Duration) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(max, window, testLogger())
	t.Cleanup(rl.Stop)
	return rl
}

// =============================================================================
// RateLimiter Tests
// =============================================================================

func TestNewRateLimiter(t *testing.T) {
	rl := newTestLimiter(t, 5, time.Minute)

	if rl.maxAttempts != 5 {
		t.Errorf("expected maxAttempts=5, got %d", rl.maxAttempts)
	}
	if rl.window != time.Minute {
		t.Errorf("expected window=1m, got %v", rl.window)
	}
}

func TestRateLimiter_Allow_UnderLimit(t *testing.T) {
	rl := newTestLimiter(t, 5, time.Minute)

	for i := 0; i < 5; i++ {
		if !rl.Allow("102.89.1.1") {
			t.Errorf("request %d should be allowed", i+1)
		}
	}
}

func TestRateLimiter_Allow_AtLimit(t *testing.T) {
	rl := newTestLimiter(t, 5, time.Minute)

	for i := 0; i < 5; i++ {
		rl.Allow("102.89.1.1")
	}

	if rl.Allow("102.89.1.1") {
		t.Error("6th request should be denied")
	}
}

func TestRateLimiter_Allow_DifferentIPs(t *testing.T) {
	rl := newTestLimiter(t, 2, time.Minute)

	rl.Allow("102.89.1.1")
	rl.Allow("102.89.1.1")
	if rl.Allow("102.89.1.1") {
		t.Error("IP 1 should be rate limited")
	}

	// IP 2 should still have its own limit
	if !rl.Allow("102.89.1.2") {
		t.Error("IP 2 should not be rate limited")
	}
	if !rl.Allow("102.89.1.2") {
		t.Error("IP 2 should still not be rate limited")
	}
	if rl.Allow("102.89.1.2") {
		t.Error("IP 2 should now be rate limited")
	}
}

func TestRateLimiter_Allow_WindowExpiry(t *testing.T) {
	rl := newTestLimiter(t, 2, 50*time.Millisecond)

	rl.Allow("102.89.1.1")
	rl.Allow("102.89.1.1")
	if rl.Allow("102.89.1.1") {
		t.Error("should be rate limited")
	}

	time.Sleep(60 * time.Millisecond)

	if !rl.Allow("102.89.1.1") {
		t.Error("should be allowed after window expires")
	}
}

func TestRateLimiter_Reset(t *testing.T) {
	rl := newTestLimiter(t, 2, time.Minute)

	rl.Allow("102.89.1.1")
	rl.Allow("102.89.1.1")
	if rl.Allow("102.89.1.1") {
		t.Error("should be rate limited")
	}

	rl.Reset("102.89.1.1")

	if !rl.Allow("102.89.1.1") {
		t.Error("should be allowed after reset")
	}
}

func TestRateLimiter_StopTwice(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, testLogger())
	rl.Stop()
	rl.Stop()
}

// =============================================================================
// RateLimitMiddleware Tests
// =============================================================================

func limited(t *testing.T, max int) http.Handler {
	t.Helper()
	mw := NewRateLimitMiddleware(newTestLimiter(t, max, time.Minute), testLogger())
	return mw.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func diagnoseFrom(remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/crops/diagnose", nil)
	req.RemoteAddr = remoteAddr
	return req
}

func TestRateLimitMiddleware_BlocksAfterLimit(t *testing.T) {
	wrapped := limited(t, 2)

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		wrapped.ServeHTTP(rec, diagnoseFrom("102.89.1.1:12345"))

		if i < 2 && rec.Code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if i == 2 && rec.Code != http.StatusTooManyRequests {
			t.Errorf("request %d: expected 429, got %d", i+1, rec.Code)
		}
	}
}

func TestRateLimitMiddleware_JSONBody(t *testing.T) {
	wrapped := limited(t, 1)

	wrapped.ServeHTTP(httptest.NewRecorder(), diagnoseFrom("102.89.1.1:12345"))
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, diagnoseFrom("102.89.1.1:12345"))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header to be set")
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json content type, got %s", ct)
	}

	var body handler.ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body.Success {
		t.Error("expected success=false")
	}
	if body.Kind != "RateLimited" {
		t.Errorf("expected kind RateLimited, got %q", body.Kind)
	}
	if body.SupportMessage == "" {
		t.Error("expected a support message")
	}
}

func TestRateLimitMiddleware_XForwardedFor(t *testing.T) {
	wrapped := limited(t, 2)

	for i := 0; i < 3; i++ {
		req := diagnoseFrom("10.0.0.1:12345") // Proxy IP
		req.Header.Set("X-Forwarded-For", "203.0.113.195, 70.41.3.18, 150.172.238.178")
		rec := httptest.NewRecorder()

		wrapped.ServeHTTP(rec, req)

		if i == 2 && rec.Code != http.StatusTooManyRequests {
			t.Errorf("request %d: expected 429, got %d", i+1, rec.Code)
		}
	}

	// A different client behind the same proxy is unaffected.
	req := diagnoseFrom("10.0.0.1:12345")
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 for a different client, got %d", rec.Code)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		headers map[string]string
		want    string
	}{
		{"remote addr", "102.89.1.1:5555", nil, "102.89.1.1"},
		{"no port", "102.89.1.1", nil, "102.89.1.1"},
		{"x-real-ip", "10.0.0.1:1", map[string]string{"X-Real-IP": " 203.0.113.9 "}, "203.0.113.9"},
		{"x-forwarded-for wins", "10.0.0.1:1", map[string]string{"X-Forwarded-For": "203.0.113.1, 10.0.0.2", "X-Real-IP": "203.0.113.9"}, "203.0.113.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
