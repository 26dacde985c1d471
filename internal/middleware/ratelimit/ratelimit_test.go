package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLimiterWindow(t *testing.T) {
	now := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	l := NewLimiter(Config{Requests: 2, Period: time.Minute})
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatalf("first two requests should pass")
	}
	if l.Allow("a") {
		t.Fatalf("third request should be limited")
	}
	if !l.Allow("b") {
		t.Fatalf("clients are limited independently")
	}

	now = now.Add(time.Minute)
	if !l.Allow("a") {
		t.Fatalf("a new window should reset the count")
	}
	now = now.Add(2 * time.Minute)
	if n := l.Prune(); n != 0 {
		t.Fatalf("expected stale clients pruned, %d left", n)
	}
}

func TestMiddleware(t *testing.T) {
	l := NewLimiter(Config{Requests: 1, Period: time.Minute})
	h := l.Middleware(func(*http.Request) string { return "client" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/api/students/save", nil))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/api/students/save", nil))

	if first.Code != http.StatusNoContent || second.Code != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %d %d", first.Code, second.Code)
	}
	if second.Header().Get("Retry-After") != "60" {
		t.Fatalf("missing Retry-After header")
	}
}
