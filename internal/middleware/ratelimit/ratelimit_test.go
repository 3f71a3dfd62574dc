package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func byRemoteAddr(r *http.Request) string { return r.RemoteAddr }

func TestLimiter_AllowPerKey(t *testing.T) {
	l := New(Config{RPS: 1, Burst: 2})
	defer l.Stop()

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("burst of 2 should be allowed")
	}
	if l.Allow("a") {
		t.Fatal("third request should be limited")
	}
	if !l.Allow("b") {
		t.Fatal("other keys have their own bucket")
	}
	if l.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", l.Len())
	}
}

func TestLimiter_Defaults(t *testing.T) {
	l := New(Config{})
	defer l.Stop()

	if l.burst != 20 || float64(l.limit) != 10 {
		t.Fatalf("defaults not applied: limit=%v burst=%d", l.limit, l.burst)
	}
}

func TestLimiter_CleanupDropsIdleKeys(t *testing.T) {
	l := New(Config{RPS: 1, Burst: 1, IdleTTL: time.Minute, CleanupInterval: time.Hour})
	defer l.Stop()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	l.Allow("old")

	now = now.Add(2 * time.Minute)
	l.Allow("fresh")
	l.cleanup()

	if l.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", l.Len())
	}
	l.mu.Lock()
	_, ok := l.limiters["fresh"]
	l.mu.Unlock()
	if !ok {
		t.Fatal("fresh key should survive cleanup")
	}
}

func TestLimiter_StopIsIdempotent(t *testing.T) {
	l := New(DefaultConfig())
	l.Stop()
	l.Stop()
}

func TestMiddleware_Returns429(t *testing.T) {
	l := New(Config{RPS: 0.5, Burst: 1})
	defer l.Stop()

	calls := 0
	h := l.Middleware(byRemoteAddr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/categorize", nil)
	req.RemoteAddr = "10.0.0.1"

	first := httptest.NewRecorder()
	h.ServeHTTP(first, req)
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d", first.Code)
	}

	second := httptest.NewRecorder()
	h.ServeHTTP(second, req)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", second.Code)
	}
	if calls != 1 {
		t.Fatalf("handler called %d times, want 1", calls)
	}

	retry, err := strconv.Atoi(second.Header().Get("Retry-After"))
	if err != nil || retry < 1 {
		t.Fatalf("Retry-After = %q", second.Header().Get("Retry-After"))
	}
	var body map[string]string
	if err := json.Unmarshal(second.Body.Bytes(), &body); err != nil || body["error"] == "" {
		t.Fatalf("unexpected body %q: %v", second.Body.String(), err)
	}
}
