package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lowtide/lowtide/pkg/auth"
	"github.com/lowtide/lowtide/pkg/contextkeys"
)

func setIdentityForTest(r *http.Request, identity *auth.Identity) *http.Request {
	return r.WithContext(contextkeys.WithIdentity(r.Context(), identity))
}

func TestRateLimiter_Allow(t *testing.T) {
	config := &RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Second,
		BurstSize:         2,
	}
	limiter := NewRateLimiter(config)

	key := "test-subscriber"

	// Should allow initial requests up to limit + burst
	allowedCount := 0
	for i := 0; i < config.RequestsPerWindow+config.BurstSize+5; i++ {
		if limiter.Allow(key) {
			allowedCount++
		}
	}

	expected := config.RequestsPerWindow + config.BurstSize
	if allowedCount != expected {
		t.Errorf("Allowed %d requests, want %d", allowedCount, expected)
	}

	// After waiting, tokens should refill
	time.Sleep(time.Second)
	if !limiter.Allow(key) {
		t.Error("Should allow request after refill")
	}
}

func TestRateLimiter_Remaining(t *testing.T) {
	config := &RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Second,
		BurstSize:         2,
	}
	limiter := NewRateLimiter(config)

	key := "test-subscriber"

	initial := limiter.Remaining(key)
	expected := config.RequestsPerWindow + config.BurstSize
	if initial != expected {
		t.Errorf("Initial remaining = %d, want %d", initial, expected)
	}

	limiter.Allow(key)
	remaining := limiter.Remaining(key)
	if remaining != initial-1 {
		t.Errorf("After using 1 token, remaining = %d, want %d", remaining, initial-1)
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	config := &RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    100 * time.Millisecond,
		BurstSize:         2,
	}
	limiter := NewRateLimiter(config)

	keys := []string{"alice", "bob", "carol"}
	for _, key := range keys {
		limiter.Allow(key)
	}

	if len(limiter.buckets) != len(keys) {
		t.Errorf("Expected %d buckets, got %d", len(keys), len(limiter.buckets))
	}

	// Wait for buckets to become stale
	time.Sleep(300 * time.Millisecond)

	limiter.Cleanup()

	if len(limiter.buckets) != 0 {
		t.Errorf("Expected 0 buckets after cleanup, got %d", len(limiter.buckets))
	}
}

func TestRateLimitConfig_Tiers(t *testing.T) {
	def := DefaultRateLimitConfig()
	sub := PerSubscriberRateLimitConfig()
	op := OperatorRateLimitConfig()

	if def.RequestsPerWindow <= 0 || def.WindowDuration <= 0 {
		t.Error("default config should have positive limits")
	}
	if sub.RequestsPerWindow <= def.RequestsPerWindow {
		t.Error("subscriber rate limit should be higher than anonymous")
	}
	if op.RequestsPerWindow <= sub.RequestsPerWindow {
		t.Error("operator rate limit should be higher than subscriber")
	}
}

func TestRateLimitMiddleware_Handler_Anonymous(t *testing.T) {
	m := NewRateLimitMiddleware()

	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/v1/plans", nil)
	req.RemoteAddr = "198.51.100.4:1234"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Remaining") == "" {
		t.Error("expected rate limit headers")
	}
}

func TestRateLimitMiddleware_Handler_Subscriber(t *testing.T) {
	m := NewRateLimitMiddleware()

	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/v1/plans", nil)
	req = setIdentityForTest(req, &auth.Identity{Subject: "alice", Role: auth.RoleSubscriber})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRateLimitMiddleware_Handler_Exceeded(t *testing.T) {
	m := &RateLimitMiddleware{
		subscriberLimiter: NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Hour}),
		operatorLimiter:   NewRateLimiter(OperatorRateLimitConfig()),
		anonymousLimiter:  NewRateLimiter(DefaultRateLimitConfig()),
	}

	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	identity := &auth.Identity{Subject: "alice", Role: auth.RoleSubscriber}

	req := setIdentityForTest(httptest.NewRequest("GET", "/api/v1/plans", nil), identity)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec.Code)
	}

	req = setIdentityForTest(httptest.NewRequest("GET", "/api/v1/plans", nil), identity)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}
