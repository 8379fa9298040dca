package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// RateLimitConfig describes one rate limit tier. A bucket holds up to
// RequestsPerWindow+BurstSize tokens and refills at RequestsPerWindow
// per WindowDuration.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
	BurstSize         int
}

// DefaultRateLimitConfig is the tier for unauthenticated callers.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 100,
		WindowDuration:    time.Minute,
		BurstSize:         10,
	}
}

// PerSubscriberRateLimitConfig is the tier for authenticated subscribers.
func PerSubscriberRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 1000,
		WindowDuration:    time.Minute,
		BurstSize:         50,
	}
}

// OperatorRateLimitConfig is the tier for operator keys, sized for
// solver daemons polling on a schedule.
func OperatorRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 5000,
		WindowDuration:    time.Minute,
		BurstSize:         100,
	}
}

func (c *RateLimitConfig) capacity() float64 {
	return float64(c.RequestsPerWindow + c.BurstSize)
}

// RateLimiter is an in-process token bucket limiter keyed by caller.
type RateLimiter struct {
	config  *RateLimitConfig
	buckets map[string]*bucket
	mu      sync.Mutex
}

type bucket struct {
	tokens   float64
	lastSeen time.Time
}

func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	return &RateLimiter{
		config:  config,
		buckets: make(map[string]*bucket),
	}
}

// refill accrues tokens for elapsed time. Caller holds rl.mu.
func (rl *RateLimiter) refill(b *bucket, now time.Time) {
	rate := float64(rl.config.RequestsPerWindow) / rl.config.WindowDuration.Seconds()
	b.tokens += now.Sub(b.lastSeen).Seconds() * rate
	if max := rl.config.capacity(); b.tokens > max {
		b.tokens = max
	}
	b.lastSeen = now
}

// Allow consumes a token for key, reporting whether the request may
// proceed.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.config.capacity(), lastSeen: now}
		rl.buckets[key] = b
	} else {
		rl.refill(b, now)
	}

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Remaining reports the whole tokens left for key.
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		return int(rl.config.capacity())
	}
	rl.refill(b, time.Now())
	return int(b.tokens)
}

// Cleanup drops buckets idle for more than two windows.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-2 * rl.config.WindowDuration)
	for key, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// StartCleanup runs Cleanup once per window until ctx is cancelled.
func (rl *RateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.config.WindowDuration)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RateLimitMiddleware applies a per-caller token bucket, with separate
// tiers for operators, subscribers, and unauthenticated requests.
type RateLimitMiddleware struct {
	subscriberLimiter *RateLimiter
	operatorLimiter   *RateLimiter
	anonymousLimiter  *RateLimiter
}

func NewRateLimitMiddleware() *RateLimitMiddleware {
	return &RateLimitMiddleware{
		subscriberLimiter: NewRateLimiter(PerSubscriberRateLimitConfig()),
		operatorLimiter:   NewRateLimiter(OperatorRateLimitConfig()),
		anonymousLimiter:  NewRateLimiter(DefaultRateLimitConfig()),
	}
}

// pick selects the limiter tier and bucket key for a request.
// Authenticated callers are keyed by subject, anonymous ones by IP.
func (m *RateLimitMiddleware) pick(r *http.Request) (*RateLimiter, string) {
	if identity := GetIdentity(r); identity != nil {
		if identity.IsOperator() {
			return m.operatorLimiter, "subject:" + identity.Subject
		}
		return m.subscriberLimiter, "subject:" + identity.Subject
	}
	return m.anonymousLimiter, "ip:" + clientIP(r)
}

// Handler enforces the rate limit and sets X-RateLimit-* headers.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter, key := m.pick(r)

		if !limiter.Allow(key) {
			writeRateLimited(w, limiter.config, limiter.config.WindowDuration)
			return
		}

		setRateLimitHeaders(w, limiter.config, limiter.Remaining(key))
		next.ServeHTTP(w, r)
	})
}

func setRateLimitHeaders(w http.ResponseWriter, config *RateLimitConfig, remaining int) {
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", config.RequestsPerWindow))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(config.WindowDuration).Unix()))
}

func writeRateLimited(w http.ResponseWriter, config *RateLimitConfig, retryAfter time.Duration) {
	secs := int64(retryAfter.Seconds())
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", fmt.Sprintf("%d", secs))
	setRateLimitHeaders(w, config, 0)
	w.Header().Set("X-RateLimit-Remaining", "0")
	w.WriteHeader(http.StatusTooManyRequests)
	fmt.Fprintf(w, `{"error":"rate limit exceeded","retry_after":%d}`, secs)
}

// clientIP resolves the caller address, trusting proxy headers when
// present.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
