package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// DistributedRateLimiter counts requests in Redis so limits hold across
// server replicas. It is a fixed-window counter: the first request in a
// window creates the key with a TTL of one window.
type DistributedRateLimiter struct {
	redis  *redis.Client
	config *RateLimitConfig
	prefix string
}

func NewDistributedRateLimiter(redisClient *redis.Client, config *RateLimitConfig, prefix string) *DistributedRateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &DistributedRateLimiter{
		redis:  redisClient,
		config: config,
		prefix: prefix,
	}
}

func (rl *DistributedRateLimiter) key(key string) string {
	return rl.prefix + ":" + key
}

// Allow counts the request against the current window. A Redis error is
// returned alongside allowed=true so the caller can decide whether to
// fail open.
func (rl *DistributedRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := rl.key(key)

	count, err := rl.redis.Incr(ctx, redisKey).Result()
	if err != nil {
		return true, fmt.Errorf("rate limit incr: %w", err)
	}
	if count == 1 {
		// First hit in the window starts its TTL.
		if err := rl.redis.Expire(ctx, redisKey, rl.config.WindowDuration).Err(); err != nil {
			return true, fmt.Errorf("rate limit expire: %w", err)
		}
	}
	return count <= int64(rl.config.RequestsPerWindow), nil
}

// Remaining reports how many requests are left in the current window.
func (rl *DistributedRateLimiter) Remaining(ctx context.Context, key string) (int, error) {
	count, err := rl.redis.Get(ctx, rl.key(key)).Int()
	if err == redis.Nil {
		return rl.config.RequestsPerWindow, nil
	}
	if err != nil {
		return 0, err
	}
	remaining := rl.config.RequestsPerWindow - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// TTL reports when the current window resets.
func (rl *DistributedRateLimiter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return rl.redis.TTL(ctx, rl.key(key)).Result()
}

// Reset clears the counter for key.
func (rl *DistributedRateLimiter) Reset(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, rl.key(key)).Err()
}

// DistributedRateLimitMiddleware applies Redis-backed rate limiting
// with the same tiers as the in-process middleware. Redis failures
// fail open by default so a broken cache does not take the API down.
type DistributedRateLimitMiddleware struct {
	subscriberLimiter *DistributedRateLimiter
	operatorLimiter   *DistributedRateLimiter
	anonymousLimiter  *DistributedRateLimiter
	failOpen          bool
	log               *logrus.Logger
}

func NewDistributedRateLimitMiddleware(redisClient *redis.Client, log *logrus.Logger) *DistributedRateLimitMiddleware {
	if log == nil {
		log = logrus.New()
	}
	return &DistributedRateLimitMiddleware{
		subscriberLimiter: NewDistributedRateLimiter(redisClient, PerSubscriberRateLimitConfig(), "ratelimit:subscriber"),
		operatorLimiter:   NewDistributedRateLimiter(redisClient, OperatorRateLimitConfig(), "ratelimit:operator"),
		anonymousLimiter:  NewDistributedRateLimiter(redisClient, DefaultRateLimitConfig(), "ratelimit:anon"),
		failOpen:          true,
		log:               log,
	}
}

// SetFailOpen controls whether Redis errors allow (true) or reject
// (false) requests.
func (m *DistributedRateLimitMiddleware) SetFailOpen(failOpen bool) {
	m.failOpen = failOpen
}

func (m *DistributedRateLimitMiddleware) pick(r *http.Request) (*DistributedRateLimiter, string) {
	if identity := GetIdentity(r); identity != nil {
		if identity.IsOperator() {
			return m.operatorLimiter, "subject:" + identity.Subject
		}
		return m.subscriberLimiter, "subject:" + identity.Subject
	}
	return m.anonymousLimiter, "ip:" + clientIP(r)
}

// Handler enforces the shared rate limit and sets X-RateLimit-* headers.
func (m *DistributedRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		limiter, key := m.pick(r)

		allowed, err := limiter.Allow(ctx, key)
		if err != nil {
			m.log.WithError(err).Warn("Rate limit check failed")
			if m.failOpen {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, "service temporarily unavailable", http.StatusServiceUnavailable)
			return
		}

		retryAfter := limiter.config.WindowDuration
		if ttl, err := limiter.TTL(ctx, key); err == nil && ttl > 0 {
			retryAfter = ttl
		}

		if !allowed {
			writeRateLimited(w, limiter.config, retryAfter)
			return
		}

		if remaining, err := limiter.Remaining(ctx, key); err == nil {
			setRateLimitHeaders(w, limiter.config, remaining)
		}
		next.ServeHTTP(w, r)
	})
}
