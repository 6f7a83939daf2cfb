package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wisbric/feedbackapi/internal/auth"
)

// RateLimiter is a Redis-backed fixed-window counter: each key may make
// limit+burst requests per window, and the count resets only when the
// window's TTL lapses; there is no gradual refill within a window. Counters
// live in Redis, so a process restart doesn't reset them and every process
// pointed at the same Redis shares one budget per key.
type RateLimiter struct {
	redis  *redis.Client
	limit  int           // requests per window
	burst  int           // additional requests allowed above the steady rate
	window time.Duration // refill window
}

// NewRateLimiter creates a rate limiter for one tier (general/analytics/admin/upload).
func NewRateLimiter(rdb *redis.Client, limit, burst int) *RateLimiter {
	return &RateLimiter{redis: rdb, limit: limit, burst: burst, window: time.Minute}
}

// Result carries the outcome of a rate-limit check plus the headers to set.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Allow checks and records one request against the bucket identified by key.
// It degrades to "allowed" if Redis is unreachable — a misconfigured or
// down cache must never itself take the service offline.
func (rl *RateLimiter) Allow(ctx context.Context, key string) Result {
	bucketKey := fmt.Sprintf("ratelimit:%s", key)
	capacity := rl.limit + rl.burst

	pipe := rl.redis.TxPipeline()
	incr := pipe.Incr(ctx, bucketKey)
	ttl := pipe.TTL(ctx, bucketKey)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return Result{Allowed: true, Limit: capacity, Remaining: capacity, ResetAt: time.Now().Add(rl.window)}
	}

	count := int(incr.Val())
	remainingTTL := ttl.Val()
	if remainingTTL < 0 {
		rl.redis.Expire(ctx, bucketKey, rl.window)
		remainingTTL = rl.window
	}

	resetAt := time.Now().Add(remainingTTL)
	if count > capacity {
		return Result{Allowed: false, Limit: capacity, Remaining: 0, ResetAt: resetAt}
	}

	return Result{Allowed: true, Limit: capacity, Remaining: capacity - count, ResetAt: resetAt}
}

// Middleware enforces the bucket and always sets the X-RateLimit-* headers,
// 429 + Retry-After on exceed.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rateLimitKey(r)
		result := rl.Allow(r.Context(), key)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			retryAfter := int(time.Until(result.ResetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			RespondError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// rateLimitKey keys the bucket on the authenticated subject when present,
// otherwise on the client IP.
func rateLimitKey(r *http.Request) string {
	if id := auth.FromContext(r.Context()); id != nil && id.Subject != "" {
		return "subject:" + id.Subject
	}
	return "ip:" + ClientIP(r)
}

// ClientIP extracts the client IP, preferring X-Forwarded-For/X-Real-IP.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for i := 0; i < len(xff); i++ {
			if xff[i] == ',' {
				return xff[:i]
			}
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
