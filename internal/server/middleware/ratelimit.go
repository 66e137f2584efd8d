// Package middleware provides rate limiting using the token bucket algorithm.
package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/example/visitbook/internal/config"
	"github.com/example/visitbook/internal/response"
)

// RateLimiter implements per-client rate limiting using token buckets.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
	limits  config.RateLimitConfig
}

// tokenBucket implements the token bucket algorithm.
type tokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// NewRateLimiter creates a new rate limiter with the given configuration.
func NewRateLimiter(limits config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*tokenBucket),
		limits:  limits,
	}
}

// Allow checks if a request from the given client should be allowed.
func (rl *RateLimiter) Allow(clientKey string) bool {
	if !rl.limits.Enabled {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	bucket, exists := rl.buckets[clientKey]
	if !exists {
		bucket = &tokenBucket{
			tokens:     float64(rl.limits.Burst),
			maxTokens:  float64(rl.limits.Burst),
			refillRate: float64(rl.limits.RequestsPerMinute) / 60.0,
			lastRefill: time.Now(),
		}
		rl.buckets[clientKey] = bucket
	}

	bucket.refill()

	if bucket.tokens >= 1.0 {
		bucket.tokens -= 1.0
		return true
	}

	return false
}

// refill adds tokens based on elapsed time.
func (tb *tokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tb.lastRefill = now

	tb.tokens += elapsed * tb.refillRate
	if tb.tokens > tb.maxTokens {
		tb.tokens = tb.maxTokens
	}
}

// Cleanup removes stale buckets that haven't been used recently.
func (rl *RateLimiter) Cleanup(maxAge time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for clientKey, bucket := range rl.buckets {
		if bucket.lastRefill.Before(cutoff) {
			delete(rl.buckets, clientKey)
		}
	}
}

// Reset removes all rate limit state (useful for testing).
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.buckets = make(map[string]*tokenBucket)
}

// RateLimit returns middleware that applies per-IP rate limiting.
func RateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientIP(r)
			// X-Forwarded-For may carry a proxy chain; key on the origin
			if idx := strings.IndexByte(key, ','); idx >= 0 {
				key = strings.TrimSpace(key[:idx])
			}

			if !limiter.Allow(key) {
				response.WriteRateLimited(w, 60)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
