package memory

import (
	"context"
	"sync"
	"time"

	"rfid-fare-gateway/internal/core/ports"

	"golang.org/x/time/rate"
)

const maxIdleLimiters = 10000

// RateLimiter implements ports.RateLimiter with in-process token buckets.
// It stands in for the Redis store when Redis is disabled; counts are per process.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*bucket
	now      func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates an empty limiter set.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*bucket),
		now:      time.Now,
	}
}

// Allow takes one token from the key's bucket. The bucket holds limit tokens
// and refills at limit per window.
func (r *RateLimiter) Allow(_ context.Context, key string, limit int64, window time.Duration) (*ports.RateLimitResult, error) {
	now := r.now()
	if limit <= 0 || window <= 0 {
		return &ports.RateLimitResult{Limit: limit, ResetAt: now.Add(window).Unix()}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.limiters[key]
	if !ok {
		if len(r.limiters) >= maxIdleLimiters {
			r.sweepLocked(now, window)
		}
		b = &bucket{limiter: rate.NewLimiter(rate.Every(window/time.Duration(limit)), int(limit))}
		r.limiters[key] = b
	}
	b.lastSeen = now

	allowed := b.limiter.AllowN(now, 1)
	remaining := int64(b.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return &ports.RateLimitResult{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   now.Add(window).Unix(),
	}, nil
}

func (r *RateLimiter) sweepLocked(now time.Time, window time.Duration) {
	for k, b := range r.limiters {
		if now.Sub(b.lastSeen) > window {
			delete(r.limiters, k)
		}
	}
}
