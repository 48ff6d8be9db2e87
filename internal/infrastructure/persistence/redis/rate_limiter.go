package redis

import (
	"context"
	"time"
)

// RateLimiter counts attempts in fixed windows with Cache.Count.
type RateLimiter struct {
	cache  *Cache
	limit  int64
	window time.Duration
}

// NewRateLimiter allows limit attempts per window. window <= 0 - TTLRateLimitWindow.
func NewRateLimiter(cache *Cache, limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = TTLRateLimitWindow
	}
	return &RateLimiter{cache: cache, limit: int64(limit), window: window}
}

// Allow registers an attempt of action by identifier and reports whether it fits the window.
func (r *RateLimiter) Allow(ctx context.Context, identifier, action string) (bool, error) {
	n, err := r.cache.Count(ctx, RateLimitKey(identifier, action), r.window)
	if err != nil {
		return false, err
	}
	return n <= r.limit, nil
}
