package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/teens-space/progress-hub/internal/domain/shared"
)

// IdempotencyStore remembers accepted sync uploads by their Idempotency-Key.
type IdempotencyStore struct {
	cache *Cache
	ttl   time.Duration
}

// NewIdempotencyStore creates an IdempotencyStore. ttl <= 0 - TTLIdempotencyKey.
func NewIdempotencyStore(cache *Cache, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = TTLIdempotencyKey
	}
	return &IdempotencyStore{cache: cache, ttl: ttl}
}

// Seen reports whether key was already remembered.
func (s *IdempotencyStore) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.cache.Exists(ctx, IdempotencyKey(key))
	if err != nil {
		return false, shared.WrapError("redis", "Seen", shared.ErrServiceUnavailable, "idempotency lookup failed", err)
	}
	return ok, nil
}

// Remember stores key with SETNX. The first accepted version wins.
func (s *IdempotencyStore) Remember(ctx context.Context, key string, _ shared.TelegramID, version int64) error {
	if _, err := s.cache.PutNew(ctx, IdempotencyKey(key), strconv.FormatInt(version, 10), s.ttl); err != nil {
		return shared.WrapError("redis", "Remember", shared.ErrServiceUnavailable, "idempotency write failed", err)
	}
	return nil
}
