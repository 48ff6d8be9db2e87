package redis

import (
	"context"
	"errors"
	"time"

	"github.com/teens-space/progress-hub/internal/domain/ledger"
	"github.com/teens-space/progress-hub/internal/domain/shared"
)

// ProgressCache keeps encoded ledger states for GET /api/sync/progress.
// Writers invalidate the entry; readers repopulate it.
type ProgressCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewProgressCache creates a ProgressCache. ttl <= 0 - TTLProgressCache.
func NewProgressCache(cache *Cache, ttl time.Duration) *ProgressCache {
	if ttl <= 0 {
		ttl = TTLProgressCache
	}
	return &ProgressCache{cache: cache, ttl: ttl}
}

// Get returns the cached state or ErrCacheMiss.
// A blob that fails to decode is dropped and reported as a miss.
func (p *ProgressCache) Get(ctx context.Context, id shared.TelegramID) (*ledger.State, error) {
	key := ProgressKey(id.Int64())
	raw, err := p.cache.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}

	s, err := ledger.Decode([]byte(raw))
	if err != nil {
		_ = p.cache.Delete(ctx, key)
		return nil, ErrCacheMiss
	}
	return s, nil
}

// Set stores s under its learner key.
func (p *ProgressCache) Set(ctx context.Context, s *ledger.State) error {
	if s == nil {
		return ErrCacheNilValue
	}
	data, err := ledger.Encode(s)
	if err != nil {
		return errors.Join(ErrCacheSerialization, err)
	}
	return p.cache.Put(ctx, ProgressKey(s.TelegramID.Int64()), string(data), p.ttl)
}

// Invalidate removes the cached state of id.
func (p *ProgressCache) Invalidate(ctx context.Context, id shared.TelegramID) error {
	return p.cache.Delete(ctx, ProgressKey(id.Int64()))
}
