package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "progress:42", ProgressKey(42))
	assert.Equal(t, "idem:42:7", IdempotencyKey("42:7"))
	assert.Equal(t, "ratelimit:42:login", RateLimitKey("42", "login"))
}

func TestConfig_Options(t *testing.T) {
	cfg := DefaultConfig()
	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, cfg.PoolSize, opts.PoolSize)

	cfg.URL = "redis://:secret@cache.internal:6380/2"
	opts, err = cfg.Options()
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)

	cfg.URL = "http://nope"
	_, err = cfg.Options()
	assert.ErrorIs(t, err, ErrCacheConnection)
}

func TestDefaultTTLs(t *testing.T) {
	assert.Equal(t, TTLProgressCache, NewProgressCache(nil, 0).ttl)
	assert.Equal(t, 24*time.Hour, NewIdempotencyStore(nil, 0).ttl)
	assert.Equal(t, TTLRateLimitWindow, NewRateLimiter(nil, 5, 0).window)
}
