// Package redis implements the Redis-backed parts of the progress hub.
//
// Key components:
//   - Cache: string-valued client shared by the components below
//   - ProgressCache: cache-aside copies of ledger states
//   - IdempotencyStore: SETNX receipts for sync uploads
//   - RateLimiter: fixed-window counters for login attempts
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config describes how to reach Redis. URL (redis://) overrides Host, Port,
// Password and DB; the pool settings apply in both cases.
type Config struct {
	URL      string
	Host     string
	Port     int
	Password string
	DB       int

	PoolSize     int
	MinIdleConns int
	MaxRetries   int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
}

// DefaultConfig targets a local Redis with a small pool.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	}
}

// Addr returns "host:port".
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Options converts c into go-redis options.
func (c Config) Options() (*redis.Options, error) {
	opts := &redis.Options{Addr: c.Addr(), Password: c.Password, DB: c.DB}
	if c.URL != "" {
		parsed, err := redis.ParseURL(c.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
		}
		opts = parsed
	}
	opts.PoolSize = c.PoolSize
	opts.MinIdleConns = c.MinIdleConns
	opts.MaxRetries = c.MaxRetries
	opts.DialTimeout = c.DialTimeout
	opts.ReadTimeout = c.ReadTimeout
	opts.WriteTimeout = c.WriteTimeout
	opts.PoolTimeout = c.PoolTimeout
	return opts, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS, KEYS, TTLs
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrCacheMiss          = errors.New("cache: key not found")
	ErrCacheConnection    = errors.New("cache: connection failed")
	ErrCacheSerialization = errors.New("cache: serialization failed")
	ErrCacheInvalidTTL    = errors.New("cache: invalid TTL")
	ErrCacheKeyEmpty      = errors.New("cache: key cannot be empty")
	ErrCacheNilValue      = errors.New("cache: value cannot be nil")
)

const (
	PrefixProgress    = "progress:"
	PrefixIdempotency = "idem:"
	PrefixRateLimit   = "ratelimit:"
)

const (
	// TTLProgressCache bounds how stale GET /api/sync/progress may be
	// if an invalidation is lost.
	TTLProgressCache = 5 * time.Minute

	// TTLIdempotencyKey is how long a sync receipt is remembered.
	TTLIdempotencyKey = 24 * time.Hour

	// TTLRateLimitWindow is the default login throttling window.
	TTLRateLimitWindow = time.Minute
)

// ProgressKey is the key of a learner's cached state.
func ProgressKey(telegramID int64) string {
	return fmt.Sprintf("%s%d", PrefixProgress, telegramID)
}

// IdempotencyKey is the key of a sync receipt.
func IdempotencyKey(key string) string {
	return PrefixIdempotency + key
}

// RateLimitKey is the counter key of action performed by identifier.
func RateLimitKey(identifier, action string) string {
	return PrefixRateLimit + identifier + ":" + action
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHE
// ══════════════════════════════════════════════════════════════════════════════

// Cache is a string-valued Redis client. Values are stored as-is; callers
// own their encoding (ledger states use ledger.Encode).
type Cache struct {
	client *redis.Client
}

// NewCache connects and pings Redis within DialTimeout.
func NewCache(cfg Config) (*Cache, error) {
	opts, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrCacheConnection, err)
	}
	return &Cache{client: client}, nil
}

// Close releases the connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Ping is used by the readiness check.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Put stores value under key for ttl (0 keeps it forever).
func (c *Cache) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := checkKey(key, ttl); err != nil {
		return err
	}
	return c.client.Set(ctx, key, value, ttl).Err()
}

// PutNew stores value only when key is absent and reports whether it did.
func (c *Cache) PutNew(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := checkKey(key, ttl); err != nil {
		return false, err
	}
	return c.client.SetNX(ctx, key, value, ttl).Result()
}

// Fetch returns the value under key or ErrCacheMiss.
func (c *Cache) Fetch(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", ErrCacheKeyEmpty
	}
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return val, err
}

// Exists reports whether key is present.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrCacheKeyEmpty
	}
	n, err := c.client.Exists(ctx, key).Result()
	return n > 0, err
}

// Delete removes keys; missing keys are ignored.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Count increments the counter under key. When the counter is new it
// expires after window.
func (c *Cache) Count(ctx context.Context, key string, window time.Duration) (int64, error) {
	if err := checkKey(key, window); err != nil {
		return 0, err
	}
	n, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 && window > 0 {
		if err := c.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, err
		}
	}
	return n, nil
}

func checkKey(key string, ttl time.Duration) error {
	if key == "" {
		return ErrCacheKeyEmpty
	}
	if ttl < 0 {
		return ErrCacheInvalidTTL
	}
	return nil
}
