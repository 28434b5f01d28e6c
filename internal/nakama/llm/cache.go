package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache stores completed responses by content key. Entries are immutable
// once written.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// ── In-process cache ─────────────────────────────────────────────────────────

// RistrettoConfig sizes the in-process cache.
type RistrettoConfig struct {
	// MaxCost is the total byte budget. Default: 64 MiB.
	MaxCost int64
	// TTL expires entries. Zero keeps them until evicted.
	TTL time.Duration
}

// RistrettoCache is an in-process Cache backed by dgraph-io/ristretto.
type RistrettoCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewRistrettoCache creates an in-process cache.
func NewRistrettoCache(cfg RistrettoConfig) (*RistrettoCache, error) {
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = 64 << 20
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     cfg.MaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: create ristretto cache: %w", err)
	}
	return &RistrettoCache{cache: c, ttl: cfg.TTL}, nil
}

// Get implements Cache.
func (r *RistrettoCache) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := r.cache.Get(key)
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	return s, ok, nil
}

// Set implements Cache. Writes are buffered; Wait flushes them.
func (r *RistrettoCache) Set(_ context.Context, key, value string) error {
	r.cache.SetWithTTL(key, value, int64(len(key)+len(value)), r.ttl)
	return nil
}

// Wait blocks until buffered writes are applied.
func (r *RistrettoCache) Wait() { r.cache.Wait() }

// Close releases the cache's background goroutines.
func (r *RistrettoCache) Close() { r.cache.Close() }

// ── Redis cache ──────────────────────────────────────────────────────────────

// RedisCache is a Cache shared across processes through Redis. Keys are
// stored as "<prefix>:<key>".
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisCacheConfig configures a RedisCache.
type RedisCacheConfig struct {
	// Prefix namespaces keys. Default: "nakama:llm".
	Prefix string
	// TTL expires entries. Default: 24h.
	TTL time.Duration
}

// NewRedisCache wraps an existing go-redis client.
func NewRedisCache(client redis.UniversalClient, cfg RedisCacheConfig) *RedisCache {
	if cfg.Prefix == "" {
		cfg.Prefix = "nakama:llm"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &RedisCache{client: client, prefix: cfg.Prefix, ttl: cfg.TTL}
}

// Get implements Cache.
func (r *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.prefix+":"+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("llm: redis get: %w", err)
	}
	return v, true, nil
}

// Set implements Cache. Existing entries are left untouched.
func (r *RedisCache) Set(ctx context.Context, key, value string) error {
	if err := r.client.SetNX(ctx, r.prefix+":"+key, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("llm: redis set: %w", err)
	}
	return nil
}

// ── Read-through client ──────────────────────────────────────────────────────

// CachedClient is a read-through Client: identical requests within one
// namespace are answered from the cache, and concurrent identical misses
// share a single upstream call.
type CachedClient struct {
	inner     Client
	cache     Cache
	namespace string
	logger    *slog.Logger
	group     singleflight.Group
}

// NewCachedClient wraps inner. The namespace keeps uses with identical
// prompts (decision vs. response) apart. A nil cache disables caching but
// keeps request collapsing.
func NewCachedClient(inner Client, cache Cache, namespace string, logger *slog.Logger) *CachedClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedClient{inner: inner, cache: cache, namespace: namespace, logger: logger}
}

// CacheKey returns the content hash of req within namespace.
func CacheKey(namespace string, req Request) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("llm: marshal cache key: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(namespace))
	h.Write([]byte{0})
	h.Write(data)
	return namespace + ":" + hex.EncodeToString(h.Sum(nil)), nil
}

// Complete implements Client. Cache read and write failures are logged and
// fall through to the upstream client.
func (c *CachedClient) Complete(ctx context.Context, req Request) (string, error) {
	key, err := CacheKey(c.namespace, req)
	if err != nil {
		return c.inner.Complete(ctx, req)
	}

	if c.cache != nil {
		v, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.logger.Warn("llm cache: get failed", "namespace", c.namespace, "err", err)
		} else if ok {
			c.logger.Debug("llm cache: hit", "namespace", c.namespace)
			return v, nil
		}
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		out, err := c.inner.Complete(ctx, req)
		if err != nil {
			return "", err
		}
		if c.cache != nil {
			if err := c.cache.Set(ctx, key, out); err != nil {
				c.logger.Warn("llm cache: set failed", "namespace", c.namespace, "err", err)
			}
		}
		return out, nil
	})
	if err != nil {
		return "", err
	}
	c.logger.Debug("llm cache: miss", "namespace", c.namespace, "shared", shared)
	return v.(string), nil
}

// Compile-time interface satisfaction checks.
var (
	_ Cache  = (*RistrettoCache)(nil)
	_ Cache  = (*RedisCache)(nil)
	_ Client = (*CachedClient)(nil)
)
