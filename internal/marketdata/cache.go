package marketdata

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// Cache stores encoded snapshots
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
}

type memoryCache struct {
	mu sync.Mutex
	m  map[string]entry
}

type entry struct {
	b   []byte
	exp time.Time
}

// NewMemoryCache creates a process-local cache
func NewMemoryCache() Cache { return &memoryCache{m: make(map[string]entry)} }

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok || (!e.exp.IsZero() && time.Now().After(e.exp)) {
		return nil, false
	}
	return e.b, true
}

func (c *memoryCache) Set(_ context.Context, key string, val []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := entry{b: append([]byte(nil), val...)}
	if ttl > 0 {
		e.exp = time.Now().Add(ttl)
	}
	c.m[key] = e
}

// RedisCache stores snapshots in Redis
type RedisCache struct {
	client  redis.Cmdable
	timeout time.Duration
	prefix  string
}

// NewRedisCache wraps a redis client
func NewRedisCache(client redis.Cmdable, prefix string) *RedisCache {
	return &RedisCache{client: client, timeout: 500 * time.Millisecond, prefix: prefix}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	v, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Debug().Err(err).Str("key", key).Msg("Redis get failed")
		}
		return nil, false
	}
	return v, true
}

func (r *RedisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.client.Set(ctx, r.prefix+key, val, ttl).Err(); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Redis set failed")
	}
}

// CacheConfig selects the snapshot cache backend
type CacheConfig struct {
	DefaultTTL time.Duration `yaml:"default_ttl"`
	Redis      struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
}

// NewCache picks Redis when an address is configured, memory otherwise
func NewCache(cfg CacheConfig) Cache {
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		prefix := cfg.Redis.Prefix
		if prefix == "" {
			prefix = "fisr:"
		}
		return NewRedisCache(client, prefix)
	}
	return NewMemoryCache()
}

// CachedSource serves repeated requests from a cache for ttl
type CachedSource struct {
	next  Source
	cache Cache
	ttl   time.Duration
}

// NewCachedSource decorates next with a snapshot cache
func NewCachedSource(next Source, cache Cache, ttl time.Duration) *CachedSource {
	return &CachedSource{next: next, cache: cache, ttl: ttl}
}

func (c *CachedSource) Name() string { return c.next.Name() }

// Unwrap returns the decorated source
func (c *CachedSource) Unwrap() Source { return c.next }

// Fetch returns a cached snapshot when present; failures and empty snapshots are not cached
func (c *CachedSource) Fetch(ctx context.Context, req Request) (Snapshot, error) {
	key := req.Key()
	if b, ok := c.cache.Get(ctx, key); ok {
		var snap Snapshot
		if err := json.Unmarshal(b, &snap); err == nil {
			return snap, nil
		}
	}

	snap, err := c.next.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(snap) > 0 && c.ttl > 0 {
		if b, err := json.Marshal(snap); err == nil {
			c.cache.Set(ctx, key, b, c.ttl)
		}
	}
	return snap, nil
}
