package catalog

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// FetchFunc loads a fresh catalog index.
type FetchFunc func(ctx context.Context) (Index, error)

// Cache returns a cached index for key, calling fetch when the entry is
// missing or older than ttl.
type Cache interface {
	GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc) (Index, error)
}

// MemoryCache keeps indexes in process memory.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	Now     func() time.Time
}

type memoryEntry struct {
	index    Index
	storedAt time.Time
}

// NewMemoryCache constructs an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[string]memoryEntry{}}
}

// GetOrFetch implements Cache. Fetch errors are not cached.
func (c *MemoryCache) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc) (Index, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = map[string]memoryEntry{}
	}
	now := c.now()
	if e, ok := c.entries[key]; ok && (ttl <= 0 || now.Sub(e.storedAt) < ttl) {
		return e.index, nil
	}
	idx, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.entries[key] = memoryEntry{index: idx, storedAt: now}
	return idx, nil
}

func (c *MemoryCache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// RedisCache stores indexes as JSON in Redis so every API replica shares one
// copy of the export.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache constructs a Redis-backed cache.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

// GetOrFetch implements Cache. Redis read failures fall through to fetch.
func (c *RedisCache) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc) (Index, error) {
	var idx Index
	if ok, err := c.getJSON(ctx, key, &idx); err == nil && ok {
		return idx, nil
	}
	idx, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	_ = c.setJSON(ctx, key, idx, ttl)
	return idx, nil
}

func (c *RedisCache) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil || c.client == nil || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisCache) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if c == nil || c.client == nil || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, data, ttl).Err()
}
