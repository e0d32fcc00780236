package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResponseCache avoids repeat AI calls for identical extraction
// requests (the same URL content re-crawled unchanged, or the same
// raw value normalized twice). Keyed by a content hash rather than
// the URL, so a changed page naturally misses.
type ResponseCache struct {
	memory *memoryCache
	redis  *redisCache
}

// NewMemoryResponseCache backs the cache with an in-process map, used
// when config.AIConfig.CacheBackend is "memory" or when Redis is
// disabled.
func NewMemoryResponseCache() *ResponseCache {
	return &ResponseCache{memory: &memoryCache{entries: make(map[string]string)}}
}

// NewRedisResponseCache backs the cache with a shared Redis instance,
// used when config.AIConfig.CacheBackend is "redis" and
// config.RedisConfig.Enabled.
func NewRedisResponseCache(client *redis.Client, ttl time.Duration) *ResponseCache {
	return &ResponseCache{redis: &redisCache{client: client, ttl: ttl}}
}

// ExtractKey hashes an ExtractRequest's content-relevant fields into a
// stable cache key.
func ExtractKey(req ExtractRequest) string {
	fieldJSON, _ := json.Marshal(req.Fields)
	return hashParts("extract", req.URL, req.Markdown, req.Prompt, string(fieldJSON))
}

// NormalizeKey hashes a NormalizeRequest into a stable cache key.
func NormalizeKey(req NormalizeRequest) string {
	return hashParts("normalize", req.FieldName, req.RawValue)
}

func hashParts(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// GetExtract returns a cached ExtractResult, if any.
func (c *ResponseCache) GetExtract(ctx context.Context, key string) (ExtractResult, bool) {
	raw, ok := c.get(ctx, key)
	if !ok {
		return ExtractResult{}, false
	}
	var result ExtractResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return ExtractResult{}, false
	}
	return result, true
}

// PutExtract stores an ExtractResult under key.
func (c *ResponseCache) PutExtract(ctx context.Context, key string, result ExtractResult) {
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	c.put(ctx, key, string(raw))
}

// GetNormalize returns a cached NormalizeResult, if any.
func (c *ResponseCache) GetNormalize(ctx context.Context, key string) (NormalizeResult, bool) {
	raw, ok := c.get(ctx, key)
	if !ok {
		return NormalizeResult{}, false
	}
	var result NormalizeResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return NormalizeResult{}, false
	}
	return result, true
}

// PutNormalize stores a NormalizeResult under key.
func (c *ResponseCache) PutNormalize(ctx context.Context, key string, result NormalizeResult) {
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	c.put(ctx, key, string(raw))
}

func (c *ResponseCache) get(ctx context.Context, key string) (string, bool) {
	if c.redis != nil {
		return c.redis.get(ctx, key)
	}
	return c.memory.get(key)
}

func (c *ResponseCache) put(ctx context.Context, key, value string) {
	if c.redis != nil {
		c.redis.put(ctx, key, value)
		return
	}
	c.memory.put(key, value)
}

// Close releases the cache's resources, a no-op for the in-memory
// backend.
func (c *ResponseCache) Close() error {
	if c.redis != nil {
		return c.redis.client.Close()
	}
	return nil
}

type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]string
}

func (m *memoryCache) get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	return v, ok
}

func (m *memoryCache) put(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
}

type redisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func (r *redisCache) get(ctx context.Context, key string) (string, bool) {
	v, err := r.client.Get(ctx, "jobpipe:ai:"+key).Result()
	if err != nil {
		return "", false
	}
	return v, true
}

func (r *redisCache) put(ctx context.Context, key, value string) {
	r.client.Set(ctx, "jobpipe:ai:"+key, value, r.ttl)
}
