package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "gateway:cache:"
	scanPageSize   = 200
)

// RedisCache is a shared cache backend using simple SETEX/GET/DEL, and
// SCAN with a bounded page size for pattern invalidation so a single
// call never blocks the server for long.
type RedisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedis wraps an existing go-redis client.
func NewRedis(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb, prefix: redisKeyPrefix}
}

type wireEntry struct {
	Body        []byte    `json:"body"`
	ContentType string    `json:"content_type"`
	StatusCode  int       `json:"status_code"`
	CachedAt    time.Time `json:"cached_at"`
}

func (c *RedisCache) Get(key string) (Response, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	raw, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		return Response{}, false
	}
	var w wireEntry
	if err := json.Unmarshal(raw, &w); err != nil {
		return Response{}, false
	}
	return Response{Body: w.Body, ContentType: w.ContentType, StatusCode: w.StatusCode, CachedAt: w.CachedAt}, true
}

func (c *RedisCache) Set(key string, resp Response, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	w := wireEntry{Body: resp.Body, ContentType: resp.ContentType, StatusCode: resp.StatusCode, CachedAt: resp.CachedAt}
	data, err := json.Marshal(w)
	if err != nil {
		return
	}
	// A write error here is a cache-write failure the specification
	// treats as log-and-discard; the caller has no fallback path.
	c.rdb.Set(ctx, c.prefix+key, data, ttl)
}

func (c *RedisCache) Invalidate(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	c.rdb.Del(ctx, c.prefix+key)
}

// InvalidatePattern scans for prefix.glob-matching keys using bounded
// SCAN pages and deletes them.
func (c *RedisCache) InvalidatePattern(glob string) int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	redisPattern := c.prefix + glob

	var cursor uint64
	deleted := 0
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, redisPattern, scanPageSize).Result()
		if err != nil {
			return deleted
		}
		if len(keys) > 0 {
			if n, err := c.rdb.Del(ctx, keys...).Result(); err == nil {
				deleted += int(n)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return deleted
}

func (c *RedisCache) Stats() (keys int, approxBytes int64) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var cursor uint64
	for {
		batch, next, err := c.rdb.Scan(ctx, cursor, c.prefix+"*", scanPageSize).Result()
		if err != nil {
			return keys, approxBytes
		}
		keys += len(batch)
		for _, k := range batch {
			if n, err := c.rdb.MemoryUsage(ctx, k).Result(); err == nil {
				approxBytes += n
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, approxBytes
}
