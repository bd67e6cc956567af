package cache

import (
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// entry pairs a cached Response with the TTL it was written with, so
// reads can independently re-check freshness the way the specification
// requires (delete-on-stale-read) instead of relying solely on
// ristretto's own bookkeeping.
type entry struct {
	resp Response
	ttl  time.Duration
}

// LocalCache is an in-process cache backed by ristretto for eviction
// under memory pressure, with an explicit key index on top so
// InvalidatePattern and Stats can enumerate keys — capabilities
// ristretto does not expose directly.
type LocalCache struct {
	store *ristretto.Cache[string, entry]

	mu   sync.Mutex
	keys map[string]struct{}
}

// NewLocal creates a LocalCache with a fixed memory budget (bytes).
func NewLocal(maxCostBytes int64) (*LocalCache, error) {
	if maxCostBytes <= 0 {
		maxCostBytes = 64 << 20
	}
	store, err := ristretto.NewCache(&ristretto.Config[string, entry]{
		NumCounters: maxCostBytes / 1024 * 10,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &LocalCache{store: store, keys: make(map[string]struct{})}, nil
}

func (c *LocalCache) Get(key string) (Response, bool) {
	e, ok := c.store.Get(key)
	if !ok {
		return Response{}, false
	}
	if e.ttl > 0 && time.Since(e.resp.CachedAt) > e.ttl {
		c.Invalidate(key)
		return Response{}, false
	}
	return e.resp, true
}

func (c *LocalCache) Set(key string, resp Response, ttl time.Duration) {
	cost := int64(len(resp.Body)) + int64(len(resp.ContentType)) + int64(len(key))
	c.store.SetWithTTL(key, entry{resp: resp, ttl: ttl}, cost, ttl)
	c.store.Wait()

	c.mu.Lock()
	c.keys[key] = struct{}{}
	c.mu.Unlock()
}

func (c *LocalCache) Invalidate(key string) {
	c.store.Del(key)
	c.mu.Lock()
	delete(c.keys, key)
	c.mu.Unlock()
}

func (c *LocalCache) InvalidatePattern(glob string) int {
	c.mu.Lock()
	matched := make([]string, 0)
	for k := range c.keys {
		if matchesGlob(glob, k) {
			matched = append(matched, k)
		}
	}
	c.mu.Unlock()

	for _, k := range matched {
		c.Invalidate(k)
	}
	return len(matched)
}

func (c *LocalCache) Stats() (keys int, approxBytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for k := range c.keys {
		if e, ok := c.store.Get(k); ok {
			total += int64(len(e.resp.Body))
		}
	}
	return len(c.keys), total
}
