package infra

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a shared, sliding-window rate-limit scope backed by a
// Redis sorted set per key, where the score is a millisecond timestamp.
// Grounded on original_source's RedisRateLimiter: ZREMRANGEBYSCORE evicts
// entries that fell out of the window, ZCOUNT reports the current count,
// and ZADD plus EXPIRE commit an admitted request. Pipelined rather than
// Lua-scripted, matching the reference implementation's own trade-off
// between atomicity and simplicity.
//
// Peek and Commit are split so a caller checking several scopes (global,
// per-IP, per-endpoint) can decide admission across all of them before
// consuming from any, satisfying the all-or-nothing requirement the
// single-scope check-and-add in the reference implementation does not
// need to.
type RedisStore struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// NewRedisStore creates a RedisStore for one rate-limit scope. requests is
// the sliding-window capacity, windowSec its width in seconds.
func NewRedisStore(rdb *redis.Client, requests, windowSec int, prefix string) *RedisStore {
	return &RedisStore{
		rdb:    rdb,
		limit:  requests,
		window: time.Duration(windowSec) * time.Second,
		prefix: prefix,
	}
}

func (s *RedisStore) fullKey(key string) string {
	return s.prefix + ":" + key
}

// Peek evicts expired entries and reports the count remaining in the
// window, without admitting or consuming anything.
func (s *RedisStore) Peek(ctx context.Context, key string) (int64, error) {
	fullKey := s.fullKey(key)
	now := time.Now().UnixMilli()
	windowStart := now - s.window.Milliseconds()

	pipe := s.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, fullKey, "0", strconv.FormatInt(windowStart, 10))
	countCmd := pipe.ZCount(ctx, fullKey, strconv.FormatInt(windowStart, 10), strconv.FormatInt(now, 10))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return countCmd.Val(), nil
}

// Commit records cost admitted requests at the current timestamp and
// refreshes the key's expiry to window+1s, matching the reference
// implementation's buffer.
func (s *RedisStore) Commit(ctx context.Context, key string, cost int) error {
	if cost <= 0 {
		cost = 1
	}
	fullKey := s.fullKey(key)
	now := time.Now().UnixMilli()
	// The nonce keeps members of commits made in the same millisecond
	// distinct, so ZADD adds an entry for each of them.
	nonce := rand.Int63()

	pipe := s.rdb.Pipeline()
	for i := 0; i < cost; i++ {
		member := fmt.Sprintf("%d-%d-%d", now, nonce, i)
		pipe.ZAdd(ctx, fullKey, redis.Z{Score: float64(now), Member: member})
	}
	pipe.Expire(ctx, fullKey, s.window+time.Second)
	_, err := pipe.Exec(ctx)
	return err
}

// Limit returns the configured window capacity.
func (s *RedisStore) Limit() int { return s.limit }

// RetryAfterSec is ceil(window/limit), the time until the oldest entry in
// a saturated window falls out of range and frees a slot.
func (s *RedisStore) RetryAfterSec() int {
	if s.limit <= 0 {
		if s.window > 0 {
			return int(s.window.Seconds())
		}
		return 1
	}
	return int(math.Ceil(s.window.Seconds() / float64(s.limit)))
}

// Remaining reports the tokens left in the window, failing open (reports
// full capacity) if Redis is unreachable.
func (s *RedisStore) Remaining(ctx context.Context, key string) int {
	count, err := s.Peek(ctx, key)
	if err != nil {
		return s.limit
	}
	remaining := s.limit - int(count)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Reset deletes the sorted set for key; the next request recreates it at
// full capacity.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.fullKey(key)).Err()
}
