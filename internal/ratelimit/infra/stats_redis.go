package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"middleware-gateway/internal/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore records rate-limit decisions into Redis hashes so every
// gateway instance behind a shared rate limiter contributes to the same
// counters, queryable through the admin surface.
type RedisStatsStore struct {
	rdb *redis.Client

	prefix string
	// ttl applies only to time-bucketed and per-key entries; the total
	// counter is cumulative and never expires.
	ttl time.Duration

	bucket string // "minute" (default) or "none"

	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	totalKey := s.prefix + ":total"

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, totalKey, field, 1)

	if s.bucket == "minute" {
		bucketKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	if ev.Method != "" || ev.Path != "" {
		routeKey := s.prefix + ":route"
		routeField := strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Path)
		routeField = strings.TrimSpace(routeField)
		if routeField != "" {
			pipe.HIncrBy(ctx, routeKey, routeField+":"+field, 1)
		}
	}

	if s.trackKeys {
		k := strings.TrimSpace(string(ev.Key))
		if k != "" {
			keyKey := s.prefix + ":key:" + k
			pipe.HIncrBy(ctx, keyKey, field, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, keyKey, s.ttl)
			}
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Total implements domain.StatsReader, reading the cumulative allowed/
// denied counters back from the ":total" hash.
func (s *RedisStatsStore) Total(ctx context.Context) (domain.Counters, error) {
	vals, err := s.rdb.HGetAll(ctx, s.prefix+":total").Result()
	if err != nil {
		return domain.Counters{}, err
	}
	return countersFromHash(vals), nil
}

// ByRoute implements domain.StatsReader, splitting the ":route" hash's
// "METHOD path:allowed"/"METHOD path:denied" fields back into a
// per-route Counters map.
func (s *RedisStatsStore) ByRoute(ctx context.Context) (map[string]domain.Counters, error) {
	vals, err := s.rdb.HGetAll(ctx, s.prefix+":route").Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Counters, len(vals))
	for field, raw := range vals {
		sep := strings.LastIndex(field, ":")
		if sep < 0 {
			continue
		}
		route, kind := field[:sep], field[sep+1:]
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		c := out[route]
		switch kind {
		case "allowed":
			c.Allowed = n
		case "denied":
			c.Denied = n
		default:
			continue
		}
		out[route] = c
	}
	return out, nil
}

func countersFromHash(vals map[string]string) domain.Counters {
	var c domain.Counters
	if v, err := strconv.ParseInt(vals["allowed"], 10, 64); err == nil {
		c.Allowed = v
	}
	if v, err := strconv.ParseInt(vals["denied"], 10, 64); err == nil {
		c.Denied = v
	}
	return c
}
