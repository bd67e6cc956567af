package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"middleware-gateway/internal/ratelimit/domain"
	"middleware-gateway/internal/ratelimit/infra"

	"github.com/redis/go-redis/v9"
)

// RedisGatewayService implements domain.GatewayLimiter against three
// shared, Redis-backed sliding-window scopes. It is the backend NewRedis
// selects when a shared rate-limit store is configured, letting every
// gateway instance behind the same Redis enforce one combined limit
// instead of N independent in-process ones.
//
// A Redis failure never rejects a request: the scope being checked is
// skipped (treated as admitting) and the failure is logged, per the
// fail-open contract shared backends must honor.
type RedisGatewayService struct {
	mu sync.RWMutex

	global    *infra.RedisStore
	perIP     *infra.RedisStore
	endpoints map[string]*infra.RedisStore

	rdb    *redis.Client
	prefix string
	logger *slog.Logger

	stats domain.StatsStore
}

// NewRedisGatewayService creates an empty multi-scope Redis limiter. No
// scope is enforced until SetGlobalLimit / SetPerIPLimit / SetEndpointLimit
// is called. prefix namespaces the Redis keys (e.g. "ratelimit"); logger
// receives warnings on fail-open events, defaulting to slog.Default().
func NewRedisGatewayService(rdb *redis.Client, prefix string, logger *slog.Logger) *RedisGatewayService {
	if prefix == "" {
		prefix = "ratelimit"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisGatewayService{
		rdb:       rdb,
		prefix:    prefix,
		logger:    logger,
		endpoints: make(map[string]*infra.RedisStore),
	}
}

// SetStats installs a StatsStore that every AllowRequest decision is
// recorded to, fire-and-forget.
func (s *RedisGatewayService) SetStats(store domain.StatsStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = store
}

// SetGlobalLimit installs the single global scope.
func (s *RedisGatewayService) SetGlobalLimit(requests, windowSec int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.global = infra.NewRedisStore(s.rdb, requests, windowSec, s.prefix+":global")
}

// SetPerIPLimit installs the per-IP scope.
func (s *RedisGatewayService) SetPerIPLimit(requests, windowSec int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perIP = infra.NewRedisStore(s.rdb, requests, windowSec, s.prefix+":per_ip")
}

// SetEndpointLimit installs (or replaces) the scope for one endpoint
// pattern.
func (s *RedisGatewayService) SetEndpointLimit(pattern string, requests, windowSec int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoints[pattern] = infra.NewRedisStore(s.rdb, requests, windowSec, s.prefix+":endpoint:"+pattern)
}

type redisScopeCheck struct {
	scope domain.Scope
	store *infra.RedisStore
	key   string
}

// AllowRequest implements domain.GatewayLimiter. Every configured scope is
// peeked (evicted and counted, not consumed) in the fixed global/per-IP/
// per-endpoint order; only if every peeked scope has room is the request
// committed to all of them, so a rejection in one scope never consumes
// tokens from another.
func (s *RedisGatewayService) AllowRequest(ctx context.Context, ip, endpoint string, cost int) domain.Decision {
	if cost <= 0 {
		cost = 1
	}
	now := time.Now()

	s.mu.RLock()
	global, perIP := s.global, s.perIP
	endpointStore := s.endpoints[endpoint]
	stats := s.stats
	s.mu.RUnlock()

	var checks []redisScopeCheck
	if global != nil {
		checks = append(checks, redisScopeCheck{domain.ScopeGlobal, global, "global"})
	}
	if perIP != nil {
		checks = append(checks, redisScopeCheck{domain.ScopePerIP, perIP, ip})
	}
	if endpointStore != nil {
		checks = append(checks, redisScopeCheck{domain.ScopeEndpoint, endpointStore, ip})
	}

	var rejected *domain.Scope
	var retryAfterSec int

	for _, c := range checks {
		count, err := c.store.Peek(ctx, c.key)
		if err != nil {
			s.logger.Warn("redis rate limiter unreachable, failing open",
				"scope", c.scope, "error", err)
			continue
		}
		if count+int64(cost) > int64(c.store.Limit()) {
			scope := c.scope
			rejected = &scope
			retryAfterSec = c.store.RetryAfterSec()
			break
		}
	}

	var decision domain.Decision
	if rejected != nil {
		decision = domain.Decision{Allowed: false, RetryAfterSec: retryAfterSec, Scope: *rejected}
	} else {
		decision = domain.Decision{Allowed: true}
		for _, c := range checks {
			if err := c.store.Commit(ctx, c.key, cost); err != nil {
				s.logger.Warn("redis rate limiter commit failed, request already admitted",
					"scope", c.scope, "error", err)
			}
		}
	}

	if stats != nil {
		go stats.Record(context.WithoutCancel(ctx), domain.StatsEvent{
			Key:     domain.Key(ip),
			Allowed: decision.Allowed,
			Scope:   decision.Scope,
			Path:    endpoint,
			At:      now,
		})
	}

	return decision
}

// Remaining reports the minimum tokens available across configured
// scopes, failing open (reporting full capacity) on a Redis error.
func (s *RedisGatewayService) Remaining(ctx context.Context, ip, endpoint string) int {
	s.mu.RLock()
	global, perIP := s.global, s.perIP
	endpointStore := s.endpoints[endpoint]
	s.mu.RUnlock()

	min := -1
	consider := func(store *infra.RedisStore, key string) {
		if store == nil {
			return
		}
		v := store.Remaining(ctx, key)
		if min == -1 || v < min {
			min = v
		}
	}
	consider(global, "global")
	consider(perIP, ip)
	consider(endpointStore, ip)

	if min == -1 {
		return 0
	}
	return min
}

// ResetKey deletes the per-IP sorted set for ip.
func (s *RedisGatewayService) ResetKey(ip string) {
	s.mu.RLock()
	perIP := s.perIP
	s.mu.RUnlock()
	if perIP == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := perIP.Reset(ctx, ip); err != nil {
		s.logger.Warn("redis rate limiter reset failed", "ip", ip, "error", err)
	}
}
