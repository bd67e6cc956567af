package application

import (
	"context"
	"sync"
	"time"

	"middleware-gateway/internal/ratelimit/domain"
	"middleware-gateway/internal/ratelimit/infra"
)

// GatewayService implements domain.GatewayLimiter against three in-process
// scopes (global, per-IP, per-endpoint), each backed by its own
// infra.Store. Admission is checked in a fixed order — global, per-IP,
// per-endpoint — using x/time/rate's Reserve/Cancel primitives: each scope
// tentatively reserves a token, and if any later scope rejects, every
// reservation made so far is cancelled, so no scope's tokens are consumed
// on an overall rejection.
type GatewayService struct {
	mu sync.RWMutex

	global *infra.Store

	perIP *infra.Store

	// endpoints maps an exact endpoint pattern to its dedicated Store. Keys
	// within that Store are client IPs, so the ("IP:pattern") composite key
	// from the spec is implicit in "which Store" rather than encoded in the
	// map key itself.
	endpoints map[string]*infra.Store

	cleanupEvery time.Duration
	idleTTL      time.Duration

	stats domain.StatsStore
}

// NewGatewayService creates an empty multi-scope limiter. No scope is
// enforced until SetGlobalLimit / SetPerIPLimit / SetEndpointLimit is
// called.
func NewGatewayService(cleanupEvery, idleTTL time.Duration) *GatewayService {
	return &GatewayService{
		endpoints:    make(map[string]*infra.Store),
		cleanupEvery: cleanupEvery,
		idleTTL:      idleTTL,
	}
}

// SetStats installs a StatsStore that every AllowRequest decision is
// recorded to, fire-and-forget. A nil store (the default) disables
// recording entirely.
func (s *GatewayService) SetStats(store domain.StatsStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = store
}

func (s *GatewayService) newStore(requests, windowSec int) *infra.Store {
	return infra.NewStore(requests, windowSec,
		infra.WithCleanupEvery(s.cleanupEvery),
		infra.WithIdleTTL(s.idleTTL),
	)
}

// SetGlobalLimit installs the single global bucket. Not intended to be
// called concurrently with live traffic.
func (s *GatewayService) SetGlobalLimit(requests, windowSec int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.global = s.newStore(requests, windowSec)
}

// SetPerIPLimit installs the per-IP scope.
func (s *GatewayService) SetPerIPLimit(requests, windowSec int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perIP = s.newStore(requests, windowSec)
}

// SetEndpointLimit installs (or replaces) the scope for one endpoint
// pattern, matched by exact string equality against the endpoint argument
// passed to AllowRequest.
func (s *GatewayService) SetEndpointLimit(pattern string, requests, windowSec int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.endpoints[pattern] = s.newStore(requests, windowSec)
}

type reservation struct {
	scope domain.Scope
	store *infra.Store
	r     rateReservation
}

// rateReservation is the minimal surface of *rate.Reservation this package
// needs, kept as an interface so tests can substitute a fake.
type rateReservation interface {
	OK() bool
	DelayFrom(now time.Time) time.Duration
	CancelAt(now time.Time)
}

// AllowRequest implements domain.GatewayLimiter.
func (s *GatewayService) AllowRequest(ctx context.Context, ip, endpoint string, cost int) domain.Decision {
	if cost <= 0 {
		cost = 1
	}
	now := time.Now()

	s.mu.RLock()
	global, perIP := s.global, s.perIP
	endpointStore := s.endpoints[endpoint]
	stats := s.stats
	s.mu.RUnlock()

	var held []reservation
	var rejected *domain.Scope
	var retryAfterSec int

	check := func(scope domain.Scope, store *infra.Store) bool {
		if store == nil {
			return true
		}
		lim := store.GetString(scopeKey(scope, ip))
		res := lim.ReserveN(now, cost)
		if !res.OK() || res.DelayFrom(now) > 0 {
			if res.OK() {
				res.CancelAt(now)
			}
			s := scope
			rejected = &s
			retryAfterSec = store.RetryAfterSec()
			return false
		}
		held = append(held, reservation{scope: scope, store: store, r: res})
		return true
	}

	if check(domain.ScopeGlobal, global) {
		if check(domain.ScopePerIP, perIP) {
			check(domain.ScopeEndpoint, endpointStore)
		}
	}

	var decision domain.Decision
	if rejected != nil {
		for _, h := range held {
			h.r.CancelAt(now)
		}
		decision = domain.Decision{Allowed: false, RetryAfterSec: retryAfterSec, Scope: *rejected}
	} else {
		decision = domain.Decision{Allowed: true}
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

// scopeKey builds the map key used within a scope's Store. The global
// scope has exactly one key; per-IP and per-endpoint scopes are keyed by
// client IP (the endpoint scope's Store is already dedicated to one
// pattern, so IP alone disambiguates within it).
func scopeKey(scope domain.Scope, ip string) string {
	if scope == domain.ScopeGlobal {
		return "global"
	}
	return ip
}

// Remaining reports the minimum tokens available across configured
// scopes.
func (s *GatewayService) Remaining(_ context.Context, ip, endpoint string) int {
	s.mu.RLock()
	global, perIP := s.global, s.perIP
	endpointStore := s.endpoints[endpoint]
	s.mu.RUnlock()

	min := -1
	consider := func(store *infra.Store, key string) {
		if store == nil {
			return
		}
		v := store.Remaining(key)
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

// ResetKey removes the per-IP bucket for ip; the next request recreates it
// at full capacity.
func (s *GatewayService) ResetKey(ip string) {
	s.mu.RLock()
	perIP := s.perIP
	s.mu.RUnlock()
	if perIP != nil {
		perIP.Reset(ip)
	}
}

// StartJanitor starts the background eviction goroutine for every
// configured scope.
func (s *GatewayService) StartJanitor(ctx infra.DoneContext) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.global != nil {
		s.global.StartJanitor(ctx)
	}
	if s.perIP != nil {
		s.perIP.StartJanitor(ctx)
	}
	for _, store := range s.endpoints {
		store.StartJanitor(ctx)
	}
}
