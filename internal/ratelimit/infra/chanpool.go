package infra

import (
	"context"
	"sync/atomic"

	"middleware-gateway/internal/ratelimit/domain"
)

// connectionGate is a channel-based semaphore sized to server.max_connections,
// with an atomic occupancy counter so the admin/metrics surface can report
// how much of the cap is in use without draining the channel to find out.
type connectionGate struct {
	sem      chan struct{}
	capacity int
	inFlight int64
}

// NewConnectionGate creates a ConnectionGate admitting at most max requests
// at once.
func NewConnectionGate(max int) domain.ConnectionGate {
	return &connectionGate{sem: make(chan struct{}, max), capacity: max}
}

func (g *connectionGate) Acquire(ctx context.Context) (func(), bool) {
	select {
	case g.sem <- struct{}{}:
		atomic.AddInt64(&g.inFlight, 1)
		return func() {
			atomic.AddInt64(&g.inFlight, -1)
			<-g.sem
		}, true
	case <-ctx.Done():
		return nil, false
	}
}

func (g *connectionGate) InFlight() int { return int(atomic.LoadInt64(&g.inFlight)) }

func (g *connectionGate) Capacity() int { return g.capacity }
