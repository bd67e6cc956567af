package application

import (
	"context"
	"time"

	"middleware-gateway/internal/ratelimit/domain"
)

// ConcurrencyService holds the acquire/release-with-timeout rule that
// enforces server.max_connections, with no knowledge of HTTP or metrics —
// the caller decides what a rejection means for a request and how it gets
// observed.
type ConcurrencyService struct {
	Gate           domain.ConnectionGate
	AcquireTimeout time.Duration
}

// Acquire tries to admit one more request past the gate.
//   - If AcquireTimeout <= 0, it waits indefinitely (until ctx is done).
//   - If AcquireTimeout > 0, it waits up to that timeout.
//
// Returns (release, ok). If ok is false, no slot was acquired.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), bool) {
	if s.Gate == nil {
		return func() {}, true
	}

	if s.AcquireTimeout <= 0 {
		return s.Gate.Acquire(ctx)
	}

	acqCtx, cancel := context.WithTimeout(ctx, s.AcquireTimeout)
	defer cancel()
	return s.Gate.Acquire(acqCtx)
}
