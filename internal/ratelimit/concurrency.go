package ratelimit

import (
	"net/http"
	"time"

	"middleware-gateway/internal/metrics"
	"middleware-gateway/internal/ratelimit/application"
	"middleware-gateway/internal/ratelimit/infra"
)

// ConcurrencyOptions configures the server-wide connection gate that
// enforces server.max_connections ahead of every other gateway subsystem.
type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	// Metrics, when set, receives the gate's occupancy on every request and
	// a counter bump on every timeout-driven rejection.
	Metrics metrics.Sink
}

// ConcurrencyMiddleware wraps next in the connection gate described by
// opts. A Max <= 0 disables the gate entirely.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}

	gate := infra.NewConnectionGate(opts.Max)
	svc := application.ConcurrencyService{
		Gate:           gate,
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := svc.Acquire(r.Context())
			if !ok {
				if opts.Metrics != nil {
					opts.Metrics.ObserveConcurrencyRejected()
				}
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}
			if opts.Metrics != nil {
				opts.Metrics.SetConcurrencyInFlight(gate.InFlight(), gate.Capacity())
				defer func() {
					opts.Metrics.SetConcurrencyInFlight(gate.InFlight(), gate.Capacity())
				}()
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
