package healthcheck

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"middleware-gateway/internal/breaker"
	"middleware-gateway/internal/metrics"
	"middleware-gateway/internal/router"
)

func newRegistry(t *testing.T, backend string) *router.Registry {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.json")
	doc := fmt.Sprintf(`{"routes":[{"path":"/api/*","backends":["%s"]}]}`, backend)
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("writing routes file: %v", err)
	}
	reg, err := router.NewRegistry(path, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

func TestChecker_ProbeOnceMarksHealthyBackend(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	reg := newRegistry(t, backend.URL)
	checker := New(reg, breaker.NewRegistry(5, time.Minute), time.Hour, nil)

	checker.probeOnce(context.Background())

	snap := checker.Snapshot()
	status, ok := snap[backend.URL]
	if !ok || !status.Healthy {
		t.Fatalf("expected %s to be marked healthy, got %+v", backend.URL, snap)
	}
	if !checker.Healthy() {
		t.Fatalf("expected overall Healthy() to be true")
	}
}

func TestChecker_ProbeOnceMarksUnreachableBackendUnhealthy(t *testing.T) {
	reg := newRegistry(t, "http://127.0.0.1:1")
	checker := New(reg, breaker.NewRegistry(5, time.Minute), time.Hour, nil)

	checker.probeOnce(context.Background())

	if checker.Healthy() {
		t.Fatalf("expected Healthy() to be false when a backend is unreachable")
	}
}

func TestChecker_ProbeOncePublishesCircuitStateGauge(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	reg := newRegistry(t, backend.URL)
	sink := metrics.New()
	checker := New(reg, breaker.NewRegistry(5, time.Minute), time.Hour, nil).WithMetrics(sink)

	families, err := sink.Registerer().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	_ = families

	checker.probeOnce(context.Background())

	families, err = sink.Registerer().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, fam := range families {
		if fam.GetName() != "gateway_circuit_state" {
			continue
		}
		for _, m := range fam.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "backend" && l.GetValue() == backend.URL {
					found = true
					if got := m.GetGauge().GetValue(); got != float64(metrics.CircuitClosed) {
						t.Fatalf("expected closed gauge (%d), got %v", metrics.CircuitClosed, got)
					}
				}
			}
		}
	}
	if !found {
		t.Fatalf("expected a gateway_circuit_state series for %s", backend.URL)
	}
}

func TestChecker_RunStopsOnContextCancel(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	reg := newRegistry(t, backend.URL)
	checker := New(reg, breaker.NewRegistry(5, time.Minute), 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
