package gatewayhttp

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
	"middleware-gateway/internal/healthcheck"
	"middleware-gateway/internal/metrics"
	"middleware-gateway/internal/pipeline"
	"middleware-gateway/internal/proxy"
	"middleware-gateway/internal/ratelimit"
	"middleware-gateway/internal/router"
	"middleware-gateway/internal/security"
)

func newTestPipeline(t *testing.T, backend string) *pipeline.Handler {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.json")
	doc := fmt.Sprintf(`{"routes":[{"path":"/api/*","backends":["%s"]}]}`, backend)
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("writing routes file: %v", err)
	}
	registry, err := router.NewRegistry(path, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	limiter := ratelimit.New(time.Minute, time.Minute)
	limiter.SetPerIPLimit(1000, 60)

	return &pipeline.Handler{
		Validator: security.New(0, 0),
		Limiter:   limiter,
		Routes:    registry,
		Proxy:     proxy.New(breaker.NewRegistry(5, time.Minute)),
	}
}

func TestServer_HealthEndpointReportsHealthyWithNoBackends(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	h := New(Options{
		Pipeline: newTestPipeline(t, backend.URL),
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestServer_MetricsEndpointServesPrometheusExposition(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer backend.Close()

	reg := metrics.New()
	h := New(Options{
		Pipeline: newTestPipeline(t, backend.URL),
		Metrics:  reg,
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestServer_UnhealthyBackendDegradesHealthEndpoint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.json")
	doc := `{"routes":[{"path":"/api/*","backends":["http://127.0.0.1:1"]}]}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("writing routes file: %v", err)
	}
	registry, err := router.NewRegistry(path, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	checker := healthcheck.New(registry, breaker.NewRegistry(5, time.Minute), time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)

	h := New(Options{
		Pipeline:      newTestPipeline(t, "http://127.0.0.1:1"),
		HealthChecker: checker,
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rec.Code, rec.Body.String())
	}
}
