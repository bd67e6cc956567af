package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"middleware-gateway/internal/breaker"
)

func TestForward_SuccessfulGET(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	p := New(breaker.NewRegistry(5, time.Minute))
	resp := p.Forward(context.Background(), http.MethodGet, srv.URL, "/anything", http.Header{}, nil, 1000)

	if !resp.Success || resp.StatusCode != http.StatusOK {
		t.Fatalf("expected success 200, got %+v", resp)
	}
	if string(resp.Body) != `{"ok":true}` {
		t.Fatalf("unexpected body: %s", resp.Body)
	}
}

func TestForward_ServerErrorTripsBreakerAfterThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	reg := breaker.NewRegistry(2, time.Minute)
	p := New(reg)

	for i := 0; i < 2; i++ {
		resp := p.Forward(context.Background(), http.MethodGet, srv.URL, "/x", http.Header{}, nil, 1000)
		if resp.StatusCode != http.StatusInternalServerError {
			t.Fatalf("expected 500 passthrough, got %d", resp.StatusCode)
		}
	}

	resp := p.Forward(context.Background(), http.MethodGet, srv.URL, "/x", http.Header{}, nil, 1000)
	if resp.Success {
		t.Fatalf("expected circuit breaker rejection, got %+v", resp)
	}
	if resp.Error != ErrCircuitOpen {
		t.Fatalf("expected circuit breaker open error, got %q", resp.Error)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestForward_RejectsUnsupportedMethod(t *testing.T) {
	p := New(breaker.NewRegistry(5, time.Minute))
	resp := p.Forward(context.Background(), http.MethodOptions, "http://example.invalid", "/x", http.Header{}, nil, 1000)
	if resp.Success {
		t.Fatalf("expected OPTIONS to be rejected")
	}
}

func TestForward_TransportFailureIsReportedNotPanicked(t *testing.T) {
	p := New(breaker.NewRegistry(5, time.Minute))
	resp := p.Forward(context.Background(), http.MethodGet, "http://127.0.0.1:1", "/x", http.Header{}, nil, 200)
	if resp.Success {
		t.Fatalf("expected failure connecting to a closed port")
	}
	if resp.Error == "" {
		t.Fatalf("expected a non-empty error string")
	}
}

func TestFilterHeaders_DropsHopByHopAndContentLength(t *testing.T) {
	h := http.Header{}
	h.Set("Connection", "keep-alive")
	h.Set("Content-Length", "10")
	h.Set("X-Request-ID", "abc")

	out := filterHeaders(h)
	if out.Get("Connection") != "" || out.Get("Content-Length") != "" {
		t.Fatalf("expected hop-by-hop headers stripped, got %+v", out)
	}
	if out.Get("X-Request-ID") != "abc" {
		t.Fatalf("expected X-Request-ID preserved")
	}
}

func TestHealthCheck_2xxIsHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if !HealthCheck(context.Background(), srv.URL) {
		t.Fatalf("expected healthy")
	}
}

func TestHealthCheck_5xxIsUnhealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if HealthCheck(context.Background(), srv.URL) {
		t.Fatalf("expected unhealthy")
	}
}
