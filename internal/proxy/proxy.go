// Package proxy forwards gateway requests to backend services and drives
// the per-backend circuit breaker that protects them.
//
// Unlike a transparent net/http/httputil.ReverseProxy, Forward returns an
// explicit ProxyResponse value rather than streaming straight to the
// client's http.ResponseWriter — the pipeline needs the response body in
// hand to decide whether to cache it before writing it out.
package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"middleware-gateway/internal/breaker"
)

// ProxyResponse is the outcome of a single Forward call.
type ProxyResponse struct {
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Success      bool
	Error        string
	ResponseTime time.Duration
}

// ErrCircuitOpen is the sentinel status text used when a request is
// rejected before any network call is attempted.
const ErrCircuitOpen = "circuit breaker open"

// hopByHopHeaders lists headers the HTTP spec designates as connection-
// scoped, never forwarded end to end. Content-Length is excluded
// separately because the client recomputes it from the body.
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

var allowedMethods = map[string]struct{}{
	http.MethodGet:    {},
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodDelete: {},
	http.MethodPatch:  {},
}

// Proxy forwards requests to backends, tracking per-backend failures in
// a shared breaker.Registry.
type Proxy struct {
	breakers *breaker.Registry
}

// New creates a Proxy backed by the given breaker registry. The registry
// must be shared across every call reaching the same backend set —
// a per-request breaker never accumulates enough failures to trip.
func New(breakers *breaker.Registry) *Proxy {
	return &Proxy{breakers: breakers}
}

func filterHeaders(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, vs := range h {
		if _, hop := hopByHopHeaders[http.CanonicalHeaderKey(k)]; hop {
			continue
		}
		if http.CanonicalHeaderKey(k) == "Content-Length" {
			continue
		}
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// Forward sends one request to backendURL+rewrittenPath and returns its
// outcome. It never returns a Go error: transport failures, timeouts,
// and circuit-breaker rejections are all reported inside ProxyResponse.
func (p *Proxy) Forward(ctx context.Context, method, backendURL, rewrittenPath string, headers http.Header, body []byte, timeoutMs int) ProxyResponse {
	if _, ok := allowedMethods[method]; !ok {
		return ProxyResponse{StatusCode: http.StatusMethodNotAllowed, Success: false, Error: fmt.Sprintf("method %s not supported by proxy", method)}
	}

	cb := p.breakers.Get(backendURL)
	if !cb.Allow() {
		return ProxyResponse{StatusCode: http.StatusServiceUnavailable, Success: false, Error: ErrCircuitOpen}
	}

	if timeoutMs <= 0 {
		timeoutMs = 5000
	}
	client := &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond}

	targetURL := strings.TrimRight(backendURL, "/") + rewrittenPath

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, method, targetURL, bytes.NewReader(body))
	if err != nil {
		cb.Failure()
		return ProxyResponse{Success: false, Error: err.Error(), ResponseTime: time.Since(start)}
	}
	req.Header = filterHeaders(headers)
	if reqID := headers.Get("X-Request-ID"); reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}

	resp, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		cb.Failure()
		return ProxyResponse{Success: false, Error: err.Error(), ResponseTime: elapsed}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		cb.Failure()
		return ProxyResponse{StatusCode: resp.StatusCode, Success: false, Error: err.Error(), ResponseTime: elapsed}
	}

	if resp.StatusCode >= 500 {
		cb.Failure()
	} else {
		cb.Success()
	}

	return ProxyResponse{
		StatusCode:   resp.StatusCode,
		Headers:      filterHeaders(resp.Header),
		Body:         respBody,
		Success:      true,
		ResponseTime: elapsed,
	}
}

// HealthCheck issues a HEAD /health against backendURL with a 5-second
// deadline. Any 2xx-4xx response is considered healthy. The result only
// updates liveness bookkeeping upstream — it never moves the breaker,
// which reacts solely to real request outcomes.
func HealthCheck(ctx context.Context, backendURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, strings.TrimRight(backendURL, "/")+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode < 500
}
