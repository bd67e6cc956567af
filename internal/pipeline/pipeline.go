// Package pipeline implements the gateway's synchronous per-request
// processing chain: request-id stamping, IP filtering, input
// validation, rate limiting, routing, authentication, caching,
// backend proxying, and response decoration, in that fixed order.
package pipeline

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"middleware-gateway/internal/auth"
	"middleware-gateway/internal/cache"
	"middleware-gateway/internal/metrics"
	"middleware-gateway/internal/proxy"
	"middleware-gateway/internal/ratelimit"
	"middleware-gateway/internal/router"
	"middleware-gateway/internal/security"
)

// Handler wires every gateway subsystem into the fixed 12-stage
// pipeline described by the specification. Validator, Limiter, Routes
// and Proxy are required; the other fields are optional. A nil Cache
// disables caching, a nil Auth causes any route requiring auth to
// reject bearer tokens (API keys still work).
type Handler struct {
	Validator       *security.Validator
	Limiter         *ratelimit.Limiter
	Routes          *router.Registry
	Auth            *auth.Manager
	Proxy           *proxy.Proxy
	Cache           cache.Cache
	CacheTTL        time.Duration
	MaxBodySize     int64
	SecurityHeaders map[string]string
	Metrics         metrics.Sink
	Logger          *slog.Logger
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// ServeHTTP runs the full pipeline. It never panics past this
// boundary: an unexpected error inside any stage is recovered here,
// logged with a stack trace, and surfaced as a 500.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := h.newRequestContext(r)
	method := r.Method
	path := r.URL.Path

	logDone := func(status int, userID string) {
		duration := time.Since(rc.StartedAt)
		if h.Metrics != nil {
			h.Metrics.ObserveRequest(method, path, strconv.Itoa(status), duration)
		}
		rc.Logger.Info("request",
			"method", method,
			"path", path,
			"status", status,
			"duration_ms", duration.Milliseconds(),
			"user_id", userID,
		)
	}

	defer func() {
		if rec := recover(); rec != nil {
			rc.Logger.Error("panic in pipeline",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			writeError(w, rc.RequestID, http.StatusInternalServerError, "internal error", "INTERNAL_ERROR")
			logDone(http.StatusInternalServerError, "")
		}
	}()

	fail := func(status int, message, code string) {
		writeError(w, rc.RequestID, status, message, code)
		logDone(status, "")
	}

	if h.Validator != nil && !h.Validator.IsIPAllowed(rc.ClientIP) {
		fail(http.StatusForbidden, "ip not allowed", "IP_DENIED")
		return
	}

	if res := h.Validator.ValidateMethod(method); !res.Valid {
		fail(http.StatusMethodNotAllowed, res.Error, res.Code)
		return
	}
	if res := h.Validator.ValidatePath(path); !res.Valid {
		fail(http.StatusBadRequest, res.Error, res.Code)
		return
	}
	if res := h.Validator.ValidateHeaders(r.Header); !res.Valid {
		fail(http.StatusBadRequest, res.Error, res.Code)
		return
	}

	maxBody := h.MaxBodySize
	if maxBody <= 0 {
		maxBody = 10 << 20
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
	if err != nil {
		fail(http.StatusBadRequest, "failed to read request body", "BODY_READ_ERROR")
		return
	}
	if res := h.Validator.ValidateBody(body); !res.Valid {
		fail(http.StatusBadRequest, res.Error, res.Code)
		return
	}

	admitted, retryAfterSec := h.Limiter.AllowRequest(r.Context(), rc.ClientIP, path, 1)
	if h.Metrics != nil {
		result := "allowed"
		if !admitted {
			result = "rejected"
		}
		h.Metrics.ObserveRateLimit("combined", result)
	}
	if !admitted {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
		fail(http.StatusTooManyRequests, "rate limit exceeded", "RATE_LIMITED")
		return
	}

	match := h.Routes.Match(path)
	if match == nil {
		fail(http.StatusNotFound, "no route matches this path", "NOT_FOUND")
		return
	}

	if match.Route.RequireAuth {
		var claims map[string]any
		rc.UserID, claims, err = h.authenticate(r)
		if err != nil {
			if h.Metrics != nil {
				h.Metrics.ObserveAuth("failure")
			}
			fail(http.StatusUnauthorized, "authentication required", "UNAUTHORIZED")
			return
		}
		if h.Metrics != nil {
			h.Metrics.ObserveAuth("success")
		}
		if len(claims) > 0 {
			h.logJWTClaims(rc, claims)
		}
	}

	cacheKey := cache.Key(method, path, r.URL.RawQuery)
	if method == http.MethodGet && h.Cache != nil {
		if resp, ok := h.Cache.Get(cacheKey); ok {
			if h.Metrics != nil {
				h.Metrics.ObserveCache("hit")
			}
			applySecurityHeaders(w, h.SecurityHeaders)
			if resp.ContentType != "" {
				w.Header().Set("Content-Type", resp.ContentType)
			}
			w.Header().Set("X-Cache", "HIT")
			w.Header().Set("X-Request-ID", rc.RequestID)
			w.WriteHeader(resp.StatusCode)
			_, _ = w.Write(resp.Body)
			logDone(resp.StatusCode, rc.UserID)
			return
		}
		if h.Metrics != nil {
			h.Metrics.ObserveCache("miss")
		}
	}

	if match.Backend == "" {
		fail(http.StatusNotImplemented, "route has no backend to forward to", "NOT_IMPLEMENTED")
		return
	}

	resp := h.Proxy.Forward(r.Context(), method, match.Backend, match.RewrittenPath, r.Header, body, match.Route.TimeoutMs)
	if h.Metrics != nil {
		h.Metrics.ObserveBackend(match.Backend, resp.ResponseTime)
	}

	if !resp.Success {
		status := resp.StatusCode
		if status == 0 {
			status = http.StatusBadGateway
		}
		fail(status, resp.Error, proxyFailureCode(resp))
		return
	}

	if method == http.MethodGet && h.Cache != nil && resp.StatusCode == http.StatusOK && len(resp.Body) > 0 {
		h.Cache.Set(cacheKey, cache.Response{
			Body:        resp.Body,
			ContentType: resp.Headers.Get("Content-Type"),
			StatusCode:  resp.StatusCode,
			CachedAt:    time.Now(),
		}, h.CacheTTL)
		w.Header().Set("X-Cache", "MISS")
	}

	applySecurityHeaders(w, h.SecurityHeaders)
	for k, vs := range resp.Headers {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("X-Request-ID", rc.RequestID)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)

	logDone(resp.StatusCode, rc.UserID)
}

func (h *Handler) authenticate(r *http.Request) (string, map[string]any, error) {
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		identity, ok := h.Validator.ValidateAPIKey(apiKey)
		if !ok {
			return "", nil, errors.New("invalid api key")
		}
		return identity, nil, nil
	}

	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		if h.Auth == nil {
			return "", nil, errors.New("bearer authentication not configured")
		}
		token, ok := auth.ExtractBearerToken(authHeader)
		if !ok {
			return "", nil, errors.New("malformed authorization header")
		}
		claims, err := h.Auth.Verify(token)
		if err != nil {
			return "", nil, err
		}
		return claims.Subject, claims.Extra, nil
	}

	return "", nil, errors.New("missing credentials")
}

// logJWTClaims emits unrecognized custom claims at debug level, after
// masking, so operators can inspect them without them appearing in the
// per-request info line.
func (h *Handler) logJWTClaims(rc *RequestContext, claims map[string]any) {
	encoded, err := json.Marshal(claims)
	if err != nil {
		return
	}
	rc.Logger.Debug("jwt claims",
		"jwt_claims", security.MaskSensitiveData(string(encoded)),
	)
}

func proxyFailureCode(resp proxy.ProxyResponse) string {
	switch {
	case resp.Error == proxy.ErrCircuitOpen:
		return "CIRCUIT_OPEN"
	case resp.StatusCode == http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	default:
		return "BACKEND_ERROR"
	}
}
