// Package admin implements the gateway's operator-facing HTTP surface:
// live config inspection, cache introspection and invalidation, and
// rate-limit reset, each gated by a bearer token compared in constant
// time.
package admin

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"middleware-gateway/internal/cache"
	"middleware-gateway/internal/config"
	"middleware-gateway/internal/ratelimit"
	"middleware-gateway/internal/ratelimit/domain"
)

// Handler serves the /admin/* routes described by the specification.
type Handler struct {
	Config  *config.Config
	Cache   cache.Cache
	Limiter *ratelimit.Limiter
	Stats   domain.StatsReader
	Token   string
}

// Register mounts the admin handler's routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /admin/config", h.requireToken(h.getConfig))
	mux.HandleFunc("POST /admin/config", h.requireToken(h.postConfig))
	mux.HandleFunc("GET /admin/cache/stats", h.requireToken(h.cacheStats))
	mux.HandleFunc("POST /admin/cache/clear", h.requireToken(h.cacheClear))
	mux.HandleFunc("POST /admin/ratelimit/reset", h.requireToken(h.ratelimitReset))
	mux.HandleFunc("GET /admin/ratelimit/stats", h.requireToken(h.ratelimitStats))
}

func (h *Handler) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.authorized(r) {
			writeJSONError(w, http.StatusUnauthorized, "missing or invalid admin token", "UNAUTHORIZED")
			return
		}
		next(w, r)
	}
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.Token == "" {
		return false
	}
	authHeader := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return false
	}
	presented := strings.TrimPrefix(authHeader, prefix)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(h.Token)) == 1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}

func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	redacted := *h.Config
	redacted.JWT.Secret = ""
	redacted.Redis.Password = ""
	redacted.Admin.Token = ""
	writeJSON(w, http.StatusOK, redacted)
}

// configPatch is the subset of configuration the admin endpoint accepts
// updates for at runtime (rate limits and security lists). Rate limits
// are applied to the running limiter at once. The IP lists are only
// recorded in the configuration GET /admin/config serves; the running
// validator keeps the lists it was built with until a restart.
// Everything else requires a process restart to take effect.
type configPatch struct {
	RateLimits *config.RateLimitsConfig `json:"rate_limits,omitempty"`
	Security   *struct {
		IPWhitelist []string `json:"ip_whitelist,omitempty"`
		IPBlacklist []string `json:"ip_blacklist,omitempty"`
	} `json:"security,omitempty"`
}

func (h *Handler) postConfig(w http.ResponseWriter, r *http.Request) {
	var patch configPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body", "BAD_REQUEST")
		return
	}

	if patch.RateLimits != nil {
		h.Config.RateLimits = *patch.RateLimits
		if h.Limiter != nil {
			h.Limiter.SetGlobalLimit(patch.RateLimits.Global.Requests, patch.RateLimits.Global.Window)
			h.Limiter.SetPerIPLimit(patch.RateLimits.PerIP.Requests, patch.RateLimits.PerIP.Window)
			for pattern, lim := range patch.RateLimits.Endpoints {
				h.Limiter.SetEndpointLimit(pattern, lim.Requests, lim.Window)
			}
		}
	}
	if patch.Security != nil {
		if patch.Security.IPWhitelist != nil {
			h.Config.Security.IPWhitelist = patch.Security.IPWhitelist
		}
		if patch.Security.IPBlacklist != nil {
			h.Config.Security.IPBlacklist = patch.Security.IPBlacklist
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) cacheStats(w http.ResponseWriter, r *http.Request) {
	if h.Cache == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	keys, bytes := h.Cache.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":      true,
		"keys":         keys,
		"approx_bytes": bytes,
	})
}

type cacheClearRequest struct {
	Key     string `json:"key,omitempty"`
	Pattern string `json:"pattern,omitempty"`
}

func (h *Handler) cacheClear(w http.ResponseWriter, r *http.Request) {
	if h.Cache == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "cache is not enabled", "CACHE_DISABLED")
		return
	}

	var req cacheClearRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	switch {
	case req.Key != "":
		h.Cache.Invalidate(req.Key)
		writeJSON(w, http.StatusOK, map[string]any{"cleared": 1})
	case req.Pattern != "":
		n := h.Cache.InvalidatePattern(req.Pattern)
		writeJSON(w, http.StatusOK, map[string]any{"cleared": n})
	default:
		n := h.Cache.InvalidatePattern("*")
		writeJSON(w, http.StatusOK, map[string]any{"cleared": n})
	}
}

type ratelimitResetRequest struct {
	IP string `json:"ip"`
}

func (h *Handler) ratelimitReset(w http.ResponseWriter, r *http.Request) {
	var req ratelimitResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IP == "" {
		writeJSONError(w, http.StatusBadRequest, "ip is required", "BAD_REQUEST")
		return
	}
	h.Limiter.ResetKey(req.IP)
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset", "ip": req.IP})
}

func (h *Handler) ratelimitStats(w http.ResponseWriter, r *http.Request) {
	if h.Stats == nil {
		writeJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}

	total, err := h.Stats.Total(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, "failed to read rate limit stats", "STATS_UNAVAILABLE")
		return
	}
	byRoute, err := h.Stats.ByRoute(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, "failed to read rate limit stats", "STATS_UNAVAILABLE")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":  true,
		"total":    total,
		"by_route": byRoute,
	})
}
