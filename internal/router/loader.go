package router

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// routeDoc mirrors one entry of the routes.json "routes" array.
type routeDoc struct {
	Path           string   `json:"path"`
	Backend        string   `json:"backend"`
	Backends       []string `json:"backends"`
	LoadBalancing  string   `json:"load_balancing"`
	Timeout        int      `json:"timeout"`
	RequireAuth    bool     `json:"require_auth"`
	StripPrefix    string   `json:"strip_prefix"`
	Handler        string   `json:"handler"`
}

type routesFile struct {
	Routes []routeDoc `json:"routes"`
}

// LoadFile parses a routes.json document. Invalid entries are logged and
// skipped rather than treated as fatal, matching the specification's
// load-from-config contract.
func LoadFile(path string, logger *slog.Logger) (*RouteTable, error) {
	if logger == nil {
		logger = slog.Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading routes file %s: %w", path, err)
	}

	var doc routesFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing routes file %s: %w", path, err)
	}

	routes := make([]*Route, 0, len(doc.Routes))
	for i, rd := range doc.Routes {
		backends := rd.Backends
		if len(backends) == 0 && rd.Backend != "" {
			backends = []string{rd.Backend}
		}
		route, err := NewRoute(rd.Path, backends, LoadBalancing(rd.LoadBalancing), rd.Timeout, rd.RequireAuth, rd.StripPrefix, rd.Handler)
		if err != nil {
			logger.Warn("skipping invalid route", "index", i, "path", rd.Path, "error", err)
			continue
		}
		routes = append(routes, route)
	}

	return NewRouteTable(routes), nil
}
