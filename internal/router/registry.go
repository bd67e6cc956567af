package router

import (
	"context"
	"log/slog"
	"sync/atomic"

	"middleware-gateway/internal/config"
)

// Registry holds the live RouteTable behind an atomic pointer so request
// handling goroutines can read it without locking while a background
// watcher swaps in a freshly reloaded table.
type Registry struct {
	table atomic.Pointer[RouteTable]

	path    string
	logger  *slog.Logger
	watcher *config.Watcher
}

// NewRegistry loads path once and returns a Registry serving that table.
func NewRegistry(path string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	table, err := LoadFile(path, logger)
	if err != nil {
		return nil, err
	}
	reg := &Registry{path: path, logger: logger}
	reg.table.Store(table)
	return reg, nil
}

// Current returns the currently active RouteTable.
func (r *Registry) Current() *RouteTable {
	return r.table.Load()
}

// Match matches path against the currently active RouteTable.
func (r *Registry) Match(path string) *Match {
	return r.Current().Match(path)
}

// WatchForChanges starts a background fsnotify watcher on the routes
// file; every debounced write reloads the file and atomically swaps in
// the new table. A parse failure logs a warning and keeps serving the
// previous table.
func (r *Registry) WatchForChanges(ctx context.Context) error {
	r.watcher = config.NewWatcher(r.path, func(path string) {
		table, err := LoadFile(path, r.logger)
		if err != nil {
			r.logger.Warn("route reload failed, keeping previous table", "path", path, "error", err)
			return
		}
		r.table.Store(table)
		r.logger.Info("route table reloaded", "path", path, "routes", len(table.Routes()))
	}, r.logger)
	return r.watcher.Start(ctx)
}

// Stop stops the background watcher, if running.
func (r *Registry) Stop() {
	if r.watcher != nil {
		r.watcher.Stop()
	}
}
