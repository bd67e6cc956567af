package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileChangedFunc is invoked with the path of a file that changed. It
// runs synchronously on the watcher's goroutine; keep it fast.
type FileChangedFunc func(path string)

// Watcher watches a file for changes using fsnotify, debouncing bursts of
// events (editors often emit rename+create pairs for a single save) into
// a single callback invocation.
type Watcher struct {
	path     string
	dir      string
	callback FileChangedFunc
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
}

// NewWatcher creates a file watcher. Watching does not start until Start
// is called.
func NewWatcher(path string, callback FileChangedFunc, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     path,
		dir:      filepath.Dir(path),
		callback: callback,
		logger:   logger,
		debounce: 300 * time.Millisecond,
	}
}

// Start begins watching in a background goroutine and returns
// immediately. Stop cancels it.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	go w.loop(ctx, fsw)
	return nil
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer fsw.Close()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			w.callback(w.path)

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "path", w.path, "error", err)
		}
	}
}

// Stop cancels the watcher goroutine. Safe to call multiple times.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	if w.cancel != nil {
		w.cancel()
	}
}
