// Package watch triggers snapshot reloads when the active pointer file changes.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce coalesces bursts of filesystem events into one reload.
const DefaultDebounce = 500 * time.Millisecond

// Reloader swaps the active snapshot for a freshly loaded one.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Watcher reloads the snapshot when the pointer file is rewritten.
//
// It watches the pointer file's directory rather than the file itself:
// builders publish a new snapshot by renaming a temp file over the pointer,
// which unlinks the watched inode and would silence a file-level watch.
type Watcher struct {
	pointerPath string
	reloader    Reloader
	logger      *zap.Logger
	debounce    time.Duration
}

// New creates a watcher for the given pointer file.
func New(pointerPath string, reloader Reloader, logger *zap.Logger) *Watcher {
	return &Watcher{
		pointerPath: filepath.Clean(pointerPath),
		reloader:    reloader,
		logger:      logger,
		debounce:    DefaultDebounce,
	}
}

// WithDebounce overrides the event coalescing window.
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	if d > 0 {
		w.debounce = d
	}
	return w
}

// Run watches until ctx is cancelled. A failed reload logs a warning and
// keeps watching; the previous snapshot stays in service.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	dir := filepath.Dir(w.pointerPath)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.logger.Info("Watching pointer file", zap.String("path", w.pointerPath))

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			pending = time.After(w.debounce)

		case <-pending:
			pending = nil
			w.reload(ctx)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", zap.Error(err))
		}
	}
}

// relevant reports whether the event replaces or rewrites the pointer file.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.pointerPath {
		return false
	}
	return event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0
}

func (w *Watcher) reload(ctx context.Context) {
	if err := w.reloader.Reload(ctx); err != nil {
		w.logger.Warn("Snapshot reload failed after pointer change", zap.Error(err))
		return
	}
	w.logger.Info("Snapshot reloaded after pointer change")
}
