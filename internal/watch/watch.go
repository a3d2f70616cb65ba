// Package watch pushes a local macro document to the device whenever it changes on disk.
package watch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long a file must be quiet before it is processed.
const DefaultDebounce = 500 * time.Millisecond

// FileWatcher calls a handler once a watched file has settled after a change.
// The parent directory is watched so editors that save by renaming a
// temporary file over the original are still noticed.
type FileWatcher struct {
	path     string
	debounce time.Duration
	handler  func(ctx context.Context, path string)
	logger   *zap.Logger

	mu      sync.Mutex
	pending time.Time
}

// New creates a watcher for path. A zero debounce uses DefaultDebounce.
func New(path string, debounce time.Duration, handler func(ctx context.Context, path string), logger *zap.Logger) (*FileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileWatcher{
		path:     abs,
		debounce: debounce,
		handler:  handler,
		logger:   logger.Named("watch"),
	}, nil
}

// Path returns the absolute path being watched.
func (w *FileWatcher) Path() string { return w.path }

// Run watches until ctx is done.
func (w *FileWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.logger.Info("watching document", zap.String("path", w.path), zap.Duration("debounce", w.debounce))

	ticker := time.NewTicker(w.debounce / 5)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))

		case <-ticker.C:
			if w.settled(time.Now()) {
				w.handler(ctx, w.path)
			}
		}
	}
}

func (w *FileWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}
	w.logger.Debug("document changed", zap.String("op", event.Op.String()))

	w.mu.Lock()
	w.pending = time.Now()
	w.mu.Unlock()
}

// settled reports, once, that a pending change has been quiet long enough.
func (w *FileWatcher) settled(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending.IsZero() || now.Sub(w.pending) < w.debounce {
		return false
	}
	w.pending = time.Time{}
	return true
}
