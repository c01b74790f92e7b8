// Package configwatch reloads display settings when the config file changes.
package configwatch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/mixlink/pkg/log"
	"github.com/bft-labs/mixlink/pkg/volume"
)

// DefaultDebounceDelay coalesces the burst of events an editor save produces.
const DefaultDebounceDelay = 200 * time.Millisecond

// Loader reads the file at path and returns the settings it describes.
type Loader func(path string) (volume.Settings, error)

// Watcher monitors one config file via fsnotify.
type Watcher struct {
	path     string
	load     Loader
	apply    func(volume.Settings)
	debounce time.Duration
	logger   log.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the watcher logger.
func WithLogger(l log.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New creates a watcher that calls apply with freshly loaded settings after
// every change to path. A file that fails to load is reported and skipped.
func New(path string, load Loader, apply func(volume.Settings), opts ...Option) *Watcher {
	w := &Watcher{
		path:     path,
		load:     load,
		apply:    apply,
		debounce: DefaultDebounceDelay,
		logger:   log.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is canceled. The parent directory is watched so that
// editors replacing the file through a rename are noticed.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.logger.Info("watching config", log.String("path", w.path))

	name := filepath.Base(w.path)
	defer w.stopTimer()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", log.Err(err))
		}
	}
}

func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		if ctx.Err() != nil {
			return
		}
		w.reload()
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) reload() {
	s, err := w.load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed, keeping current settings",
			log.String("path", w.path),
			log.Err(err),
		)
		return
	}
	w.logger.Info("config changed", log.String("path", w.path))
	w.apply(s)
}
