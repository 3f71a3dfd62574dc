package taxonomy

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last change before
// reloading. Editors often write a file in several steps.
const DefaultDebounce = 250 * time.Millisecond

// ReloadFunc is called after the watched file settles.
type ReloadFunc func(ctx context.Context) error

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger used for watch events.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// Watcher triggers a reload whenever a single taxonomy file changes.
// The parent directory is watched so that atomic renames by editors are seen.
type Watcher struct {
	path     string
	debounce time.Duration
	reload   ReloadFunc
	logger   *slog.Logger
	fw       *fsnotify.Watcher
}

// NewWatcher starts watching path. Call Run to process events.
func NewWatcher(path string, reload ReloadFunc, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve taxonomy path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		path:     filepath.Clean(abs),
		debounce: DefaultDebounce,
		reload:   reload,
		logger:   slog.Default(),
		fw:       fw,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run processes file events until ctx is done. A failed reload is logged and
// the watcher keeps going.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fw.Close()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	w.logger.InfoContext(ctx, "Watching taxonomy file", "path", w.path, "debounce", w.debounce)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				w.logger.WarnContext(ctx, "Taxonomy file removed, keeping current rules", "path", w.path, "op", ev.Op.String())
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if err := w.reload(ctx); err != nil {
				w.logger.ErrorContext(ctx, "Taxonomy reload failed, keeping current rules", "path", w.path, "error", err)
				continue
			}
			w.logger.InfoContext(ctx, "Taxonomy reloaded from file", "path", w.path)

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.logger.WarnContext(ctx, "Taxonomy watcher error", "error", err)
		}
	}
}
