// Package watcher reports when a single file has been rewritten, settling a
// burst of writes into one change.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rolsen/tinyclassified/internal/logger"
)

// Options configures the watcher.
type Options struct {
	// SettleDelay is how long the file must stay unchanged before a change is
	// reported.
	SettleDelay time.Duration
}

func (o *Options) setDefaults() {
	if o.SettleDelay == 0 {
		o.SettleDelay = 100 * time.Millisecond
	}
}

// Watcher watches one file. Editors that save by replacing the file are
// covered because the parent directory is watched.
type Watcher struct {
	logger *slog.Logger
	opts   Options
	path   string
	fs     *fsnotify.Watcher
}

// New starts watching path, which must exist.
func New(path string, log *slog.Logger, opts Options) (*Watcher, error) {
	opts.setDefaults()
	if log == nil {
		log = logger.Discard()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fs.Add(filepath.Dir(abs)); err != nil {
		_ = fs.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	log.Debug("added watch", "path", abs)
	return &Watcher{logger: log, opts: opts, path: abs, fs: fs}, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string { return w.path }

// Run calls onChange once per settled change until ctx is done, then stops
// the watcher. onChange runs on the calling goroutine; its errors are logged
// and watching continues.
func (w *Watcher) Run(ctx context.Context, onChange func(ctx context.Context) error) error {
	defer w.fs.Close()

	var settle *time.Timer
	var fire <-chan time.Time
	defer func() {
		if settle != nil {
			settle.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if settle == nil {
				settle = time.NewTimer(w.opts.SettleDelay)
			} else {
				settle.Reset(w.opts.SettleDelay)
			}
			fire = settle.C

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "path", w.path, "error", err)

		case <-fire:
			fire = nil
			w.logger.Debug("file settled", "path", w.path)
			if err := onChange(ctx); err != nil {
				w.logger.Error("change handler failed", "path", w.path, "error", err)
			}
		}
	}
}

// Close stops a watcher that was never run.
func (w *Watcher) Close() error {
	return w.fs.Close()
}
