// Package watch re-runs a check when files under the run root change.
//
// Events are debounced so a burst of saves triggers one run, and runs are
// rate limited so formatters rewriting files cannot cause a tight loop.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/enforcer/internal/ignore"
	"github.com/fyrsmithlabs/enforcer/internal/logging"
	"github.com/fyrsmithlabs/enforcer/internal/runlog"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// RunFunc is called with the absolute paths changed since the last call.
// A returned error is logged and watching continues.
type RunFunc func(ctx context.Context, changed []string) error

// Options tunes a Watcher.
type Options struct {
	// Debounce is the quiet period after the last event before a run.
	Debounce time.Duration

	// MinInterval is the minimum time between two runs. Zero disables
	// rate limiting.
	MinInterval time.Duration

	Logger *logging.Logger
}

// Watcher watches a directory tree.
type Watcher struct {
	root     string
	ignored  *ignore.Matcher
	fsw      *fsnotify.Watcher
	debounce time.Duration
	limiter  *rate.Limiter
	logger   *logging.Logger
}

// New creates a watcher for root. Paths matched by ignored are neither
// watched nor reported.
func New(root string, ignored *ignore.Matcher, opts Options) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	w := &Watcher{
		root:     abs,
		ignored:  ignored,
		fsw:      fsw,
		debounce: opts.Debounce,
		logger:   opts.Logger,
	}
	if w.debounce <= 0 {
		w.debounce = 500 * time.Millisecond
	}
	if opts.MinInterval > 0 {
		w.limiter = rate.NewLimiter(rate.Every(opts.MinInterval), 1)
	}
	if w.logger == nil {
		w.logger = logging.NewNop()
	}
	if err := w.addTree(abs); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run blocks until ctx is done, calling fn after each debounced batch of
// changes. It returns nil when ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, fn RunFunc) error {
	pending := make(map[string]struct{})
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.handle(event) {
				continue
			}
			pending[event.Name] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(ctx, "watch error", zap.Error(err))

		case <-fire:
			fire = nil
			if w.limiter != nil {
				if err := w.limiter.Wait(ctx); err != nil {
					return nil
				}
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			clear(pending)

			w.logger.Debug(ctx, "change detected", zap.Int("files", len(changed)))
			if err := fn(ctx, changed); err != nil && ctx.Err() == nil {
				w.logger.Error(ctx, "watch run failed", zap.Error(err))
			}
		}
	}
}

// handle reports whether event should trigger a run, and starts watching
// directories created under the root.
func (w *Watcher) handle(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	isDir := false
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			isDir = true
			if !w.ignored.Match(event.Name, true) {
				_ = w.addTree(event.Name)
			}
		}
	}
	return w.relevant(event.Name, isDir)
}

func (w *Watcher) relevant(path string, isDir bool) bool {
	if isDir {
		return false
	}
	if filepath.Dir(path) == w.root {
		switch filepath.Base(path) {
		case runlog.LastCheckFile, runlog.StatsFile:
			return false
		}
	}
	return !w.ignored.Match(path, false)
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.ignored.Match(path, true) {
			return fs.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}
