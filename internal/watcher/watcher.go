// Package watcher turns filesystem events into indexing cycle triggers.
// It deliberately carries no event payload: the scheduler re-diffs the
// whole folder against the fingerprint store anyway, so a debounced
// "something changed" signal is all a cycle needs.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceWindow coalesces editor save bursts into one trigger.
const DefaultDebounceWindow = 500 * time.Millisecond

// Watcher watches a folder tree with fsnotify and fires a callback once
// per quiet period after a burst of changes.
type Watcher struct {
	root    string
	window  time.Duration
	notify  func()
	logger  *slog.Logger
	ignored []string
}

// New creates a watcher over root. notify is called after each debounced
// burst, typically Scheduler.TriggerNow. ignored lists directory names to
// skip, such as the data directory.
func New(root string, window time.Duration, notify func(), logger *slog.Logger, ignored ...string) *Watcher {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		root:    root,
		window:  window,
		notify:  notify,
		logger:  logger,
		ignored: ignored,
	}
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create filesystem watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := w.addRecursive(fsw, w.root); err != nil {
		return fmt.Errorf("watch %s: %w", w.root, err)
	}

	return w.run(ctx, fsw, fsw.Events, fsw.Errors)
}

// run is the event loop, split out so tests can feed synthetic channels.
// fsw may be nil in tests; it is only used to watch newly created
// directories.
func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher, events <-chan fsnotify.Event, errs <-chan error) error {
	timer := time.NewTimer(w.window)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			if event.Op&fsnotify.Create != 0 && fsw != nil {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.addRecursive(fsw, event.Name)
				}
			}
			if armed && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.window)
			armed = true

		case <-timer.C:
			armed = false
			w.logger.Debug("change burst settled, triggering cycle")
			w.notify()

		case err, ok := <-errs:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

// relevant filters chmod noise and ignored or hidden paths.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || rel == "." {
		return false
	}
	return !w.ignoredPath(filepath.ToSlash(rel))
}

// ignoredPath reports whether any segment of rel is hidden or ignored.
func (w *Watcher) ignoredPath(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
		for _, ig := range w.ignored {
			if seg == ig {
				return true
			}
		}
	}
	return false
}

// addRecursive registers root and every non-ignored subdirectory.
func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are picked up by the next poll cycle
		}
		if !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return nil
		}
		if rel != "." && w.ignoredPath(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}
