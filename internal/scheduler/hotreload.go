package scheduler

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"bufferbridge/internal/recovery"
)

// hotReloadWatcher observes the scheduler's config file path and
// triggers a re-parse + atomic swap on change (spec.md §4.6). It runs
// as an independent task and coordinates with the worker pool only
// through the cell's atomic swap.
type hotReloadWatcher struct {
	scheduler *Scheduler
	fsw       *fsnotify.Watcher
	done      chan struct{}
}

// debounceWindow absorbs the burst of events a single save often
// produces (write + chmod, or a remove+create from editors that write
// via a temp file and rename).
const debounceWindow = 150 * time.Millisecond

func newHotReloadWatcher(s *Scheduler) (*hotReloadWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the containing directory rather than the file itself: editors
	// that save via rename-over would otherwise leave fsnotify watching a
	// now-unlinked inode.
	dir := filepath.Dir(s.configPath)
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return &hotReloadWatcher{scheduler: s, fsw: fsw, done: make(chan struct{})}, nil
}

func (w *hotReloadWatcher) start() {
	recovery.Go(w.scheduler.logger, w.scheduler.name+"/hot-reload", w.run)
}

func (w *hotReloadWatcher) run() {
	var debounce *time.Timer
	var debounceC <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	target := filepath.Clean(w.scheduler.configPath)

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(debounceWindow)
			debounceC = debounce.C

		case <-debounceC:
			debounceC = nil
			_ = w.scheduler.ReloadNow()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.scheduler.logger.Warn("hot reload watcher error", "scheduler", w.scheduler.name, "err", err)
		}
	}
}

func (w *hotReloadWatcher) stop() {
	close(w.done)
	_ = w.fsw.Close()
}
