// Package recovery contains the panic-containment helpers used by every
// long-running goroutine in bufferbridge (worker loops, the hot-reload
// watcher). A panicking worker logs and keeps its loop alive instead of
// silently shrinking the pool.
package recovery

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Go launches fn in its own goroutine, recovering and logging any panic
// under name instead of crashing the process.
func Go(logger *slog.Logger, name string, fn func()) {
	go func() {
		Guard(logger, name, fn)
	}()
}

// Guard runs fn synchronously, recovering and logging any panic under
// name. Callers that loop (e.g. a worker's per-iteration body) should
// wrap each iteration in Guard so one panicking iteration doesn't take
// down the whole goroutine.
func Guard(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if logger == nil {
				logger = slog.Default()
			}
			logger.Error("panic_recovered",
				slog.String("component", name),
				slog.String("panic", fmt.Sprintf("%v", r)),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	fn()
}
