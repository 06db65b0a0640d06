package scheduler

import (
	"log/slog"

	"bufferbridge/internal/metrics"
	"bufferbridge/internal/registry"
)

// Factory constructs a named Scheduler of a particular scheduler type.
type Factory func(name string, brokers BrokerFactory, logger *slog.Logger, m *metrics.Metrics) *Scheduler

// TypeRegistry maps a manager file's "type:" value to the constructor
// for that scheduler type, the Go mapping of
// original_source/src/scheduler_manager.cpp's
// SchedulerExtension()->Find(scheduler_type) lookup. Only one type
// ships today, but an unknown type is rejected at load time rather than
// silently treated as the default, same as the original.
var TypeRegistry = registry.New[Factory]()

func init() {
	TypeRegistry.Register("default_scheduler", func() Factory {
		return New
	})
}
