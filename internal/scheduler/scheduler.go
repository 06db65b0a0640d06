package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"bufferbridge/internal/cell"
	"bufferbridge/internal/config"
	"bufferbridge/internal/errs"
	"bufferbridge/internal/metrics"
	"bufferbridge/internal/recovery"
)

// Scheduler is a named scheduler instance: one Active Configuration
// Cell, a pool of worker goroutines, a running flag, and an optional
// hot-reload watcher (spec.md §3, "Scheduler instance").
type Scheduler struct {
	name       string
	configPath string
	brokers    BrokerFactory
	logger     *slog.Logger
	metrics    *metrics.Metrics

	cell *cell.Cell[*Snapshot]

	lifecycleMu sync.Mutex
	started     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	watcher     *hotReloadWatcher
}

// New constructs a Scheduler. Init must be called before Start.
func New(name string, brokers BrokerFactory, logger *slog.Logger, m *metrics.Metrics) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		name:    name,
		brokers: brokers,
		logger:  logger,
		metrics: m,
	}
	s.cell = cell.New(func(snap *Snapshot) { snap.Close() })
	return s
}

// Init performs the first parse of configPath and publishes the
// resulting snapshot. A failure here is a FatalStartupError: there is
// no prior snapshot to fall back to (spec.md §4.1, §7).
func (s *Scheduler) Init(configPath string) error {
	s.configPath = configPath
	snap, err := s.parseAndBuild()
	if err != nil {
		return errs.FatalStartup("init", err)
	}
	s.cell.Publish(snap)
	return nil
}

func (s *Scheduler) parseAndBuild() (*Snapshot, error) {
	data, err := readConfigFile(s.configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.ParseSchedulerConfig(data)
	if err != nil {
		return nil, err
	}
	return BuildSnapshot(s.name, cfg, s.brokers)
}

// Start spawns the worker pool and arms the hot-reload watcher. Calling
// Start on an already-started scheduler is a no-op (logged warning),
// per spec.md §8.
func (s *Scheduler) Start() error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.started {
		s.logger.Warn("scheduler already started", "scheduler", s.name)
		return nil
	}

	snap, release, ok := s.cell.ReadLease()
	if !ok {
		return errs.FatalStartup("start", fmt.Errorf("scheduler %q has no published snapshot", s.name))
	}
	workerThreads := snap.WorkerThreads
	release()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	for i := 0; i < workerThreads; i++ {
		workerID := i
		s.wg.Add(1)
		recovery.Go(s.logger, fmt.Sprintf("%s/worker-%d", s.name, workerID), func() {
			defer s.wg.Done()
			s.runWorker(ctx, workerID)
		})
	}
	s.metrics.ActiveWorkers.WithLabelValues(s.name).Set(float64(workerThreads))

	watcher, err := newHotReloadWatcher(s)
	if err != nil {
		s.logger.Warn("hot reload watcher unavailable, continuing without it", "scheduler", s.name, "err", err)
	} else {
		s.watcher = watcher
		watcher.start()
	}

	s.started = true
	return nil
}

// Stop unsubscribes the hot-reload watcher, cancels all workers, waits
// for them to return, then destroys the cell so the final snapshot's
// broker clients and limiters are released. Calling Stop twice is a
// no-op, per spec.md §8.
func (s *Scheduler) Stop() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if !s.started {
		return
	}

	if s.watcher != nil {
		s.watcher.stop() // unsubscribe before joining workers, per spec.md §4.6
		s.watcher = nil
	}

	s.cancel()
	s.wg.Wait()
	s.metrics.ActiveWorkers.WithLabelValues(s.name).Set(0)
	s.cell.Destroy()
	s.started = false
}

// ReloadNow re-parses the config file and publishes the result if
// valid, matching the hot-reload watcher's own reaction to a file
// change (spec.md §4.6). Exposed directly so tests and an external
// reload trigger (e.g. SIGHUP) can invoke it without waiting on the
// filesystem watcher.
func (s *Scheduler) ReloadNow() error {
	snap, err := s.parseAndBuild()
	if err != nil {
		s.metrics.HotReloadFailures.WithLabelValues(s.name).Inc()
		s.logger.Warn("config reload failed, keeping previous snapshot", "scheduler", s.name, "err", err)
		return err
	}
	s.cell.Publish(snap)
	s.metrics.HotReloadSuccesses.WithLabelValues(s.name).Inc()
	s.logger.Info("config reloaded", "scheduler", s.name)
	return nil
}
