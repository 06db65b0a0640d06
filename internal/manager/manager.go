// Package manager fans a top-level config file out into one or more
// named scheduler instances (spec.md §2, component 6; §6, "manager
// file"). This is deliberately thin: the scheduling engine itself lives
// in internal/scheduler.
package manager

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"bufferbridge/internal/config"
	"bufferbridge/internal/metrics"
	"bufferbridge/internal/scheduler"
)

// Manager owns zero or more running Scheduler instances.
type Manager struct {
	logger     *slog.Logger
	schedulers []*scheduler.Scheduler
}

// LoadFromConfig reads configPath, detects whether it is a manager
// document (top-level schedulers: list) or a single per-scheduler
// document, and constructs (but does not start) every enabled
// scheduler it names.
func LoadFromConfig(configPath string, brokers scheduler.BrokerFactory, logger *slog.Logger, m *metrics.Metrics) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	data, err := readFile(configPath)
	if err != nil {
		return nil, err
	}

	mgr := &Manager{logger: logger}

	if !config.IsManagerDocument(data) {
		s := scheduler.New("default", brokers, logger, m)
		if err := s.Init(configPath); err != nil {
			return nil, fmt.Errorf("manager: scheduler %q: %w", "default", err)
		}
		mgr.schedulers = append(mgr.schedulers, s)
		return mgr, nil
	}

	entries, err := config.ParseManagerConfig(data)
	if err != nil {
		return nil, err
	}

	baseDir := filepath.Dir(configPath)
	for _, entry := range entries {
		if !entry.Enabled {
			logger.Info("scheduler disabled in manager config, skipping", "scheduler", entry.Name)
			continue
		}

		schedulerConfigPath := entry.ConfigFile
		if !filepath.IsAbs(schedulerConfigPath) {
			schedulerConfigPath = filepath.Join(baseDir, schedulerConfigPath)
		}

		ctor, ok := scheduler.TypeRegistry.New(entry.Type)
		if !ok {
			return nil, fmt.Errorf("manager: scheduler %q: unknown scheduler type %q", entry.Name, entry.Type)
		}

		s := ctor(entry.Name, brokers, logger, m)
		if err := s.Init(schedulerConfigPath); err != nil {
			return nil, fmt.Errorf("manager: scheduler %q: %w", entry.Name, err)
		}
		mgr.schedulers = append(mgr.schedulers, s)
	}

	return mgr, nil
}

// StartAll starts every loaded scheduler, stopping any already-started
// ones and returning the first error encountered.
func (m *Manager) StartAll() error {
	started := make([]*scheduler.Scheduler, 0, len(m.schedulers))
	for _, s := range m.schedulers {
		if err := s.Start(); err != nil {
			for _, prior := range started {
				prior.Stop()
			}
			return err
		}
		started = append(started, s)
	}
	return nil
}

// StopAll stops every scheduler, in reverse start order.
func (m *Manager) StopAll() {
	for i := len(m.schedulers) - 1; i >= 0; i-- {
		m.schedulers[i].Stop()
	}
}

// Count reports how many scheduler instances were loaded.
func (m *Manager) Count() int { return len(m.schedulers) }
