package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"bufferbridge/internal/errs"
)

// SchedulerEntry is one row of a manager file's schedulers: list
// (spec.md §6).
type SchedulerEntry struct {
	Name       string
	Enabled    bool
	Type       string
	ConfigFile string
}

type rawSchedulerEntry struct {
	Name       string `yaml:"name"`
	Enabled    *bool  `yaml:"enabled"`
	Type       string `yaml:"type"`
	ConfigFile string `yaml:"config_file"`
}

type rawManagerConfig struct {
	Schedulers []rawSchedulerEntry `yaml:"schedulers"`
}

// IsManagerDocument reports whether the given YAML document declares a
// top-level schedulers: list, distinguishing a manager file from a
// single per-scheduler file (spec.md §6).
func IsManagerDocument(data []byte) bool {
	var probe struct {
		Schedulers yaml.Node `yaml:"schedulers"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return false
	}
	return probe.Schedulers.Kind != 0
}

// ParseManagerConfig parses a top-level manager file, validating
// uniqueness of scheduler names and filling in the "enabled" and
// "type" defaults from spec.md §6.
func ParseManagerConfig(data []byte) ([]SchedulerEntry, error) {
	var raw rawManagerConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errs.Config("parse", err)
	}
	if len(raw.Schedulers) == 0 {
		return nil, errs.Config("schedulers", fmt.Errorf("at least one scheduler is required"))
	}

	seen := make(map[string]bool, len(raw.Schedulers))
	entries := make([]SchedulerEntry, 0, len(raw.Schedulers))
	for i, s := range raw.Schedulers {
		if s.Name == "" {
			return nil, errs.Config("schedulers", fmt.Errorf("entry %d: name is required", i))
		}
		if seen[s.Name] {
			return nil, errs.Config("schedulers", fmt.Errorf("duplicate scheduler name %q", s.Name))
		}
		seen[s.Name] = true

		if s.ConfigFile == "" {
			return nil, errs.Config("schedulers", fmt.Errorf("scheduler %q: config_file is required", s.Name))
		}

		enabled := true
		if s.Enabled != nil {
			enabled = *s.Enabled
		}
		schedulerType := s.Type
		if schedulerType == "" {
			schedulerType = "default_scheduler"
		}

		entries = append(entries, SchedulerEntry{
			Name:       s.Name,
			Enabled:    enabled,
			Type:       schedulerType,
			ConfigFile: s.ConfigFile,
		})
	}
	return entries, nil
}
