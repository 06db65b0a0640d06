// Package config parses and validates the YAML configuration documents
// described in spec.md §6: a per-scheduler file describing worker
// count, broker descriptors, and time windows, and an optional
// top-level manager file fanning out to several named schedulers.
package config

import (
	"fmt"
	"runtime"

	"gopkg.in/yaml.v3"

	"bufferbridge/internal/errs"
)

const (
	minSchedulerIntervalSeconds = 1
	minAwaitDurationSeconds     = 1
	minBatchSize                = 1
	minInvisibleDurationSeconds = 10 // strictly greater than 10
)

// rawTimeWindow is the on-disk shape of a time_windows entry, kept
// separate from TimeWindow so yaml.v3 can unmarshal id as either a
// string or an int (the schema explicitly allows both, stringified).
type rawTimeWindow struct {
	ID                yamlString `yaml:"id"`
	Start             string     `yaml:"start"`
	End               string     `yaml:"end"`
	Enable            bool       `yaml:"enable"`
	RateLimiterType   string     `yaml:"rate_limiter_type"`
	RateLimiterConfig string     `yaml:"rate_limiter_config"`
}

// yamlString unmarshals from either a YAML string or integer scalar,
// always producing a string value (spec.md §6: "id: <string or int>").
type yamlString string

func (s *yamlString) UnmarshalYAML(value *yaml.Node) error {
	*s = yamlString(value.Value)
	return nil
}

func (s yamlString) MarshalYAML() (interface{}, error) {
	return string(s), nil
}

type rawBrokerSection struct {
	BufferConsumerGroup              string `yaml:"buffer_consumer_group"`
	BufferConsumerAccessPoint        string `yaml:"buffer_consumer_access_point"`
	BufferConsumerTopic              string `yaml:"buffer_consumer_topic"`
	BufferConsumerAwaitDuration      int    `yaml:"buffer_consumer_await_duration"`
	BufferConsumerBatchSize          int    `yaml:"buffer_consumer_batch_size"`
	BufferConsumerInvisibleDuration  int    `yaml:"buffer_consumer_invisible_duration"`
	TargetProducerAccessPoint        string `yaml:"target_producer_access_point"`
	TargetProducerTopic              string `yaml:"target_producer_topic"`
}

type rawSchedulerConfig struct {
	WorkerThreads            int               `yaml:"worker_threads"`
	SchedulerIntervalSeconds int               `yaml:"scheduler_interval_seconds"`
	RocketMQ                 *rawBrokerSection `yaml:"rocketmq"`
	TimeWindows              []rawTimeWindow   `yaml:"time_windows"`
}

// BrokerUpstream describes the buffer-topic consumer a snapshot must
// build a broker.Consumer from.
type BrokerUpstream struct {
	Group              string
	AccessPoint        string
	Topic              string
	AwaitDurationSec   int
	BatchSize          int
	InvisibleDurationSec int
}

// BrokerDownstream describes the target-topic producer a snapshot must
// build a broker.Producer from.
type BrokerDownstream struct {
	AccessPoint string
	Topic       string
}

// SchedulerConfig is a fully parsed and validated per-scheduler
// document (spec.md §6, "Per-scheduler YAML").
type SchedulerConfig struct {
	WorkerThreads            int
	SchedulerIntervalSeconds int
	Upstream                 BrokerUpstream
	Downstream               BrokerDownstream
	TimeWindows              []TimeWindow
}

// ParseSchedulerConfig parses and validates a per-scheduler YAML
// document. Any failure is an *errs.Error of kind KindConfig; the
// caller is expected to leave its current snapshot untouched on error
// (spec.md §4.1, "Failure semantics").
func ParseSchedulerConfig(data []byte) (*SchedulerConfig, error) {
	var raw rawSchedulerConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errs.Config("parse", err)
	}

	if raw.SchedulerIntervalSeconds == 0 {
		return nil, errs.Config("scheduler_interval_seconds", fmt.Errorf("missing required key"))
	}
	if raw.SchedulerIntervalSeconds < minSchedulerIntervalSeconds {
		return nil, errs.Config("scheduler_interval_seconds", fmt.Errorf("must be >= %d, got %d", minSchedulerIntervalSeconds, raw.SchedulerIntervalSeconds))
	}
	if raw.RocketMQ == nil {
		return nil, errs.Config("rocketmq", fmt.Errorf("missing required section"))
	}

	b := raw.RocketMQ
	switch {
	case b.BufferConsumerGroup == "":
		return nil, errs.Config("rocketmq.buffer_consumer_group", fmt.Errorf("missing required key"))
	case b.BufferConsumerAccessPoint == "":
		return nil, errs.Config("rocketmq.buffer_consumer_access_point", fmt.Errorf("missing required key"))
	case b.BufferConsumerTopic == "":
		return nil, errs.Config("rocketmq.buffer_consumer_topic", fmt.Errorf("missing required key"))
	case b.TargetProducerAccessPoint == "":
		return nil, errs.Config("rocketmq.target_producer_access_point", fmt.Errorf("missing required key"))
	case b.TargetProducerTopic == "":
		return nil, errs.Config("rocketmq.target_producer_topic", fmt.Errorf("missing required key"))
	}
	if b.BufferConsumerAwaitDuration < minAwaitDurationSeconds {
		return nil, errs.Config("rocketmq.buffer_consumer_await_duration", fmt.Errorf("must be >= %d, got %d", minAwaitDurationSeconds, b.BufferConsumerAwaitDuration))
	}
	if b.BufferConsumerBatchSize < minBatchSize {
		return nil, errs.Config("rocketmq.buffer_consumer_batch_size", fmt.Errorf("must be >= %d, got %d", minBatchSize, b.BufferConsumerBatchSize))
	}
	if b.BufferConsumerInvisibleDuration <= minInvisibleDurationSeconds {
		return nil, errs.Config("rocketmq.buffer_consumer_invisible_duration", fmt.Errorf("must be > %d, got %d", minInvisibleDurationSeconds, b.BufferConsumerInvisibleDuration))
	}

	windows, err := resolveWindows(raw.TimeWindows)
	if err != nil {
		return nil, err
	}

	workerThreads := raw.WorkerThreads
	if workerThreads == 0 {
		workerThreads = runtime.NumCPU()
	}

	return &SchedulerConfig{
		WorkerThreads:            workerThreads,
		SchedulerIntervalSeconds: raw.SchedulerIntervalSeconds,
		Upstream: BrokerUpstream{
			Group:                b.BufferConsumerGroup,
			AccessPoint:          b.BufferConsumerAccessPoint,
			Topic:                b.BufferConsumerTopic,
			AwaitDurationSec:     b.BufferConsumerAwaitDuration,
			BatchSize:            b.BufferConsumerBatchSize,
			InvisibleDurationSec: b.BufferConsumerInvisibleDuration,
		},
		Downstream: BrokerDownstream{
			AccessPoint: b.TargetProducerAccessPoint,
			Topic:       b.TargetProducerTopic,
		},
		TimeWindows: windows,
	}, nil
}

// Marshal re-serializes a SchedulerConfig back to the YAML shape
// ParseSchedulerConfig accepts, for the round-trip property in
// spec.md §8 ("parsing, serializing, and re-parsing yields a
// semantically equal snapshot").
func (c *SchedulerConfig) Marshal() ([]byte, error) {
	raw := rawSchedulerConfig{
		WorkerThreads:            c.WorkerThreads,
		SchedulerIntervalSeconds: c.SchedulerIntervalSeconds,
		RocketMQ: &rawBrokerSection{
			BufferConsumerGroup:             c.Upstream.Group,
			BufferConsumerAccessPoint:       c.Upstream.AccessPoint,
			BufferConsumerTopic:             c.Upstream.Topic,
			BufferConsumerAwaitDuration:     c.Upstream.AwaitDurationSec,
			BufferConsumerBatchSize:         c.Upstream.BatchSize,
			BufferConsumerInvisibleDuration: c.Upstream.InvisibleDurationSec,
			TargetProducerAccessPoint:       c.Downstream.AccessPoint,
			TargetProducerTopic:             c.Downstream.Topic,
		},
	}
	for _, w := range c.TimeWindows {
		raw.TimeWindows = append(raw.TimeWindows, rawTimeWindow{
			ID:                yamlString(w.ID),
			Start:             formatClock(w.Start),
			End:               formatClock(w.End),
			Enable:            w.Enabled,
			RateLimiterType:   w.RateLimiterType,
			RateLimiterConfig: w.RateLimiterConfig,
		})
	}
	return yaml.Marshal(raw)
}

func formatClock(hhmm int) string {
	return fmt.Sprintf("%02d:%02d", hhmm/100, hhmm%100)
}
