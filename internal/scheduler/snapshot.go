// Package scheduler implements the scheduling and rate-limiting engine:
// the worker pool that matches the wall clock against a time-window
// table, consults a rate limiter, and relays messages from an upstream
// buffer topic to a downstream target topic.
package scheduler

import (
	"encoding/json"
	"fmt"
	"time"

	"bufferbridge/internal/broker"
	"bufferbridge/internal/config"
	"bufferbridge/internal/errs"
	"bufferbridge/internal/ratelimit"
)

// BrokerFactory builds the live broker client handles a snapshot needs.
// The concrete message-broker client library is out of scope; callers
// supply whichever adapter talks to their actual broker (the in-memory
// broker.Broker satisfies this for tests and -demo mode).
type BrokerFactory interface {
	NewConsumer(upstream config.BrokerUpstream) (broker.Consumer, error)
	NewProducer(downstream config.BrokerDownstream) (broker.Producer, error)
}

// resolvedWindow pairs a validated TimeWindow with its initialized rate
// limiter, if one was configured.
type resolvedWindow struct {
	window  config.TimeWindow
	limiter ratelimit.Limiter // nil when rate_limiter_config was omitted
}

// closer is implemented by limiters holding a live connection (the
// shared/cache-backed variant); the local variant has nothing to
// release.
type closer interface {
	Close() error
}

// Snapshot is an immutable, fully resolved configuration: live broker
// clients, the sorted window table, and per-window rate limiters. It is
// published into a cell.Cell and read-leased by workers once per
// iteration (spec.md §3, §4.2).
type Snapshot struct {
	WorkerThreads     int
	SchedulerInterval time.Duration
	BatchSize         int
	AwaitDuration     time.Duration
	InvisibleDuration time.Duration
	Consumer          broker.Consumer
	Producer          broker.Producer
	Windows           []resolvedWindow
}

// Close releases the snapshot's broker clients and any limiter holding
// a live connection. Called by the cell once the last worker lease on
// this generation has been released.
func (s *Snapshot) Close() {
	if s == nil {
		return
	}
	if s.Consumer != nil {
		_ = s.Consumer.Close()
	}
	if s.Producer != nil {
		_ = s.Producer.Close()
	}
	for _, w := range s.Windows {
		if c, ok := w.limiter.(closer); ok {
			_ = c.Close()
		}
	}
}

// BuildSnapshot parses nothing itself — cfg is already validated — and
// performs the "construction of broker clients is part of parsing" step
// from spec.md §4.1: fresh consumer and producer clients, plus a freshly
// initialized rate limiter per window carrying one. schedulerName feeds
// the shared limiter's bucket_key rewrite (scheduler_name + ":" + window.id).
func BuildSnapshot(schedulerName string, cfg *config.SchedulerConfig, brokers BrokerFactory) (*Snapshot, error) {
	windows := make([]resolvedWindow, 0, len(cfg.TimeWindows))
	for _, w := range cfg.TimeWindows {
		limiter, err := buildWindowLimiter(schedulerName, w)
		if err != nil {
			return nil, err
		}
		windows = append(windows, resolvedWindow{window: w, limiter: limiter})
	}

	consumer, err := brokers.NewConsumer(cfg.Upstream)
	if err != nil {
		return nil, errs.DependencyInit("build_consumer", err)
	}

	producer, err := brokers.NewProducer(cfg.Downstream)
	if err != nil {
		_ = consumer.Close() // discard the partial snapshot construction
		return nil, errs.DependencyInit("build_producer", err)
	}

	return &Snapshot{
		WorkerThreads:     cfg.WorkerThreads,
		SchedulerInterval: time.Duration(cfg.SchedulerIntervalSeconds) * time.Second,
		BatchSize:         cfg.Upstream.BatchSize,
		AwaitDuration:     time.Duration(cfg.Upstream.AwaitDurationSec) * time.Second,
		InvisibleDuration: time.Duration(cfg.Upstream.InvisibleDurationSec) * time.Second,
		Consumer:          consumer,
		Producer:          producer,
		Windows:           windows,
	}, nil
}

func buildWindowLimiter(schedulerName string, w config.TimeWindow) (ratelimit.Limiter, error) {
	if w.RateLimiterConfig == "" {
		return nil, nil
	}

	limiter, ok := ratelimit.Builtin.New(w.RateLimiterType)
	if !ok {
		return nil, errs.Config("rate_limiter_type", fmt.Errorf("unknown rate limiter type %q for window %q", w.RateLimiterType, w.ID))
	}

	cfgJSON := w.RateLimiterConfig
	if w.RateLimiterType == "shared" {
		rewritten, err := rewriteBucketKey(cfgJSON, schedulerName+":"+w.ID)
		if err != nil {
			return nil, errs.Config("rate_limiter_config", err)
		}
		cfgJSON = rewritten
	}

	if err := limiter.Init(cfgJSON); err != nil {
		return nil, errs.DependencyInit(fmt.Sprintf("init_rate_limiter[%s]", w.ID), err)
	}
	return limiter, nil
}

// rewriteBucketKey overrides bucket_key in a rate_limiter_config JSON
// document, discarding whatever value (if any) was present in the file
// — spec.md §4.1 requires this override so every window gets a
// distinct, deterministic bucket.
func rewriteBucketKey(configJSON, bucketKey string) (string, error) {
	var fields map[string]interface{}
	if configJSON == "" {
		fields = map[string]interface{}{}
	} else if err := json.Unmarshal([]byte(configJSON), &fields); err != nil {
		return "", fmt.Errorf("invalid rate_limiter_config: %w", err)
	}
	fields["bucket_key"] = bucketKey
	out, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
