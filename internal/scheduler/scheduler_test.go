package scheduler

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"bufferbridge/internal/broker"
	"bufferbridge/internal/metrics"
)

func testMetrics(t *testing.T) *metrics.Metrics {
	t.Helper()
	return metrics.New(prometheus.NewRegistry())
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "scheduler.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func alwaysOpenWindowConfig(rateLimiterConfig string) string {
	return fmt.Sprintf(`
worker_threads: 2
scheduler_interval_seconds: 1
rocketmq:
  buffer_consumer_group: g
  buffer_consumer_access_point: a
  buffer_consumer_topic: buffer
  buffer_consumer_await_duration: 1
  buffer_consumer_batch_size: 10
  buffer_consumer_invisible_duration: 30
  target_producer_access_point: a
  target_producer_topic: target
time_windows:
  - id: always
    start: "00:00"
    end: "23:59"
    enable: true
    rate_limiter_type: local
    rate_limiter_config: '%s'
`, rateLimiterConfig)
}

func closedWindowConfig() string {
	return `
worker_threads: 1
scheduler_interval_seconds: 1
rocketmq:
  buffer_consumer_group: g
  buffer_consumer_access_point: a
  buffer_consumer_topic: buffer
  buffer_consumer_await_duration: 1
  buffer_consumer_batch_size: 10
  buffer_consumer_invisible_duration: 30
  target_producer_access_point: a
  target_producer_topic: target
time_windows:
  - id: never
    start: "00:00"
    end: "00:01"
    enable: false
`
}

func TestSchedulerHappyPathForwardsWithinOpenWindow(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir, alwaysOpenWindowConfig(`{"rate":1000,"burst":1000}`))

	mem := broker.NewBroker()
	for i := 0; i < 20; i++ {
		mem.Publish("buffer", "tag", fmt.Sprintf("k%d", i), []byte(fmt.Sprintf("body-%d", i)))
	}

	s := New("happy-path", broker.NewInMemoryFactory(mem), nil, testMetrics(t))
	require.NoError(t, s.Init(configPath))
	require.NoError(t, s.Start())
	defer s.Stop()

	var forwarded []broker.Message
	require.Eventually(t, func() bool {
		forwarded = append(forwarded, mem.Drain("target")...)
		return len(forwarded) >= 20
	}, 5*time.Second, 20*time.Millisecond, "expected all 20 messages to be forwarded")
}

func TestSchedulerDoesNotForwardOutsideWindow(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir, closedWindowConfig())

	mem := broker.NewBroker()
	mem.Publish("buffer", "tag", "k", []byte("body"))

	s := New("closed-window", broker.NewInMemoryFactory(mem), nil, testMetrics(t))
	require.NoError(t, s.Init(configPath))
	require.NoError(t, s.Start())
	defer s.Stop()

	time.Sleep(150 * time.Millisecond)
	require.Empty(t, mem.Drain("target"))
	require.Len(t, mem.Drain("buffer"), 1, "the message should remain on the upstream topic, unacked")
}

func TestSchedulerRateLimitedWindowForwards(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir, alwaysOpenWindowConfig(`{"rate":5,"burst":1}`))

	mem := broker.NewBroker()
	for i := 0; i < 3; i++ {
		mem.Publish("buffer", "tag", fmt.Sprintf("k%d", i), []byte("body"))
	}

	s := New("rate-limited", broker.NewInMemoryFactory(mem), nil, testMetrics(t))
	require.NoError(t, s.Init(configPath))
	require.NoError(t, s.Start())
	defer s.Stop()

	require.Eventually(t, func() bool {
		return len(mem.Drain("target")) >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerStartIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir, closedWindowConfig())
	mem := broker.NewBroker()

	s := New("idempotent-start", broker.NewInMemoryFactory(mem), nil, testMetrics(t))
	require.NoError(t, s.Init(configPath))
	require.NoError(t, s.Start())
	require.NoError(t, s.Start(), "a second Start must be a no-op, not an error")
	s.Stop()
}

func TestSchedulerStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir, closedWindowConfig())
	mem := broker.NewBroker()

	s := New("idempotent-stop", broker.NewInMemoryFactory(mem), nil, testMetrics(t))
	require.NoError(t, s.Init(configPath))
	require.NoError(t, s.Start())
	s.Stop()
	s.Stop() // must not panic or block
}

func TestSchedulerHotReloadDisablesWindow(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir, alwaysOpenWindowConfig(`{"rate":1000,"burst":1000}`))

	mem := broker.NewBroker()
	s := New("hot-reload", broker.NewInMemoryFactory(mem), nil, testMetrics(t))
	require.NoError(t, s.Init(configPath))
	require.NoError(t, s.Start())
	defer s.Stop()

	mem.Publish("buffer", "tag", "k1", []byte("before-reload"))
	require.Eventually(t, func() bool {
		return len(mem.Drain("target")) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(configPath, []byte(closedWindowConfig()), 0o644))
	require.NoError(t, s.ReloadNow())

	// A worker iteration that leased the old snapshot before the reload
	// keeps it until it ends, and its receive can wait the full 1s await
	// duration; let such an iteration finish before publishing again.
	time.Sleep(1200 * time.Millisecond)

	mem.Publish("buffer", "tag", "k2", []byte("after-reload"))
	time.Sleep(150 * time.Millisecond)
	require.Empty(t, mem.Drain("target"), "window closed after reload, nothing further should forward")
}
