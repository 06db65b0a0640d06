package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validSchedulerYAML() []byte {
	return []byte(`
worker_threads: 4
scheduler_interval_seconds: 5
rocketmq:
  buffer_consumer_group: g1
  buffer_consumer_access_point: 127.0.0.1:9876
  buffer_consumer_topic: buffer-topic
  buffer_consumer_await_duration: 3
  buffer_consumer_batch_size: 10
  buffer_consumer_invisible_duration: 30
  target_producer_access_point: 127.0.0.1:9876
  target_producer_topic: target-topic
time_windows:
  - id: morning
    start: "09:00"
    end: "17:00"
    enable: true
    rate_limiter_type: local
    rate_limiter_config: '{"rate":10,"burst":10}'
`)
}

func TestParseSchedulerConfigHappyPath(t *testing.T) {
	cfg, err := ParseSchedulerConfig(validSchedulerYAML())
	require.NoError(t, err)
	require.Equal(t, 4, cfg.WorkerThreads)
	require.Len(t, cfg.TimeWindows, 1)
	require.Equal(t, 900, cfg.TimeWindows[0].Start)
	require.Equal(t, 1700, cfg.TimeWindows[0].End)
}

func TestParseSchedulerConfigZeroWorkerThreadsResolvesToNumCPU(t *testing.T) {
	doc := []byte(`
scheduler_interval_seconds: 1
rocketmq:
  buffer_consumer_group: g
  buffer_consumer_access_point: a
  buffer_consumer_topic: t
  buffer_consumer_await_duration: 1
  buffer_consumer_batch_size: 1
  buffer_consumer_invisible_duration: 11
  target_producer_access_point: a
  target_producer_topic: t
`)
	cfg, err := ParseSchedulerConfig(doc)
	require.NoError(t, err)
	require.Greater(t, cfg.WorkerThreads, 0)
}

func TestParseSchedulerConfigMissingRequiredKey(t *testing.T) {
	doc := []byte(`
rocketmq:
  buffer_consumer_group: g
  buffer_consumer_access_point: a
  buffer_consumer_topic: t
  buffer_consumer_await_duration: 1
  buffer_consumer_batch_size: 1
  buffer_consumer_invisible_duration: 11
  target_producer_access_point: a
  target_producer_topic: t
`)
	_, err := ParseSchedulerConfig(doc)
	require.Error(t, err)
}

func TestParseSchedulerConfigInvisibleDurationMustExceedTen(t *testing.T) {
	doc := []byte(`
scheduler_interval_seconds: 1
rocketmq:
  buffer_consumer_group: g
  buffer_consumer_access_point: a
  buffer_consumer_topic: t
  buffer_consumer_await_duration: 1
  buffer_consumer_batch_size: 1
  buffer_consumer_invisible_duration: 10
  target_producer_access_point: a
  target_producer_topic: t
`)
	_, err := ParseSchedulerConfig(doc)
	require.Error(t, err, "invisible_duration of exactly 10 must be rejected (strictly greater than 10)")
}

func TestWindowAdjacencyIsRejected(t *testing.T) {
	raw := []rawTimeWindow{
		{ID: "a", Start: "09:00", End: "10:00", Enable: true},
		{ID: "b", Start: "10:00", End: "11:00", Enable: true},
	}
	_, err := resolveWindows(raw)
	require.Error(t, err)
}

func TestWindowStrictOverlapIsRejected(t *testing.T) {
	raw := []rawTimeWindow{
		{ID: "a", Start: "09:00", End: "10:30", Enable: true},
		{ID: "b", Start: "10:00", End: "11:00", Enable: true},
	}
	_, err := resolveWindows(raw)
	require.Error(t, err)
}

func TestWindowGapIsAccepted(t *testing.T) {
	raw := []rawTimeWindow{
		{ID: "a", Start: "09:00", End: "09:59", Enable: true},
		{ID: "b", Start: "10:00", End: "11:00", Enable: true},
	}
	windows, err := resolveWindows(raw)
	require.NoError(t, err)
	require.Len(t, windows, 2)
}

func TestWindowDuplicateIDRejected(t *testing.T) {
	raw := []rawTimeWindow{
		{ID: "a", Start: "00:00", End: "00:01", Enable: true},
		{ID: "a", Start: "01:00", End: "02:00", Enable: true},
	}
	_, err := resolveWindows(raw)
	require.Error(t, err)
}

func TestWindowBoundaryMidnightToOneMinute(t *testing.T) {
	raw := []rawTimeWindow{{ID: "a", Start: "00:00", End: "00:01", Enable: true}}
	windows, err := resolveWindows(raw)
	require.NoError(t, err)
	require.Equal(t, 0, windows[0].Start)
	require.Equal(t, 1, windows[0].End)
}

func TestWindowEndCannotExceedStartEqual(t *testing.T) {
	raw := []rawTimeWindow{{ID: "a", Start: "12:00", End: "12:00", Enable: true}}
	_, err := resolveWindows(raw)
	require.Error(t, err, "start must be strictly before end")
}

func TestWindowContainsIsInclusiveOnBothEnds(t *testing.T) {
	w := TimeWindow{ID: "a", Start: 900, End: 1700, Enabled: true}
	require.True(t, w.Contains(900))
	require.True(t, w.Contains(1700))
	require.True(t, w.Contains(1200))
	require.False(t, w.Contains(899))
	require.False(t, w.Contains(1701))
}

func TestWindowDisabledNeverMatches(t *testing.T) {
	w := TimeWindow{ID: "a", Start: 0, End: 2359, Enabled: false}
	require.False(t, w.Contains(1200))
}

func TestSchedulerConfigRoundTrip(t *testing.T) {
	cfg, err := ParseSchedulerConfig(validSchedulerYAML())
	require.NoError(t, err)

	data, err := cfg.Marshal()
	require.NoError(t, err)

	reparsed, err := ParseSchedulerConfig(data)
	require.NoError(t, err)

	require.Equal(t, cfg.WorkerThreads, reparsed.WorkerThreads)
	require.Equal(t, cfg.SchedulerIntervalSeconds, reparsed.SchedulerIntervalSeconds)
	require.Equal(t, cfg.Upstream, reparsed.Upstream)
	require.Equal(t, cfg.Downstream, reparsed.Downstream)
	require.Equal(t, cfg.TimeWindows, reparsed.TimeWindows)
}

func TestInvalidClockFormatRejected(t *testing.T) {
	raw := []rawTimeWindow{{ID: "a", Start: "9:00", End: "17:00", Enable: true}}
	_, err := resolveWindows(raw)
	require.Error(t, err, "hour must be zero-padded two digits")
}

func TestClockHourOutOfRangeRejected(t *testing.T) {
	raw := []rawTimeWindow{{ID: "a", Start: "24:00", End: "24:30", Enable: true}}
	_, err := resolveWindows(raw)
	require.Error(t, err)
}
