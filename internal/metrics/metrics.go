// Package metrics exposes the Prometheus instrumentation the relay's
// components report into, following the promauto registration pattern.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every counter and gauge the scheduling engine reports.
// A single instance is shared across all scheduler instances in a
// process; the scheduler name is carried as a label.
type Metrics struct {
	MessagesReceived    *prometheus.CounterVec
	MessagesForwarded   *prometheus.CounterVec
	MessagesAcked       *prometheus.CounterVec
	SendFailures        *prometheus.CounterVec
	AckFailures         *prometheus.CounterVec
	ReceiveFailures     *prometheus.CounterVec
	WindowClosedSkips   *prometheus.CounterVec
	RateLimitDenials    *prometheus.CounterVec // labeled scheduler, kind=local|shared
	SharedLimiterErrors *prometheus.CounterVec
	HotReloadSuccesses  *prometheus.CounterVec
	HotReloadFailures   *prometheus.CounterVec
	ActiveWorkers       *prometheus.GaugeVec
}

// New registers and returns the metric set against reg. Pass
// prometheus.DefaultRegisterer for the process-wide default registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	schedulerLabel := []string{"scheduler"}

	return &Metrics{
		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bufferbridge_messages_received_total",
			Help: "Messages pulled from the upstream buffer topic.",
		}, schedulerLabel),
		MessagesForwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bufferbridge_messages_forwarded_total",
			Help: "Messages successfully sent to the downstream target topic.",
		}, schedulerLabel),
		MessagesAcked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bufferbridge_messages_acked_total",
			Help: "Upstream messages acknowledged after a successful forward.",
		}, schedulerLabel),
		SendFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bufferbridge_send_failures_total",
			Help: "Downstream send failures; the source message is left unacked.",
		}, schedulerLabel),
		AckFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bufferbridge_ack_failures_total",
			Help: "Upstream ack failures after a successful send; expect a downstream duplicate on redelivery.",
		}, schedulerLabel),
		ReceiveFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bufferbridge_receive_failures_total",
			Help: "Upstream receive-batch transport errors.",
		}, schedulerLabel),
		WindowClosedSkips: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bufferbridge_window_closed_skips_total",
			Help: "Worker iterations that found no open time window.",
		}, schedulerLabel),
		RateLimitDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bufferbridge_rate_limit_denials_total",
			Help: "Iterations paced off by a rate limiter, labeled by limiter kind.",
		}, []string{"scheduler", "kind"}),
		SharedLimiterErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bufferbridge_shared_limiter_errors_total",
			Help: "Shared rate limiter transport errors that were failed open.",
		}, schedulerLabel),
		HotReloadSuccesses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bufferbridge_hot_reload_successes_total",
			Help: "Config file reloads that published a new snapshot.",
		}, schedulerLabel),
		HotReloadFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bufferbridge_hot_reload_failures_total",
			Help: "Config file reloads that failed validation and kept the previous snapshot.",
		}, schedulerLabel),
		ActiveWorkers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bufferbridge_active_workers",
			Help: "Currently running worker goroutines.",
		}, schedulerLabel),
	}
}
