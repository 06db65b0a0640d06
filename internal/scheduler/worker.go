package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"bufferbridge/internal/broker"
	"bufferbridge/internal/config"
	"bufferbridge/internal/errs"
	"bufferbridge/internal/ratelimit"
	"bufferbridge/internal/recovery"
)

const pacingDelay = 200 * time.Millisecond

// runWorker executes the decide-pull-forward-ack loop from spec.md §4.3
// until ctx is cancelled. Each iteration's work runs under a single
// read-lease covering the whole iteration (window check, rate-limit
// check, receive, forward, ack): the snapshot's broker clients and
// shared limiter are reference-counted resources that must stay alive
// for the duration of the iteration that captured them (spec.md §3,
// "Ownership"), not just up to the point they were copied out. The
// lease is released right before the iteration's pacing sleep, which
// never needs it.
//
// Each iteration runs under recovery.Guard rather than wrapping the
// whole loop once: a panic inside one iteration (a bad rate limiter, a
// misbehaving broker client) is logged and the loop keeps going instead
// of silently losing the worker slot.
func (s *Scheduler) runWorker(ctx context.Context, workerID int) {
	logger := s.logger.With("scheduler", s.name, "worker", workerID)
	guardName := fmt.Sprintf("%s/worker-%d", s.name, workerID)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		sleepFor := pacingDelay
		recovery.Guard(logger, guardName, func() {
			sleepFor = s.runIteration(ctx, logger)
		})
		if !sleepOrDone(ctx, sleepFor) {
			return
		}
	}
}

// runIteration performs exactly one decide-pull-forward-ack pass and
// returns how long the caller should sleep before the next one.
func (s *Scheduler) runIteration(ctx context.Context, logger *slog.Logger) time.Duration {
	snap, release, ok := s.cell.ReadLease()
	if !ok {
		return s.idleInterval()
	}
	defer release()

	window, limiter := selectWindow(snap.Windows)
	if window == nil {
		s.metrics.WindowClosedSkips.WithLabelValues(s.name).Inc()
		return snap.SchedulerInterval
	}

	if limiter != nil {
		allowed := limiter.Allowed(ctx)
		if limiter.LastCallFailedOpen() {
			s.metrics.SharedLimiterErrors.WithLabelValues(s.name).Inc()
			logger.Warn("shared rate limiter failed open", "window", window.ID)
		}
		if !allowed {
			kind := "local"
			if window.RateLimiterType == "shared" {
				kind = "shared"
			}
			s.metrics.RateLimitDenials.WithLabelValues(s.name, kind).Inc()
			return pacingDelay
		}
	}

	msgs, err := snap.Consumer.ReceiveBatch(ctx, snap.BatchSize, snap.AwaitDuration, snap.InvisibleDuration)
	if err != nil {
		wrapped := errs.TransientTransport("receive_batch", err)
		logger.Warn("upstream receive failed", "err", wrapped)
		s.metrics.ReceiveFailures.WithLabelValues(s.name).Inc()
		return snap.SchedulerInterval
	}
	if len(msgs) == 0 {
		return snap.SchedulerInterval
	}

	s.metrics.MessagesReceived.WithLabelValues(s.name).Add(float64(len(msgs)))
	s.forwardBatch(ctx, logger, snap.Consumer, snap.Producer, msgs)

	return pacingDelay
}

// forwardBatch sends each received message downstream and, only on
// send success, acknowledges it upstream (spec.md §4.3 steps 5-6). A
// failed send leaves the source message unacked so upstream redelivery
// retries it; a failed ack is logged only — the next redelivery may
// produce a duplicate downstream send, which is the intended
// at-least-once semantics.
func (s *Scheduler) forwardBatch(ctx context.Context, logger *slog.Logger, consumer broker.Consumer, producer broker.Producer, msgs []broker.Message) {
	for _, msg := range msgs {
		outbound := broker.Message{
			Tag:  msg.Tag,
			Keys: msg.Keys,
			Body: msg.Body,
		}

		if err := producer.Send(ctx, outbound); err != nil {
			wrapped := errs.TransientTransport("send", err)
			logger.Warn("downstream send failed, leaving message unacked", "err", wrapped)
			s.metrics.SendFailures.WithLabelValues(s.name).Inc()
			continue
		}
		s.metrics.MessagesForwarded.WithLabelValues(s.name).Inc()

		if err := consumer.Ack(ctx, msg); err != nil {
			wrapped := errs.TransientTransport("ack", err)
			logger.Warn("upstream ack failed, redelivery may duplicate downstream send", "err", wrapped)
			s.metrics.AckFailures.WithLabelValues(s.name).Inc()
			continue
		}
		s.metrics.MessagesAcked.WithLabelValues(s.name).Inc()
	}
}

func (s *Scheduler) idleInterval() time.Duration {
	return pacingDelay
}

// selectWindow linear-scans the sorted window list for the first
// enabled window containing the current wall-clock time (spec.md §4.3
// step 2). Window.Contains is inclusive on both ends.
func selectWindow(windows []resolvedWindow) (*config.TimeWindow, ratelimit.Limiter) {
	now := wallClockHHMM(time.Now())
	for i := range windows {
		if windows[i].window.Contains(now) {
			return &windows[i].window, windows[i].limiter
		}
	}
	return nil, nil
}

// wallClockHHMM encodes a local time-of-day as hour*100+minute, the
// short-integer encoding time windows are matched against.
func wallClockHHMM(t time.Time) int {
	return t.Hour()*100 + t.Minute()
}

// sleepOrDone sleeps for d, returning false early (without sleeping the
// full duration) if ctx is cancelled first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
