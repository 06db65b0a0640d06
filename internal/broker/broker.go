// Package broker defines the contract the scheduling engine programs
// against for the upstream ("buffer") and downstream ("target") message
// brokers. The concrete network client is explicitly out of scope for
// this repository (see spec.md §1) — only the interface and an in-memory
// double used by tests and demo mode live here.
package broker

import (
	"context"
	"time"
)

// Message is the unit of transfer between buffer and target topics. Only
// tag, keys, and body are copied when forwarding; ReceiptHandle is
// upstream-only bookkeeping and is never propagated downstream.
type Message struct {
	Topic         string
	Tag           string
	Keys          string
	Body          []byte
	ReceiptHandle string
}

// Consumer is the upstream ("buffer topic") read side.
type Consumer interface {
	// ReceiveBatch returns up to batchSize messages, blocking up to
	// awaitDuration if none are immediately available. A returned message
	// stays invisible to other consumers for invisibleDuration unless
	// acked first.
	ReceiveBatch(ctx context.Context, batchSize int, awaitDuration, invisibleDuration time.Duration) ([]Message, error)

	// Ack permanently removes a received message. Acking an unknown or
	// already-expired receipt handle is an error.
	Ack(ctx context.Context, msg Message) error

	Close() error
}

// Producer is the downstream ("target topic") write side.
type Producer interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}
