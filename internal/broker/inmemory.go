package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Broker is an in-memory, goroutine-safe double standing in for a real
// network message broker. It backs every scheduler/worker test and the
// dependency-free `-demo` run mode. Messages are organized by topic;
// Consumer and Producer handles are bound to one topic each via
// Broker.Consumer / Broker.Producer, mirroring how a real client library
// binds a consumer group to a topic and a producer to an access point.
type Broker struct {
	mu     sync.Mutex
	topics map[string]*topic
}

// NewBroker creates an empty in-memory broker.
func NewBroker() *Broker {
	return &Broker{topics: make(map[string]*topic)}
}

func (b *Broker) topicFor(name string) *topic {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[name]
	if !ok {
		t = newTopic()
		b.topics[name] = t
	}
	return t
}

// Publish seeds the named topic with a message, as if produced by an
// external upstream writer. It is a test/demo helper, not part of the
// Consumer/Producer contract.
func (b *Broker) Publish(topicName, tag, keys string, body []byte) {
	b.topicFor(topicName).publish(Message{Topic: topicName, Tag: tag, Keys: keys, Body: body})
}

// Drain returns and removes every message currently sitting in topicName,
// whether pending or in flight. It is a test helper for asserting on
// what a Producer has written downstream.
func (b *Broker) Drain(topicName string) []Message {
	return b.topicFor(topicName).drainAll()
}

// Consumer returns a Consumer bound to topicName.
func (b *Broker) Consumer(topicName string) Consumer {
	return &consumerHandle{t: b.topicFor(topicName)}
}

// Producer returns a Producer bound to topicName.
func (b *Broker) Producer(topicName string) Producer {
	return &producerHandle{t: b.topicFor(topicName)}
}

type inflightEntry struct {
	msg     Message
	timer   *time.Timer
}

type topic struct {
	mu       sync.Mutex
	pending  []Message
	inflight map[string]*inflightEntry
	notify   chan struct{}
}

func newTopic() *topic {
	return &topic{
		inflight: make(map[string]*inflightEntry),
		notify:   make(chan struct{}, 1),
	}
}

func (t *topic) publish(msg Message) {
	t.mu.Lock()
	t.pending = append(t.pending, msg)
	t.mu.Unlock()
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

func (t *topic) requeue(handle string) {
	t.mu.Lock()
	entry, ok := t.inflight[handle]
	if ok {
		delete(t.inflight, handle)
		entry.msg.ReceiptHandle = ""
		t.pending = append(t.pending, entry.msg)
	}
	t.mu.Unlock()
}

func (t *topic) receiveBatch(ctx context.Context, batchSize int, awaitDuration, invisibleDuration time.Duration) ([]Message, error) {
	deadline := time.Now().Add(awaitDuration)
	for {
		t.mu.Lock()
		if len(t.pending) > 0 {
			n := batchSize
			if n > len(t.pending) {
				n = len(t.pending)
			}
			batch := t.pending[:n]
			t.pending = t.pending[n:]
			out := make([]Message, n)
			for i, m := range batch {
				handle := uuid.NewString()
				m.ReceiptHandle = handle
				out[i] = m
				entry := &inflightEntry{msg: m}
				handleCopy := handle
				entry.timer = time.AfterFunc(invisibleDuration, func() {
					t.requeue(handleCopy)
				})
				t.inflight[handle] = entry
			}
			t.mu.Unlock()
			return out, nil
		}
		t.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		wait := remaining
		const pollInterval = 10 * time.Millisecond
		if wait > pollInterval {
			wait = pollInterval
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.notify:
		case <-time.After(wait):
		}
	}
}

func (t *topic) ack(handle string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.inflight[handle]
	if !ok {
		return fmt.Errorf("broker: unknown or expired receipt handle %q", handle)
	}
	entry.timer.Stop()
	delete(t.inflight, handle)
	return nil
}

func (t *topic) drainAll() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := append([]Message{}, t.pending...)
	for _, e := range t.inflight {
		out = append(out, e.msg)
	}
	t.pending = nil
	for h, e := range t.inflight {
		e.timer.Stop()
		delete(t.inflight, h)
	}
	return out
}

type consumerHandle struct{ t *topic }

func (c *consumerHandle) ReceiveBatch(ctx context.Context, batchSize int, awaitDuration, invisibleDuration time.Duration) ([]Message, error) {
	if batchSize <= 0 {
		return nil, nil
	}
	return c.t.receiveBatch(ctx, batchSize, awaitDuration, invisibleDuration)
}

func (c *consumerHandle) Ack(ctx context.Context, msg Message) error {
	return c.t.ack(msg.ReceiptHandle)
}

func (c *consumerHandle) Close() error { return nil }

type producerHandle struct{ t *topic }

func (p *producerHandle) Send(ctx context.Context, msg Message) error {
	p.t.publish(Message{Topic: msg.Topic, Tag: msg.Tag, Keys: msg.Keys, Body: msg.Body})
	return nil
}

func (p *producerHandle) Close() error { return nil }
