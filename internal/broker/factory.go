package broker

import "bufferbridge/internal/config"

// InMemoryFactory builds Consumer/Producer handles against a single
// in-process Broker, keyed by topic name. It is the stand-in for the
// real broker client library (out of scope per spec.md §1) used by
// tests and by cmd/relay, which has no other broker client; -demo only
// seeds it with sample traffic.
type InMemoryFactory struct {
	Broker *Broker
}

func NewInMemoryFactory(b *Broker) *InMemoryFactory {
	return &InMemoryFactory{Broker: b}
}

func (f *InMemoryFactory) NewConsumer(upstream config.BrokerUpstream) (Consumer, error) {
	return f.Broker.Consumer(upstream.Topic), nil
}

func (f *InMemoryFactory) NewProducer(downstream config.BrokerDownstream) (Producer, error) {
	return f.Broker.Producer(downstream.Topic), nil
}
