package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInMemoryBrokerSendReceiveAck(t *testing.T) {
	b := NewBroker()
	b.Publish("buffer", "tagA", "key1", []byte("hello"))

	consumer := b.Consumer("buffer")
	ctx := context.Background()

	msgs, err := consumer.ReceiveBatch(ctx, 10, 50*time.Millisecond, time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "tagA", msgs[0].Tag)
	require.NotEmpty(t, msgs[0].ReceiptHandle)

	require.NoError(t, consumer.Ack(ctx, msgs[0]))
	require.Error(t, consumer.Ack(ctx, msgs[0]), "double ack should fail")
}

func TestInMemoryBrokerReceiveEmptyWaitsAwaitDuration(t *testing.T) {
	b := NewBroker()
	consumer := b.Consumer("buffer")

	start := time.Now()
	msgs, err := consumer.ReceiveBatch(context.Background(), 10, 40*time.Millisecond, time.Second)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Empty(t, msgs)
	require.GreaterOrEqual(t, elapsed, 35*time.Millisecond)
}

func TestInMemoryBrokerRedeliversUnackedAfterInvisibleDuration(t *testing.T) {
	b := NewBroker()
	b.Publish("buffer", "tag", "key", []byte("body"))
	consumer := b.Consumer("buffer")
	ctx := context.Background()

	msgs, err := consumer.ReceiveBatch(ctx, 10, time.Second, 20*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	// Do not ack; wait past the invisibility window.
	time.Sleep(60 * time.Millisecond)

	redelivered, err := consumer.ReceiveBatch(ctx, 10, 50*time.Millisecond, time.Second)
	require.NoError(t, err)
	require.Len(t, redelivered, 1)
	require.Equal(t, "tag", redelivered[0].Tag)
}

func TestInMemoryBrokerSendAndDrain(t *testing.T) {
	b := NewBroker()
	producer := b.Producer("target")
	require.NoError(t, producer.Send(context.Background(), Message{Topic: "target", Tag: "t", Body: []byte("x")}))

	drained := b.Drain("target")
	require.Len(t, drained, 1)
	require.Equal(t, []byte("x"), drained[0].Body)
}
