package eventbuffer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anvil-exchange/anvil/internal/anvil"
	"github.com/anvil-exchange/anvil/internal/eventbuffer"
)

func TestTryPublish_FillsToCapacity(t *testing.T) {
	b := eventbuffer.New(2)
	ctx := context.Background()

	require.NoError(t, b.TryPublish(ctx, anvil.Event{Kind: anvil.EventTrade, Sequence: 1}))
	require.NoError(t, b.TryPublish(ctx, anvil.Event{Kind: anvil.EventTrade, Sequence: 2}))
	assert.Equal(t, 2, b.Len())
}

func TestTryPublish_BlocksWhenFullUntilConsumed(t *testing.T) {
	b := eventbuffer.New(1)
	ctx := context.Background()
	require.NoError(t, b.TryPublish(ctx, anvil.Event{Kind: anvil.EventTrade, Sequence: 1}))

	published := make(chan struct{})
	go func() {
		_ = b.TryPublish(ctx, anvil.Event{Kind: anvil.EventTrade, Sequence: 2})
		close(published)
	}()

	select {
	case <-published:
		t.Fatal("TryPublish must block while the buffer is full")
	case <-time.After(20 * time.Millisecond):
	}

	_, ok := b.Consume(ctx)
	require.True(t, ok)

	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("TryPublish must unblock once space frees up")
	}
}

func TestTryPublish_RespectsContextCancellation(t *testing.T) {
	b := eventbuffer.New(1)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, b.TryPublish(context.Background(), anvil.Event{}))

	cancel()
	err := b.TryPublish(ctx, anvil.Event{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConsume_ReturnsEventsInOrder(t *testing.T) {
	b := eventbuffer.New(4)
	ctx := context.Background()
	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, b.TryPublish(ctx, anvil.Event{Kind: anvil.EventTrade, Sequence: i}))
	}
	for i := uint64(1); i <= 3; i++ {
		ev, ok := b.Consume(ctx)
		require.True(t, ok)
		assert.Equal(t, i, ev.Sequence)
	}
}
