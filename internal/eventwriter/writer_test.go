package eventwriter_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anvil-exchange/anvil/internal/anvil"
	"github.com/anvil-exchange/anvil/internal/eventbuffer"
	"github.com/anvil-exchange/anvil/internal/eventwriter"
)

type fakeSink struct {
	mu          sync.Mutex
	batches     [][]anvil.Event
	failNext    int
	failWith    error
}

func (f *fakeSink) SubmitTrades(ctx context.Context, batch []anvil.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return f.failWith
	}
	cp := make([]anvil.Event, len(batch))
	copy(cp, batch)
	f.batches = append(f.batches, cp)
	return nil
}

func (f *fakeSink) snapshot() [][]anvil.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]anvil.Event, len(f.batches))
	copy(out, f.batches)
	return out
}

func TestWriter_FlushesOnBatchSize(t *testing.T) {
	buffer := eventbuffer.New(16)
	sink := &fakeSink{}
	w := eventwriter.New(buffer, sink, 2, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); _ = w.Run(ctx) }()

	publishCtx := context.Background()
	require.NoError(t, buffer.TryPublish(publishCtx, anvil.Event{Kind: anvil.EventTrade, Sequence: 1}))
	require.NoError(t, buffer.TryPublish(publishCtx, anvil.Event{Kind: anvil.EventTrade, Sequence: 2}))

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 1
	}, time.Second, time.Millisecond)

	batches := sink.snapshot()
	require.Len(t, batches[0], 2)
	assert.Equal(t, uint64(1), batches[0][0].Sequence)
	assert.Equal(t, uint64(2), batches[0][1].Sequence)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writer did not stop")
	}
}

func TestWriter_FlushesOnBatchTimeout(t *testing.T) {
	buffer := eventbuffer.New(16)
	sink := &fakeSink{}
	w := eventwriter.New(buffer, sink, 100, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { defer close(done); _ = w.Run(ctx) }()

	require.NoError(t, buffer.TryPublish(context.Background(), anvil.Event{Kind: anvil.EventTrade, Sequence: 1}))

	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 1
	}, time.Second, time.Millisecond)

	batches := sink.snapshot()
	require.Len(t, batches[0], 1, "a partial batch must flush once the timeout elapses")

	cancel()
	<-done
}

func TestWriter_RetriesOnSinkFailure(t *testing.T) {
	buffer := eventbuffer.New(16)
	sink := &fakeSink{failNext: 2, failWith: errors.New("sink unreachable")}
	w := eventwriter.New(buffer, sink, 1, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { defer close(done); _ = w.Run(ctx) }()

	require.NoError(t, buffer.TryPublish(context.Background(), anvil.Event{Kind: anvil.EventTrade, Sequence: 1}))

	// Two failures mean two default exponential-backoff waits before the
	// third attempt: about 1.25s together on average, at most about 1.9s.
	require.Eventually(t, func() bool {
		return len(sink.snapshot()) == 1
	}, 5*time.Second, time.Millisecond, "writer must retry past transient sink failures rather than dropping the batch")

	cancel()
	<-done
}

func TestWriter_GracefulShutdownFlushesPartialBatch(t *testing.T) {
	buffer := eventbuffer.New(16)
	sink := &fakeSink{}
	w := eventwriter.New(buffer, sink, 100, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); _ = w.Run(ctx) }()

	require.NoError(t, buffer.TryPublish(context.Background(), anvil.Event{Kind: anvil.EventTrade, Sequence: 1}))
	time.Sleep(20 * time.Millisecond) // let the writer pick it up into an in-progress batch

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writer did not stop")
	}

	batches := sink.snapshot()
	require.Len(t, batches, 1, "partial batch must be flushed on shutdown, never dropped")
}
