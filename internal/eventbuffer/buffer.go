// Package eventbuffer implements the bounded single-producer,
// single-consumer channel carrying book and trade events from the
// MatchingLoop to the EventWriter.
package eventbuffer

import (
	"context"

	"github.com/anvil-exchange/anvil/internal/anvil"
)

// Buffer is a bounded SPSC ring built on a buffered channel. The
// MatchingLoop is the sole producer; the EventWriter is the sole
// consumer. TryPublish blocks when full — the MatchingLoop accepts this as
// its backpressure mechanism (spec section 4.4/4.5): events are the
// durable record and must never be dropped.
type Buffer struct {
	events chan anvil.Event
}

// New constructs a buffer with the given capacity (spec's
// event_buffer_size).
func New(capacity int) *Buffer {
	return &Buffer{events: make(chan anvil.Event, capacity)}
}

// TryPublish attempts a non-blocking send first; if the buffer is full it
// falls back to a blocking send, which parks the calling goroutine until
// the EventWriter drains space. A buffered channel send under a full
// buffer already does exactly the "spin-then-park" spec section 4.5 asks
// for via the Go scheduler, so no hand-rolled spin loop is introduced.
func (b *Buffer) TryPublish(ctx context.Context, ev anvil.Event) error {
	select {
	case b.events <- ev:
		return nil
	default:
	}

	select {
	case b.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume blocks until an event is available or ctx is cancelled. Only
// the EventWriter calls this.
func (b *Buffer) Consume(ctx context.Context) (anvil.Event, bool) {
	select {
	case ev := <-b.events:
		return ev, true
	case <-ctx.Done():
		return anvil.Event{}, false
	}
}

// Len reports current occupancy, for diagnostics only.
func (b *Buffer) Len() int {
	return len(b.events)
}

// Cap reports the configured capacity.
func (b *Buffer) Cap() int {
	return cap(b.events)
}
