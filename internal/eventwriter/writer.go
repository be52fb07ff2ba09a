// Package eventwriter implements the single consumer thread that batches
// events off the EventBuffer and forwards them to the downstream
// settlement sink, owning batching policy and backpressure propagation
// (spec section 4.6).
package eventwriter

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/anvil-exchange/anvil/internal/anvil"
	"github.com/anvil-exchange/anvil/internal/eventbuffer"
	"github.com/anvil-exchange/anvil/internal/eventsink"
)

// Writer accumulates events into batches bounded by BatchSize or
// BatchTimeout, whichever comes first, and forwards each batch to Sink in
// production order. Batches are retried with bounded exponential backoff
// on sink failure; Writer never drops an event. If the sink stays
// unreachable, Writer simply stops draining the buffer while it retries —
// the buffer fills, and MatchingLoop.publish's blocking TryPublish
// propagates that as backpressure all the way to the IngressQueue, exactly
// as spec section 4.6/7 mandates ("continue buffering up to EventBuffer
// capacity, after which upstream backpressure halts matching").
type Writer struct {
	buffer       *eventbuffer.Buffer
	sink         eventsink.EventSink
	batchSize    int
	batchTimeout time.Duration
	logger       zerolog.Logger
}

// New constructs a Writer. batchSize and batchTimeout are the
// event_batch_size and event_batch_timeout_ms config values.
func New(buffer *eventbuffer.Buffer, sink eventsink.EventSink, batchSize int, batchTimeout time.Duration) *Writer {
	return &Writer{
		buffer:       buffer,
		sink:         sink,
		batchSize:    batchSize,
		batchTimeout: batchTimeout,
		logger:       log.With().Str("component", "eventwriter").Logger(),
	}
}

// Run drains the buffer until ctx is cancelled. On cancellation it sends
// the batch it was collecting with a single attempt (the retry loop stops
// on the cancelled ctx) and returns; events still waiting in the buffer at
// that moment are not sent.
func (w *Writer) Run(ctx context.Context) error {
	w.logger.Info().Msg("event writer starting")
	defer w.logger.Info().Msg("event writer stopped")

	for {
		batch, shuttingDown := w.collectBatch(ctx)
		if len(batch) > 0 {
			if err := w.sendWithRetry(ctx, batch); err != nil {
				return err
			}
		}
		if shuttingDown {
			return nil
		}
	}
}

// collectBatch gathers events until BatchSize is reached, BatchTimeout
// elapses since the first event in the batch, or ctx is cancelled. It
// returns whatever was collected (possibly empty) and whether the caller
// is shutting down.
func (w *Writer) collectBatch(ctx context.Context) (batch []anvil.Event, shuttingDown bool) {
	var deadline time.Time

	for {
		var callCtx context.Context
		var cancel context.CancelFunc
		if len(batch) == 0 {
			callCtx, cancel = context.WithCancel(ctx)
		} else {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return batch, false
			}
			callCtx, cancel = context.WithTimeout(ctx, remaining)
		}

		ev, ok := w.buffer.Consume(callCtx)
		cancel()

		if !ok {
			if ctx.Err() != nil {
				return batch, true
			}
			// Per-call deadline elapsed: BatchTimeout hit with a
			// non-empty partial batch.
			return batch, false
		}

		if len(batch) == 0 {
			deadline = time.Now().Add(w.batchTimeout)
		}
		batch = append(batch, ev)
		if len(batch) >= w.batchSize {
			return batch, false
		}
	}
}

// sendWithRetry forwards batch to the sink with unbounded exponential
// backoff (spec section 7: sink failures are recoverable at the
// EventWriter and never surface as a per-submission error). Only ctx
// cancellation stops the retry loop.
func (w *Writer) sendWithRetry(ctx context.Context, batch []anvil.Event) error {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 0 // retry forever; events are never dropped

	attempt := 0
	operation := func() error {
		attempt++
		err := w.sink.SubmitTrades(ctx, batch)
		if err != nil {
			w.logger.Warn().
				Err(err).
				Int("attempt", attempt).
				Int("batchSize", len(batch)).
				Msg("sink rejected batch, retrying")
		}
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return err
}
