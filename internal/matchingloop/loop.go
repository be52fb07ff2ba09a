// Package matchingloop implements the single-threaded heart of the core:
// it drains the IngressQueue, assigns sequence numbers, invokes the
// Matcher against the OrderBook, and publishes events. It is the sole time
// authority — arrival order at this loop defines logical order (spec
// section 4.4).
package matchingloop

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/anvil-exchange/anvil/internal/anvil"
	"github.com/anvil-exchange/anvil/internal/book"
	"github.com/anvil-exchange/anvil/internal/eventbuffer"
	"github.com/anvil-exchange/anvil/internal/ingress"
	"github.com/anvil-exchange/anvil/internal/matcher"
)

// Reporter receives a synchronous, best-effort echo of every event
// alongside the durable publish to the EventBuffer. It exists for the
// live-session execution-report feature (SPEC_FULL.md's supplemented
// features), mirroring the teacher's engine.SetReporter(srv) /
// Server.ReportTrade callback hookup in cmd/server/server.go and
// internal/net/server.go — except here the callback fires for every
// Event kind, not only trades. A Reporter must not block: Loop calls it
// inline on the matching goroutine, so a slow or wedged Reporter would
// stall matching itself.
type Reporter interface {
	ReportEvent(ev anvil.Event)
}

// noopReporter discards every event; used when no live-echo session
// server is attached (e.g. tests exercising only the durable event
// stream).
type noopReporter struct{}

func (noopReporter) ReportEvent(anvil.Event) {}

// Loop owns the OrderBook exclusively; no other goroutine ever touches it.
// A panic inside Run is fatal to the market (spec section 4.4's failure
// semantics: matching is not recoverable from an inconsistent book
// mid-operation) — Loop deliberately does not recover from panics raised
// while mutating book state.
type Loop struct {
	market   string
	book     *book.OrderBook
	queue    *ingress.Queue
	buffer   *eventbuffer.Buffer
	reporter Reporter
	logger   zerolog.Logger

	nextSequence uint64
	nextEventSeq uint64
}

// New constructs a matching loop for market, reading from queue and
// publishing to buffer. Use SetReporter to attach a live-echo sink.
func New(market string, queue *ingress.Queue, buffer *eventbuffer.Buffer) *Loop {
	return &Loop{
		market:   market,
		book:     book.New(market),
		queue:    queue,
		buffer:   buffer,
		reporter: noopReporter{},
		logger:   log.With().Str("component", "matchingloop").Str("market", market).Logger(),
	}
}

// SetReporter attaches the live-echo Reporter, analogous to the teacher's
// eng.SetReporter(srv) wiring in cmd/server/server.go.
func (l *Loop) SetReporter(r Reporter) {
	if r == nil {
		r = noopReporter{}
	}
	l.reporter = r
}

// Book exposes the underlying book for read-only diagnostics such as
// Snapshot(); callers outside Run must not mutate it.
func (l *Loop) Book() *book.OrderBook {
	return l.book
}

// Run drains the queue until ctx is cancelled, then returns; submissions
// still waiting in the queue at that point are not processed.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info().Msg("matching loop starting")
	defer l.logger.Info().Msg("matching loop stopped")

	for {
		sub, ok := l.queue.Dequeue(ctx)
		if !ok {
			return nil
		}
		if err := l.handle(ctx, sub); err != nil {
			return err
		}
	}
}

func (l *Loop) handle(ctx context.Context, sub anvil.Submission) error {
	switch sub.Kind {
	case anvil.SubmissionNewOrder:
		return l.handleNewOrder(ctx, sub)
	case anvil.SubmissionCancel:
		return l.handleCancel(ctx, sub)
	case anvil.SubmissionSnapshotRequest:
		l.handleSnapshotRequest()
		return nil
	default:
		return fmt.Errorf("matchingloop: unknown submission kind %v", sub.Kind)
	}
}

func (l *Loop) handleNewOrder(ctx context.Context, sub anvil.Submission) error {
	l.nextSequence++
	seq := l.nextSequence

	order := anvil.Order{
		OrderID:       sub.OrderID,
		Market:        sub.Market,
		Side:          sub.Side,
		Price:         sub.Price,
		Size:          sub.Size,
		RemainingSize: sub.Size,
		Sequence:      seq,
		Principal:     sub.Principal,
	}

	if err := l.publish(ctx, anvil.Event{Kind: anvil.EventOrderAccepted, OrderAccepted: &order}); err != nil {
		return err
	}

	trades, filledMakerOrderIDs, resting := matcher.MatchOne(l.book, order)
	filledMakers := make(map[string]bool, len(filledMakerOrderIDs))
	for _, id := range filledMakerOrderIDs {
		filledMakers[id] = true
	}

	for _, tr := range trades {
		if err := l.publish(ctx, anvil.Event{Kind: anvil.EventTrade, Trade: &tr}); err != nil {
			return err
		}
		if filledMakers[tr.MakerOrderID] {
			if err := l.publish(ctx, anvil.Event{
				Kind:        anvil.EventOrderFullyFilled,
				FullyFilled: &anvil.EventOrderFullyFilledPayload{OrderID: tr.MakerOrderID},
			}); err != nil {
				return err
			}
		}
	}

	if resting != nil {
		l.book.Insert(resting)
		if l.book.Crossed() {
			panic(fmt.Sprintf("matchingloop: invariant violation, book crossed after inserting order %s", resting.OrderID))
		}
		return l.publish(ctx, anvil.Event{
			Kind: anvil.EventOrderResting,
			OrderResting: &anvil.EventOrderRestingPayload{
				OrderID:       resting.OrderID,
				RemainingSize: resting.RemainingSize,
			},
		})
	}

	return l.publish(ctx, anvil.Event{
		Kind:        anvil.EventOrderFullyFilled,
		FullyFilled: &anvil.EventOrderFullyFilledPayload{OrderID: order.OrderID},
	})
}

func (l *Loop) handleCancel(ctx context.Context, sub anvil.Submission) error {
	if l.book.Cancel(sub.CancelOrderID) {
		return l.publish(ctx, anvil.Event{
			Kind:      anvil.EventOrderCancelled,
			Cancelled: &anvil.EventOrderCancelledPayload{OrderID: sub.CancelOrderID},
		})
	}
	return l.publish(ctx, anvil.Event{
		Kind: anvil.EventOrderRejected,
		OrderRejected: &anvil.EventOrderRejectedPayload{
			OrderID: sub.CancelOrderID,
			Reason:  anvil.RejectUnknownOrder,
		},
	})
}

// handleSnapshotRequest serves the operator "log book" request. It takes
// no sequence number and emits nothing to the event stream: it is a read,
// not a state mutation (see SPEC_FULL.md's supplemented features).
func (l *Loop) handleSnapshotRequest() {
	snap := l.book.Snapshot()
	l.logger.Info().Stringer("snapshot", snap).Msg("book snapshot requested")
}

// publish assigns the next event sequence number and blocks until the
// buffer accepts it (spec section 4.4: MatchingLoop MUST block on a full
// EventBuffer rather than drop events).
func (l *Loop) publish(ctx context.Context, ev anvil.Event) error {
	l.nextEventSeq++
	ev.Sequence = l.nextEventSeq
	if err := l.buffer.TryPublish(ctx, ev); err != nil {
		return err
	}
	l.reporter.ReportEvent(ev)
	return nil
}
