// Package ingress implements the bounded multi-producer, single-consumer
// handoff between producer goroutines and the MatchingLoop, plus the thin
// wire-to-internal admission boundary in front of it.
package ingress

import (
	"context"

	"github.com/anvil-exchange/anvil/internal/anvil"
)

// Queue is a bounded MPSC channel of submissions. TryEnqueue never blocks:
// a full queue returns Overloaded rather than applying backpressure to the
// producer, per spec section 4.3 ("producers observing Overloaded MUST NOT
// retry transparently"). Dequeue is for the MatchingLoop's exclusive use
// and may block.
//
// A buffered Go channel already gives the non-blocking-try/blocking-receive
// split this needs: a send wrapped in select-default is a true non-blocking
// try_enqueue, and a bare receive is the MatchingLoop's blocking dequeue.
// No additional synchronization is required — this is exactly the
// "well-known lock-free MPSC discipline" spec section 5 asks for, provided
// by the runtime rather than hand-rolled.
type Queue struct {
	submissions chan anvil.Submission
}

// NewQueue constructs a queue with the given capacity (spec's
// ingress_queue_size).
func NewQueue(capacity int) *Queue {
	return &Queue{submissions: make(chan anvil.Submission, capacity)}
}

// TryEnqueue attempts to hand off sub without blocking. It returns
// Overloaded if the queue is at capacity. It never returns Rejected: that
// outcome is produced by Adapter's pre-admission checks before TryEnqueue
// is ever called.
func (q *Queue) TryEnqueue(sub anvil.Submission) anvil.AdmissionResult {
	select {
	case q.submissions <- sub:
		return anvil.Accepted
	default:
		return anvil.Overloaded
	}
}

// Dequeue blocks until a submission is available or ctx is cancelled.
// Only the MatchingLoop calls this.
func (q *Queue) Dequeue(ctx context.Context) (anvil.Submission, bool) {
	select {
	case sub := <-q.submissions:
		return sub, true
	case <-ctx.Done():
		return anvil.Submission{}, false
	}
}

// Len reports the current occupancy, for diagnostics only.
func (q *Queue) Len() int {
	return len(q.submissions)
}

// Cap reports the configured capacity.
func (q *Queue) Cap() int {
	return cap(q.submissions)
}
