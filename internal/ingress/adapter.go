package ingress

import (
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/anvil-exchange/anvil/internal/anvil"
)

const maxOrderIDLen = 64

var (
	// ErrDedupWindowSize is returned by NewAdapter for a non-positive window.
	ErrDedupWindowSize = errors.New("ingress: dedup window size must be positive")
)

// dedupOutcome is the admission outcome remembered under one dedupKey,
// which is (principal, nonce); spec section 4.7 bounds the advisory dedup
// window to this pair, not order_id.
type dedupOutcome struct {
	result anvil.AdmissionResult
	reason anvil.RejectReason
}

// Adapter performs cheap syntactic validation and advisory duplicate
// suppression before handing a submission to Queue.TryEnqueue. It assigns
// no sequence number — that happens only at MatchingLoop dequeue time.
//
// Grounded on the teacher's internal/net/messages.go parseNewOrder (field
// length/bounds checks) and the dispatch shape of internal/net/server.go's
// handleMessage, generalized to route through a queue instead of calling
// an engine directly.
type Adapter struct {
	market string
	queue  *Queue
	dedup  *lru.Cache[string, dedupOutcome]
}

// NewAdapter constructs an Adapter bound to one market and backed by a
// bounded LRU of size windowSize holding the last windowSize (principal,
// nonce) keys seen. Outside that window, replay behavior is explicitly
// undefined per spec section 4.7 — callers must not rely on the core for
// unbounded replay protection.
func NewAdapter(market string, queue *Queue, windowSize int) (*Adapter, error) {
	if windowSize <= 0 {
		return nil, ErrDedupWindowSize
	}
	cache, err := lru.New[string, dedupOutcome](windowSize)
	if err != nil {
		return nil, err
	}
	return &Adapter{market: market, queue: queue, dedup: cache}, nil
}

func dedupKey(principal, nonce string) string {
	return principal + "\x00" + nonce
}

// SubmitNewOrder validates and admits a new-order submission. It returns
// the admission result and, for REJECTED, the reason.
func (a *Adapter) SubmitNewOrder(sub anvil.Submission) (anvil.AdmissionResult, anvil.RejectReason) {
	if reason, ok := a.validateNewOrder(sub); !ok {
		return anvil.Rejected, reason
	}

	if sub.Nonce != "" {
		key := dedupKey(sub.Principal, sub.Nonce)
		if prior, ok := a.dedup.Get(key); ok {
			return prior.result, prior.reason
		}
		result := a.queue.TryEnqueue(sub)
		a.dedup.Add(key, dedupOutcome{result: result, reason: anvil.RejectUnknown})
		return result, anvil.RejectUnknown
	}

	return a.queue.TryEnqueue(sub), anvil.RejectUnknown
}

// SubmitCancel validates and admits a cancellation submission.
func (a *Adapter) SubmitCancel(sub anvil.Submission) (anvil.AdmissionResult, anvil.RejectReason) {
	if sub.CancelOrderID == "" || len(sub.CancelOrderID) > maxOrderIDLen {
		return anvil.Rejected, anvil.RejectMalformed
	}
	return a.queue.TryEnqueue(sub), anvil.RejectUnknown
}

// SubmitSnapshotRequest admits an operator log/introspection request. It
// carries no sequence and is never subject to dedup.
func (a *Adapter) SubmitSnapshotRequest() anvil.AdmissionResult {
	return a.queue.TryEnqueue(anvil.Submission{Kind: anvil.SubmissionSnapshotRequest})
}

func (a *Adapter) validateNewOrder(sub anvil.Submission) (anvil.RejectReason, bool) {
	if sub.OrderID == "" || len(sub.OrderID) > maxOrderIDLen {
		return anvil.RejectMalformed, false
	}
	if sub.Market != a.market {
		return anvil.RejectWrongMarket, false
	}
	if sub.Side != anvil.Buy && sub.Side != anvil.Sell {
		return anvil.RejectMalformed, false
	}
	if sub.Price == 0 {
		return anvil.RejectMalformed, false
	}
	if sub.Size == 0 {
		return anvil.RejectZeroSize, false
	}
	return anvil.RejectUnknown, true
}
