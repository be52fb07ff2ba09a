package anvil

// SubmissionKind discriminates what IngressQueue carries. New orders and
// cancellations share one queue so the MatchingLoop's dequeue order is the
// single authoritative ordering for both (spec section 9's open-question
// resolution: cancellations are queued like submissions).
type SubmissionKind int

const (
	SubmissionNewOrder SubmissionKind = iota
	SubmissionCancel
	SubmissionSnapshotRequest // operator "log book" request; carries no sequence
)

// Submission is what producers hand to IngressQueue.TryEnqueue. It carries
// no Sequence: that is assigned only once the MatchingLoop dequeues it.
type Submission struct {
	Kind SubmissionKind

	// Populated for SubmissionNewOrder.
	OrderID   string
	Market    string
	Side      Side
	Price     uint64
	Size      uint64
	Principal string
	Nonce     string // optional; enables dedup

	// Populated for SubmissionCancel.
	CancelOrderID string
}
