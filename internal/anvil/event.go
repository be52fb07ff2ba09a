package anvil

// EventKind discriminates the Event sum type. Go has no native sum types;
// the teacher's ReportMessageType enum (internal/net/messages.go) is the
// grounding for this "kind tag plus payload fields" shape.
type EventKind int

const (
	EventOrderAccepted EventKind = iota
	EventOrderRejected
	EventTrade
	EventOrderResting
	EventOrderFullyFilled
	EventOrderCancelled
)

func (k EventKind) String() string {
	switch k {
	case EventOrderAccepted:
		return "OrderAccepted"
	case EventOrderRejected:
		return "OrderRejected"
	case EventTrade:
		return "Trade"
	case EventOrderResting:
		return "OrderResting"
	case EventOrderFullyFilled:
		return "OrderFullyFilled"
	case EventOrderCancelled:
		return "OrderCancelled"
	default:
		return "Unknown"
	}
}

// Event is the unit flowing through the EventBuffer to the EventWriter.
// Only the fields relevant to Kind are populated; callers switch on Kind.
// Sequence is the matching-loop-assigned event number used for P5
// (strictly monotone, contiguous event numbers); it is not the same thing
// as Order.Sequence for Trade/Resting/FullyFilled events produced as a
// side effect of one admitted submission emitting several events.
type Event struct {
	Kind     EventKind
	Sequence uint64

	OrderAccepted *Order
	OrderRejected *EventOrderRejectedPayload
	Trade         *Trade
	OrderResting  *EventOrderRestingPayload
	FullyFilled   *EventOrderFullyFilledPayload
	Cancelled     *EventOrderCancelledPayload
}

type EventOrderRejectedPayload struct {
	OrderID string
	Reason  RejectReason
}

type EventOrderRestingPayload struct {
	OrderID       string
	RemainingSize uint64
}

type EventOrderFullyFilledPayload struct {
	OrderID string
}

type EventOrderCancelledPayload struct {
	OrderID string
}

// RejectReason names why a submission was rejected pre-admission or at
// the matching loop. These are the non-recoverable, non-retried outcomes
// of spec section 7's error taxonomy.
type RejectReason int

const (
	RejectUnknown RejectReason = iota
	RejectMalformed
	RejectWrongMarket
	RejectZeroSize
	RejectDuplicate
	RejectUnknownOrder // cancel referencing an order that no longer exists
)

func (r RejectReason) String() string {
	switch r {
	case RejectMalformed:
		return "malformed"
	case RejectWrongMarket:
		return "wrong_market"
	case RejectZeroSize:
		return "zero_size"
	case RejectDuplicate:
		return "duplicate"
	case RejectUnknownOrder:
		return "unknown_order"
	default:
		return "unknown"
	}
}

// AdmissionResult is returned synchronously to the producer of a
// submission. ACCEPTED means enqueued, not filled; final disposition flows
// through the event stream.
type AdmissionResult int

const (
	Accepted AdmissionResult = iota
	Rejected
	Overloaded
)

func (a AdmissionResult) String() string {
	switch a {
	case Accepted:
		return "ACCEPTED"
	case Rejected:
		return "REJECTED"
	case Overloaded:
		return "OVERLOADED"
	default:
		return "UNKNOWN"
	}
}
