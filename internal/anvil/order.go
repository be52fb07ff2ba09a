// Package anvil holds the data model shared by the matching core: orders,
// trades, price levels and the event stream that drives settlement.
package anvil

import "time"

// Side is which side of the book an order rests on.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

// Order is immutable once admitted to the book, except for RemainingSize.
// Prices and sizes are integer ticks/lots; the core never touches floating
// point on the matching path.
type Order struct {
	OrderID       string // opaque, caller-supplied, <=64 bytes
	Market        string
	Side          Side
	Price         uint64 // limit price in ticks
	Size          uint64 // original size in lots
	RemainingSize uint64 // invariant: 0 <= RemainingSize <= Size
	Sequence      uint64 // assigned by MatchingLoop at admission; time priority
	Principal     string // opaque owner identifier, not interpreted by the core
	Timestamp     time.Time // advisory only; never read by the matcher
}

// FullyFilled reports whether the order has no quantity left to match.
func (o Order) FullyFilled() bool {
	return o.RemainingSize == 0
}

// PriceLevel is an ordered, FIFO-by-sequence collection of orders resting
// at a single price.
type PriceLevel struct {
	Price     uint64
	Orders    []*Order // ascending by Sequence; index 0 is the earliest
	TotalSize uint64   // invariant: sum(o.RemainingSize for o in Orders)
}

// recomputeTotal restores the TotalSize invariant from scratch. It has no
// callers; OrderBook maintains the running total incrementally.
func (pl *PriceLevel) recomputeTotal() {
	var total uint64
	for _, o := range pl.Orders {
		total += o.RemainingSize
	}
	pl.TotalSize = total
}
