// Package book implements the per-market, price-indexed order book.
// OrderBook is pure state: it is mutated only by the matching thread and
// performs no I/O, no locking, and no allocation beyond creating a new
// PriceLevel.
package book

import (
	"fmt"

	"github.com/tidwall/btree"

	"github.com/anvil-exchange/anvil/internal/anvil"
)

// levels is the ordered map the spec mandates in place of the source's
// concurrent hash map: an ordered tree keyed by price gives O(log n)
// best-of-book access and a total order for iteration, which a plain hash
// map cannot. Grounded on the teacher's internal/engine/orderbook.go, which
// already made this exact choice (PriceLevels = btree.BTreeG[*PriceLevel]).
type levels = btree.BTreeG[*anvil.PriceLevel]

type orderLocation struct {
	side  anvil.Side
	price uint64
}

// OrderBook holds one market's resting orders. Every method here is called
// only from the single matching-thread goroutine; there is no internal
// synchronization.
type OrderBook struct {
	Market string

	bids *levels // ordered descending: highest price first
	asks *levels // ordered ascending: lowest price first

	index map[string]orderLocation // order_id -> (side, price) for O(1) cancel
}

// New constructs an empty book for the given market.
func New(market string) *OrderBook {
	bids := btree.NewBTreeG(func(a, b *anvil.PriceLevel) bool {
		return a.Price > b.Price // descending: Min() yields the best bid
	})
	asks := btree.NewBTreeG(func(a, b *anvil.PriceLevel) bool {
		return a.Price < b.Price // ascending: Min() yields the best ask
	})
	return &OrderBook{
		Market: market,
		bids:   bids,
		asks:   asks,
		index:  make(map[string]orderLocation),
	}
}

func (b *OrderBook) levelsFor(side anvil.Side) *levels {
	if side == anvil.Buy {
		return b.bids
	}
	return b.asks
}

// BestBid returns the highest resting bid price, if any.
func (b *OrderBook) BestBid() (uint64, bool) {
	lvl, ok := b.bids.Min()
	if !ok {
		return 0, false
	}
	return lvl.Price, true
}

// BestAsk returns the lowest resting ask price, if any.
func (b *OrderBook) BestAsk() (uint64, bool) {
	lvl, ok := b.asks.Min()
	if !ok {
		return 0, false
	}
	return lvl.Price, true
}

// PeekTop returns the earliest-sequence order resting at the best price on
// the given side, without removing it.
func (b *OrderBook) PeekTop(side anvil.Side) (*anvil.Order, bool) {
	lvl, ok := b.levelsFor(side).Min()
	if !ok || len(lvl.Orders) == 0 {
		return nil, false
	}
	return lvl.Orders[0], true
}

// ConsumeTop reduces the remaining size of the earliest-sequence order at
// the best price on side by amount. If that order is fully consumed it is
// popped; if its level becomes empty the level is removed. Returns the
// amount actually executed (capped at the head order's remaining size) and
// whether the head order was fully filled by this call.
func (b *OrderBook) ConsumeTop(side anvil.Side, amount uint64) (executed uint64, fullyFilled bool) {
	lv := b.levelsFor(side)
	lvl, ok := lv.Min()
	if !ok || len(lvl.Orders) == 0 {
		return 0, false
	}

	head := lvl.Orders[0]
	executed = min(amount, head.RemainingSize)
	head.RemainingSize -= executed
	lvl.TotalSize -= executed

	if head.RemainingSize == 0 {
		delete(b.index, head.OrderID)
		lvl.Orders = lvl.Orders[1:]
		fullyFilled = true
	}

	if len(lvl.Orders) == 0 {
		lv.Delete(lvl)
	}
	return executed, fullyFilled
}

// Insert appends order to the PriceLevel at order.Price on its side,
// creating the level if it doesn't exist yet, and registers it in the
// cancel index. order must not already be in the book.
func (b *OrderBook) Insert(order *anvil.Order) {
	lv := b.levelsFor(order.Side)
	key := &anvil.PriceLevel{Price: order.Price}
	lvl, ok := lv.GetMut(key)
	if !ok {
		lvl = &anvil.PriceLevel{Price: order.Price}
		lv.Set(lvl)
	}
	lvl.Orders = append(lvl.Orders, order)
	lvl.TotalSize += order.RemainingSize

	b.index[order.OrderID] = orderLocation{side: order.Side, price: order.Price}
}

// Cancel removes the order identified by orderID from whichever level it
// rests in. Reports whether an order was found and removed.
func (b *OrderBook) Cancel(orderID string) bool {
	loc, ok := b.index[orderID]
	if !ok {
		return false
	}
	delete(b.index, orderID)

	lv := b.levelsFor(loc.side)
	key := &anvil.PriceLevel{Price: loc.price}
	lvl, ok := lv.GetMut(key)
	if !ok {
		return false
	}

	for i, o := range lvl.Orders {
		if o.OrderID == orderID {
			lvl.TotalSize -= o.RemainingSize
			lvl.Orders = append(lvl.Orders[:i], lvl.Orders[i+1:]...)
			break
		}
	}
	if len(lvl.Orders) == 0 {
		lv.Delete(lvl)
	}
	return true
}

// Crossed reports whether the book violates the no-cross invariant
// (max(bids) >= min(asks) when both sides are non-empty). Used by tests
// and the matching loop's fatal-on-invariant-violation path (spec section
// 7's "core invariant violation" class).
func (b *OrderBook) Crossed() bool {
	bid, bidOk := b.BestBid()
	ask, askOk := b.BestAsk()
	if !bidOk || !askOk {
		return false
	}
	return bid >= ask
}

// Snapshot is a point-in-time, deep-enough-to-be-stable copy of the resting
// book for operator introspection. Must be called only from the matching
// thread between iterations (spec section 5): it is a synchronous read,
// never a concurrent one. This is diagnostic tooling, not the persistence
// mechanism ruled out by the "persistent recovery" Non-goal.
type Snapshot struct {
	Market string
	Bids   []anvil.PriceLevel
	Asks   []anvil.PriceLevel
}

func (b *OrderBook) Snapshot() Snapshot {
	snap := Snapshot{Market: b.Market}
	b.bids.Scan(func(lvl *anvil.PriceLevel) bool {
		snap.Bids = append(snap.Bids, cloneLevel(lvl))
		return true
	})
	b.asks.Scan(func(lvl *anvil.PriceLevel) bool {
		snap.Asks = append(snap.Asks, cloneLevel(lvl))
		return true
	})
	return snap
}

func cloneLevel(lvl *anvil.PriceLevel) anvil.PriceLevel {
	orders := make([]*anvil.Order, len(lvl.Orders))
	for i, o := range lvl.Orders {
		cp := *o
		orders[i] = &cp
	}
	return anvil.PriceLevel{Price: lvl.Price, Orders: orders, TotalSize: lvl.TotalSize}
}

func (s Snapshot) String() string {
	return fmt.Sprintf("Snapshot{market=%s, bidLevels=%d, askLevels=%d}", s.Market, len(s.Bids), len(s.Asks))
}
