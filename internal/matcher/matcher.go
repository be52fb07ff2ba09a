// Package matcher implements the stateless price-time matching algorithm.
// MatchOne is a pure function over an *book.OrderBook and an incoming
// order: given the same book state and taker, its output is bit-identical
// apart from the advisory Trade.Timestamp (spec section 4.2's determinism
// requirement). No wall-clock time enters the matching decision.
package matcher

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/anvil-exchange/anvil/internal/anvil"
	"github.com/anvil-exchange/anvil/internal/book"
)

// opposite returns the side a taker crosses against.
func opposite(side anvil.Side) anvil.Side {
	if side == anvil.Buy {
		return anvil.Sell
	}
	return anvil.Buy
}

// crosses reports whether the taker's limit price crosses the best price
// resting on the opposite side.
func crosses(taker *anvil.Order, oppBest uint64) bool {
	if taker.Side == anvil.Buy {
		return oppBest <= taker.Price
	}
	return oppBest >= taker.Price
}

// MatchOne consumes one taker order against book, producing zero or more
// trades (one per fill, in execution order), the order IDs of every maker
// order fully consumed along the way (each needs its own OrderFullyFilled
// event — spec section 8 scenario S1, property P6), and, if any quantity
// remains unmatched, the residual order ready for OrderBook.Insert. It
// performs no insertion itself and emits no events itself: the caller
// (MatchingLoop) decides whether and how to rest the residual and how to
// sequence the resulting events (spec section 4.4 routes this through
// OrderBook.Insert plus an OrderResting event).
//
// Grounded on the crossing loop in the teacher's
// internal/engine/orderbook.go Match/handleLimit, generalized to operate
// through OrderBook's public surface and to always execute at the maker's
// resting price (price improvement accrues to the taker).
func MatchOne(b *book.OrderBook, taker anvil.Order) (trades []anvil.Trade, filledMakerOrderIDs []string, resting *anvil.Order) {
	opp := opposite(taker.Side)

	for taker.RemainingSize > 0 {
		oppBest, ok := bestPrice(b, opp)
		if !ok || !crosses(&taker, oppBest) {
			break
		}

		maker, ok := b.PeekTop(opp)
		if !ok {
			break
		}

		execQty := min(taker.RemainingSize, maker.RemainingSize)
		executed, makerFilled := b.ConsumeTop(opp, execQty)
		taker.RemainingSize -= executed

		trades = append(trades, anvil.Trade{
			// Name-based UUID from market, taker sequence and fill index,
			// so the same input always yields the same trade ID.
			TradeID:      uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s/%d/%d", taker.Market, taker.Sequence, len(trades)))).String(),
			Market:       taker.Market,
			Price:        maker.Price, // price-improvement rule: maker's price, not taker's limit
			Size:         executed,
			TakerSide:    taker.Side,
			TakerOrderID: taker.OrderID,
			MakerOrderID: maker.OrderID,
			Sequence:     taker.Sequence,
			Timestamp:    time.Now(), // advisory only
		})

		if makerFilled {
			filledMakerOrderIDs = append(filledMakerOrderIDs, maker.OrderID)
		}
	}

	if taker.RemainingSize > 0 {
		resting = &taker
	}
	return trades, filledMakerOrderIDs, resting
}

// bestPrice is a tiny adapter so the loop above reads symmetrically for
// both sides without an if/else on every iteration.
func bestPrice(b *book.OrderBook, side anvil.Side) (uint64, bool) {
	if side == anvil.Buy {
		return b.BestBid()
	}
	return b.BestAsk()
}
