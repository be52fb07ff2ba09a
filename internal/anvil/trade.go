package anvil

import "time"

// Trade is produced by the matcher and never mutated afterward.
type Trade struct {
	TradeID      string
	Market       string
	Price        uint64 // maker's resting price (price-improvement rule)
	Size         uint64
	TakerSide    Side
	TakerOrderID string
	MakerOrderID string
	Sequence     uint64 // the admission sequence of the taker
	Timestamp    time.Time
}
