package book_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anvil-exchange/anvil/internal/anvil"
	"github.com/anvil-exchange/anvil/internal/book"
)

func newOrder(id string, side anvil.Side, price, size, seq uint64) *anvil.Order {
	return &anvil.Order{
		OrderID:       id,
		Market:        "BTC-USD",
		Side:          side,
		Price:         price,
		Size:          size,
		RemainingSize: size,
		Sequence:      seq,
		Principal:     "alice",
	}
}

func TestInsert_CreatesLevelsSortedByPrice(t *testing.T) {
	b := book.New("BTC-USD")

	b.Insert(newOrder("b1", anvil.Buy, 99, 100, 1))
	b.Insert(newOrder("b2", anvil.Buy, 98, 50, 2))
	b.Insert(newOrder("s1", anvil.Sell, 100, 100, 3))
	b.Insert(newOrder("s2", anvil.Sell, 101, 20, 4))

	bestBid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, uint64(99), bestBid)

	bestAsk, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, uint64(100), bestAsk)

	assert.False(t, b.Crossed())
}

func TestInsert_FIFOWithinLevel(t *testing.T) {
	b := book.New("BTC-USD")
	b.Insert(newOrder("s1", anvil.Sell, 100, 10, 1))
	b.Insert(newOrder("s2", anvil.Sell, 100, 5, 2))

	top, ok := b.PeekTop(anvil.Sell)
	require.True(t, ok)
	assert.Equal(t, "s1", top.OrderID, "earliest-sequence order at a price level must be first")
}

func TestConsumeTop_PartialThenFull(t *testing.T) {
	b := book.New("BTC-USD")
	b.Insert(newOrder("s1", anvil.Sell, 100, 10, 1))

	executed, filled := b.ConsumeTop(anvil.Sell, 4)
	assert.Equal(t, uint64(4), executed)
	assert.False(t, filled)

	top, ok := b.PeekTop(anvil.Sell)
	require.True(t, ok)
	assert.Equal(t, uint64(6), top.RemainingSize)

	executed, filled = b.ConsumeTop(anvil.Sell, 6)
	assert.Equal(t, uint64(6), executed)
	assert.True(t, filled)

	_, ok = b.PeekTop(anvil.Sell)
	assert.False(t, ok, "level must be removed once its last order is consumed")

	_, ok = b.BestAsk()
	assert.False(t, ok)
}

func TestConsumeTop_CapsAtRemainingSize(t *testing.T) {
	b := book.New("BTC-USD")
	b.Insert(newOrder("s1", anvil.Sell, 100, 10, 1))

	executed, filled := b.ConsumeTop(anvil.Sell, 1000)
	assert.Equal(t, uint64(10), executed, "ConsumeTop must never execute more than the head order's remaining size")
	assert.True(t, filled)
}

func TestCancel_RemovesOrderAndEmptyLevel(t *testing.T) {
	b := book.New("BTC-USD")
	b.Insert(newOrder("b1", anvil.Buy, 99, 100, 1))
	b.Insert(newOrder("b2", anvil.Buy, 99, 50, 2))

	ok := b.Cancel("b1")
	assert.True(t, ok)

	top, ok := b.PeekTop(anvil.Buy)
	require.True(t, ok)
	assert.Equal(t, "b2", top.OrderID)

	ok = b.Cancel("b2")
	assert.True(t, ok)
	_, ok = b.BestBid()
	assert.False(t, ok, "level must be removed once empty")
}

func TestCancel_UnknownOrderIDReturnsFalse(t *testing.T) {
	b := book.New("BTC-USD")
	ok := b.Cancel("does-not-exist")
	assert.False(t, ok)
}

func TestSnapshot_ReflectsRestingState(t *testing.T) {
	b := book.New("BTC-USD")
	b.Insert(newOrder("b1", anvil.Buy, 99, 100, 1))
	b.Insert(newOrder("s1", anvil.Sell, 101, 20, 2))

	snap := b.Snapshot()
	require.Len(t, snap.Bids, 1)
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, uint64(99), snap.Bids[0].Price)
	assert.Equal(t, uint64(101), snap.Asks[0].Price)
}
