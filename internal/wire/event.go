package wire

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/anvil-exchange/anvil/internal/anvil"
)

// EncodeEvent serializes a full anvil.Event (the MatchingLoop's emitted
// event, not the client-facing echo frames in response.go) for transport
// to the downstream settlement sink. Layout: [1]Kind [8]Sequence then a
// kind-specific payload.
func EncodeEvent(ev anvil.Event) ([]byte, error) {
	var payload []byte
	switch ev.Kind {
	case anvil.EventOrderAccepted:
		payload = encodeOrder(ev.OrderAccepted)
	case anvil.EventOrderRejected:
		payload = encodeRejected(ev.OrderRejected)
	case anvil.EventTrade:
		payload = encodeTrade(ev.Trade)
	case anvil.EventOrderResting:
		payload = encodeResting(ev.OrderResting)
	case anvil.EventOrderFullyFilled:
		payload = encodeOrderID(ev.FullyFilled.OrderID)
	case anvil.EventOrderCancelled:
		payload = encodeOrderID(ev.Cancelled.OrderID)
	default:
		return nil, fmt.Errorf("%w: event kind %d", ErrInvalidMessageType, ev.Kind)
	}

	buf := make([]byte, 1+8+len(payload))
	buf[0] = byte(ev.Kind)
	binary.BigEndian.PutUint64(buf[1:9], ev.Sequence)
	copy(buf[9:], payload)
	return buf, nil
}

// DecodeEvent parses a single event frame produced by EncodeEvent.
func DecodeEvent(msg []byte) (anvil.Event, error) {
	if len(msg) < 9 {
		return anvil.Event{}, ErrMessageTooShort
	}
	kind := anvil.EventKind(msg[0])
	seq := binary.BigEndian.Uint64(msg[1:9])
	body := msg[9:]

	ev := anvil.Event{Kind: kind, Sequence: seq}
	var err error
	switch kind {
	case anvil.EventOrderAccepted:
		ev.OrderAccepted, err = decodeOrder(body)
	case anvil.EventOrderRejected:
		ev.OrderRejected, err = decodeRejected(body)
	case anvil.EventTrade:
		ev.Trade, err = decodeTrade(body)
	case anvil.EventOrderResting:
		ev.OrderResting, err = decodeResting(body)
	case anvil.EventOrderFullyFilled:
		var orderID string
		orderID, _, err = getString(body, 0)
		ev.FullyFilled = &anvil.EventOrderFullyFilledPayload{OrderID: orderID}
	case anvil.EventOrderCancelled:
		var orderID string
		orderID, _, err = getString(body, 0)
		ev.Cancelled = &anvil.EventOrderCancelledPayload{OrderID: orderID}
	default:
		return anvil.Event{}, fmt.Errorf("%w: event kind %d", ErrInvalidMessageType, kind)
	}
	return ev, err
}

// EncodeBatch serializes a sequence of events with a 4-byte count prefix
// followed by each event framed with its own 4-byte length prefix, for
// the event sink's SubmitTrades(batch) RPC (spec section 6).
func EncodeBatch(events []anvil.Event) ([]byte, error) {
	frames := make([][]byte, len(events))
	total := 4
	for i, ev := range events {
		f, err := EncodeEvent(ev)
		if err != nil {
			return nil, err
		}
		frames[i] = f
		total += 4 + len(f)
	}

	buf := make([]byte, total)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(events)))
	off := 4
	for _, f := range frames {
		binary.BigEndian.PutUint32(buf[off:off+4], uint32(len(f)))
		off += 4
		copy(buf[off:], f)
		off += len(f)
	}
	return buf, nil
}

// DecodeBatch parses a batch frame produced by EncodeBatch.
func DecodeBatch(msg []byte) ([]anvil.Event, error) {
	if len(msg) < 4 {
		return nil, ErrMessageTooShort
	}
	count := int(binary.BigEndian.Uint32(msg[0:4]))
	off := 4

	events := make([]anvil.Event, 0, count)
	for i := 0; i < count; i++ {
		if len(msg) < off+4 {
			return nil, ErrMessageTooShort
		}
		frameLen := int(binary.BigEndian.Uint32(msg[off : off+4]))
		off += 4
		if len(msg) < off+frameLen {
			return nil, ErrMessageTooShort
		}
		ev, err := DecodeEvent(msg[off : off+frameLen])
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
		off += frameLen
	}
	return events, nil
}

func encodeOrder(o *anvil.Order) []byte {
	buf := make([]byte, 1+8+8+8+8+2+len(o.OrderID)+2+len(o.Market)+2+len(o.Principal))
	buf[0] = byte(o.Side)
	binary.BigEndian.PutUint64(buf[1:9], o.Price)
	binary.BigEndian.PutUint64(buf[9:17], o.Size)
	binary.BigEndian.PutUint64(buf[17:25], o.RemainingSize)
	binary.BigEndian.PutUint64(buf[25:33], o.Sequence)
	off := putString(buf, 33, o.OrderID)
	off = putString(buf, off, o.Market)
	putString(buf, off, o.Principal)
	return buf
}

func decodeOrder(body []byte) (*anvil.Order, error) {
	if len(body) < 33 {
		return nil, ErrMessageTooShort
	}
	side := anvil.Side(body[0])
	price := binary.BigEndian.Uint64(body[1:9])
	size := binary.BigEndian.Uint64(body[9:17])
	remaining := binary.BigEndian.Uint64(body[17:25])
	seq := binary.BigEndian.Uint64(body[25:33])
	orderID, off, err := getString(body, 33)
	if err != nil {
		return nil, err
	}
	market, off, err := getString(body, off)
	if err != nil {
		return nil, err
	}
	principal, _, err := getString(body, off)
	if err != nil {
		return nil, err
	}
	return &anvil.Order{
		OrderID:       orderID,
		Market:        market,
		Side:          side,
		Price:         price,
		Size:          size,
		RemainingSize: remaining,
		Sequence:      seq,
		Principal:     principal,
	}, nil
}

func encodeRejected(r *anvil.EventOrderRejectedPayload) []byte {
	buf := make([]byte, 1+2+len(r.OrderID))
	buf[0] = byte(r.Reason)
	putString(buf, 1, r.OrderID)
	return buf
}

func decodeRejected(body []byte) (*anvil.EventOrderRejectedPayload, error) {
	if len(body) < 1 {
		return nil, ErrMessageTooShort
	}
	reason := anvil.RejectReason(body[0])
	orderID, _, err := getString(body, 1)
	if err != nil {
		return nil, err
	}
	return &anvil.EventOrderRejectedPayload{OrderID: orderID, Reason: reason}, nil
}

func encodeTrade(t *anvil.Trade) []byte {
	buf := make([]byte, 8+8+1+8+2+len(t.TakerOrderID)+2+len(t.MakerOrderID)+2+len(t.TradeID)+2+len(t.Market))
	binary.BigEndian.PutUint64(buf[0:8], t.Price)
	binary.BigEndian.PutUint64(buf[8:16], t.Size)
	buf[16] = byte(t.TakerSide)
	binary.BigEndian.PutUint64(buf[17:25], t.Sequence)
	off := putString(buf, 25, t.TakerOrderID)
	off = putString(buf, off, t.MakerOrderID)
	off = putString(buf, off, t.TradeID)
	putString(buf, off, t.Market)
	return buf
}

func decodeTrade(body []byte) (*anvil.Trade, error) {
	if len(body) < 25 {
		return nil, ErrMessageTooShort
	}
	price := binary.BigEndian.Uint64(body[0:8])
	size := binary.BigEndian.Uint64(body[8:16])
	takerSide := anvil.Side(body[16])
	seq := binary.BigEndian.Uint64(body[17:25])
	takerID, off, err := getString(body, 25)
	if err != nil {
		return nil, err
	}
	makerID, off, err := getString(body, off)
	if err != nil {
		return nil, err
	}
	tradeID, off, err := getString(body, off)
	if err != nil {
		return nil, err
	}
	market, _, err := getString(body, off)
	if err != nil {
		return nil, err
	}
	return &anvil.Trade{
		TradeID:      tradeID,
		Market:       market,
		Price:        price,
		Size:         size,
		TakerSide:    takerSide,
		TakerOrderID: takerID,
		MakerOrderID: makerID,
		Sequence:     seq,
		Timestamp:    time.Time{}, // advisory; not carried over the wire
	}, nil
}

func encodeResting(r *anvil.EventOrderRestingPayload) []byte {
	buf := make([]byte, 8+2+len(r.OrderID))
	binary.BigEndian.PutUint64(buf[0:8], r.RemainingSize)
	putString(buf, 8, r.OrderID)
	return buf
}

func decodeResting(body []byte) (*anvil.EventOrderRestingPayload, error) {
	if len(body) < 8 {
		return nil, ErrMessageTooShort
	}
	remaining := binary.BigEndian.Uint64(body[0:8])
	orderID, _, err := getString(body, 8)
	if err != nil {
		return nil, err
	}
	return &anvil.EventOrderRestingPayload{OrderID: orderID, RemainingSize: remaining}, nil
}

func encodeOrderID(orderID string) []byte {
	buf := make([]byte, 2+len(orderID))
	putString(buf, 0, orderID)
	return buf
}
