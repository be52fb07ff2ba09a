package wire

import (
	"encoding/binary"

	"github.com/anvil-exchange/anvil/internal/anvil"
)

// Response is the synchronous admission reply (spec section 6):
// {status, order_id, reason?}. ACCEPTED means enqueued, not a fill
// guarantee.
type Response struct {
	Status  anvil.AdmissionResult
	OrderID string
	Reason  string
}

// Encode serializes a Response. Layout: [1]Status [2]len(OrderID)+OrderID
// [2]len(Reason)+Reason.
func (r Response) Encode() []byte {
	buf := make([]byte, 1+2+len(r.OrderID)+2+len(r.Reason))
	buf[0] = byte(r.Status)
	off := putString(buf, 1, r.OrderID)
	putString(buf, off, r.Reason)
	return buf
}

// DecodeResponse parses a Response frame.
func DecodeResponse(msg []byte) (Response, error) {
	if len(msg) < 1 {
		return Response{}, ErrMessageTooShort
	}
	status := anvil.AdmissionResult(msg[0])
	orderID, off, err := getString(msg, 1)
	if err != nil {
		return Response{}, err
	}
	reason, _, err := getString(msg, off)
	if err != nil {
		return Response{}, err
	}
	return Response{Status: status, OrderID: orderID, Reason: reason}, nil
}

// EventFrameType discriminates the execution-report echo sent back over
// an ingress connection, grounded on the teacher's
// internal/net/messages.go ReportMessageType (ExecutionReport/ErrorReport)
// generalized to cover every Event kind except OrderAccepted, which has no
// echo frame.
type EventFrameType uint8

const (
	FrameTrade EventFrameType = iota
	FrameOrderResting
	FrameOrderFullyFilled
	FrameOrderCancelled
	FrameOrderRejected
)

// EncodeTradeFrame serializes a Trade event for the live-session echo to
// a still-connected producer (additive to, not a replacement for, the
// durable event stream to Settlement).
func EncodeTradeFrame(t anvil.Trade) []byte {
	buf := make([]byte, 1+8+8+1+2+len(t.TakerOrderID)+2+len(t.MakerOrderID))
	buf[0] = byte(FrameTrade)
	binary.BigEndian.PutUint64(buf[1:9], t.Price)
	binary.BigEndian.PutUint64(buf[9:17], t.Size)
	buf[17] = byte(t.TakerSide)
	off := putString(buf, 18, t.TakerOrderID)
	putString(buf, off, t.MakerOrderID)
	return buf
}

// EncodeTerminalFrame serializes the terminal-event echoes
// (OrderFullyFilled, OrderCancelled, OrderRejected) that carry only an
// order_id and, for rejections, a reason.
func EncodeTerminalFrame(kind EventFrameType, orderID string, reason anvil.RejectReason) []byte {
	reasonStr := reason.String()
	buf := make([]byte, 1+2+len(orderID)+2+len(reasonStr))
	buf[0] = byte(kind)
	off := putString(buf, 1, orderID)
	putString(buf, off, reasonStr)
	return buf
}

// EncodeRestingFrame serializes an OrderResting echo.
func EncodeRestingFrame(orderID string, remainingSize uint64) []byte {
	buf := make([]byte, 1+2+len(orderID)+8)
	buf[0] = byte(FrameOrderResting)
	off := putString(buf, 1, orderID)
	binary.BigEndian.PutUint64(buf[off:off+8], remainingSize)
	return buf
}
