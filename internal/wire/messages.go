// Package wire implements the binary submission/response/event framing
// used both by the ingress TCP listener (spec section 6's "Submission
// wire format") and the downstream event sink RPC (spec section 6's
// "Event sink interface"). Grounded directly on the teacher's
// internal/net/messages.go: same big-endian fixed-header-plus-variable-
// trailer shape, generalized from the teacher's equities-ticker fields to
// the fields this spec names.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/anvil-exchange/anvil/internal/anvil"
)

// MessageType identifies what a submission frame carries.
type MessageType uint16

const (
	Heartbeat MessageType = iota
	NewOrder
	CancelOrder
	SnapshotRequest
)

var (
	ErrMessageTooShort    = errors.New("wire: message too short")
	ErrInvalidMessageType = errors.New("wire: invalid message type")
	ErrOrderIDTooLong     = errors.New("wire: order_id exceeds 64 bytes")
)

const maxOrderIDLen = 64
const headerLen = 2 // MessageType

// EncodeNewOrder serializes a new-order submission. Layout:
//
//	[2]  MessageType = NewOrder
//	[1]  Side
//	[8]  Price
//	[8]  Size
//	[8]  Timestamp (advisory)
//	[2]  len(OrderID) + OrderID
//	[2]  len(Market) + Market
//	[2]  len(Principal) + Principal
//	[2]  len(Nonce) + Nonce
func EncodeNewOrder(orderID, market string, side anvil.Side, price, size, timestamp uint64, principal, nonce string) ([]byte, error) {
	if len(orderID) > maxOrderIDLen {
		return nil, ErrOrderIDTooLong
	}
	total := headerLen + 1 + 8 + 8 + 8 +
		2 + len(orderID) + 2 + len(market) + 2 + len(principal) + 2 + len(nonce)
	buf := make([]byte, total)

	binary.BigEndian.PutUint16(buf[0:2], uint16(NewOrder))
	buf[2] = byte(side)
	binary.BigEndian.PutUint64(buf[3:11], price)
	binary.BigEndian.PutUint64(buf[11:19], size)
	binary.BigEndian.PutUint64(buf[19:27], timestamp)

	off := 27
	off = putString(buf, off, orderID)
	off = putString(buf, off, market)
	off = putString(buf, off, principal)
	putString(buf, off, nonce)

	return buf, nil
}

// DecodeNewOrder parses the body of a NewOrder frame (msg excludes the
// 2-byte MessageType header, already consumed by the caller's dispatch).
func DecodeNewOrder(msg []byte) (anvil.Submission, error) {
	const fixedLen = 1 + 8 + 8 + 8
	if len(msg) < fixedLen {
		return anvil.Submission{}, ErrMessageTooShort
	}

	side := anvil.Side(msg[0])
	price := binary.BigEndian.Uint64(msg[1:9])
	size := binary.BigEndian.Uint64(msg[9:17])
	_ = binary.BigEndian.Uint64(msg[17:25]) // timestamp: advisory, not stored on Submission

	off := fixedLen
	orderID, off, err := getString(msg, off)
	if err != nil {
		return anvil.Submission{}, err
	}
	if len(orderID) > maxOrderIDLen {
		return anvil.Submission{}, ErrOrderIDTooLong
	}
	market, off, err := getString(msg, off)
	if err != nil {
		return anvil.Submission{}, err
	}
	principal, off, err := getString(msg, off)
	if err != nil {
		return anvil.Submission{}, err
	}
	nonce, _, err := getString(msg, off)
	if err != nil {
		return anvil.Submission{}, err
	}

	return anvil.Submission{
		Kind:      anvil.SubmissionNewOrder,
		OrderID:   orderID,
		Market:    market,
		Side:      side,
		Price:     price,
		Size:      size,
		Principal: principal,
		Nonce:     nonce,
	}, nil
}

// EncodeCancelOrder serializes a cancellation submission.
func EncodeCancelOrder(orderID string) ([]byte, error) {
	if len(orderID) > maxOrderIDLen {
		return nil, ErrOrderIDTooLong
	}
	buf := make([]byte, headerLen+2+len(orderID))
	binary.BigEndian.PutUint16(buf[0:2], uint16(CancelOrder))
	putString(buf, headerLen, orderID)
	return buf, nil
}

// DecodeCancelOrder parses the body of a CancelOrder frame.
func DecodeCancelOrder(msg []byte) (anvil.Submission, error) {
	orderID, _, err := getString(msg, 0)
	if err != nil {
		return anvil.Submission{}, err
	}
	return anvil.Submission{Kind: anvil.SubmissionCancel, CancelOrderID: orderID}, nil
}

// DecodeSubmission dispatches on the 2-byte MessageType header and
// returns the decoded Submission.
func DecodeSubmission(msg []byte) (anvil.Submission, error) {
	if len(msg) < headerLen {
		return anvil.Submission{}, ErrMessageTooShort
	}
	msgType := MessageType(binary.BigEndian.Uint16(msg[0:2]))
	body := msg[headerLen:]

	switch msgType {
	case NewOrder:
		return DecodeNewOrder(body)
	case CancelOrder:
		return DecodeCancelOrder(body)
	case SnapshotRequest:
		return anvil.Submission{Kind: anvil.SubmissionSnapshotRequest}, nil
	default:
		return anvil.Submission{}, fmt.Errorf("%w: %d", ErrInvalidMessageType, msgType)
	}
}

func putString(buf []byte, off int, s string) int {
	binary.BigEndian.PutUint16(buf[off:off+2], uint16(len(s)))
	off += 2
	copy(buf[off:], s)
	return off + len(s)
}

func getString(msg []byte, off int) (string, int, error) {
	if len(msg) < off+2 {
		return "", 0, ErrMessageTooShort
	}
	n := int(binary.BigEndian.Uint16(msg[off : off+2]))
	off += 2
	if len(msg) < off+n {
		return "", 0, ErrMessageTooShort
	}
	return string(msg[off : off+n]), off + n, nil
}
