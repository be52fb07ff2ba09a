// Package eventsink defines the EventWriter's downstream collaborator:
// the settlement RPC that accepts batches of events (spec section 6,
// "Event sink interface"). The core never constructs chain-specific
// transactions itself — that is Settlement's job, entirely out of scope
// (spec section 1); this package only models the boundary the EventWriter
// calls across.
package eventsink

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/anvil-exchange/anvil/internal/anvil"
	"github.com/anvil-exchange/anvil/internal/wire"
)

// EventSink accepts a batch of events with a monotonically increasing
// sequence range and acknowledges it. SubmitTrades returning an error
// means the batch was not durably accepted; the EventWriter is
// responsible for retrying (spec section 4.6/7 — sink failures are
// recoverable at the EventWriter, never visible as a per-submission
// error upstream).
type EventSink interface {
	SubmitTrades(ctx context.Context, batch []anvil.Event) error
}

// TCPSink is an EventSink that frames each batch as a length-prefixed
// wire.EncodeBatch payload over a persistent TCP connection, reading back
// a single ack byte (0 = ok, nonzero = rejected). This reuses the same
// length-prefixed binary framing convention as the ingress wire protocol
// (internal/wire) rather than introducing a second transport mechanism —
// see DESIGN.md for why this was chosen over grpc.
type TCPSink struct {
	addr    string
	dialer  net.Dialer
	timeout time.Duration

	conn net.Conn
}

// NewTCPSink constructs a sink dialing addr lazily on first use.
func NewTCPSink(addr string, timeout time.Duration) *TCPSink {
	return &TCPSink{addr: addr, timeout: timeout}
}

func (s *TCPSink) ensureConn(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	conn, err := s.dialer.DialContext(dialCtx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("eventsink: dial %s: %w", s.addr, err)
	}
	s.conn = conn
	return nil
}

// SubmitTrades sends one batch frame and waits for a single-byte ack.
// On any I/O error the underlying connection is dropped so the next call
// redials — a stale half-open connection must not be retried silently.
func (s *TCPSink) SubmitTrades(ctx context.Context, batch []anvil.Event) error {
	if err := s.ensureConn(ctx); err != nil {
		return err
	}

	payload, err := wire.EncodeBatch(batch)
	if err != nil {
		return fmt.Errorf("eventsink: encode batch: %w", err)
	}

	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(payload)))
	copy(frame[4:], payload)

	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetDeadline(deadline)
	} else {
		_ = s.conn.SetDeadline(time.Now().Add(s.timeout))
	}

	if _, err := s.conn.Write(frame); err != nil {
		s.drop()
		return fmt.Errorf("eventsink: write batch: %w", err)
	}

	ack := make([]byte, 1)
	if _, err := io.ReadFull(s.conn, ack); err != nil {
		s.drop()
		return fmt.Errorf("eventsink: read ack: %w", err)
	}
	if ack[0] != 0 {
		return fmt.Errorf("eventsink: sink rejected batch (code %d)", ack[0])
	}
	return nil
}

func (s *TCPSink) drop() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

// Close releases the underlying connection, if any.
func (s *TCPSink) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
