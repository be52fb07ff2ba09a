// Package server implements the ingress TCP listener (spec section 6):
// it accepts persistent client connections, decodes submission frames,
// routes them through an ingress.Adapter, and writes back a synchronous
// wire.Response. It also implements matchingloop.Reporter to echo
// execution reports live to whichever connections are still attached to
// the orders involved — the supplemented "live echo" feature grounded on
// the teacher's internal/net/server.go ReportTrade/ReportError and
// cmd/server/server.go's eng.SetReporter(srv) wiring.
package server

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"github.com/anvil-exchange/anvil/internal/anvil"
	"github.com/anvil-exchange/anvil/internal/ingress"
	"github.com/anvil-exchange/anvil/internal/wire"
)

const (
	defaultNWorkers    = 10
	defaultConnTimeout = 30 * time.Second
	maxFrameSize       = 64 * 1024
)

var ErrImproperConversion = errors.New("server: improper task type conversion")

// Server is the ingress TCP front door for one market. It holds no
// matching state of its own: every submission is handed to adapter,
// which enqueues onto the IngressQueue that the matchingloop.Loop
// drains.
type Server struct {
	address string
	adapter *ingress.Adapter
	pool    WorkerPool
	logger  zerolog.Logger

	cancel context.CancelFunc

	mu         sync.Mutex
	conns      map[string]net.Conn // keyed by conn.RemoteAddr().String()
	orderOwner map[string]string   // order_id -> conn key, for live echo
}

// New constructs a Server listening on address (host:port) and routing
// submissions through adapter.
func New(address string, adapter *ingress.Adapter) *Server {
	return &Server{
		address:    address,
		adapter:    adapter,
		pool:       NewWorkerPool(defaultNWorkers),
		logger:     log.With().Str("component", "server").Str("address", address).Logger(),
		conns:      make(map[string]net.Conn),
		orderOwner: make(map[string]string),
	}
}

// Shutdown cancels the server's context, which unwinds Run.
func (s *Server) Shutdown() {
	if s.cancel != nil {
		s.logger.Info().Msg("server shutting down")
		s.cancel()
	}
}

// Run starts the listener and worker pool and blocks until ctx is
// cancelled or the listener fails. Grounded on the teacher's
// internal/net/server.go Run, generalized to route frames through
// internal/wire instead of internal/net/messages.go's fixed layout.
func (s *Server) Run(ctx context.Context) error {
	defer s.Shutdown()

	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.address)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.address, err)
	}
	defer func() {
		if err := listener.Close(); err != nil {
			s.logger.Error().Err(err).Msg("error closing listener")
		}
	}()

	t.Go(func() error {
		s.pool.Setup(t, s.handleConnection)
		return nil
	})

	s.logger.Info().Msg("ingress server running")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return nil
				default:
					s.logger.Error().Err(err).Msg("error accepting connection")
					continue
				}
			}
			s.addConn(conn)
			s.pool.AddTask(conn)
		}
	}
}

// handleConnection is a long-lived worker method: it reads one
// length-prefixed submission frame, dispatches it, writes back a
// Response, then re-queues the same connection for its next frame. A
// connection is dropped on read or write failure rather than the whole
// pool worker dying, mirroring the teacher's handleConnection isolation;
// a frame that fails to decode is answered with a Rejected Response and
// the connection is kept.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrImproperConversion
	}

	key := conn.RemoteAddr().String()

	select {
	case <-t.Dying():
		s.removeConn(key)
		return nil
	default:
	}

	if err := conn.SetReadDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		s.logger.Error().Err(err).Str("conn", key).Msg("failed setting read deadline")
		s.removeConn(key)
		return nil
	}

	payload, err := readFrame(conn)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			s.logger.Error().Err(err).Str("conn", key).Msg("error reading frame")
		}
		s.removeConn(key)
		return nil
	}

	sub, err := wire.DecodeSubmission(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("conn", key).Msg("error decoding submission")
		_ = s.writeResponse(conn, wire.Response{Status: anvil.Rejected, Reason: err.Error()})
		s.pool.AddTask(conn)
		return nil
	}

	resp := s.dispatch(key, sub)
	if err := s.writeResponse(conn, resp); err != nil {
		s.logger.Error().Err(err).Str("conn", key).Msg("error writing response")
		s.removeConn(key)
		return nil
	}

	s.pool.AddTask(conn)
	return nil
}

// dispatch routes one decoded submission through the adapter and records
// order ownership for live-echo targeting. It never returns an error:
// adapter admission failures surface only as a Rejected Response.
func (s *Server) dispatch(connKey string, sub anvil.Submission) wire.Response {
	switch sub.Kind {
	case anvil.SubmissionNewOrder:
		result, reason := s.adapter.SubmitNewOrder(sub)
		if result == anvil.Accepted {
			s.recordOwner(sub.OrderID, connKey)
		}
		return wire.Response{Status: result, OrderID: sub.OrderID, Reason: reason.String()}
	case anvil.SubmissionCancel:
		result, reason := s.adapter.SubmitCancel(sub)
		return wire.Response{Status: result, OrderID: sub.CancelOrderID, Reason: reason.String()}
	case anvil.SubmissionSnapshotRequest:
		result := s.adapter.SubmitSnapshotRequest()
		return wire.Response{Status: result}
	default:
		return wire.Response{Status: anvil.Rejected, Reason: "unknown submission kind"}
	}
}

// ReportEvent implements matchingloop.Reporter. It looks up which
// connections, if any, are still attached to the order(s) an event
// concerns and echoes the appropriate frame. A connection that has since
// disconnected is silently skipped — live echo is best-effort, the
// durable event stream via EventWriter is the system of record.
func (s *Server) ReportEvent(ev anvil.Event) {
	switch ev.Kind {
	case anvil.EventTrade:
		t := ev.Trade
		s.echoTo(t.TakerOrderID, wire.EncodeTradeFrame(*t))
		s.echoTo(t.MakerOrderID, wire.EncodeTradeFrame(*t))
	case anvil.EventOrderResting:
		p := ev.OrderResting
		s.echoTo(p.OrderID, wire.EncodeRestingFrame(p.OrderID, p.RemainingSize))
	case anvil.EventOrderFullyFilled:
		p := ev.FullyFilled
		s.echoTo(p.OrderID, wire.EncodeTerminalFrame(wire.FrameOrderFullyFilled, p.OrderID, anvil.RejectUnknown))
		s.forgetOwner(p.OrderID)
	case anvil.EventOrderCancelled:
		p := ev.Cancelled
		s.echoTo(p.OrderID, wire.EncodeTerminalFrame(wire.FrameOrderCancelled, p.OrderID, anvil.RejectUnknown))
		s.forgetOwner(p.OrderID)
	case anvil.EventOrderRejected:
		p := ev.OrderRejected
		s.echoTo(p.OrderID, wire.EncodeTerminalFrame(wire.FrameOrderRejected, p.OrderID, p.Reason))
	}
}

func (s *Server) echoTo(orderID string, frame []byte) {
	s.mu.Lock()
	connKey, ok := s.orderOwner[orderID]
	var conn net.Conn
	if ok {
		conn, ok = s.conns[connKey]
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	if err := conn.SetWriteDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		return
	}
	if _, err := conn.Write(framed(frame)); err != nil {
		s.logger.Warn().Err(err).Str("orderID", orderID).Msg("live echo write failed, dropping connection")
		s.removeConn(connKey)
	}
}

func (s *Server) writeResponse(conn net.Conn, resp wire.Response) error {
	if err := conn.SetWriteDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		return err
	}
	_, err := conn.Write(framed(resp.Encode()))
	return err
}

func (s *Server) recordOwner(orderID, connKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderOwner[orderID] = connKey
}

func (s *Server) forgetOwner(orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orderOwner, orderID)
}

func (s *Server) addConn(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn.RemoteAddr().String()] = conn
}

func (s *Server) removeConn(key string) {
	s.mu.Lock()
	conn, ok := s.conns[key]
	delete(s.conns, key)
	s.mu.Unlock()
	if ok {
		_ = conn.Close()
	}
}

// framed prefixes payload with its 4-byte big-endian length, the same
// convention internal/eventsink uses for the sink RPC.
func framed(payload []byte) []byte {
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(payload)))
	copy(buf[4:], payload)
	return buf
}

// readFrame reads one 4-byte-length-prefixed frame off conn.
func readFrame(conn net.Conn) ([]byte, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(conn, lenBuf); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf)
	if n > maxFrameSize {
		return nil, fmt.Errorf("server: frame of %d bytes exceeds max %d", n, maxFrameSize)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
