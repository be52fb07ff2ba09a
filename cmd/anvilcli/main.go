// Command anvilcli is a thin operator/test client for anvild: it places
// orders, cancels them, or requests a book snapshot log, then prints any
// live execution-report echoes it receives. Grounded on the teacher's
// cmd/client/client.go.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/anvil-exchange/anvil/internal/anvil"
	"github.com/anvil-exchange/anvil/internal/wire"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "address of the anvild ingress listener")
	market := flag.String("market", "BTC-USD", "market symbol")
	principal := flag.String("principal", "", "principal identifier (compulsory)")
	action := flag.String("action", "place", "action to perform: ['place', 'cancel', 'snapshot']")

	orderID := flag.String("order-id", "", "client-assigned order id (place/cancel)")
	sideStr := flag.String("side", "buy", "order side: 'buy' or 'sell'")
	price := flag.Uint64("price", 100, "limit price, in integer ticks")
	qtyStr := flag.String("qty", "10", "quantity, or comma-separated list (e.g. 10,20,50)")
	nonce := flag.String("nonce", "", "optional dedup nonce")

	flag.Parse()

	if *principal == "" {
		fmt.Println("Error: -principal is compulsory.")
		flag.Usage()
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("connected to %s as '%s'\n", *serverAddr, *principal)

	// A single background reader owns all reads off conn, exactly like
	// the teacher's readReports: the server's Response frame for a just-
	// sent request and any later live echo frames both arrive here, in
	// order, and there is no synchronous per-request read racing it.
	go readEchoes(conn)

	side := anvil.Buy
	if strings.ToLower(*sideStr) == "sell" {
		side = anvil.Sell
	}

	switch strings.ToLower(*action) {
	case "place":
		if *orderID == "" {
			log.Fatal("Error: -order-id is required for place")
		}
		for i, qty := range parseQuantities(*qtyStr) {
			id := *orderID
			if i > 0 {
				id = fmt.Sprintf("%s-%d", *orderID, i)
			}
			if err := sendPlaceOrder(conn, id, *market, side, *price, qty, *principal, *nonce); err != nil {
				log.Printf("failed to place order (qty %d): %v", qty, err)
				continue
			}
			fmt.Printf("-> sent %s order %s: %d @ %d\n", strings.ToUpper(*sideStr), id, qty, *price)
			time.Sleep(5 * time.Millisecond)
		}

	case "cancel":
		if *orderID == "" {
			log.Fatal("Error: -order-id is required for cancel")
		}
		if err := sendCancelOrder(conn, *orderID); err != nil {
			log.Printf("failed to send cancel request: %v", err)
		} else {
			fmt.Printf("-> sent cancel request for %s\n", *orderID)
		}

	case "snapshot":
		if err := sendSnapshotRequest(conn); err != nil {
			log.Printf("failed to send snapshot request: %v", err)
		} else {
			fmt.Println("-> sent snapshot request")
		}

	default:
		log.Fatalf("unknown action: %s", *action)
	}

	fmt.Println("\nlistening for execution reports... (press Ctrl+C to exit)")
	select {}
}

func parseQuantities(input string) []uint64 {
	parts := strings.Split(input, ",")
	result := make([]uint64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if val, err := strconv.ParseUint(p, 10, 64); err == nil {
			result = append(result, val)
		} else {
			log.Printf("warning: invalid quantity %q, skipping", p)
		}
	}
	return result
}

func sendPlaceOrder(conn net.Conn, orderID, market string, side anvil.Side, price, qty uint64, principal, nonce string) error {
	msg, err := wire.EncodeNewOrder(orderID, market, side, price, qty, uint64(time.Now().UnixNano()), principal, nonce)
	if err != nil {
		return err
	}
	return writeFrame(conn, msg)
}

func sendCancelOrder(conn net.Conn, orderID string) error {
	msg, err := wire.EncodeCancelOrder(orderID)
	if err != nil {
		return err
	}
	return writeFrame(conn, msg)
}

func sendSnapshotRequest(conn net.Conn) error {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, uint16(wire.SnapshotRequest))
	return writeFrame(conn, buf)
}

func writeFrame(conn net.Conn, payload []byte) error {
	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(payload)))
	copy(frame[4:], payload)
	_, err := conn.Write(frame)
	return err
}

func readFrame(conn net.Conn) ([]byte, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(conn, lenBuf); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf)
	payload := make([]byte, n)
	_, err := io.ReadFull(conn, payload)
	return payload, err
}

// readEchoes continuously reads every frame the server sends back on
// this connection — the synchronous Response to a just-sent request and
// any later live execution-report echoes arrive on the same stream, in
// order, so one reader prints them all rather than racing a second
// reader against this one.
func readEchoes(conn net.Conn) {
	for {
		payload, err := readFrame(conn)
		if err != nil {
			if err != io.EOF {
				log.Printf("connection lost: %v", err)
			}
			return
		}
		if len(payload) == 0 {
			continue
		}
		if resp, err := wire.DecodeResponse(payload); err == nil && looksLikeResponse(payload) {
			if resp.Reason != "" {
				fmt.Printf("<- %s (order_id=%s reason=%s)\n", resp.Status, resp.OrderID, resp.Reason)
			} else {
				fmt.Printf("<- %s (order_id=%s)\n", resp.Status, resp.OrderID)
			}
			continue
		}
		printEcho(payload)
	}
}

// looksLikeResponse distinguishes a Response frame from an event echo
// frame. Both begin with a single-byte tag, so the check is on overall
// shape: a Response's body is exactly [1]status + two length-prefixed
// strings and nothing more, which DecodeResponse's off accounting can
// confirm by exhausting the buffer.
func looksLikeResponse(payload []byte) bool {
	if len(payload) < 1 {
		return false
	}
	_, off, err := getStringAt(payload, 1)
	if err != nil {
		return false
	}
	_, off, err = getStringAt(payload, off)
	if err != nil {
		return false
	}
	return off == len(payload)
}

func getStringAt(msg []byte, off int) (string, int, error) {
	if len(msg) < off+2 {
		return "", 0, io.ErrUnexpectedEOF
	}
	n := int(msg[off])<<8 | int(msg[off+1])
	off += 2
	if len(msg) < off+n {
		return "", 0, io.ErrUnexpectedEOF
	}
	return string(msg[off : off+n]), off + n, nil
}

func printEcho(payload []byte) {
	kind := wire.EventFrameType(payload[0])
	switch kind {
	case wire.FrameTrade:
		fmt.Printf("\n[TRADE] %d bytes\n", len(payload))
	case wire.FrameOrderResting:
		fmt.Printf("\n[RESTING] %d bytes\n", len(payload))
	case wire.FrameOrderFullyFilled:
		fmt.Printf("\n[FILLED] %d bytes\n", len(payload))
	case wire.FrameOrderCancelled:
		fmt.Printf("\n[CANCELLED] %d bytes\n", len(payload))
	case wire.FrameOrderRejected:
		fmt.Printf("\n[REJECTED] %d bytes\n", len(payload))
	default:
		fmt.Printf("\n[UNKNOWN ECHO] %d bytes\n", len(payload))
	}
}
