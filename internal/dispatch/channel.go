// Package dispatch resolves product reservations against sellers: one
// persistent channel per seller, per-product failover across candidates,
// and the confirmation/compensation fan-out.
package dispatch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"bazaar/internal/protocol"
)

// ErrChannelClosed indicates the seller connection died while a call was
// waiting for its response.
var ErrChannelClosed = errors.New("seller channel closed")

// Channel is a duplex link to one seller. Reserve and Cancel block until a
// correlated response arrives or the context ends; Confirm is
// fire-and-forget.
type Channel interface {
	SellerID() string
	Reserve(ctx context.Context, req protocol.ReserveRequest) (protocol.ReserveResponse, error)
	Cancel(ctx context.Context, req protocol.CancelRequest) (protocol.CancelResponse, error)
	Confirm(req protocol.ConfirmRequest) error
	Close() error
}

// TCPChannel speaks newline-delimited JSON over one long-lived TCP
// connection. All dispatcher workers targeting the seller share it: sends
// are serialized under the channel mutex, responses are routed back to the
// waiting caller by (orderId, productId).
type TCPChannel struct {
	sellerID    string
	addr        string
	dialTimeout time.Duration
	logf        func(format string, args ...any)

	waiters waiterSet

	mu     sync.Mutex
	conn   net.Conn
	closed bool
}

// NewTCPChannel constructs a channel for one seller. The connection is
// dialed lazily on first use and redialed after a transport error.
func NewTCPChannel(sellerID, addr string, dialTimeout time.Duration, logf func(format string, args ...any)) *TCPChannel {
	if logf == nil {
		logf = log.Printf
	}
	return &TCPChannel{
		sellerID:    sellerID,
		addr:        addr,
		dialTimeout: dialTimeout,
		logf:        logf,
		waiters:     waiterSet{m: make(map[string][]chan protocol.Message)},
	}
}

func (t *TCPChannel) SellerID() string { return t.sellerID }

// Reserve sends the request and waits for the correlated ReserveResponse.
func (t *TCPChannel) Reserve(ctx context.Context, req protocol.ReserveRequest) (protocol.ReserveResponse, error) {
	key := correlationKey(protocol.KindReserveResponse, req.OrderID, req.ProductID)
	msg, err := t.call(ctx, key, req)
	if err != nil {
		return protocol.ReserveResponse{}, err
	}
	res, ok := msg.(protocol.ReserveResponse)
	if !ok {
		return protocol.ReserveResponse{}, fmt.Errorf("seller %s: unexpected %s reply", t.sellerID, msg.Kind())
	}
	return res, nil
}

// Cancel sends the compensation request and waits for its acknowledgement.
func (t *TCPChannel) Cancel(ctx context.Context, req protocol.CancelRequest) (protocol.CancelResponse, error) {
	key := correlationKey(protocol.KindCancelResponse, req.OrderID, req.ProductID)
	msg, err := t.call(ctx, key, req)
	if err != nil {
		return protocol.CancelResponse{}, err
	}
	res, ok := msg.(protocol.CancelResponse)
	if !ok {
		return protocol.CancelResponse{}, fmt.Errorf("seller %s: unexpected %s reply", t.sellerID, msg.Kind())
	}
	return res, nil
}

// Confirm writes the confirmation without waiting for anything back.
func (t *TCPChannel) Confirm(req protocol.ConfirmRequest) error {
	return t.send(req)
}

// Close tears down the connection and fails all in-flight calls.
func (t *TCPChannel) Close() error {
	t.mu.Lock()
	t.closed = true
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	t.waiters.failAll()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (t *TCPChannel) call(ctx context.Context, key string, req protocol.Message) (protocol.Message, error) {
	ch := t.waiters.add(key)
	defer t.waiters.remove(key, ch)

	if err := t.send(req); err != nil {
		return nil, err
	}

	select {
	case msg, ok := <-ch:
		if !ok {
			return nil, ErrChannelClosed
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *TCPChannel) send(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrChannelClosed
	}

	if t.conn == nil {
		conn, err := net.DialTimeout("tcp", t.addr, t.dialTimeout)
		if err != nil {
			return fmt.Errorf("dial seller %s: %w", t.sellerID, err)
		}
		t.conn = conn
		go t.receiveLoop(conn)
	}

	if _, err := t.conn.Write(append(data, '\n')); err != nil {
		t.conn.Close()
		t.conn = nil
		return fmt.Errorf("send to seller %s: %w", t.sellerID, err)
	}
	return nil
}

// receiveLoop reads responses off one connection until it dies, routing each
// to its waiter. A dead connection fails every in-flight call immediately
// instead of letting them run out their timeouts.
func (t *TCPChannel) receiveLoop(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 1<<16)

	for scanner.Scan() {
		msg := protocol.Decode(scanner.Bytes())
		switch m := msg.(type) {
		case protocol.ReserveResponse:
			key := correlationKey(protocol.KindReserveResponse, m.OrderID, m.ProductID)
			if !t.waiters.deliver(key, m) {
				t.logf("[channel %s] uncorrelated reserve response for %s/%s dropped", t.sellerID, m.OrderID, m.ProductID)
			}
		case protocol.CancelResponse:
			key := correlationKey(protocol.KindCancelResponse, m.OrderID, m.ProductID)
			if !t.waiters.deliver(key, m) {
				t.logf("[channel %s] uncorrelated cancel response for %s/%s dropped", t.sellerID, m.OrderID, m.ProductID)
			}
		case protocol.Unknown:
			t.logf("[channel %s] undecodable message dropped: %v", t.sellerID, m.Err)
		default:
			t.logf("[channel %s] unexpected %s message dropped", t.sellerID, msg.Kind())
		}
	}

	t.mu.Lock()
	if t.conn == conn {
		t.conn = nil
	}
	t.mu.Unlock()
	conn.Close()
	t.waiters.failAll()
}

func correlationKey(kind protocol.Kind, orderID, productID string) string {
	return string(kind) + "|" + orderID + "|" + productID
}

// waiterSet correlates in-flight calls with responses. Multiple waiters may
// share a key (duplicate product lines); responses pop waiters in FIFO
// order.
type waiterSet struct {
	mu sync.Mutex
	m  map[string][]chan protocol.Message
}

func (w *waiterSet) add(key string) chan protocol.Message {
	ch := make(chan protocol.Message, 1)
	w.mu.Lock()
	w.m[key] = append(w.m[key], ch)
	w.mu.Unlock()
	return ch
}

func (w *waiterSet) remove(key string, ch chan protocol.Message) {
	w.mu.Lock()
	defer w.mu.Unlock()
	waiters := w.m[key]
	for i, c := range waiters {
		if c == ch {
			w.m[key] = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(w.m[key]) == 0 {
		delete(w.m, key)
	}
}

func (w *waiterSet) deliver(key string, msg protocol.Message) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	waiters := w.m[key]
	if len(waiters) == 0 {
		return false
	}
	waiters[0] <- msg
	if len(waiters) == 1 {
		delete(w.m, key)
	} else {
		w.m[key] = waiters[1:]
	}
	return true
}

// failAll closes every waiter channel; blocked callers observe
// ErrChannelClosed.
func (w *waiterSet) failAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for key, waiters := range w.m {
		for _, ch := range waiters {
			close(ch)
		}
		delete(w.m, key)
	}
}
