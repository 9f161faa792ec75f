package seller

import (
	"bufio"
	"context"
	"log"
	"net"
	"sync"
	"time"

	"bazaar/internal/protocol"
)

// Server is a simulated seller node. It speaks the newline-delimited
// JSON protocol over TCP, holds reservations in an Inventory and
// misbehaves according to its FaultInjector.
type Server struct {
	id     string
	inv    *Inventory
	faults *FaultInjector
	logf   func(format string, args ...any)

	mu sync.Mutex
	ln net.Listener
	wg sync.WaitGroup
}

// NewServer constructs a seller Server. faults and logf may be nil.
func NewServer(id string, inv *Inventory, faults *FaultInjector, logf func(string, ...any)) *Server {
	if logf == nil {
		logf = log.Printf
	}
	return &Server{id: id, inv: inv, faults: faults, logf: logf}
}

// ID returns the seller identifier.
func (s *Server) ID() string { return s.id }

// Listen binds addr and returns the bound address, useful when addr
// requests an ephemeral port.
func (s *Server) Listen(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return ln.Addr().String(), nil
}

// Serve accepts marketplace connections until the context is cancelled
// or the listener is closed. Listen must have been called.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.wg.Wait()
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Close stops accepting connections.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	var wmu sync.Mutex
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		if len(line) == 0 {
			continue
		}
		// Requests on one connection are served concurrently so a
		// slow (or dropped) reservation cannot delay the next line.
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleRequest(ctx, conn, &wmu, line)
		}()
	}
	if err := scanner.Err(); err != nil {
		s.logf("[seller %s] connection read: %v", s.id, err)
	}
}

func (s *Server) handleRequest(ctx context.Context, conn net.Conn, wmu *sync.Mutex, line []byte) {
	if d := s.faults.Latency(); d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return
		}
	}

	var reply protocol.Message
	switch msg := protocol.Decode(line).(type) {
	case protocol.ReserveRequest:
		if s.faults.Drop() {
			s.logf("[seller %s] dropping reserve for %s/%s", s.id, msg.OrderID, msg.ProductID)
			return
		}
		reply = s.reserve(msg)
	case protocol.CancelRequest:
		s.inv.Cancel(msg.OrderID, msg.ProductID)
		s.logf("[seller %s] cancelled %s/%s", s.id, msg.OrderID, msg.ProductID)
		reply = protocol.CancelResponse{
			OrderID:   msg.OrderID,
			ProductID: msg.ProductID,
			SellerID:  s.id,
			Status:    protocol.StatusCancelled,
		}
	case protocol.ConfirmRequest:
		s.inv.Confirm(msg.OrderID, msg.ProductID)
		s.logf("[seller %s] confirmed %s/%s", s.id, msg.OrderID, msg.ProductID)
		return
	case protocol.Unknown:
		s.logf("[seller %s] ignoring unrecognized message: %v", s.id, msg.Err)
		return
	default:
		return
	}

	data, err := protocol.Encode(reply)
	if err != nil {
		s.logf("[seller %s] encode reply: %v", s.id, err)
		return
	}
	wmu.Lock()
	defer wmu.Unlock()
	if _, err := conn.Write(append(data, '\n')); err != nil {
		s.logf("[seller %s] write reply: %v", s.id, err)
	}
}

func (s *Server) reserve(req protocol.ReserveRequest) protocol.ReserveResponse {
	res := protocol.ReserveResponse{
		OrderID:   req.OrderID,
		ProductID: req.ProductID,
		SellerID:  s.id,
	}
	if s.faults.Unavailable() {
		res.Status = protocol.StatusFailed
		res.Reason = protocol.ReasonUnavailable
		s.logf("[seller %s] %s/%s rejected: %s", s.id, req.OrderID, req.ProductID, res.Reason)
		return res
	}
	if reason := s.inv.Reserve(req.OrderID, req.ProductID, req.Quantity); reason != "" {
		res.Status = protocol.StatusFailed
		res.Reason = reason
		s.logf("[seller %s] %s/%s rejected: %s", s.id, req.OrderID, req.ProductID, reason)
		return res
	}
	res.Status = protocol.StatusReserved
	s.logf("[seller %s] reserved %dx %s for %s", s.id, req.Quantity, req.ProductID, req.OrderID)
	return res
}
