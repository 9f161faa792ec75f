package saga

import (
	"errors"
	"log"
	"sync"
	"time"

	"bazaar/internal/protocol"
)

// ErrSagaExists is returned when a saga is started twice for one order ID.
var ErrSagaExists = errors.New("saga already active for order")

// Store is the registry of active order sagas. It is safe for concurrent use
// by dispatcher workers and the reaper; the store mutex only guards the
// order-ID map, per-saga state has its own lock.
type Store struct {
	mu    sync.RWMutex
	sagas map[string]*Saga

	logf func(format string, args ...any)
	now  func() time.Time
}

// NewStore constructs an empty store. logf defaults to log.Printf.
func NewStore(logf func(format string, args ...any)) *Store {
	if logf == nil {
		logf = log.Printf
	}
	return &Store{
		sagas: make(map[string]*Saga),
		logf:  logf,
		now:   time.Now,
	}
}

// Start creates and registers a saga for the order. Order IDs are unique
// upstream, so a collision is reported as an error rather than silently
// replacing live state.
func (s *Store) Start(order protocol.OrderRequest) (*Saga, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sagas[order.OrderID]; ok {
		return nil, ErrSagaExists
	}
	sg := newSaga(order, s.now())
	s.sagas[order.OrderID] = sg
	s.logf("[saga] started order %s with %d product lines", order.OrderID, len(order.Products))
	return sg, nil
}

// Get returns the active saga for an order, if any.
func (s *Store) Get(orderID string) (*Saga, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sg, ok := s.sagas[orderID]
	return sg, ok
}

// Len reports the number of active sagas.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sagas)
}

// RegisterPending marks a product as awaiting an outcome.
func (s *Store) RegisterPending(orderID, productID string) {
	sg, ok := s.Get(orderID)
	if !ok {
		s.logf("[saga] register pending: no saga for order %s", orderID)
		return
	}
	sg.registerPending(productID)
}

// RecordOutcome resolves a product with a seller's definitive response.
// Outcomes for removed sagas or already-resolved products are dropped with a
// log line; the response may legitimately arrive after a reaper removal or
// after another candidate already answered.
func (s *Store) RecordOutcome(res protocol.ReserveResponse) {
	sg, ok := s.Get(res.OrderID)
	if !ok {
		s.logf("[saga] no saga for order %s; dropping %s outcome for %s", res.OrderID, res.Status, res.ProductID)
		return
	}

	accepted, completed := sg.recordOutcome(res)
	if !accepted {
		s.logf("[saga] order %s: product %s already resolved; dropping late %s outcome", res.OrderID, res.ProductID, res.Status)
		return
	}

	if res.Reserved() {
		s.logf("[saga] order %s: %s reserved at %s", res.OrderID, res.ProductID, res.SellerID)
	} else {
		s.logf("[saga] order %s: reservation failed for %s: %s", res.OrderID, res.ProductID, res.Reason)
	}
	if completed {
		s.logf("[saga] order %s: all reservations resolved, status %s", res.OrderID, sg.Status())
	}
}

// RecordTimeout synthesizes a FAILED outcome for a product whose candidate
// sellers are exhausted (or that has no sellers at all).
func (s *Store) RecordTimeout(orderID, productID string) {
	s.RecordOutcome(protocol.ReserveResponse{
		OrderID:   orderID,
		ProductID: productID,
		Status:    protocol.StatusFailed,
		Reason:    protocol.ReasonTimeout,
	})
}

// DropReservation removes a confirmed product from the saga's reservation
// map so a later rollback cannot target it again.
func (s *Store) DropReservation(orderID, productID string) {
	if sg, ok := s.Get(orderID); ok {
		sg.dropReservation(productID)
	}
}

// RollbackSet returns the reservations a compensating cancel must target.
func (s *Store) RollbackSet(orderID string) []protocol.ReserveResponse {
	sg, ok := s.Get(orderID)
	if !ok {
		return nil
	}
	return sg.SuccessfulReservations()
}

// Complete sets the terminal status and removes the saga. Removal happens
// exactly once: the duration and true are returned only to the caller that
// actually removed it, which anchors exactly-once outcome notification.
func (s *Store) Complete(orderID string, success bool) (time.Duration, bool) {
	s.mu.Lock()
	sg, ok := s.sagas[orderID]
	if ok {
		delete(s.sagas, orderID)
	}
	s.mu.Unlock()

	if !ok {
		return 0, false
	}
	sg.markTerminal(success)
	dur := s.now().Sub(sg.startedAt)
	s.logf("[saga] order %s finished: %s (took %v)", orderID, sg.Status(), dur)
	return dur, true
}

// Overdue returns sagas still incomplete past maxAge. Only the reaper calls
// this.
func (s *Store) Overdue(maxAge time.Duration) []*Saga {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Saga
	for _, sg := range s.sagas {
		if sg.overdue(now, maxAge) {
			out = append(out, sg)
		}
	}
	return out
}
