// Package saga tracks the in-memory distributed-transaction state of each
// in-flight order: which product reservations are pending, which succeeded,
// which failed, and the resulting per-order state machine.
package saga

import (
	"sync"
	"time"

	"bazaar/internal/protocol"
)

// Status captures the current state of an order saga.
type Status string

const (
	StatusStarted      Status = "started"
	StatusReserving    Status = "reserving"
	StatusReserved     Status = "reserved"
	StatusCompensating Status = "compensating"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// Saga is the record of one order's reservation transaction. The per-saga
// mutex keeps unrelated sagas independent under concurrent dispatcher and
// reaper traffic; startedAt and done are set once at creation.
type Saga struct {
	OrderID string
	Order   protocol.OrderRequest

	startedAt time.Time
	done      chan struct{}

	mu           sync.Mutex
	status       Status
	reservations map[string]protocol.ReserveResponse
	pending      map[string]struct{}
	failed       map[string]struct{}
}

func newSaga(order protocol.OrderRequest, now time.Time) *Saga {
	return &Saga{
		OrderID:      order.OrderID,
		Order:        order,
		startedAt:    now,
		done:         make(chan struct{}),
		status:       StatusStarted,
		reservations: make(map[string]protocol.ReserveResponse),
		pending:      make(map[string]struct{}),
		failed:       make(map[string]struct{}),
	}
}

// Done is closed by the outcome that empties the pending set. Waiters use it
// instead of polling the saga for completion.
func (g *Saga) Done() <-chan struct{} { return g.done }

// StartedAt reports when the saga was created.
func (g *Saga) StartedAt() time.Time { return g.startedAt }

// Age is the saga's lifetime relative to now.
func (g *Saga) Age(now time.Time) time.Duration { return now.Sub(g.startedAt) }

// Status returns the current state-machine position.
func (g *Saga) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// Complete reports whether every pending reservation has resolved.
func (g *Saga) Complete() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending) == 0
}

// HasFailures reports whether any product resolved FAILED.
func (g *Saga) HasFailures() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.failed) > 0
}

// PendingCount returns the number of unresolved products.
func (g *Saga) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// SuccessfulReservations returns every reservation currently in RESERVED
// status, i.e. the set a compensating cancel or a confirmation must target.
func (g *Saga) SuccessfulReservations() []protocol.ReserveResponse {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]protocol.ReserveResponse, 0, len(g.reservations))
	for _, res := range g.reservations {
		if res.Reserved() {
			out = append(out, res)
		}
	}
	return out
}

// registerPending adds a product to the pending set and moves a fresh saga
// into RESERVING. Duplicate product lines collapse into one pending slot.
func (g *Saga) registerPending(productID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending[productID] = struct{}{}
	if g.status == StatusStarted {
		g.status = StatusReserving
	}
}

// recordOutcome resolves a pending product. It returns whether the outcome
// was accepted (false for late or duplicate outcomes, which must not
// overwrite the first definitive one) and whether it completed the saga.
// Completion and the RESERVED/COMPENSATING transition happen atomically
// under the saga mutex; the done channel is closed exactly once, by the
// outcome that empties the pending set.
func (g *Saga) recordOutcome(res protocol.ReserveResponse) (accepted, completed bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.pending[res.ProductID]; !ok {
		return false, false
	}
	delete(g.pending, res.ProductID)
	g.reservations[res.ProductID] = res
	if !res.Reserved() {
		g.failed[res.ProductID] = struct{}{}
	}

	if len(g.pending) > 0 {
		return true, false
	}
	if len(g.failed) > 0 {
		g.status = StatusCompensating
	} else {
		g.status = StatusReserved
	}
	close(g.done)
	return true, true
}

// dropReservation removes a product from the reservations map once its
// confirmation has been sent, so it can no longer be targeted by a rollback.
func (g *Saga) dropReservation(productID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.reservations, productID)
}

// markTerminal records the terminal status after removal from the store.
func (g *Saga) markTerminal(success bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if success {
		g.status = StatusCompleted
	} else {
		g.status = StatusFailed
	}
}

// overdue reports whether the saga has outlived maxAge. Age alone decides:
// a saga that resolved after its monitor gave up has no pending work but
// still needs the reaper to roll it back and remove it.
func (g *Saga) overdue(now time.Time, maxAge time.Duration) bool {
	return now.Sub(g.startedAt) > maxAge
}
