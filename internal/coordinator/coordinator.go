// Package coordinator drives each order saga end to end: it accepts orders,
// fans out reservation attempts, watches for completion, and decides between
// confirmation and compensation. A periodic reaper bounds the lifetime of
// sagas that never converge.
package coordinator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"bazaar/internal/dispatch"
	"bazaar/internal/journal"
	"bazaar/internal/protocol"
	"bazaar/internal/saga"
)

// Notifier delivers the terminal status message for an order. It is invoked
// exactly once per saga.
type Notifier func(orderID, message string)

// Stats counts coordinator outcomes. A nil Stats disables counting.
type Stats interface {
	OrderStarted()
	OrderCompleted(took time.Duration)
	OrderCompensated(took time.Duration)
	OrderReaped()
}

// Config carries the coordinator's timing knobs. HardDeadline must exceed
// the order wait (CallTimeout times OrderWaitMultiplier), which in turn
// exceeds CallTimeout; config loading validates the ordering.
type Config struct {
	// CallTimeout bounds a single reservation or cancellation attempt.
	CallTimeout time.Duration
	// OrderWaitMultiplier scales CallTimeout into the monitor's wait budget.
	OrderWaitMultiplier int
	// SweepPeriod is the reaper interval.
	SweepPeriod time.Duration
	// HardDeadline is the saga age past which the reaper force-removes it.
	HardDeadline time.Duration
}

// Deps are the coordinator's collaborators. Store and Dispatcher are
// required; the rest default to no-ops.
type Deps struct {
	Store      *saga.Store
	Dispatcher *dispatch.Dispatcher
	Notify     Notifier
	Journal    journal.Publisher
	Stats      Stats
	Logf       func(format string, args ...any)
}

// Coordinator owns the saga lifecycle for one marketplace node.
type Coordinator struct {
	cfg     Config
	store   *saga.Store
	d       *dispatch.Dispatcher
	notify  Notifier
	journal journal.Publisher
	stats   Stats
	logf    func(format string, args ...any)

	wg sync.WaitGroup
}

// New constructs a Coordinator.
func New(cfg Config, deps Deps) *Coordinator {
	if deps.Logf == nil {
		deps.Logf = log.Printf
	}
	if deps.Notify == nil {
		deps.Notify = func(string, string) {}
	}
	if deps.Journal == nil {
		deps.Journal = journal.Discard{}
	}
	if deps.Stats == nil {
		deps.Stats = noopStats{}
	}
	return &Coordinator{
		cfg:     cfg,
		store:   deps.Store,
		d:       deps.Dispatcher,
		notify:  deps.Notify,
		journal: deps.Journal,
		stats:   deps.Stats,
		logf:    deps.Logf,
	}
}

// ProcessOrder accepts a validated order and returns immediately; all
// reservation work proceeds asynchronously. Errors never reach the caller —
// every order eventually surfaces exactly one terminal notification.
func (c *Coordinator) ProcessOrder(ctx context.Context, order protocol.OrderRequest) {
	sg, err := c.store.Start(order)
	if err != nil {
		c.logf("[coordinator] rejecting order %s: %v", order.OrderID, err)
		return
	}
	c.stats.OrderStarted()
	c.publish(ctx, journal.Event{OrderID: order.OrderID, Type: journal.EventStarted,
		Detail: fmt.Sprintf("%d product lines", len(order.Products))})

	if len(order.Products) == 0 {
		if _, removed := c.store.Complete(order.OrderID, true); removed {
			c.stats.OrderCompleted(0)
			c.notify(order.OrderID, fmt.Sprintf("order %s completed: nothing to reserve", order.OrderID))
		}
		return
	}

	// Register every line before any outcome can be recorded, so an early
	// failure on one line cannot complete the saga while siblings are still
	// unregistered.
	for _, line := range order.Products {
		c.store.RegisterPending(order.OrderID, line.ProductID)
	}

	for _, line := range order.Products {
		line := line
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.d.ReserveLine(ctx, order.OrderID, line)
		}()
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.monitor(ctx, sg)
	}()
}

// Wait blocks until all in-flight order work has finished. Used on
// shutdown.
func (c *Coordinator) Wait() { c.wg.Wait() }

// monitor waits for the saga to resolve or for the order wait budget to
// elapse, then drives confirmation or compensation. An expired budget is not
// a decision: the saga is left for the reaper.
func (c *Coordinator) monitor(ctx context.Context, sg *saga.Saga) {
	budget := c.cfg.CallTimeout * time.Duration(c.cfg.OrderWaitMultiplier)
	timer := time.NewTimer(budget)
	defer timer.Stop()

	select {
	case <-sg.Done():
	case <-timer.C:
		c.logf("[coordinator] order %s unresolved after %v, leaving to reaper", sg.OrderID, budget)
		return
	case <-ctx.Done():
		return
	}

	switch {
	case sg.Status() == saga.StatusReserved:
		c.confirm(ctx, sg)
	case sg.Status() == saga.StatusCompensating || sg.HasFailures():
		c.compensate(ctx, sg)
	}
}

// confirm finalizes a fully reserved order: fire-and-forget confirmations,
// each confirmed product dropped from the rollback set as it goes out.
func (c *Coordinator) confirm(ctx context.Context, sg *saga.Saga) {
	c.d.Confirm(sg.OrderID, sg.SuccessfulReservations(), func(productID string) {
		c.store.DropReservation(sg.OrderID, productID)
	})

	took, removed := c.store.Complete(sg.OrderID, true)
	if !removed {
		return
	}
	c.stats.OrderCompleted(took)
	c.publish(ctx, journal.Event{OrderID: sg.OrderID, Type: journal.EventCompleted, Detail: took.String()})
	c.notify(sg.OrderID, fmt.Sprintf("order %s completed: all products reserved and confirmed", sg.OrderID))
}

// compensate cancels everything reserved so far and fails the saga. It waits
// for every cancellation attempt before declaring the order finished.
func (c *Coordinator) compensate(ctx context.Context, sg *saga.Saga) {
	c.d.Compensate(ctx, sg.OrderID, c.store.RollbackSet(sg.OrderID))

	took, removed := c.store.Complete(sg.OrderID, false)
	if !removed {
		return
	}
	c.stats.OrderCompensated(took)
	c.publish(ctx, journal.Event{OrderID: sg.OrderID, Type: journal.EventCompensated, Detail: took.String()})
	c.notify(sg.OrderID, fmt.Sprintf("order %s failed: reservations rolled back", sg.OrderID))
}

func (c *Coordinator) publish(ctx context.Context, ev journal.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if err := c.journal.Publish(ctx, ev); err != nil {
		c.logf("[coordinator] journal publish for order %s: %v", ev.OrderID, err)
	}
}

type noopStats struct{}

func (noopStats) OrderStarted()                  {}
func (noopStats) OrderCompleted(time.Duration)   {}
func (noopStats) OrderCompensated(time.Duration) {}
func (noopStats) OrderReaped()                   {}
