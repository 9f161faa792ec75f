package coordinator

import (
	"context"
	"fmt"
	"time"

	"bazaar/internal/journal"
)

// RunReaper sweeps on a fixed period until the context ends, force-removing
// sagas stuck past the hard deadline. This is the backstop that bounds
// coordinator memory when sellers never respond and the monitor path has
// given up.
func (c *Coordinator) RunReaper(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.SweepPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

// sweep cancels everything reserved by each overdue saga and removes it
// unconditionally, regardless of cancellation acknowledgement.
func (c *Coordinator) sweep(ctx context.Context) {
	for _, sg := range c.store.Overdue(c.cfg.HardDeadline) {
		c.logf("[reaper] order %s stuck for %v with %d pending, forcing rollback",
			sg.OrderID, sg.Age(time.Now()), sg.PendingCount())

		c.d.Compensate(ctx, sg.OrderID, c.store.RollbackSet(sg.OrderID))

		took, removed := c.store.Complete(sg.OrderID, false)
		if !removed {
			// The monitor finished it between the overdue scan and now.
			continue
		}
		c.stats.OrderReaped()
		c.publish(ctx, journal.Event{OrderID: sg.OrderID, Type: journal.EventReaped, Detail: took.String()})
		c.notify(sg.OrderID, fmt.Sprintf("order %s timed out: reservations rolled back", sg.OrderID))
	}
}

// Sweep runs one reaper pass immediately. Exposed for the entrypoint's
// shutdown path and for tests; RunReaper is the normal driver.
func (c *Coordinator) Sweep(ctx context.Context) { c.sweep(ctx) }
