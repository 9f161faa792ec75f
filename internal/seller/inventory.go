package seller

import (
	"sync"

	"bazaar/internal/protocol"
)

// Inventory tracks stock levels and the reservations held against them.
// Reserved quantities are kept in a per-order ledger until the
// marketplace confirms or cancels, so a cancel can restore exactly what
// the order took.
type Inventory struct {
	mu       sync.Mutex
	stock    map[string]int
	reserved map[string]map[string]int // orderID -> productID -> qty
}

// NewInventory constructs an Inventory from initial stock levels.
func NewInventory(stock map[string]int) *Inventory {
	s := make(map[string]int, len(stock))
	for id, qty := range stock {
		s[id] = qty
	}
	return &Inventory{
		stock:    s,
		reserved: make(map[string]map[string]int),
	}
}

// Reserve attempts to hold qty units of productID for orderID. It
// returns an empty reason on success and a rejection reason otherwise.
func (inv *Inventory) Reserve(orderID, productID string, qty int) (reason string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	have, carried := inv.stock[productID]
	if !carried {
		return protocol.ReasonNotCarried
	}
	if have < qty {
		return protocol.ReasonNoStock
	}
	inv.stock[productID] = have - qty
	ledger, ok := inv.reserved[orderID]
	if !ok {
		ledger = make(map[string]int)
		inv.reserved[orderID] = ledger
	}
	ledger[productID] += qty
	return ""
}

// Cancel releases the hold orderID has on productID, returning the
// units to stock. Cancelling an unknown reservation is a no-op, so
// retried cancels stay safe.
func (inv *Inventory) Cancel(orderID, productID string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	ledger, ok := inv.reserved[orderID]
	if !ok {
		return
	}
	qty, held := ledger[productID]
	if !held {
		return
	}
	inv.stock[productID] += qty
	delete(ledger, productID)
	if len(ledger) == 0 {
		delete(inv.reserved, orderID)
	}
}

// Confirm finalizes the hold orderID has on productID. The stock was
// already deducted at reserve time, so confirmation just retires the
// ledger entry.
func (inv *Inventory) Confirm(orderID, productID string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	ledger, ok := inv.reserved[orderID]
	if !ok {
		return
	}
	delete(ledger, productID)
	if len(ledger) == 0 {
		delete(inv.reserved, orderID)
	}
}

// Stock reports the free units of productID.
func (inv *Inventory) Stock(productID string) int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.stock[productID]
}

// Held reports the units orderID currently holds on productID.
func (inv *Inventory) Held(orderID, productID string) int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.reserved[orderID][productID]
}
