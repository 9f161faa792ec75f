// Package customer simulates marketplace customers by generating a
// steady stream of synthetic orders.
package customer

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"bazaar/internal/protocol"
)

// Processor accepts generated orders. The coordinator satisfies it.
type Processor interface {
	ProcessOrder(ctx context.Context, order protocol.OrderRequest)
}

// Config shapes the generated order stream.
type Config struct {
	// Catalog is the pool of product IDs to draw lines from.
	Catalog []string
	// Delay between consecutive orders.
	Delay time.Duration
	// MaxLines caps the lines per order; at least one line is always
	// generated. Zero means 3.
	MaxLines int
	// MaxQuantity caps the per-line quantity. Zero means 5.
	MaxQuantity int
	// DuplicateLineProb is the chance an order repeats one of its
	// product lines, exercising the coordinator's duplicate handling.
	DuplicateLineProb float64
	// Seed for the order stream; 0 derives one from the clock.
	Seed int64
}

// Generator produces random orders and feeds them to a Processor.
type Generator struct {
	cfg  Config
	rng  *rand.Rand
	proc Processor
	logf func(format string, args ...any)
}

// New constructs a Generator. logf may be nil.
func New(cfg Config, proc Processor, logf func(string, ...any)) *Generator {
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = 3
	}
	if cfg.MaxQuantity <= 0 {
		cfg.MaxQuantity = 5
	}
	if cfg.Delay <= 0 {
		cfg.Delay = time.Second
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if logf == nil {
		logf = log.Printf
	}
	return &Generator{
		cfg:  cfg,
		rng:  rand.New(rand.NewSource(cfg.Seed)),
		proc: proc,
		logf: logf,
	}
}

// Run submits orders until the context is cancelled.
func (g *Generator) Run(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.Delay)
	defer ticker.Stop()

	for {
		order := g.NextOrder()
		g.logf("[customer] submitting order %s with %d lines", order.OrderID, len(order.Products))
		g.proc.ProcessOrder(ctx, order)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// NextOrder draws one random order.
func (g *Generator) NextOrder() protocol.OrderRequest {
	n := 1 + g.rng.Intn(g.cfg.MaxLines)
	lines := make([]protocol.ProductLine, 0, n+1)
	for i := 0; i < n; i++ {
		lines = append(lines, protocol.ProductLine{
			ProductID: g.cfg.Catalog[g.rng.Intn(len(g.cfg.Catalog))],
			Quantity:  1 + g.rng.Intn(g.cfg.MaxQuantity),
		})
	}
	if g.rng.Float64() < g.cfg.DuplicateLineProb {
		lines = append(lines, lines[g.rng.Intn(len(lines))])
	}
	return protocol.OrderRequest{
		OrderID:    uuid.NewString(),
		CustomerID: uuid.NewString(),
		Products:   lines,
	}
}
