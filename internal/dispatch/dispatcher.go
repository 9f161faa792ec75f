package dispatch

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"bazaar/internal/protocol"
)

// OutcomeSink receives reservation outcomes for an order. The saga store
// implements it.
type OutcomeSink interface {
	RecordOutcome(res protocol.ReserveResponse)
	RecordTimeout(orderID, productID string)
}

// Stats counts dispatcher activity. All methods must be safe for concurrent
// use; a nil Stats disables counting.
type Stats interface {
	ReservationAttempt()
	Failover()
	ConfirmSent()
	CancelSent()
}

// Config carries the dispatcher's injected routing and timing.
type Config struct {
	MarketplaceID string
	// Routes maps a product to its candidate sellers in preference order.
	Routes map[string][]string
	// CallTimeout bounds each reservation attempt and each cancellation.
	CallTimeout time.Duration
	Stats       Stats
	Logf        func(format string, args ...any)
}

// Dispatcher resolves product lines to definitive outcomes with seller
// failover, and fans out confirmations and compensating cancellations.
type Dispatcher struct {
	cfg      Config
	channels map[string]Channel
	sink     OutcomeSink
}

// New constructs a Dispatcher over the given seller channels.
func New(cfg Config, channels map[string]Channel, sink OutcomeSink) *Dispatcher {
	if cfg.Logf == nil {
		cfg.Logf = log.Printf
	}
	if cfg.Stats == nil {
		cfg.Stats = noopStats{}
	}
	return &Dispatcher{
		cfg:      cfg,
		channels: channels,
		sink:     sink,
	}
}

// ReserveLine resolves one product line, trying each candidate seller in
// table order. Transport errors, attempt timeouts and "product not carried"
// rejections move on to the next candidate; any other definitive response is
// recorded as the product's outcome. An empty candidate table or full
// exhaustion records a synthetic timeout.
func (d *Dispatcher) ReserveLine(ctx context.Context, orderID string, line protocol.ProductLine) {
	candidates := d.cfg.Routes[line.ProductID]
	if len(candidates) == 0 {
		d.cfg.Logf("[dispatch] no seller for product %s in order %s", line.ProductID, orderID)
		d.sink.RecordTimeout(orderID, line.ProductID)
		return
	}

	for _, sellerID := range candidates {
		ch, ok := d.channels[sellerID]
		if !ok {
			d.cfg.Logf("[dispatch] unknown seller %s for product %s", sellerID, line.ProductID)
			continue
		}

		req := protocol.ReserveRequest{
			OrderID:       orderID,
			ProductID:     line.ProductID,
			Quantity:      line.Quantity,
			MarketplaceID: d.cfg.MarketplaceID,
		}

		d.cfg.Stats.ReservationAttempt()
		attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
		res, err := ch.Reserve(attemptCtx, req)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.cfg.Logf("[dispatch] order %s: seller %s unavailable for %s (%v), trying next", orderID, sellerID, line.ProductID, err)
			d.cfg.Stats.Failover()
			continue
		}
		if !res.Reserved() && strings.EqualFold(res.Reason, protocol.ReasonNotCarried) {
			d.cfg.Logf("[dispatch] order %s: %s not carried by %s, trying next", orderID, line.ProductID, sellerID)
			d.cfg.Stats.Failover()
			continue
		}

		d.sink.RecordOutcome(res)
		return
	}

	d.cfg.Logf("[dispatch] order %s: candidates exhausted for %s", orderID, line.ProductID)
	d.sink.RecordTimeout(orderID, line.ProductID)
}

// Confirm sends a fire-and-forget confirmation for each reservation and
// reports each successfully sent product through onSent, so the caller can
// drop it from the rollback set as it goes out.
func (d *Dispatcher) Confirm(orderID string, reservations []protocol.ReserveResponse, onSent func(productID string)) {
	for _, res := range reservations {
		ch, ok := d.channels[res.SellerID]
		if !ok {
			d.cfg.Logf("[dispatch] confirm: unknown seller %s for order %s", res.SellerID, orderID)
			continue
		}
		req := protocol.ConfirmRequest{OrderID: orderID, ProductID: res.ProductID, SellerID: res.SellerID}
		if err := ch.Confirm(req); err != nil {
			d.cfg.Logf("[dispatch] confirm to %s failed for %s/%s: %v", res.SellerID, orderID, res.ProductID, err)
			continue
		}
		d.cfg.Stats.ConfirmSent()
		if onSent != nil {
			onSent(res.ProductID)
		}
	}
}

// Compensate dispatches a cancellation per reservation and waits for every
// attempt to finish. Each cancel is bounded by the call timeout; the
// acknowledgements themselves are best-effort.
func (d *Dispatcher) Compensate(ctx context.Context, orderID string, reservations []protocol.ReserveResponse) {
	var wg sync.WaitGroup
	for _, res := range reservations {
		ch, ok := d.channels[res.SellerID]
		if !ok {
			d.cfg.Logf("[dispatch] cancel: unknown seller %s for order %s", res.SellerID, orderID)
			continue
		}

		wg.Add(1)
		go func(res protocol.ReserveResponse, ch Channel) {
			defer wg.Done()

			req := protocol.CancelRequest{OrderID: orderID, ProductID: res.ProductID, SellerID: res.SellerID}
			cancelCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
			defer cancel()

			d.cfg.Stats.CancelSent()
			ack, err := ch.Cancel(cancelCtx, req)
			if err != nil {
				d.cfg.Logf("[dispatch] cancel to %s for %s/%s not acknowledged: %v", res.SellerID, orderID, res.ProductID, err)
				return
			}
			d.cfg.Logf("[dispatch] cancel to %s for %s/%s: %s", res.SellerID, orderID, res.ProductID, ack.Status)
		}(res, ch)
	}
	wg.Wait()
}

type noopStats struct{}

func (noopStats) ReservationAttempt() {}
func (noopStats) Failover()           {}
func (noopStats) ConfirmSent()        {}
func (noopStats) CancelSent()         {}
