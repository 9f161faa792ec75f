package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bazaar/internal/seller"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("seller error: %v", err)
	}
}

func run(ctx context.Context) error {
	id := strings.TrimSpace(os.Getenv("SELLER_ID"))
	if id == "" {
		return fmt.Errorf("SELLER_ID is required")
	}
	addr := strings.TrimSpace(os.Getenv("SELLER_ADDR"))
	if addr == "" {
		return fmt.Errorf("SELLER_ADDR is required")
	}
	stock, err := parseStock(os.Getenv("SELLER_STOCK"))
	if err != nil {
		return err
	}
	faults, err := loadFaults()
	if err != nil {
		return err
	}

	srv := seller.NewServer(id, seller.NewInventory(stock), faults, log.Printf)
	bound, err := srv.Listen(addr)
	if err != nil {
		return err
	}
	log.Printf("seller %s listening on %s with %d products", id, bound, len(stock))
	return srv.Serve(ctx)
}

// parseStock reads "PA=10,PB=5" into stock levels.
func parseStock(raw string) (map[string]int, error) {
	stock := make(map[string]int)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		product, qty, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("SELLER_STOCK: malformed entry %q", entry)
		}
		n, err := strconv.Atoi(strings.TrimSpace(qty))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("SELLER_STOCK: bad quantity in %q", entry)
		}
		stock[strings.TrimSpace(product)] = n
	}
	if len(stock) == 0 {
		return nil, fmt.Errorf("SELLER_STOCK is required")
	}
	return stock, nil
}

func loadFaults() (*seller.FaultInjector, error) {
	cfg := seller.FaultConfig{}
	var err error

	if cfg.DropProb, err = optionalProb("SELLER_DROP_PROB"); err != nil {
		return nil, err
	}
	if cfg.UnavailableProb, err = optionalProb("SELLER_UNAVAILABLE_PROB"); err != nil {
		return nil, err
	}
	if cfg.LatencyMean, err = optionalDuration("SELLER_LATENCY_MEAN"); err != nil {
		return nil, err
	}
	if cfg.LatencyStdDev, err = optionalDuration("SELLER_LATENCY_STDDEV"); err != nil {
		return nil, err
	}

	var seed int64
	if raw := strings.TrimSpace(os.Getenv("SELLER_SEED")); raw != "" {
		if seed, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, fmt.Errorf("SELLER_SEED: %w", err)
		}
	}
	return seller.NewFaultInjector(cfg, seed), nil
}

func optionalProb(name string) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, nil
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 || val > 1 {
		return 0, fmt.Errorf("%s must be in [0, 1]", name)
	}
	return val, nil
}

func optionalDuration(name string) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("%s must be >= 0", name)
	}
	return val, nil
}
