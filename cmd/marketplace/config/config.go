// Package config loads marketplace node configuration from the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SagaConfig holds the coordinator's timing knobs.
type SagaConfig struct {
	MarketplaceID string
	// CallTimeout bounds a single seller call.
	CallTimeout time.Duration
	// OrderWaitMultiplier scales CallTimeout into the per-order wait
	// budget.
	OrderWaitMultiplier int
	// SweepPeriod is the reaper's scan interval.
	SweepPeriod time.Duration
	// HardDeadline is the age at which the reaper force-removes a saga.
	HardDeadline time.Duration
}

// TopologyConfig holds the seller endpoints and the product routing
// table.
type TopologyConfig struct {
	// Sellers maps seller IDs to TCP addresses.
	Sellers map[string]string
	// Routes maps product IDs to candidate sellers in preference order.
	Routes map[string][]string
}

// GeneratorConfig shapes the synthetic customer load.
type GeneratorConfig struct {
	OrderDelay        time.Duration
	DuplicateLineProb float64
}

// RedisConfig holds the optional saga journal settings. An empty URL
// disables the journal.
type RedisConfig struct {
	URL          string
	Stream       string
	EventTTL     time.Duration
	StreamMaxLen int64
}

// ObservabilityConfig holds the HTTP addresses for the metrics and
// notification endpoints.
type ObservabilityConfig struct {
	MetricsAddr string
	NotifyAddr  string
}

// LoadSaga reads coordinator timing from env and validates that the
// timeout scopes nest: per-call < order wait < hard deadline.
func LoadSaga() (SagaConfig, error) {
	cfg := SagaConfig{
		MarketplaceID: strings.TrimSpace(os.Getenv("MARKET_ID")),
	}
	if cfg.MarketplaceID == "" {
		cfg.MarketplaceID = "M1"
	}

	var err error
	if cfg.CallTimeout, err = requiredDuration("MARKET_CALL_TIMEOUT"); err != nil {
		return cfg, err
	}
	if cfg.OrderWaitMultiplier, err = requiredInt("MARKET_ORDER_WAIT_MULTIPLIER"); err != nil {
		return cfg, err
	}
	if cfg.SweepPeriod, err = requiredDuration("MARKET_SWEEP_PERIOD"); err != nil {
		return cfg, err
	}
	if cfg.HardDeadline, err = requiredDuration("MARKET_HARD_DEADLINE"); err != nil {
		return cfg, err
	}

	if cfg.CallTimeout <= 0 {
		return cfg, errors.New("MARKET_CALL_TIMEOUT must be > 0")
	}
	if cfg.OrderWaitMultiplier < 2 {
		return cfg, errors.New("MARKET_ORDER_WAIT_MULTIPLIER must be >= 2")
	}
	orderWait := cfg.CallTimeout * time.Duration(cfg.OrderWaitMultiplier)
	if cfg.HardDeadline <= orderWait {
		return cfg, fmt.Errorf("MARKET_HARD_DEADLINE (%v) must exceed the order wait (%v)", cfg.HardDeadline, orderWait)
	}
	if cfg.SweepPeriod <= 0 {
		return cfg, errors.New("MARKET_SWEEP_PERIOD must be > 0")
	}
	return cfg, nil
}

// LoadTopology reads the seller endpoints and routing table from env.
// MARKET_SELLERS has the form "S1=host:port,S2=host:port" and
// MARKET_ROUTES the form "PA=S1;PB=S1,S5". Every seller a route names
// must have an endpoint.
func LoadTopology() (TopologyConfig, error) {
	cfg := TopologyConfig{}

	raw, err := requiredString("MARKET_SELLERS")
	if err != nil {
		return cfg, err
	}
	cfg.Sellers = make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, addr, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(id) == "" || strings.TrimSpace(addr) == "" {
			return cfg, fmt.Errorf("MARKET_SELLERS: malformed entry %q", entry)
		}
		cfg.Sellers[strings.TrimSpace(id)] = strings.TrimSpace(addr)
	}
	if len(cfg.Sellers) == 0 {
		return cfg, errors.New("MARKET_SELLERS names no sellers")
	}

	raw, err = requiredString("MARKET_ROUTES")
	if err != nil {
		return cfg, err
	}
	cfg.Routes = make(map[string][]string)
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		product, sellers, ok := strings.Cut(entry, "=")
		if !ok || strings.TrimSpace(product) == "" {
			return cfg, fmt.Errorf("MARKET_ROUTES: malformed entry %q", entry)
		}
		var candidates []string
		for _, id := range strings.Split(sellers, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, known := cfg.Sellers[id]; !known {
				return cfg, fmt.Errorf("MARKET_ROUTES: product %s routes to unknown seller %s", strings.TrimSpace(product), id)
			}
			candidates = append(candidates, id)
		}
		if len(candidates) == 0 {
			return cfg, fmt.Errorf("MARKET_ROUTES: product %s has no sellers", strings.TrimSpace(product))
		}
		cfg.Routes[strings.TrimSpace(product)] = candidates
	}
	if len(cfg.Routes) == 0 {
		return cfg, errors.New("MARKET_ROUTES names no products")
	}
	return cfg, nil
}

// Catalog returns the routed product IDs in sorted order.
func (c TopologyConfig) Catalog() []string {
	products := make([]string, 0, len(c.Routes))
	for id := range c.Routes {
		products = append(products, id)
	}
	sort.Strings(products)
	return products
}

// LoadGenerator reads order generator settings from env.
func LoadGenerator() (GeneratorConfig, error) {
	cfg := GeneratorConfig{OrderDelay: time.Second}

	if d, err := optionalDuration("MARKET_ORDER_DELAY"); err != nil {
		return cfg, err
	} else if d != nil {
		cfg.OrderDelay = *d
	}

	raw := strings.TrimSpace(os.Getenv("MARKET_DUPLICATE_LINE_PROB"))
	if raw != "" {
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return cfg, fmt.Errorf("MARKET_DUPLICATE_LINE_PROB: %w", err)
		}
		if p < 0 || p > 1 {
			return cfg, errors.New("MARKET_DUPLICATE_LINE_PROB must be in [0, 1]")
		}
		cfg.DuplicateLineProb = p
	}
	return cfg, nil
}

// LoadRedis reads the optional journal settings from env.
func LoadRedis() (RedisConfig, error) {
	cfg := RedisConfig{
		URL:    strings.TrimSpace(os.Getenv("REDIS_URL")),
		Stream: strings.TrimSpace(os.Getenv("REDIS_STREAM")),
	}
	if cfg.URL == "" {
		return cfg, nil
	}

	ttl, err := optionalDuration("REDIS_EVENT_TTL")
	if err != nil {
		return cfg, err
	}
	if ttl != nil {
		cfg.EventTTL = *ttl
	}
	if cfg.StreamMaxLen, err = optionalInt64("REDIS_STREAM_MAXLEN"); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadObservability reads the HTTP listen addresses from env. Both are
// optional; an empty address disables the corresponding endpoint.
func LoadObservability() ObservabilityConfig {
	return ObservabilityConfig{
		MetricsAddr: strings.TrimSpace(os.Getenv("OBS_ADDR")),
		NotifyAddr:  strings.TrimSpace(os.Getenv("NOTIFY_ADDR")),
	}
}

func requiredString(name string) (string, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return raw, nil
}

func requiredDuration(name string) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, fmt.Errorf("%s is required", name)
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

func requiredInt(name string) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, fmt.Errorf("%s is required", name)
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("%s must be >= 0", name)
	}
	return val, nil
}

func optionalDuration(name string) (*time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return nil, fmt.Errorf("%s must be >= 0", name)
	}
	return &val, nil
}

func optionalInt64(name string) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return 0, nil
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("%s must be >= 0", name)
	}
	return val, nil
}
