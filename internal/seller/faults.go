package seller

import (
	"math/rand"
	"sync"
	"time"
)

// FaultConfig shapes the injected failures of a simulated seller. All
// probabilities are in [0, 1]; zero values give a perfectly behaved
// seller.
type FaultConfig struct {
	// DropProb is the chance a request is read and silently discarded,
	// forcing the marketplace into its timeout path.
	DropProb float64
	// UnavailableProb is the chance a reservation is rejected with a
	// transient "temporarily unavailable" reason.
	UnavailableProb float64
	// LatencyMean and LatencyStdDev shape a gaussian processing delay.
	// Sampled delays are floored at MinLatency.
	LatencyMean   time.Duration
	LatencyStdDev time.Duration
	MinLatency    time.Duration
}

// FaultInjector draws per-request fault decisions from a seeded source.
type FaultInjector struct {
	cfg FaultConfig
	mu  sync.Mutex
	rng *rand.Rand
}

// NewFaultInjector constructs a FaultInjector. Seed 0 derives a seed
// from the clock.
func NewFaultInjector(cfg FaultConfig, seed int64) *FaultInjector {
	if cfg.MinLatency <= 0 {
		cfg.MinLatency = 100 * time.Millisecond
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &FaultInjector{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// Drop reports whether the current request should be swallowed without
// a reply.
func (f *FaultInjector) Drop() bool {
	if f == nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rng.Float64() < f.cfg.DropProb
}

// Unavailable reports whether the current reservation should be
// rejected as temporarily unavailable.
func (f *FaultInjector) Unavailable() bool {
	if f == nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rng.Float64() < f.cfg.UnavailableProb
}

// Latency samples the processing delay for the current request.
func (f *FaultInjector) Latency() time.Duration {
	if f == nil {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cfg.LatencyMean <= 0 {
		return 0
	}
	d := time.Duration(f.rng.NormFloat64()*float64(f.cfg.LatencyStdDev)) + f.cfg.LatencyMean
	if d < f.cfg.MinLatency {
		d = f.cfg.MinLatency
	}
	return d
}
