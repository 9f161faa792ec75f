package observability

import (
	"sync"
	"time"
)

type durationStats struct {
	count int64
	total time.Duration
	max   time.Duration
	last  time.Duration
}

func (d *durationStats) observe(took time.Duration) {
	d.count++
	d.total += took
	if took > d.max {
		d.max = took
	}
	d.last = took
}

func (d *durationStats) snapshot() DurationSnapshot {
	avg := 0.0
	if d.count > 0 {
		avg = float64(d.total.Milliseconds()) / float64(d.count)
	}
	return DurationSnapshot{
		Count:  d.count,
		AvgMs:  avg,
		MaxMs:  float64(d.max.Milliseconds()),
		LastMs: float64(d.last.Milliseconds()),
	}
}

type DurationSnapshot struct {
	Count  int64   `json:"count"`
	AvgMs  float64 `json:"avg_ms"`
	MaxMs  float64 `json:"max_ms"`
	LastMs float64 `json:"last_ms"`
}

type Snapshot struct {
	UptimeSec           int64             `json:"uptime_sec"`
	OrdersStarted       int64             `json:"orders_started"`
	OrdersCompleted     DurationSnapshot  `json:"orders_completed"`
	OrdersCompensated   DurationSnapshot  `json:"orders_compensated"`
	OrdersReaped        int64             `json:"orders_reaped"`
	ActiveSagas         int64             `json:"active_sagas"`
	ReservationAttempts int64             `json:"reservation_attempts"`
	Failovers           int64             `json:"failovers"`
	ConfirmsSent        int64             `json:"confirms_sent"`
	CancelsSent         int64             `json:"cancels_sent"`
	Lifecycle           *LifecycleSnapshot `json:"lifecycle,omitempty"`
}

// Metrics counts saga and dispatch activity for one marketplace node. It
// satisfies both the coordinator's and the dispatcher's stats hooks. The
// zero of every counter is meaningful, and all methods are nil-safe so a
// node can run without observability wired at all.
type Metrics struct {
	mu                  sync.Mutex
	start               time.Time
	ordersStarted       int64
	completed           durationStats
	compensated         durationStats
	ordersReaped        int64
	reservationAttempts int64
	failovers           int64
	confirmsSent        int64
	cancelsSent         int64
	activeSagas         func() int64
	lifecycle           lifecycleStats
}

type lifecycleStats struct {
	shutdownAt time.Time
	inflight   int64
}

type LifecycleSnapshot struct {
	ShutdownAt         time.Time `json:"shutdown_at"`
	InFlightAtShutdown int64     `json:"inflight_at_shutdown"`
}

// NewMetrics constructs Metrics. activeSagas reports the current number
// of in-flight sagas when a snapshot is taken; it may be nil.
func NewMetrics(activeSagas func() int64) *Metrics {
	return &Metrics{
		start:       time.Now(),
		activeSagas: activeSagas,
	}
}

func (m *Metrics) OrderStarted() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.ordersStarted++
	m.mu.Unlock()
}

func (m *Metrics) OrderCompleted(took time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.completed.observe(took)
	m.mu.Unlock()
}

func (m *Metrics) OrderCompensated(took time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.compensated.observe(took)
	m.mu.Unlock()
}

func (m *Metrics) OrderReaped() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.ordersReaped++
	m.mu.Unlock()
}

func (m *Metrics) ReservationAttempt() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.reservationAttempts++
	m.mu.Unlock()
}

func (m *Metrics) Failover() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.failovers++
	m.mu.Unlock()
}

func (m *Metrics) ConfirmSent() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.confirmsSent++
	m.mu.Unlock()
}

func (m *Metrics) CancelSent() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.cancelsSent++
	m.mu.Unlock()
}

func (m *Metrics) MarkShutdown(inflight int64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.lifecycle.shutdownAt = time.Now()
	m.lifecycle.inflight = inflight
	m.mu.Unlock()
}

func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		UptimeSec:           int64(time.Since(m.start).Seconds()),
		OrdersStarted:       m.ordersStarted,
		OrdersCompleted:     m.completed.snapshot(),
		OrdersCompensated:   m.compensated.snapshot(),
		OrdersReaped:        m.ordersReaped,
		ReservationAttempts: m.reservationAttempts,
		Failovers:           m.failovers,
		ConfirmsSent:        m.confirmsSent,
		CancelsSent:         m.cancelsSent,
	}
	if m.activeSagas != nil {
		snap.ActiveSagas = m.activeSagas()
	}
	if !m.lifecycle.shutdownAt.IsZero() {
		snap.Lifecycle = &LifecycleSnapshot{
			ShutdownAt:         m.lifecycle.shutdownAt,
			InFlightAtShutdown: m.lifecycle.inflight,
		}
	}
	return snap
}
