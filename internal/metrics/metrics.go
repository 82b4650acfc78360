// Package metrics exposes the engine's prometheus collectors.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "slotkeeper"

// Engine groups counters for hold, booking, sweeper, relay and lock activity.
// A nil *Engine is valid and records nothing.
type Engine struct {
	holds     *prometheus.CounterVec
	bookings  *prometheus.CounterVec
	expired   prometheus.Counter
	delivered *prometheus.CounterVec
	lockWait  *prometheus.HistogramVec
}

var (
	engineOnce     sync.Once
	engineRegistry *Engine
)

// Default returns the process-wide collectors registered on the default registry.
func Default() *Engine {
	engineOnce.Do(func() {
		engineRegistry = New(prometheus.DefaultRegisterer)
	})
	return engineRegistry
}

// New creates collectors registered on reg.
func New(reg prometheus.Registerer) *Engine {
	m := &Engine{
		holds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "holds_total",
			Help:      "Hold operations segmented by outcome.",
		}, []string{"outcome"}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking operations segmented by outcome.",
		}, []string{"outcome"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeper_expired_total",
			Help:      "Holds expired by the sweeper.",
		}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_delivered_total",
			Help:      "Outbox deliveries segmented by sink and outcome.",
		}, []string{"sink", "outcome"}),
		lockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting for a critical section.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.3, 0.5, 1},
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.holds, m.bookings, m.expired, m.delivered, m.lockWait)
	return m
}

// Hold outcomes
const (
	OutcomeAcquired   = "acquired"
	OutcomeReleased   = "released"
	OutcomeNoCapacity = "no_capacity"
	OutcomeConfirmed  = "confirmed"
	OutcomeReplayed   = "replayed"
	OutcomeCancelled  = "cancelled"
	OutcomeRestored   = "restored"
	OutcomeRejected   = "rejected"
	OutcomeError      = "error"
)

func (m *Engine) RecordHold(outcome string) {
	if m == nil {
		return
	}
	m.holds.WithLabelValues(outcome).Inc()
}

func (m *Engine) RecordBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(outcome).Inc()
}

func (m *Engine) RecordExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}

func (m *Engine) RecordDelivery(sink string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.delivered.WithLabelValues(sink, outcome).Inc()
}

// ObserveLockWait matches locks.WaitObserver.
func (m *Engine) ObserveLockWait(waited time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "acquired"
	if err != nil {
		outcome = "timeout"
	}
	m.lockWait.WithLabelValues(outcome).Observe(waited.Seconds())
}
