// Package observability exposes Prometheus metrics for the vitals
// gateway: recompute activity, escrow movement, and sweep throughput.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Recompute Metrics ──────────────────────────────────────────────────────

// RecomputesTotal counts recompute runs by outcome.
var RecomputesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "vitalgate",
	Subsystem: "engine",
	Name:      "recomputes_total",
	Help:      "Total snapshot recomputes by outcome (ok, bootstrap, error).",
}, []string{"outcome"})

// RecomputeDuration tracks recompute wall time.
var RecomputeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "vitalgate",
	Subsystem: "engine",
	Name:      "recompute_duration_seconds",
	Help:      "Wall time of one full snapshot recompute.",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
})

// ─── Escrow Metrics ─────────────────────────────────────────────────────────

// Crystallizations counts day-rollover crystallization events.
var Crystallizations = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "vitalgate",
	Subsystem: "escrow",
	Name:      "crystallizations_total",
	Help:      "Total day-rollover crystallizations of escrow carry into Essence.",
})

// CrystallizedAmount accumulates the value crystallized into Essence.
var CrystallizedAmount = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "vitalgate",
	Subsystem: "escrow",
	Name:      "crystallized_amount_total",
	Help:      "Total escrow carry converted into Essence credit.",
})

// EscrowCarry tracks the last observed escrow carry per source pool.
var EscrowCarry = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "vitalgate",
	Subsystem: "escrow",
	Name:      "carry",
	Help:      "Escrow carry by source pool, as of the last recompute.",
}, []string{"source"})

// ─── Sweep Metrics ──────────────────────────────────────────────────────────

// SweptTransactions counts pending transactions locked by the expiry sweep.
var SweptTransactions = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "vitalgate",
	Subsystem: "sweep",
	Name:      "locked_transactions_total",
	Help:      "Total ghost-expired transactions confirmed by the lock sweep.",
})

// ─── Recording Helpers ──────────────────────────────────────────────────────

// ObserveRecompute records one recompute run.
func ObserveRecompute(start time.Time, outcome string) {
	RecomputeDuration.Observe(time.Since(start).Seconds())
	RecomputesTotal.WithLabelValues(outcome).Inc()
}

// RecordEscrow publishes the post-recompute escrow state.
func RecordEscrow(bySource map[string]float64, crystallized float64) {
	for source, carry := range bySource {
		EscrowCarry.WithLabelValues(source).Set(carry)
	}
	if crystallized > 0 {
		Crystallizations.Inc()
		CrystallizedAmount.Add(crystallized)
	}
}
