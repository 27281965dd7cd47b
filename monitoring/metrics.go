package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_reservations_total",
			Help: "Reservation attempts by outcome",
		},
		[]string{"outcome"},
	)

	actionsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_actions_total",
			Help: "Settlement actions by kind and terminal status",
		},
		[]string{"kind", "status"},
	)

	pendingActions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "settlement_actions_pending",
			Help: "Actions currently awaiting backend resolution",
		},
	)

	settlementLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "settlement_latency_seconds",
			Help:    "Time from submission to resolution",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"kind"},
	)

	inconsistencies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "settlement_inconsistencies_total",
			Help: "Late or duplicate resolutions needing manual reconciliation",
		},
	)
)

func RecordReservation(outcome string) {
	reservations.WithLabelValues(outcome).Inc()
}

func ActionSubmitted() {
	pendingActions.Inc()
}

func ActionResolved(kind, status string, submittedAt time.Time) {
	pendingActions.Dec()
	actionsResolved.WithLabelValues(kind, status).Inc()
	settlementLatency.WithLabelValues(kind).Observe(time.Since(submittedAt).Seconds())
}

func RecordInconsistency() {
	inconsistencies.Inc()
}
