package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TimeLockedOrdersTotal tracks time-locked orders created.
	TimeLockedOrdersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mev_shield_time_locked_orders_total",
		Help: "Total number of time-locked orders created",
	})

	// OrdersUnlockedTotal tracks time-locked orders released.
	OrdersUnlockedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mev_shield_orders_unlocked_total",
		Help: "Total number of time-locked orders unlocked",
	})

	// EscalationsTotal tracks automatic protection-level escalations.
	EscalationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mev_shield_protection_escalations_total",
		Help: "Total number of automatic protection-level escalations",
	})

	// MetricsRecomputeDurationSeconds tracks the metrics aggregation job.
	MetricsRecomputeDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mev_shield_metrics_recompute_duration_seconds",
		Help:    "Duration of the rolling-window metrics recomputation",
		Buckets: prometheus.DefBuckets,
	})

	// ProtectionSuccessRate mirrors the latest snapshot's success rate.
	ProtectionSuccessRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mev_shield_protection_success_rate",
		Help: "Share of terminal protected orders that executed successfully",
	})
)
