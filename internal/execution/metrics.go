package execution

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TradesExecutedTotal tracks simulated fills by side.
	TradesExecutedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mev_shield_trades_executed_total",
			Help: "Total number of orders executed against the venue",
		},
		[]string{"side"},
	)

	// ExecutionDurationSeconds tracks per-order execution latency.
	ExecutionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mev_shield_execution_duration_seconds",
		Help:    "Duration of a single order execution",
		Buckets: prometheus.DefBuckets,
	})

	// ExecutionErrorsTotal tracks failed executions.
	ExecutionErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mev_shield_execution_errors_total",
		Help: "Total number of failed order executions",
	})
)
