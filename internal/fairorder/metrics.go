package fairorder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BatchesExecutedTotal tracks batches fully processed.
	BatchesExecutedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mev_shield_batches_executed_total",
		Help: "Total number of batches executed",
	})

	// BatchesFailedTotal tracks batch-level failures.
	BatchesFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mev_shield_batches_failed_total",
		Help: "Total number of batches that failed batch-level processing",
	})

	// BatchSizeOrders tracks member counts of executed batches.
	BatchSizeOrders = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mev_shield_batch_size_orders",
		Help:    "Member count of executed batches",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 55},
	})

	// BatchExecutionDurationSeconds tracks end-to-end batch execution time.
	BatchExecutionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mev_shield_batch_execution_duration_seconds",
		Help:    "Duration of ordering plus sequential execution of a batch",
		Buckets: prometheus.DefBuckets,
	})

	// PrioritySwapsTotal tracks priority overrides of the fairness order.
	PrioritySwapsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mev_shield_priority_swaps_total",
		Help: "Total number of priority-driven swaps applied after fairness ordering",
	})
)
