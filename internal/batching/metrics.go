package batching

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BatchesOpenedTotal tracks lazily created batches.
	BatchesOpenedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mev_shield_batches_opened_total",
		Help: "Total number of batches opened",
	})

	// BatchesClosedTotal tracks batch closures by reason.
	BatchesClosedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mev_shield_batches_closed_total",
			Help: "Total number of batches closed",
		},
		[]string{"reason"},
	)

	// OrdersBatchedTotal tracks revealed orders placed into batches.
	OrdersBatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mev_shield_orders_batched_total",
		Help: "Total number of orders placed into batches",
	})
)
