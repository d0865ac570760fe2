package commitment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CommitsTotal tracks registered commitments by protection level.
	CommitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mev_shield_commits_total",
			Help: "Total number of order commitments registered",
		},
		[]string{"level"},
	)

	// RevealsTotal tracks reveal attempts by outcome.
	RevealsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mev_shield_reveals_total",
			Help: "Total number of reveal attempts",
		},
		[]string{"result"},
	)

	// CommitExpiredTotal tracks commitments that expired unrevealed.
	CommitExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mev_shield_commits_expired_total",
		Help: "Total number of commitments expired before reveal",
	})

	// PendingCommits tracks the current unrevealed commitment count.
	PendingCommits = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mev_shield_pending_commits",
		Help: "Current number of pending (unrevealed) commitments",
	})

	// RevealLatencySeconds tracks successful reveal processing time.
	RevealLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mev_shield_reveal_latency_seconds",
		Help:    "Duration of successful reveal processing",
		Buckets: prometheus.DefBuckets,
	})
)
