package detection

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DetectionsTotal tracks positive detections by heuristic.
	DetectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mev_shield_frontrun_detections_total",
			Help: "Total number of positive front-running detections",
		},
		[]string{"reason"},
	)

	// DetectionDurationSeconds tracks detection scan latency.
	DetectionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mev_shield_detection_duration_seconds",
		Help:    "Duration of a front-running detection scan",
		Buckets: prometheus.DefBuckets,
	})
)
