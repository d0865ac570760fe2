package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsPublishedTotal tracks published notifications by type.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mev_shield_events_published_total",
			Help: "Total number of notifications published to the event bus",
		},
		[]string{"type"},
	)

	// EventsDroppedTotal tracks notifications dropped on full subscriber buffers.
	EventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mev_shield_events_dropped_total",
			Help: "Total number of notifications dropped because a subscriber buffer was full",
		},
		[]string{"type"},
	)
)
