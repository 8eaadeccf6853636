package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PublishedTotal tracks events published per event name.
	PublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_events_published_total",
			Help: "Total number of domain events published",
		},
		[]string{"event"},
	)

	// DroppedTotal tracks events dropped because a subscriber channel was full.
	DroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_events_dropped_total",
			Help: "Total number of domain events dropped on full subscriber channels",
		},
		[]string{"event"},
	)
)
