package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth tracks the number of queued match tasks.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_queue_depth",
		Help: "Match tasks waiting in the priority queue",
	})

	// EnqueuedTotal counts enqueued tasks by priority.
	EnqueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_enqueued_total",
		Help: "Total number of match tasks enqueued by priority",
	}, []string{"priority"})

	// ProcessedTotal counts processed tasks by outcome.
	ProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_processed_total",
		Help: "Total number of match tasks processed by outcome",
	}, []string{"outcome"})

	// InFlightDroppedTotal counts tasks dropped because the entity was
	// already being matched.
	InFlightDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_inflight_dropped_total",
		Help: "Total number of tasks dropped because the entity was in flight",
	})

	// NotificationsSentTotal counts match notifications dispatched.
	NotificationsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_notifications_sent_total",
		Help: "Total number of match notifications dispatched",
	})

	// NotificationsSuppressedTotal counts notifications suppressed by rate
	// limit or opt-out.
	NotificationsSuppressedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_notifications_suppressed_total",
		Help: "Total number of notifications suppressed by cause",
	}, []string{"cause"})

	// SweepEnqueuedTotal counts tasks enqueued by the safety sweep.
	SweepEnqueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_sweep_enqueued_total",
		Help: "Total number of tasks enqueued by the safety sweep",
	})
)
