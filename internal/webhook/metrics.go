package webhook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EnqueuedTotal counts deliveries enqueued by priority.
	EnqueuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_enqueued_total",
		Help: "Total number of webhook deliveries enqueued by priority",
	}, []string{"priority"})

	// DeliveredTotal counts successful deliveries.
	DeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_delivered_total",
		Help: "Total number of successful webhook deliveries",
	})

	// FailedTotal counts failed attempts by error code.
	FailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_failed_total",
		Help: "Total number of failed webhook delivery attempts by error code",
	}, []string{"code"})

	// RetriesTotal counts scheduled retries.
	RetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_retries_total",
		Help: "Total number of webhook delivery retries scheduled",
	})

	// DeadLetteredTotal counts deliveries moved to the DLQ.
	DeadLetteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_dead_lettered_total",
		Help: "Total number of webhook deliveries moved to the dead-letter queue",
	})

	// DeliveryDuration tracks attempt latency.
	DeliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "webhook_delivery_duration_seconds",
		Help:    "Latency of webhook delivery attempts",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})
)
