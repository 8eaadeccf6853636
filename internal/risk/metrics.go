package risk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AssessmentsTotal tracks orchestrator verdicts by status.
	AssessmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_assessments_total",
		Help: "Total number of risk assessments by final status",
	}, []string{"status"})

	// ViolationsTotal tracks tier-1 blocks by violation type.
	ViolationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "risk_tier1_violations_total",
		Help: "Total number of tier-1 rule violations by type",
	}, []string{"type"})

	// Tier2Duration tracks tier-2 model latency.
	Tier2Duration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "risk_tier2_duration_seconds",
		Help:    "Latency of tier-2 ML predictions",
		Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.3, 0.5, 1},
	})

	// BreakerOpen is 1 while the ML circuit breaker is open.
	BreakerOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "risk_ml_breaker_open",
		Help: "Whether the ML circuit breaker is open (1) or closed (0)",
	})

	// BreakerFailuresTotal counts tier-2 failures recorded by the breaker.
	BreakerFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "risk_ml_breaker_failures_total",
		Help: "Total number of tier-2 failures recorded",
	})

	// BreakerTripsTotal counts breaker open transitions.
	BreakerTripsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "risk_ml_breaker_trips_total",
		Help: "Total number of times the ML circuit breaker opened",
	})
)
