package matching

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SearchesTotal counts engine searches by side (requirement/availability).
	SearchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matching_engine_searches_total",
		Help: "Total number of match searches by side",
	}, []string{"side"})

	// CandidatesTotal counts considered candidates by outcome reason code.
	CandidatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matching_engine_candidates_total",
		Help: "Total number of candidates considered by outcome",
	}, []string{"reason"})

	// MatchesReturned tracks how many matches each search returned.
	MatchesReturned = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "matching_engine_matches_returned",
		Help:    "Number of matches returned per search",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
	})

	// SearchDuration tracks end-to-end search latency.
	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "matching_engine_search_duration_seconds",
		Help:    "End-to-end latency of one match search",
		Buckets: prometheus.DefBuckets,
	})

	// AuditQueueDepth tracks the pending audit buffer length.
	AuditQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "matching_engine_audit_queue_depth",
		Help: "Audit records waiting for the background flusher",
	})

	// AuditDroppedTotal counts audit records dropped on buffer overflow.
	AuditDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matching_engine_audit_dropped_total",
		Help: "Audit records dropped because the buffer was full",
	})

	// AllocationsTotal counts allocation outcomes by type.
	AllocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matching_allocations_total",
		Help: "Total number of allocation attempts by outcome",
	}, []string{"outcome"})
)
