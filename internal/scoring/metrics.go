package scoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InvocationsTotal tracks scorer invocations. Candidates rejected by the
	// location filter must never increment this.
	InvocationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matching_scorer_invocations_total",
		Help: "Total number of candidate pairs scored",
	})

	// BlockedTotal tracks candidates blocked by a FAIL risk verdict.
	BlockedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matching_scorer_blocked_total",
		Help: "Total number of candidates blocked by compliance before scoring",
	})

	// WarnPenaltiesTotal tracks WARN penalties applied to composite scores.
	WarnPenaltiesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matching_scorer_warn_penalties_total",
		Help: "Total number of WARN risk penalties applied",
	})

	// AIBoostsTotal tracks AI recommendation boosts applied.
	AIBoostsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matching_scorer_ai_boosts_total",
		Help: "Total number of AI recommendation boosts applied",
	})

	// ScoreHistogram tracks the distribution of final composite scores.
	ScoreHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "matching_scorer_final_score",
		Help:    "Distribution of final composite match scores",
		Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1.0},
	})
)
