// Package scoring computes the quality/price/delivery/risk sub-scores and the
// composite match score. The scorer is pure: the engine resolves the risk
// assessment first and passes it in, so scoring the same inputs always yields
// the same result.
package scoring

import (
	"fmt"
	"math"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/config"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/types"
)

// RiskAssessment is the slice of the orchestrator verdict the scorer reads.
type RiskAssessment struct {
	Status      types.RiskStatus
	FinalScore  float64
	Details     string
	MLAvailable bool
}

// Config holds scorer configuration.
type Config struct {
	Scoring     config.ScoringConfig
	WarnPenalty float64
	AIBoost     float64
	EnableBoost bool
	Logger      *zap.Logger
}

// Result is the outcome of scoring one candidate pair.
type Result struct {
	Blocked bool

	Base  float64
	Final float64

	Breakdown types.ScoreBreakdown
	PassFail  types.PassFail

	WarnPenaltyApplied bool
	WarnPenaltyValue   float64
	AIBoostApplied     bool
	AIBoostValue       float64

	Recommendation string
}

// Scorer computes composite match scores.
type Scorer struct {
	cfg         Config
	logger      *zap.Logger
	invocations atomic.Uint64
}

// New creates a scorer. Weight sums are validated by config on load.
func New(cfg Config) (*Scorer, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.WarnPenalty < 0 || cfg.WarnPenalty >= 1 {
		return nil, fmt.Errorf("warn penalty must be in [0,1), got %f", cfg.WarnPenalty)
	}
	return &Scorer{cfg: cfg, logger: cfg.Logger}, nil
}

// Invocations returns how many times Score has run. The location hard filter
// is verified against this counter: filtered candidates must never reach it.
func (s *Scorer) Invocations() uint64 {
	return s.invocations.Load()
}

// Score computes the composite score for one requirement/availability pair
// using the given commodity's weights. A FAIL risk verdict blocks the pair
// without further work.
func (s *Scorer) Score(commodityCode string, req *types.Requirement, avail *types.Availability, risk *RiskAssessment) *Result {
	s.invocations.Add(1)
	InvocationsTotal.Inc()

	if risk != nil && risk.Status == types.RiskFail {
		BlockedTotal.Inc()
		return &Result{
			Blocked:        true,
			Breakdown:      types.ScoreBreakdown{},
			Recommendation: "Blocked by compliance",
		}
	}

	weights := s.cfg.Scoring.WeightsFor(commodityCode)

	quality, qualityPass := s.qualityScore(req, avail)
	price, pricePass := s.priceScore(req, avail)
	delivery, deliveryPass := s.deliveryScore(req, avail)
	riskSub, riskPass := riskSubScore(risk)

	base := weights.Quality*quality + weights.Price*price + weights.Delivery*delivery + weights.Risk*riskSub
	base = clamp01(base)

	result := &Result{
		Base: base,
		Breakdown: types.ScoreBreakdown{
			Quality:  quality,
			Price:    price,
			Delivery: delivery,
			Risk:     riskSub,
		},
		PassFail: types.PassFail{
			Quality:  qualityPass,
			Price:    pricePass,
			Delivery: deliveryPass,
			Risk:     riskPass,
		},
	}

	final := base
	if risk != nil && risk.Status == types.RiskWarn {
		final = base * (1 - s.cfg.WarnPenalty)
		result.WarnPenaltyApplied = true
		result.WarnPenaltyValue = s.cfg.WarnPenalty
		WarnPenaltiesTotal.Inc()
	}

	if s.cfg.EnableBoost && req.HasRecommendedSeller(avail.SellerID) {
		final = math.Min(1.0, final+s.cfg.AIBoost)
		result.AIBoostApplied = true
		result.AIBoostValue = s.cfg.AIBoost
		AIBoostsTotal.Inc()
	}

	result.Final = clamp01(final)
	result.Recommendation = recommendation(result)

	ScoreHistogram.Observe(result.Final)
	return result
}

// qualityScore averages per-parameter scores over the requirement's
// constraint map. Missing seller parameters score zero.
func (s *Scorer) qualityScore(req *types.Requirement, avail *types.Availability) (float64, bool) {
	if len(req.Quality) == 0 {
		return 1.0, true
	}

	sum := 0.0
	for name, c := range req.Quality {
		value, present := avail.Quality[name]
		if !present {
			continue // contributes 0
		}
		sum += parameterScore(c, value)
	}
	avg := sum / float64(len(req.Quality))
	return avg, avg >= 0.6
}

// parameterScore scores one quality parameter against its constraint.
func parameterScore(c types.QualityConstraint, value float64) float64 {
	if c.Min != nil && c.Max != nil {
		if value < *c.Min || value > *c.Max {
			return 0.0
		}
		score := 1.0
		if c.Preferred != nil && *c.Max > *c.Min {
			deviation := math.Abs(value-*c.Preferred) / (*c.Max - *c.Min)
			score -= math.Min(0.5, 0.5*deviation)
		}
		return score
	}

	// Single-target constraint: exact wins over preferred.
	target := c.Exact
	if target == nil {
		target = c.Preferred
	}
	if target == nil && c.Min != nil {
		if value >= *c.Min {
			return 1.0
		}
		return 0.0
	}
	if target == nil && c.Max != nil {
		if value <= *c.Max {
			return 1.0
		}
		return 0.0
	}
	if target == nil {
		return 0.0
	}
	if value == *target {
		return 1.0
	}
	return 0.8
}

// priceScore tiers the seller price by deviation from the buyer target.
// A price over budget scores zero and fails (the validator rejects it too).
func (s *Scorer) priceScore(req *types.Requirement, avail *types.Availability) (float64, bool) {
	max := req.MaxBudgetPerUnit.InexactFloat64()
	price := avail.BasePrice.InexactFloat64()
	if max <= 0 {
		return 0.0, false
	}
	if price > max {
		return 0.0, false
	}

	target := max * 0.9
	if req.PreferredPricePerUnit != nil {
		target = req.PreferredPricePerUnit.InexactFloat64()
	}
	if target <= 0 {
		return 0.60, true
	}

	deviationPct := math.Abs(price-target) / target * 100

	var score float64
	switch {
	case price == target:
		score = 1.0
	case deviationPct <= 2:
		score = 0.95
	case deviationPct <= 5:
		score = 0.85
	case deviationPct <= 10:
		score = 0.70
	default:
		score = 0.60 // within budget but far from target
	}
	return score, score >= 0.6
}

func riskSubScore(risk *RiskAssessment) (float64, bool) {
	if risk == nil {
		// Risk check skipped by caller request.
		return 1.0, true
	}
	switch risk.Status {
	case types.RiskPass:
		return 1.0, true
	case types.RiskWarn:
		return 0.5, true
	default:
		return 0.0, false
	}
}

// recommendation maps the final score to an operator-facing band, annotated
// with any applied adjustment.
func recommendation(r *Result) string {
	var band string
	switch {
	case r.Final >= 0.90:
		band = "Excellent match"
	case r.Final >= 0.75:
		band = "Good match"
	case r.Final >= 0.60:
		band = "Acceptable match"
	default:
		band = "Below threshold"
	}
	if r.WarnPenaltyApplied {
		band += " (risk warning penalty applied)"
	}
	if r.AIBoostApplied {
		band += " (AI recommendation boost applied)"
	}
	return band
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
