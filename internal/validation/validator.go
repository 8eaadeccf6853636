// Package validation runs the hard eligibility gates on one candidate pair.
// Checks are ordered and fail fast; the outcome is a structured decision,
// never an error.
package validation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/risk"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/config"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/types"
)

// Rejection reason codes.
const (
	ReasonCommodityMismatch = "COMMODITY_MISMATCH"
	ReasonInsufficientQty   = "INSUFFICIENT_QUANTITY"
	ReasonOverBudget        = "PRICE_OVER_BUDGET"
	ReasonNotActive         = "ENTITY_NOT_ACTIVE"
	ReasonExpired           = "ENTITY_EXPIRED"
	ReasonRiskFail          = "RISK_COMPLIANCE_FAIL"
	ReasonInternalTrade     = "INTERNAL_BRANCH_TRADE"
)

// Result is the validator decision for one pair.
type Result struct {
	IsValid    bool             `json:"is_valid"`
	Reasons    []string         `json:"reasons,omitempty"`
	Warnings   []string         `json:"warnings,omitempty"`
	AIAlerts   []string         `json:"ai_alerts,omitempty"`
	RiskStatus types.RiskStatus `json:"risk_status,omitempty"`
	RiskScore  float64          `json:"risk_score"`
}

func (r *Result) reject(reason string) *Result {
	r.IsValid = false
	r.Reasons = append(r.Reasons, reason)
	return r
}

// Config holds validator configuration.
type Config struct {
	MinPartialPercent    float64
	MinAIConfidence      float64
	BlockInternalTrading bool
	Logger               *zap.Logger
}

// Validator applies the ordered eligibility checks.
type Validator struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// NewFromConfig builds a validator from the application config.
func NewFromConfig(cfg *config.Config, logger *zap.Logger) (*Validator, error) {
	return New(Config{
		MinPartialPercent:    cfg.Matching.MinPartialQuantityPercent,
		MinAIConfidence:      cfg.Risk.MinAIConfidence,
		BlockInternalTrading: cfg.Matching.BlockInternalTrading,
		Logger:               logger,
	})
}

// New creates a validator.
func New(cfg Config) (*Validator, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.MinPartialPercent <= 0 {
		cfg.MinPartialPercent = 0.10
	}
	return &Validator{cfg: cfg, logger: cfg.Logger, now: time.Now}, nil
}

// Validate runs the ordered checks. Hard failures return immediately with the
// rejecting reason; AI advisories and risk WARN accumulate as warnings. The
// risk assessment is resolved by the caller and may be nil when the risk
// check was skipped by request.
func (v *Validator) Validate(req *types.Requirement, avail *types.Availability, assessment *risk.Assessment) *Result {
	res := &Result{IsValid: true}

	// 1. Commodity match.
	if req.CommodityID != avail.CommodityID {
		return res.reject(ReasonCommodityMismatch)
	}

	// 2. Quantity floor: seller must cover the larger of the explicit buyer
	// minimum and the partial-order floor.
	needed := req.MinQty
	if floor := avail.EffectiveMinOrderQty(req.PreferredQty, v.cfg.MinPartialPercent); floor > needed {
		needed = floor
	}
	if avail.AvailableQty < needed {
		return res.reject(ReasonInsufficientQty)
	}

	// 3. Budget.
	if avail.BasePrice.GreaterThan(req.MaxBudgetPerUnit) {
		return res.reject(ReasonOverBudget)
	}

	// 4. Both entities active.
	if !req.Status.Matchable() {
		return res.reject(ReasonNotActive)
	}
	if avail.Status != types.AvailabilityActive {
		return res.reject(ReasonNotActive)
	}

	// 5. Neither expired.
	now := v.now()
	if req.ExpiredAt(now) || avail.ExpiredAt(now) {
		return res.reject(ReasonExpired)
	}

	// 6. Buyer-side AI price alert is advisory.
	if req.AIPriceAlert {
		alert := "AI price alert raised on requirement"
		if req.AIPriceAlertReason != "" {
			alert = fmt.Sprintf("AI price alert: %s", req.AIPriceAlertReason)
		}
		res.AIAlerts = append(res.AIAlerts, alert)
	}

	// 7. Low AI confidence is advisory.
	if req.AIConfidence > 0 && req.AIConfidence < v.cfg.MinAIConfidence {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("AI confidence %.0f below threshold %.0f", req.AIConfidence, v.cfg.MinAIConfidence))
	}

	// 8. Seller price above the AI-suggested ceiling is advisory.
	if req.AISuggestedMaxPrice != nil && avail.BasePrice.GreaterThan(*req.AISuggestedMaxPrice) {
		deviation := avail.BasePrice.Sub(*req.AISuggestedMaxPrice).
			Div(*req.AISuggestedMaxPrice).Mul(hundred)
		res.AIAlerts = append(res.AIAlerts,
			fmt.Sprintf("seller price exceeds AI suggested max by %s%%", deviation.StringFixed(1)))
	}

	// 9. AI recommendation advisory.
	if len(req.AIRecommendedSellers) > 0 {
		if req.HasRecommendedSeller(avail.SellerID) {
			res.AIAlerts = append(res.AIAlerts, "seller is AI-recommended for this requirement")
		} else {
			res.AIAlerts = append(res.AIAlerts, "seller is not in the AI recommendation set")
		}
	}

	// 10. Risk verdict: FAIL blocks, WARN carries through to the scorer.
	if assessment != nil {
		res.RiskStatus = assessment.Status
		res.RiskScore = assessment.FinalScore
		switch assessment.Status {
		case types.RiskFail:
			if assessment.Details != "" {
				res.Warnings = append(res.Warnings, assessment.Details)
			}
			return res.reject(ReasonRiskFail)
		case types.RiskWarn:
			res.Warnings = append(res.Warnings, "risk status WARN, score penalty applies")
			res.Warnings = append(res.Warnings, assessment.Warnings...)
		}
	}

	// 11. Internal branch trading.
	if v.cfg.BlockInternalTrading &&
		req.OrganizationID != "" && req.OrganizationID == avail.OrganizationID {
		return res.reject(ReasonInternalTrade)
	}

	return res
}

var hundred = decimal.NewFromInt(100)
