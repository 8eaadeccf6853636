package validation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/risk"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/types"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New(Config{
		MinPartialPercent:    0.10,
		MinAIConfidence:      60,
		BlockInternalTrading: true,
		Logger:               zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("failed to create validator: %v", err)
	}
	return v
}

func validPair() (*types.Requirement, *types.Availability) {
	req := &types.Requirement{
		ID:               "req-1",
		BuyerID:          "buyer-1",
		OrganizationID:   "org-buyer",
		CommodityID:      "commodity-cotton",
		MinQty:           10,
		PreferredQty:     50,
		MaxQty:           100,
		MaxBudgetPerUnit: decimal.NewFromInt(100),
		Status:           types.RequirementActive,
	}
	avail := &types.Availability{
		ID:             "avail-1",
		SellerID:       "seller-1",
		OrganizationID: "org-seller",
		CommodityID:    "commodity-cotton",
		TotalQty:       80,
		AvailableQty:   80,
		BasePrice:      decimal.NewFromInt(90),
		Status:         types.AvailabilityActive,
	}
	return req, avail
}

func TestValidate_HardRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		mutate     func(*types.Requirement, *types.Availability)
		wantReason string
	}{
		{
			name:       "commodity-mismatch",
			mutate:     func(_ *types.Requirement, a *types.Availability) { a.CommodityID = "commodity-wheat" },
			wantReason: ReasonCommodityMismatch,
		},
		{
			name:       "insufficient-quantity",
			mutate:     func(r *types.Requirement, a *types.Availability) { r.MinQty = 90; a.AvailableQty = 50 },
			wantReason: ReasonInsufficientQty,
		},
		{
			name: "below-partial-floor",
			mutate: func(r *types.Requirement, a *types.Availability) {
				// 10% of preferred 50 is 5; explicit seller minimum 8 wins.
				m := 8.0
				a.MinOrderQty = &m
				a.AvailableQty = 7
				r.MinQty = 1
			},
			wantReason: ReasonInsufficientQty,
		},
		{
			name:       "over-budget",
			mutate:     func(_ *types.Requirement, a *types.Availability) { a.BasePrice = decimal.NewFromInt(101) },
			wantReason: ReasonOverBudget,
		},
		{
			name:       "requirement-not-active",
			mutate:     func(r *types.Requirement, _ *types.Availability) { r.Status = types.RequirementDraft },
			wantReason: ReasonNotActive,
		},
		{
			name:       "availability-not-active",
			mutate:     func(_ *types.Requirement, a *types.Availability) { a.Status = types.AvailabilityReserved },
			wantReason: ReasonNotActive,
		},
		{
			name: "requirement-expired",
			mutate: func(r *types.Requirement, _ *types.Availability) {
				past := time.Now().Add(-time.Hour)
				r.ValidUntil = &past
			},
			wantReason: ReasonExpired,
		},
		{
			name: "availability-expired",
			mutate: func(_ *types.Requirement, a *types.Availability) {
				past := time.Now().Add(-time.Hour)
				a.ExpiryDate = &past
			},
			wantReason: ReasonExpired,
		},
		{
			name: "internal-branch-trade",
			mutate: func(r *types.Requirement, a *types.Availability) {
				r.OrganizationID = "org-1"
				a.OrganizationID = "org-1"
			},
			wantReason: ReasonInternalTrade,
		},
	}

	v := newTestValidator(t)
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req, avail := validPair()
			tt.mutate(req, avail)

			res := v.Validate(req, avail, nil)
			if res.IsValid {
				t.Fatal("expected rejection")
			}
			if len(res.Reasons) != 1 || res.Reasons[0] != tt.wantReason {
				t.Errorf("expected reason %s, got %v", tt.wantReason, res.Reasons)
			}
		})
	}
}

func TestValidate_PartiallyFulfilledStillMatchable(t *testing.T) {
	t.Parallel()

	v := newTestValidator(t)
	req, avail := validPair()
	req.Status = types.RequirementPartiallyFulfilled

	if res := v.Validate(req, avail, nil); !res.IsValid {
		t.Errorf("expected valid, got reasons %v", res.Reasons)
	}
}

func TestValidate_RiskVerdicts(t *testing.T) {
	t.Parallel()

	v := newTestValidator(t)

	t.Run("fail-rejects-with-details", func(t *testing.T) {
		t.Parallel()

		req, avail := validPair()
		res := v.Validate(req, avail, &risk.Assessment{
			Status:  types.RiskFail,
			Details: "related entities",
		})
		if res.IsValid {
			t.Fatal("expected rejection on FAIL verdict")
		}
		if res.Reasons[0] != ReasonRiskFail {
			t.Errorf("expected %s, got %v", ReasonRiskFail, res.Reasons)
		}
		if len(res.Warnings) == 0 || res.Warnings[0] != "related entities" {
			t.Errorf("expected details surfaced as warning, got %v", res.Warnings)
		}
	})

	t.Run("warn-passes-with-warning", func(t *testing.T) {
		t.Parallel()

		req, avail := validPair()
		res := v.Validate(req, avail, &risk.Assessment{
			Status:     types.RiskWarn,
			FinalScore: 65,
			Warnings:   []string{"low kyc score"},
		})
		if !res.IsValid {
			t.Fatalf("WARN must not reject, got reasons %v", res.Reasons)
		}
		if res.RiskStatus != types.RiskWarn || res.RiskScore != 65 {
			t.Errorf("expected risk snapshot carried, got status=%s score=%f", res.RiskStatus, res.RiskScore)
		}
		if len(res.Warnings) != 2 {
			t.Errorf("expected penalty note plus assessment warning, got %v", res.Warnings)
		}
	})
}

func TestValidate_Advisories(t *testing.T) {
	t.Parallel()

	v := newTestValidator(t)

	t.Run("ai-price-alert", func(t *testing.T) {
		t.Parallel()

		req, avail := validPair()
		req.AIPriceAlert = true
		req.AIPriceAlertReason = "market dip expected"

		res := v.Validate(req, avail, nil)
		if !res.IsValid {
			t.Fatalf("advisory must not reject, got %v", res.Reasons)
		}
		if len(res.AIAlerts) != 1 || res.AIAlerts[0] != "AI price alert: market dip expected" {
			t.Errorf("unexpected alerts %v", res.AIAlerts)
		}
	})

	t.Run("low-ai-confidence", func(t *testing.T) {
		t.Parallel()

		req, avail := validPair()
		req.AIConfidence = 40

		res := v.Validate(req, avail, nil)
		if !res.IsValid || len(res.Warnings) != 1 {
			t.Errorf("expected one warning, got valid=%v warnings=%v", res.IsValid, res.Warnings)
		}
	})

	t.Run("price-above-ai-ceiling", func(t *testing.T) {
		t.Parallel()

		req, avail := validPair()
		ceiling := decimal.NewFromInt(80)
		req.AISuggestedMaxPrice = &ceiling
		avail.BasePrice = decimal.NewFromInt(90)

		res := v.Validate(req, avail, nil)
		if !res.IsValid {
			t.Fatalf("advisory must not reject, got %v", res.Reasons)
		}
		if len(res.AIAlerts) != 1 || res.AIAlerts[0] != "seller price exceeds AI suggested max by 12.5%" {
			t.Errorf("unexpected alerts %v", res.AIAlerts)
		}
	})

	t.Run("recommendation-set-membership", func(t *testing.T) {
		t.Parallel()

		req, avail := validPair()
		req.AIRecommendedSellers = []string{"seller-other"}

		res := v.Validate(req, avail, nil)
		if len(res.AIAlerts) != 1 || res.AIAlerts[0] != "seller is not in the AI recommendation set" {
			t.Errorf("unexpected alerts %v", res.AIAlerts)
		}

		req.AIRecommendedSellers = []string{avail.SellerID}
		res = v.Validate(req, avail, nil)
		if len(res.AIAlerts) != 1 || res.AIAlerts[0] != "seller is AI-recommended for this requirement" {
			t.Errorf("unexpected alerts %v", res.AIAlerts)
		}
	})
}

func TestValidate_CleanPairAccepted(t *testing.T) {
	t.Parallel()

	v := newTestValidator(t)
	req, avail := validPair()

	res := v.Validate(req, avail, &risk.Assessment{Status: types.RiskPass, FinalScore: 92})
	if !res.IsValid {
		t.Fatalf("expected valid result, got %v", res.Reasons)
	}
	if len(res.Warnings) != 0 || len(res.AIAlerts) != 0 {
		t.Errorf("expected no advisories, got warnings=%v alerts=%v", res.Warnings, res.AIAlerts)
	}
}
