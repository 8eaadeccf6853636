package types

import (
	"fmt"
	"time"
)

// RiskStatus is the orchestrator verdict for a counterparty pair.
type RiskStatus string

// Risk verdicts.
const (
	RiskPass RiskStatus = "PASS"
	RiskWarn RiskStatus = "WARN"
	RiskFail RiskStatus = "FAIL"
)

// ScoreBreakdown carries the four sub-scores of a match, each in [0,1].
type ScoreBreakdown struct {
	Quality  float64 `json:"quality"`
	Price    float64 `json:"price"`
	Delivery float64 `json:"delivery"`
	Risk     float64 `json:"risk"`
}

// PassFail carries the per-dimension pass flags of a match.
type PassFail struct {
	Quality  bool `json:"quality"`
	Price    bool `json:"price"`
	Delivery bool `json:"delivery"`
	Risk     bool `json:"risk"`
}

// DisclosureLevel controls how much counterparty detail a match reveals.
type DisclosureLevel int

// Disclosure levels in strictly increasing order of detail.
const (
	DisclosureBrowse DisclosureLevel = iota
	DisclosureMatched
	DisclosureNegotiating
	DisclosureTrade
)

// String implements fmt.Stringer.
func (l DisclosureLevel) String() string {
	switch l {
	case DisclosureBrowse:
		return "BROWSE"
	case DisclosureMatched:
		return "MATCHED"
	case DisclosureNegotiating:
		return "NEGOTIATING"
	case DisclosureTrade:
		return "TRADE"
	default:
		return fmt.Sprintf("DisclosureLevel(%d)", int(l))
	}
}

// CounterpartyView is the anonymizer's projection of the other party,
// shaped by the resolved disclosure level.
type CounterpartyView struct {
	Label   string   `json:"label"`
	Name    string   `json:"name,omitempty"`
	Rating  *float64 `json:"rating,omitempty"`
	Country string   `json:"country,omitempty"`
	State   string   `json:"state,omitempty"`
	City    string   `json:"city,omitempty"`
	Contact string   `json:"contact,omitempty"`
}

// MatchResult is one scored, validated, risk-checked pairing. Immutable once
// produced by the engine.
type MatchResult struct {
	RequirementID  string `json:"requirement_id"`
	AvailabilityID string `json:"availability_id"`

	Score     float64 `json:"score"`
	BaseScore float64 `json:"base_score"`

	WarnPenaltyApplied bool    `json:"warn_penalty_applied"`
	WarnPenaltyValue   float64 `json:"warn_penalty_value,omitempty"`
	AIBoostApplied     bool    `json:"ai_boost_applied"`
	AIBoostValue       float64 `json:"ai_boost_value,omitempty"`

	Breakdown ScoreBreakdown `json:"breakdown"`
	PassFail  PassFail       `json:"pass_fail"`

	RiskStatus  RiskStatus `json:"risk_status"`
	RiskDetails string     `json:"risk_details,omitempty"`

	Recommendation string `json:"recommendation"`
	DuplicateKey   string `json:"duplicate_key"`

	DisclosureLevel DisclosureLevel   `json:"disclosure_level"`
	Counterparty    *CounterpartyView `json:"counterparty,omitempty"`

	MatchedAt time.Time `json:"matched_at"`
}

// Audit reason codes recorded for every candidate the engine considered.
const (
	ReasonMatched            = "MATCHED"
	ReasonLocationRejected   = "LOCATION_FILTER_REJECTED"
	ReasonDuplicate          = "DUPLICATE_SUPPRESSED"
	ReasonValidationFailed   = "VALIDATION_FAILED"
	ReasonRiskBlocked        = "RISK_BLOCKED"
	ReasonBelowThreshold     = "BELOW_THRESHOLD"
	ReasonResultCapExceeded  = "RESULT_CAP_EXCEEDED"
	ReasonScoringUnavailable = "SCORING_UNAVAILABLE"
)

// MatchAuditRecord is the append-only trace of one scored or rejected
// candidate, including the full breakdown and risk snapshot.
type MatchAuditRecord struct {
	ID             string         `json:"id"`
	RequirementID  string         `json:"requirement_id"`
	AvailabilityID string         `json:"availability_id"`
	CommodityID    string         `json:"commodity_id"`
	BuyerID        string         `json:"buyer_id"`
	SellerID       string         `json:"seller_id"`
	Score          float64        `json:"score"`
	Breakdown      ScoreBreakdown `json:"breakdown"`
	RiskStatus     RiskStatus     `json:"risk_status"`
	Included       bool           `json:"included"`
	ReasonCode     string         `json:"reason_code"`
	Detail         string         `json:"detail,omitempty"`
	DuplicateKey   string         `json:"duplicate_key"`
	CreatedAt      time.Time      `json:"created_at"`
}

// AllocationType discriminates a full from a partial allocation.
type AllocationType string

// Allocation outcomes.
const (
	AllocationFull    AllocationType = "FULL"
	AllocationPartial AllocationType = "PARTIAL"
)

// AllocationResult reports the outcome of one atomic allocation.
type AllocationResult struct {
	Allocated    bool           `json:"allocated"`
	AllocatedQty float64        `json:"allocated_qty"`
	Remaining    float64        `json:"remaining"`
	Type         AllocationType `json:"type,omitempty"`
}
