// Package risk implements the two-tier compliance gate: deterministic rules
// that can block a pairing outright, and an advisory ML tier whose score is
// fused with the rule score. A circuit breaker keeps rule-only operation
// alive when the ML tier degrades.
package risk

import (
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/types"
)

// Input is one counterparty pairing under assessment.
type Input struct {
	Requirement  *types.Requirement
	Availability *types.Availability
	Buyer        *types.Partner
	Seller       *types.Partner
	Commodity    *types.Commodity
}

// Violation types produced by tier-1 rules.
const (
	ViolationSanctioned       = "SANCTIONED_COMMODITY"
	ViolationExportLicense    = "MISSING_EXPORT_LICENSE"
	ViolationImportLicense    = "MISSING_IMPORT_LICENSE"
	ViolationGSTNotRegistered = "GST_NOT_REGISTERED"
	ViolationPANMissing       = "PAN_MISSING"
	ViolationWashTrading      = "WASH_TRADING"
	ViolationCircularTrading  = "CIRCULAR_TRADING"
	ViolationRelatedParties   = "RELATED_PARTIES"
)

// Violation is a tier-1 block. Never retried automatically.
type Violation struct {
	Type    string `json:"type"`
	Tier    int    `json:"tier"`
	Message string `json:"message"`
}

// Assessment is the orchestrator verdict for one pairing.
type Assessment struct {
	Status      types.RiskStatus `json:"status"`
	RuleScore   float64          `json:"rule_score"`
	MLScore     float64          `json:"ml_score"`
	FinalScore  float64          `json:"final_score"`
	MLAvailable bool             `json:"ml_available"`
	Violation   *Violation       `json:"violation,omitempty"`
	Warnings    []string         `json:"warnings,omitempty"`
	Details     string           `json:"details,omitempty"`
}

// Blocked reports whether tier-1 stopped the pairing.
func (a *Assessment) Blocked() bool {
	return a.Violation != nil
}
