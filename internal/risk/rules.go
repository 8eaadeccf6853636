package risk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Storage is the slice of the gateway the rule engine queries for same-day
// position checks.
type Storage interface {
	SameDayAvailabilityCount(ctx context.Context, partnerID, commodityID string, day time.Time) (int, error)
	SameDayRequirementCount(ctx context.Context, partnerID, commodityID string, day time.Time) (int, error)
}

// sanctionedPairs maps lower-case commodity code to the set of destination
// countries it may not be shipped to. Maintained by compliance; loaded
// statically for now.
var sanctionedPairs = map[string]map[string]bool{
	"gold": {"north korea": true, "iran": true},
	"oil":  {"north korea": true},
}

// RuleEngine runs the deterministic tier-1 compliance checks in fixed order.
// The first failing check blocks; later checks do not run.
type RuleEngine struct {
	storage Storage
	logger  *zap.Logger
	now     func() time.Time
}

// NewRuleEngine creates a tier-1 rule engine.
func NewRuleEngine(storage Storage, logger *zap.Logger) *RuleEngine {
	return &RuleEngine{storage: storage, logger: logger, now: time.Now}
}

// Run evaluates all tier-1 rules for the pairing. A nil violation with nil
// error means every rule passed.
func (r *RuleEngine) Run(ctx context.Context, in Input) (*Violation, error) {
	if v := r.checkSanctions(in); v != nil {
		return v, nil
	}
	if v := r.checkLicenses(in); v != nil {
		return v, nil
	}
	if v := r.checkDomesticCompliance(in); v != nil {
		return v, nil
	}

	v, err := r.checkTradingPatterns(ctx, in)
	if err != nil {
		return nil, err
	}
	if v != nil {
		return v, nil
	}

	if v := r.checkPartyLinks(in); v != nil {
		return v, nil
	}
	return nil, nil
}

// checkSanctions blocks sanctioned commodity/destination pairs on
// international legs.
func (r *RuleEngine) checkSanctions(in Input) *Violation {
	if !in.Requirement.International() || in.Commodity == nil {
		return nil
	}
	countries := sanctionedPairs[strings.ToLower(in.Commodity.Code)]
	if countries[strings.ToLower(in.Requirement.DestinationCountry)] {
		return &Violation{
			Type: ViolationSanctioned, Tier: 1,
			Message: fmt.Sprintf("%s to %s is sanctioned", in.Commodity.Code, in.Requirement.DestinationCountry),
		}
	}
	return nil
}

// checkLicenses requires valid export/import licenses on international legs.
func (r *RuleEngine) checkLicenses(in Input) *Violation {
	if !in.Requirement.International() {
		return nil
	}
	if !in.Seller.ExportLicenseValid {
		return &Violation{Type: ViolationExportLicense, Tier: 1,
			Message: fmt.Sprintf("seller %s has no valid export license", in.Seller.ID)}
	}
	if !in.Buyer.ImportLicenseValid {
		return &Violation{Type: ViolationImportLicense, Tier: 1,
			Message: fmt.Sprintf("buyer %s has no valid import license", in.Buyer.ID)}
	}
	return nil
}

// checkDomesticCompliance enforces GST registration for cross-state domestic
// trades and PAN presence for both parties.
func (r *RuleEngine) checkDomesticCompliance(in Input) *Violation {
	if in.Requirement.International() {
		return nil
	}
	crossState := !strings.EqualFold(in.Buyer.State, in.Seller.State)
	if crossState {
		if in.Buyer.GSTNumber == "" {
			return &Violation{Type: ViolationGSTNotRegistered, Tier: 1,
				Message: fmt.Sprintf("buyer %s lacks GST registration for cross-state trade", in.Buyer.ID)}
		}
		if in.Seller.GSTNumber == "" {
			return &Violation{Type: ViolationGSTNotRegistered, Tier: 1,
				Message: fmt.Sprintf("seller %s lacks GST registration for cross-state trade", in.Seller.ID)}
		}
	}
	if in.Buyer.PANNumber == "" {
		return &Violation{Type: ViolationPANMissing, Tier: 1,
			Message: fmt.Sprintf("buyer %s has no PAN on record", in.Buyer.ID)}
	}
	if in.Seller.PANNumber == "" {
		return &Violation{Type: ViolationPANMissing, Tier: 1,
			Message: fmt.Sprintf("seller %s has no PAN on record", in.Seller.ID)}
	}
	return nil
}

// checkTradingPatterns looks for same-day opposing positions. Both parties
// mirroring each other is flagged as wash trading; a single party straddling
// the book is circular trading. Comparison windows are same-calendar-day UTC
// until compliance finalizes tighter predicates.
func (r *RuleEngine) checkTradingPatterns(ctx context.Context, in Input) (*Violation, error) {
	day := r.now().UTC()
	commodity := in.Requirement.CommodityID

	buyerAvail, err := r.storage.SameDayAvailabilityCount(ctx, in.Buyer.ID, commodity, day)
	if err != nil {
		return nil, fmt.Errorf("circular-trading lookup: %w", err)
	}
	sellerReq, err := r.storage.SameDayRequirementCount(ctx, in.Seller.ID, commodity, day)
	if err != nil {
		return nil, fmt.Errorf("wash-trading lookup: %w", err)
	}

	if buyerAvail > 0 && sellerReq > 0 {
		return &Violation{Type: ViolationWashTrading, Tier: 1,
			Message: "both parties hold same-day opposing positions for this commodity"}, nil
	}
	if buyerAvail > 0 {
		return &Violation{Type: ViolationCircularTrading, Tier: 1,
			Message: fmt.Sprintf("buyer %s posted same-day availability for this commodity", in.Buyer.ID)}, nil
	}
	if sellerReq > 0 {
		return &Violation{Type: ViolationCircularTrading, Tier: 1,
			Message: fmt.Sprintf("seller %s posted same-day requirement for this commodity", in.Seller.ID)}, nil
	}
	return nil, nil
}

// checkPartyLinks blocks pairings between declared related entities.
func (r *RuleEngine) checkPartyLinks(in Input) *Violation {
	if in.Buyer.RelatedTo(in.Seller.ID) || in.Seller.RelatedTo(in.Buyer.ID) {
		return &Violation{Type: ViolationRelatedParties, Tier: 1,
			Message: fmt.Sprintf("buyer %s and seller %s are related entities", in.Buyer.ID, in.Seller.ID)}
	}
	return nil
}
