package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RequirementStatus is the lifecycle state of a buyer requirement.
type RequirementStatus string

// Requirement lifecycle states. FULFILLED, EXPIRED and CANCELLED are terminal.
const (
	RequirementDraft              RequirementStatus = "DRAFT"
	RequirementActive             RequirementStatus = "ACTIVE"
	RequirementPartiallyFulfilled RequirementStatus = "PARTIALLY_FULFILLED"
	RequirementFulfilled          RequirementStatus = "FULFILLED"
	RequirementExpired            RequirementStatus = "EXPIRED"
	RequirementCancelled          RequirementStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed from s.
func (s RequirementStatus) Terminal() bool {
	return s == RequirementFulfilled || s == RequirementExpired || s == RequirementCancelled
}

// Matchable reports whether a requirement in state s may enter the matching pipeline.
func (s RequirementStatus) Matchable() bool {
	return s == RequirementActive || s == RequirementPartiallyFulfilled
}

// Intent routes a published requirement to a downstream engine.
type Intent string

// Recognized requirement intents.
const (
	IntentDirectBuy          Intent = "DIRECT_BUY"
	IntentNegotiation        Intent = "NEGOTIATION"
	IntentAuctionRequest     Intent = "AUCTION_REQUEST"
	IntentPriceDiscoveryOnly Intent = "PRICE_DISCOVERY_ONLY"
)

// Visibility controls which counterparties can see an entity.
type Visibility string

// Visibility levels.
const (
	VisibilityPublic     Visibility = "PUBLIC"
	VisibilityPrivate    Visibility = "PRIVATE"
	VisibilityRestricted Visibility = "RESTRICTED"
	VisibilityInternal   Visibility = "INTERNAL"
)

// QualityConstraint is one parsed quality parameter constraint. At least one
// of the fields must be set; Min/Max form a range, Preferred tightens it,
// Exact demands equality.
type QualityConstraint struct {
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	Preferred *float64 `json:"preferred,omitempty"`
	Exact     *float64 `json:"exact,omitempty"`
}

// Valid reports whether at least one constraint form is present.
func (c QualityConstraint) Valid() bool {
	return c.Min != nil || c.Max != nil || c.Preferred != nil || c.Exact != nil
}

// DeliveryLocation is one acceptable delivery point for a requirement.
type DeliveryLocation struct {
	LocationID    string   `json:"location_id"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	State         string   `json:"state"`
	City          string   `json:"city"`
	MaxDistanceKm *float64 `json:"max_distance_km,omitempty"`
}

// DefaultFlexibilityHours applies when a requirement gives a delivery window
// without an explicit flexibility.
const DefaultFlexibilityHours = 168

// DeliveryWindow is the acceptable delivery interval for a requirement.
type DeliveryWindow struct {
	Start            *time.Time `json:"start,omitempty"`
	End              *time.Time `json:"end,omitempty"`
	FlexibilityHours int        `json:"flexibility_hours"`
}

// Requirement is a buyer's intent to purchase a commodity.
type Requirement struct {
	ID             string `json:"id"`
	Number         string `json:"number"`
	BuyerID        string `json:"buyer_id"`
	OrganizationID string `json:"organization_id"`
	CommodityID    string `json:"commodity_id"`
	VarietyID      string `json:"variety_id,omitempty"`

	// Quantity range, shared unit. MinQty <= PreferredQty <= MaxQty.
	MinQty       float64 `json:"min_qty"`
	MaxQty       float64 `json:"max_qty"`
	PreferredQty float64 `json:"preferred_qty"`
	Unit         string  `json:"unit"`

	Quality map[string]QualityConstraint `json:"quality,omitempty"`

	MaxBudgetPerUnit      decimal.Decimal  `json:"max_budget_per_unit"`
	PreferredPricePerUnit *decimal.Decimal `json:"preferred_price_per_unit,omitempty"`
	Currency              string           `json:"currency"`

	DeliveryLocations []DeliveryLocation `json:"delivery_locations"`
	DeliveryWindow    DeliveryWindow     `json:"delivery_window"`

	// DestinationCountry set marks the leg international and enables the
	// Incoterm and port-distance delivery sub-scores.
	DestinationCountry       string `json:"destination_country,omitempty"`
	PreferredIncoterm        string `json:"preferred_incoterm,omitempty"`
	RequiredPaymentTermsDays int    `json:"required_payment_terms_days,omitempty"`

	Visibility       Visibility `json:"visibility"`
	InvitedSellerIDs []string   `json:"invited_seller_ids,omitempty"`

	Status RequirementStatus `json:"status"`
	Intent Intent            `json:"intent"`

	// AI advisory fields.
	AISuggestedMaxPrice  *decimal.Decimal `json:"ai_suggested_max_price,omitempty"`
	AIConfidence         float64          `json:"ai_confidence"`
	AIPriceAlert         bool             `json:"ai_price_alert"`
	AIPriceAlertReason   string           `json:"ai_price_alert_reason,omitempty"`
	AIRecommendedSellers []string         `json:"ai_recommended_sellers,omitempty"`
	MarketEmbedding      []float32        `json:"-"`

	// Fulfillment counters.
	TotalMatchedQty        float64         `json:"total_matched_qty"`
	TotalPurchasedQty      float64         `json:"total_purchased_qty"`
	TotalSpent             decimal.Decimal `json:"total_spent"`
	ActiveNegotiationCount int             `json:"active_negotiation_count"`

	// TrustScore is the buyer priority multiplier, 0.5 to 2.0, default 1.0.
	TrustScore float64 `json:"trust_score"`

	ValidUntil *time.Time `json:"valid_until,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Validate checks the structural invariants of a requirement.
func (r *Requirement) Validate() error {
	if r.MinQty > r.PreferredQty || r.PreferredQty > r.MaxQty {
		return fmt.Errorf("quantity range violated: min=%v preferred=%v max=%v", r.MinQty, r.PreferredQty, r.MaxQty)
	}
	if r.TotalPurchasedQty > r.MaxQty {
		return fmt.Errorf("purchased %v exceeds max %v", r.TotalPurchasedQty, r.MaxQty)
	}
	for name, c := range r.Quality {
		if !c.Valid() {
			return fmt.Errorf("quality parameter %q has no constraint form", name)
		}
	}
	return nil
}

// LocationIDs returns the delivery location ids in declared order.
func (r *Requirement) LocationIDs() []string {
	ids := make([]string, 0, len(r.DeliveryLocations))
	for _, loc := range r.DeliveryLocations {
		if loc.LocationID != "" {
			ids = append(ids, loc.LocationID)
		}
	}
	return ids
}

// HasRecommendedSeller reports whether sellerID is in the AI recommendation set.
func (r *Requirement) HasRecommendedSeller(sellerID string) bool {
	for _, id := range r.AIRecommendedSellers {
		if id == sellerID {
			return true
		}
	}
	return false
}

// ExpiredAt reports whether the requirement's validity lapsed at now.
func (r *Requirement) ExpiredAt(now time.Time) bool {
	return r.ValidUntil != nil && now.After(*r.ValidUntil)
}

// International reports whether the requirement targets a cross-border delivery.
func (r *Requirement) International() bool {
	return r.DestinationCountry != ""
}

// RemainingQty is the quantity still open for purchase.
func (r *Requirement) RemainingQty() float64 {
	rem := r.MaxQty - r.TotalPurchasedQty
	if rem < 0 {
		return 0
	}
	return rem
}
