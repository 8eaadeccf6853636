package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AvailabilityStatus is the lifecycle state of seller inventory.
type AvailabilityStatus string

// Availability lifecycle states. SOLD, EXPIRED and CANCELLED are terminal.
const (
	AvailabilityDraft     AvailabilityStatus = "DRAFT"
	AvailabilityActive    AvailabilityStatus = "ACTIVE"
	AvailabilityReserved  AvailabilityStatus = "RESERVED"
	AvailabilitySold      AvailabilityStatus = "SOLD"
	AvailabilityExpired   AvailabilityStatus = "EXPIRED"
	AvailabilityCancelled AvailabilityStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed from s.
func (s AvailabilityStatus) Terminal() bool {
	return s == AvailabilitySold || s == AvailabilityExpired || s == AvailabilityCancelled
}

// PriceType discriminates how an availability is priced.
type PriceType string

// Recognized price types.
const (
	PriceFixed      PriceType = "FIXED"
	PriceMatrix     PriceType = "MATRIX"
	PriceNegotiable PriceType = "NEGOTIABLE"
	PriceSpot       PriceType = "SPOT"
)

// Availability is a seller's posted inventory for a commodity at a location.
type Availability struct {
	ID             string `json:"id"`
	SellerID       string `json:"seller_id"`
	OrganizationID string `json:"organization_id"`
	CommodityID    string `json:"commodity_id"`
	VarietyID      string `json:"variety_id,omitempty"`

	LocationID string   `json:"location_id"`
	State      string   `json:"state"`
	City       string   `json:"city"`
	Country    string   `json:"country,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`

	// Quantity buckets. TotalQty = AvailableQty + ReservedQty + SoldQty
	// must hold at all times.
	TotalQty     float64 `json:"total_qty"`
	AvailableQty float64 `json:"available_qty"`
	ReservedQty  float64 `json:"reserved_qty"`
	SoldQty      float64 `json:"sold_qty"`
	Unit         string  `json:"unit"`

	PriceType   PriceType                  `json:"price_type"`
	BasePrice   decimal.Decimal            `json:"base_price"`
	PriceMatrix map[string]decimal.Decimal `json:"price_matrix,omitempty"`
	Currency    string                     `json:"currency"`
	PriceUnit   string                     `json:"price_unit"`

	Quality map[string]float64 `json:"quality,omitempty"`

	Visibility         Visibility `json:"visibility"`
	RestrictedBuyerIDs []string   `json:"restricted_buyer_ids,omitempty"`

	Status AvailabilityStatus `json:"status"`

	AISuggestedPrice *decimal.Decimal `json:"ai_suggested_price,omitempty"`
	AIConfidence     float64          `json:"ai_confidence"`
	AnomalyFlag      bool             `json:"anomaly_flag"`

	AllowPartialOrder bool     `json:"allow_partial_order"`
	MinOrderQty       *float64 `json:"min_order_qty,omitempty"`

	// Delivery capabilities read by the delivery sub-score.
	AvailableFrom      *time.Time `json:"available_from,omitempty"`
	DispatchLeadDays   int        `json:"dispatch_lead_days,omitempty"`
	PaymentTermsDays   int        `json:"payment_terms_days,omitempty"`
	SupportedIncoterms []string   `json:"supported_incoterms,omitempty"`
	NearestPortKm      *float64   `json:"nearest_port_km,omitempty"`

	ExpiryDate *time.Time `json:"expiry_date,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// CheckQuantityInvariant verifies total = available + reserved + sold with all
// buckets non-negative. A violation is a corruption, not a user error; the
// allocator treats it as fatal to the task.
func (a *Availability) CheckQuantityInvariant() error {
	if a.AvailableQty < 0 || a.ReservedQty < 0 || a.SoldQty < 0 {
		return fmt.Errorf("negative quantity bucket: available=%v reserved=%v sold=%v",
			a.AvailableQty, a.ReservedQty, a.SoldQty)
	}
	sum := a.AvailableQty + a.ReservedQty + a.SoldQty
	const eps = 1e-9
	if diff := a.TotalQty - sum; diff > eps || diff < -eps {
		return fmt.Errorf("quantity invariant violated: total=%v sum=%v", a.TotalQty, sum)
	}
	return nil
}

// ExpiredAt reports whether the availability lapsed at now.
func (a *Availability) ExpiredAt(now time.Time) bool {
	return a.ExpiryDate != nil && now.After(*a.ExpiryDate)
}

// EffectiveMinOrderQty resolves the partial-order minimum: the larger of the
// explicit seller minimum and minPartialPercent of the buyer's preferred
// quantity.
func (a *Availability) EffectiveMinOrderQty(preferredQty, minPartialPercent float64) float64 {
	min := preferredQty * minPartialPercent
	if a.MinOrderQty != nil && *a.MinOrderQty > min {
		min = *a.MinOrderQty
	}
	return min
}

// SupportsIncoterm reports whether the seller lists the given Incoterm.
func (a *Availability) SupportsIncoterm(term string) bool {
	for _, t := range a.SupportedIncoterms {
		if t == term {
			return true
		}
	}
	return false
}
