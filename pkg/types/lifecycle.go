package types

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/events"
)

// State transitions record a domain event carrying the old and new values on
// the supplied recorder. Nothing is published until the enclosing unit of
// work flushes the recorder, so a rolled-back transition leaks no events.

// Publish moves a DRAFT requirement to ACTIVE.
func (r *Requirement) Publish(rec *events.Recorder) error {
	if r.Status != RequirementDraft {
		return fmt.Errorf("%w: publish from %s", ErrInvalidState, r.Status)
	}
	r.Status = RequirementActive
	rec.Record(events.New(events.RequirementPublished, r.ID, map[string]any{
		"old_status": string(RequirementDraft),
		"new_status": string(RequirementActive),
		"intent":     string(r.Intent),
	}))
	return nil
}

// RecordPurchase books a completed purchase against the requirement and moves
// it to PARTIALLY_FULFILLED or FULFILLED. Fulfillment triggers once the
// purchased quantity reaches the preferred quantity.
func (r *Requirement) RecordPurchase(qty float64, spent float64, rec *events.Recorder) error {
	if !r.Status.Matchable() {
		return fmt.Errorf("%w: purchase in %s", ErrInvalidState, r.Status)
	}
	if r.TotalPurchasedQty+qty > r.MaxQty {
		return fmt.Errorf("purchase of %v exceeds max quantity %v", qty, r.MaxQty)
	}

	old := r.Status
	r.TotalPurchasedQty += qty
	r.TotalSpent = r.TotalSpent.Add(decimal.NewFromFloat(spent))

	if r.TotalPurchasedQty >= r.PreferredQty {
		r.Status = RequirementFulfilled
	} else {
		r.Status = RequirementPartiallyFulfilled
	}

	rec.Record(events.New(events.RequirementFulfillmentUpdated, r.ID, map[string]any{
		"old_status":          string(old),
		"new_status":          string(r.Status),
		"purchased_qty":       qty,
		"total_purchased_qty": r.TotalPurchasedQty,
	}))
	if r.Status == RequirementFulfilled {
		rec.Record(events.New(events.RequirementFulfilled, r.ID, map[string]any{
			"total_purchased_qty": r.TotalPurchasedQty,
			"total_spent":         r.TotalSpent.String(),
		}))
	}
	return nil
}

// Cancel moves the requirement to CANCELLED from any non-terminal state.
func (r *Requirement) Cancel(rec *events.Recorder) error {
	if r.Status.Terminal() {
		return fmt.Errorf("%w: cancel from %s", ErrInvalidState, r.Status)
	}
	old := r.Status
	r.Status = RequirementCancelled
	rec.Record(events.New(events.RequirementCancelled, r.ID, map[string]any{
		"old_status": string(old),
		"new_status": string(RequirementCancelled),
	}))
	return nil
}

// Expire moves the requirement to EXPIRED once the wall clock passes ValidUntil.
func (r *Requirement) Expire(now time.Time, rec *events.Recorder) error {
	if r.Status.Terminal() {
		return fmt.Errorf("%w: expire from %s", ErrInvalidState, r.Status)
	}
	if !r.ExpiredAt(now) {
		return fmt.Errorf("requirement %s not yet past valid_until", r.ID)
	}
	old := r.Status
	r.Status = RequirementExpired
	rec.Record(events.New(events.RequirementExpired, r.ID, map[string]any{
		"old_status": string(old),
		"new_status": string(RequirementExpired),
	}))
	return nil
}

// Publish moves a DRAFT availability to ACTIVE.
func (a *Availability) Publish(rec *events.Recorder) error {
	if a.Status != AvailabilityDraft {
		return fmt.Errorf("%w: publish from %s", ErrInvalidState, a.Status)
	}
	a.Status = AvailabilityActive
	rec.Record(events.New(events.AvailabilityUpdated, a.ID, map[string]any{
		"old_status": string(AvailabilityDraft),
		"new_status": string(AvailabilityActive),
	}))
	return nil
}

// Reserve moves qty from available to reserved. Status becomes RESERVED when
// nothing is left available.
func (a *Availability) Reserve(qty float64, rec *events.Recorder) error {
	if a.Status != AvailabilityActive && a.Status != AvailabilityReserved {
		return fmt.Errorf("%w: reserve in %s", ErrInvalidState, a.Status)
	}
	if qty <= 0 || qty > a.AvailableQty {
		return fmt.Errorf("cannot reserve %v of %v available", qty, a.AvailableQty)
	}

	old := a.Status
	a.AvailableQty -= qty
	a.ReservedQty += qty
	if a.AvailableQty == 0 {
		a.Status = AvailabilityReserved
	}

	rec.Record(events.New(events.AvailabilityReserved, a.ID, map[string]any{
		"old_status":    string(old),
		"new_status":    string(a.Status),
		"reserved_qty":  qty,
		"available_qty": a.AvailableQty,
	}))
	return a.CheckQuantityInvariant()
}

// Sell moves qty from reserved to sold. Status becomes SOLD once both the
// available and reserved buckets are empty.
func (a *Availability) Sell(qty float64, rec *events.Recorder) error {
	if qty <= 0 || qty > a.ReservedQty {
		return fmt.Errorf("cannot sell %v of %v reserved", qty, a.ReservedQty)
	}

	old := a.Status
	a.ReservedQty -= qty
	a.SoldQty += qty
	switch {
	case a.AvailableQty == 0 && a.ReservedQty == 0:
		a.Status = AvailabilitySold
	case a.AvailableQty == 0:
		a.Status = AvailabilityReserved
	}

	rec.Record(events.New(events.AvailabilitySold, a.ID, map[string]any{
		"old_status": string(old),
		"new_status": string(a.Status),
		"sold_qty":   qty,
	}))
	return a.CheckQuantityInvariant()
}

// Release returns qty from reserved to available, reactivating the listing.
func (a *Availability) Release(qty float64, rec *events.Recorder) error {
	if qty <= 0 || qty > a.ReservedQty {
		return fmt.Errorf("cannot release %v of %v reserved", qty, a.ReservedQty)
	}

	old := a.Status
	a.ReservedQty -= qty
	a.AvailableQty += qty
	if a.Status == AvailabilityReserved {
		a.Status = AvailabilityActive
	}

	rec.Record(events.New(events.AvailabilityReleased, a.ID, map[string]any{
		"old_status":    string(old),
		"new_status":    string(a.Status),
		"released_qty":  qty,
		"available_qty": a.AvailableQty,
	}))
	return a.CheckQuantityInvariant()
}

// Cancel moves the availability to CANCELLED from any non-terminal state.
func (a *Availability) Cancel(rec *events.Recorder) error {
	if a.Status.Terminal() {
		return fmt.Errorf("%w: cancel from %s", ErrInvalidState, a.Status)
	}
	old := a.Status
	a.Status = AvailabilityCancelled
	rec.Record(events.New(events.AvailabilityCancelled, a.ID, map[string]any{
		"old_status": string(old),
		"new_status": string(AvailabilityCancelled),
	}))
	return nil
}

// Expire moves the availability to EXPIRED once the wall clock passes ExpiryDate.
func (a *Availability) Expire(now time.Time, rec *events.Recorder) error {
	if a.Status.Terminal() {
		return fmt.Errorf("%w: expire from %s", ErrInvalidState, a.Status)
	}
	if !a.ExpiredAt(now) {
		return fmt.Errorf("availability %s not yet past expiry_date", a.ID)
	}
	old := a.Status
	a.Status = AvailabilityExpired
	rec.Record(events.New(events.AvailabilityExpired, a.ID, map[string]any{
		"old_status": string(old),
		"new_status": string(AvailabilityExpired),
	}))
	return nil
}
