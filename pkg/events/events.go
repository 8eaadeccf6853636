// Package events provides the in-process domain event bus, the event names
// published by the core, and the EventRecorder aggregates use to accumulate
// pending events until a unit of work flushes them.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Requirement lifecycle event names.
const (
	RequirementCreated            = "requirement.created"
	RequirementPublished          = "requirement.published"
	RequirementUpdated            = "requirement.updated"
	RequirementBudgetChanged      = "requirement.budget_changed"
	RequirementQualityChanged     = "requirement.quality_changed"
	RequirementVisibilityChanged  = "requirement.visibility_changed"
	RequirementFulfillmentUpdated = "requirement.fulfillment_updated"
	RequirementFulfilled          = "requirement.fulfilled"
	RequirementExpired            = "requirement.expired"
	RequirementCancelled          = "requirement.cancelled"
	RequirementAIAdjusted         = "requirement.ai_adjusted"
)

// Availability lifecycle event names.
const (
	AvailabilityCreated           = "availability.created"
	AvailabilityUpdated           = "availability.updated"
	AvailabilityVisibilityChanged = "availability.visibility_changed"
	AvailabilityPriceChanged      = "availability.price_changed"
	AvailabilityQuantityChanged   = "availability.quantity_changed"
	AvailabilityReserved          = "availability.reserved"
	AvailabilityReleased          = "availability.released"
	AvailabilitySold              = "availability.sold"
	AvailabilityExpired           = "availability.expired"
	AvailabilityCancelled         = "availability.cancelled"
)

// Matching and risk event names.
const (
	MatchFound        = "match.found"
	RiskStatusChanged = "risk_status.changed"
)

// Event is one domain event. Payload values must be JSON-serializable; every
// payload carries the aggregate id and a wall-clock timestamp.
type Event struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	AggregateID string         `json:"aggregate_id"`
	OccurredAt  time.Time      `json:"occurred_at"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// New builds an event with a fresh id and the current wall clock.
func New(name, aggregateID string, payload map[string]any) Event {
	return Event{
		ID:          uuid.NewString(),
		Name:        name,
		AggregateID: aggregateID,
		OccurredAt:  time.Now().UTC(),
		Payload:     payload,
	}
}

// Recorder accumulates events raised by aggregate methods. Aggregates never
// publish directly; the enclosing unit of work flushes the recorder to the
// bus on commit so uncommitted state changes cannot leak events.
type Recorder struct {
	pending []Event
}

// Record appends an event to the pending list.
func (r *Recorder) Record(ev Event) {
	r.pending = append(r.pending, ev)
}

// Pending returns the accumulated events without clearing them.
func (r *Recorder) Pending() []Event {
	return r.pending
}

// Flush publishes all pending events to the bus and clears the recorder.
func (r *Recorder) Flush(bus *Bus) {
	for _, ev := range r.pending {
		bus.Publish(ev)
	}
	r.pending = nil
}
