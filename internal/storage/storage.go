// Package storage provides the gateway the matching core uses to reach
// requirements, availabilities, partners and audit records. The core depends
// on the Gateway interface only; Postgres and in-memory implementations live
// alongside it.
package storage

import (
	"context"
	"time"

	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/types"
)

// Gateway is the storage interface required by the matching core.
type Gateway interface {
	// GetRequirement loads a requirement. withRelations additionally
	// resolves the buyer partner and commodity; without it the entity
	// carries ids only.
	GetRequirement(ctx context.Context, id string, withRelations bool) (*types.Requirement, error)

	// GetAvailability loads an availability, optionally with relations.
	GetAvailability(ctx context.Context, id string, withRelations bool) (*types.Availability, error)

	// GetPartner loads a trading partner by id.
	GetPartner(ctx context.Context, id string) (*types.Partner, error)

	// GetCommodity loads a commodity by id.
	GetCommodity(ctx context.Context, id string) (*types.Commodity, error)

	// AvailabilitiesByLocation returns availabilities for the commodity in
	// any of the given locations with the given status. Backed by an index;
	// this is the matching engine's hot path.
	AvailabilitiesByLocation(ctx context.Context, locationIDs []string, commodityID string, status types.AvailabilityStatus) ([]*types.Availability, error)

	// RequirementsByDeliveryLocation returns requirements for the commodity
	// that list locationID among their delivery locations.
	RequirementsByDeliveryLocation(ctx context.Context, locationID string, commodityID string, status types.RequirementStatus) ([]*types.Requirement, error)

	// LockAvailability opens a row-level exclusive lock on the availability
	// for one allocation attempt. The handle must be committed or rolled
	// back; the lock is held for the duration of the attempt only.
	LockAvailability(ctx context.Context, id string) (LockedAvailability, error)

	// AppendMatchAudit persists audit records. Append-only.
	AppendMatchAudit(ctx context.Context, records []*types.MatchAuditRecord) error

	// RecentDuplicateKeys returns the duplicate keys of matches emitted
	// since the given instant, feeding the cross-invocation suppression
	// window.
	RecentDuplicateKeys(ctx context.Context, since time.Time) (map[string]time.Time, error)

	// ActiveRequirementIDsCreatedSince returns ids of ACTIVE requirements
	// created after the given instant. Used by the safety sweep.
	ActiveRequirementIDsCreatedSince(ctx context.Context, since time.Time) ([]string, error)

	// ActiveAvailabilityIDsCreatedSince returns ids of ACTIVE availabilities
	// created after the given instant. Used by the safety sweep.
	ActiveAvailabilityIDsCreatedSince(ctx context.Context, since time.Time) ([]string, error)

	// SameDayAvailabilityCount counts availability postings by a partner for
	// a commodity on the given day. Feeds the circular-trading check.
	SameDayAvailabilityCount(ctx context.Context, partnerID, commodityID string, day time.Time) (int, error)

	// SameDayRequirementCount counts requirement postings by a partner for a
	// commodity on the given day. Feeds the wash-trading check.
	SameDayRequirementCount(ctx context.Context, partnerID, commodityID string, day time.Time) (int, error)

	// Close releases the backend connection.
	Close() error
}

// LockedAvailability is an exclusively locked availability row. Mutate the
// entity returned by Availability, then Commit; Rollback discards. Exactly
// one of Commit or Rollback must be called.
type LockedAvailability interface {
	// Availability returns the locked row as a mutable copy.
	Availability() *types.Availability

	// Commit persists the mutated copy and releases the lock.
	Commit(ctx context.Context) error

	// Rollback discards changes and releases the lock.
	Rollback() error
}
