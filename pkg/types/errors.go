package types

import "errors"

// Sentinel errors returned by the matching engine and storage gateway.
// Callers check these with errors.Is.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidState indicates the entity is not in a matchable state
	// (ACTIVE or PARTIALLY_FULFILLED).
	ErrInvalidState = errors.New("entity not in matchable state")

	// ErrDependencyUnavailable indicates the storage backend is unreachable.
	ErrDependencyUnavailable = errors.New("storage dependency unavailable")

	// ErrNoQuantity indicates an allocation was requested against an
	// availability with zero remaining quantity.
	ErrNoQuantity = errors.New("no available quantity")

	// ErrAllocationConflict indicates the allocator exhausted its retry
	// budget without committing.
	ErrAllocationConflict = errors.New("allocation conflict")
)
