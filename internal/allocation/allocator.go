// Package allocation performs atomic quantity allocation against seller
// inventory under row-level locks. Contention is resolved by retrying the
// whole locked scope with exponential backoff.
package allocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/storage"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/events"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/types"
)

const (
	maxAttempts = 3
	baseBackoff = 100 * time.Millisecond
)

// Config holds the allocator dependencies.
type Config struct {
	Storage storage.Gateway
	Bus     *events.Bus
	Logger  *zap.Logger
}

// Allocator reserves quantity on availabilities for matched requirements.
type Allocator struct {
	storage storage.Gateway
	bus     *events.Bus
	logger  *zap.Logger
	sleep   func(time.Duration)
}

// New creates an allocator.
func New(cfg Config) (*Allocator, error) {
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Allocator{
		storage: cfg.Storage,
		bus:     cfg.Bus,
		logger:  cfg.Logger,
		sleep:   time.Sleep,
	}, nil
}

// Allocate moves up to requestedQty from available to reserved on the
// availability, atomically under a row lock. Less than the requested quantity
// yields a PARTIAL allocation; an empty row yields ErrNoQuantity. Lock
// conflicts retry up to three times with exponential backoff.
func (a *Allocator) Allocate(ctx context.Context, availabilityID string, requestedQty float64, requirementID string) (*types.AllocationResult, error) {
	if requestedQty <= 0 {
		return nil, fmt.Errorf("requested quantity must be positive, got %v", requestedQty)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := baseBackoff * time.Duration(1<<attempt)
			a.logger.Debug("allocation-retry",
				zap.String("availability_id", availabilityID),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff))
			a.sleep(backoff)
		}

		result, err := a.attempt(ctx, availabilityID, requestedQty, requirementID)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, types.ErrAllocationConflict) {
			return nil, err
		}
		lastErr = err
	}
	AllocationsFailedTotal.Inc()
	return nil, fmt.Errorf("allocation of %v on %s failed after %d attempts: %w",
		requestedQty, availabilityID, maxAttempts, lastErr)
}

// attempt runs one locked scope: read, decide FULL vs PARTIAL, reserve,
// assert the quantity invariant, commit.
func (a *Allocator) attempt(ctx context.Context, availabilityID string, requestedQty float64, requirementID string) (*types.AllocationResult, error) {
	locked, err := a.storage.LockAvailability(ctx, availabilityID)
	if err != nil {
		return nil, fmt.Errorf("lock availability %s: %w", availabilityID, err)
	}

	avail := locked.Availability()
	if err := avail.CheckQuantityInvariant(); err != nil {
		_ = locked.Rollback()
		return nil, fmt.Errorf("pre-allocation invariant on %s: %w", availabilityID, err)
	}

	cur := avail.AvailableQty
	if cur <= 0 {
		_ = locked.Rollback()
		AllocationsNoQuantityTotal.Inc()
		return nil, fmt.Errorf("availability %s: %w", availabilityID, types.ErrNoQuantity)
	}

	allocated := requestedQty
	allocType := types.AllocationFull
	if cur < requestedQty {
		allocated = cur
		allocType = types.AllocationPartial
	}

	var rec events.Recorder
	if err := avail.Reserve(allocated, &rec); err != nil {
		_ = locked.Rollback()
		return nil, fmt.Errorf("reserve %v on %s: %w", allocated, availabilityID, err)
	}
	if err := avail.CheckQuantityInvariant(); err != nil {
		_ = locked.Rollback()
		return nil, fmt.Errorf("post-allocation invariant on %s: %w", availabilityID, err)
	}

	if err := locked.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit allocation on %s: %w", availabilityID, err)
	}

	if a.bus != nil {
		rec.Flush(a.bus)
	}
	AllocationsCommittedTotal.WithLabelValues(string(allocType)).Inc()

	a.logger.Info("allocation-committed",
		zap.String("availability_id", availabilityID),
		zap.String("requirement_id", requirementID),
		zap.Float64("allocated", allocated),
		zap.Float64("remaining", avail.AvailableQty),
		zap.String("type", string(allocType)))

	return &types.AllocationResult{
		Allocated:    true,
		AllocatedQty: allocated,
		Remaining:    avail.AvailableQty,
		Type:         allocType,
	}, nil
}
