package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/types"
)

// MemoryGateway is an in-process Gateway used for the "memory" storage mode
// and for tests. Row locks are real mutexes, so allocation contention behaves
// the same way it does against Postgres row locks.
type MemoryGateway struct {
	mu             sync.RWMutex
	requirements   map[string]*types.Requirement
	availabilities map[string]*types.Availability
	partners       map[string]*types.Partner
	commodities    map[string]*types.Commodity
	audits         []*types.MatchAuditRecord

	rowLocks sync.Map // availability id -> *sync.Mutex
	logger   *zap.Logger
}

// NewMemoryGateway creates an empty in-memory gateway.
func NewMemoryGateway(logger *zap.Logger) *MemoryGateway {
	logger.Info("memory-storage-initialized")
	return &MemoryGateway{
		requirements:   make(map[string]*types.Requirement),
		availabilities: make(map[string]*types.Availability),
		partners:       make(map[string]*types.Partner),
		commodities:    make(map[string]*types.Commodity),
		logger:         logger,
	}
}

// PutRequirement stores a requirement. Seeding helper for memory mode and tests.
func (m *MemoryGateway) PutRequirement(r *types.Requirement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.requirements[r.ID] = &cp
}

// PutAvailability stores an availability.
func (m *MemoryGateway) PutAvailability(a *types.Availability) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.availabilities[a.ID] = &cp
}

// PutPartner stores a partner.
func (m *MemoryGateway) PutPartner(p *types.Partner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.partners[p.ID] = &cp
}

// PutCommodity stores a commodity.
func (m *MemoryGateway) PutCommodity(c *types.Commodity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.commodities[c.ID] = &cp
}

// GetRequirement implements Gateway.
func (m *MemoryGateway) GetRequirement(_ context.Context, id string, _ bool) (*types.Requirement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requirements[id]
	if !ok {
		return nil, fmt.Errorf("requirement %s: %w", id, types.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

// GetAvailability implements Gateway.
func (m *MemoryGateway) GetAvailability(_ context.Context, id string, _ bool) (*types.Availability, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.availabilities[id]
	if !ok {
		return nil, fmt.Errorf("availability %s: %w", id, types.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

// GetPartner implements Gateway.
func (m *MemoryGateway) GetPartner(_ context.Context, id string) (*types.Partner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.partners[id]
	if !ok {
		return nil, fmt.Errorf("partner %s: %w", id, types.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

// GetCommodity implements Gateway.
func (m *MemoryGateway) GetCommodity(_ context.Context, id string) (*types.Commodity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.commodities[id]
	if !ok {
		return nil, fmt.Errorf("commodity %s: %w", id, types.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

// AvailabilitiesByLocation implements Gateway. Results come back in stable
// insertion-independent order (sorted by id) so pipelines are deterministic.
func (m *MemoryGateway) AvailabilitiesByLocation(_ context.Context, locationIDs []string, commodityID string, status types.AvailabilityStatus) ([]*types.Availability, error) {
	locs := make(map[string]struct{}, len(locationIDs))
	for _, id := range locationIDs {
		locs[id] = struct{}{}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.Availability
	for _, a := range m.availabilities {
		if a.CommodityID != commodityID || a.Status != status {
			continue
		}
		if _, ok := locs[a.LocationID]; !ok {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sortAvailabilitiesByID(out)
	return out, nil
}

// RequirementsByDeliveryLocation implements Gateway.
func (m *MemoryGateway) RequirementsByDeliveryLocation(_ context.Context, locationID string, commodityID string, status types.RequirementStatus) ([]*types.Requirement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.Requirement
	for _, r := range m.requirements {
		if r.CommodityID != commodityID || r.Status != status {
			continue
		}
		for _, loc := range r.DeliveryLocations {
			if loc.LocationID == locationID {
				cp := *r
				out = append(out, &cp)
				break
			}
		}
	}
	sortRequirementsByID(out)
	return out, nil
}

// LockAvailability implements Gateway. The per-id mutex serializes writers
// the way a Postgres row lock would.
func (m *MemoryGateway) LockAvailability(ctx context.Context, id string) (LockedAvailability, error) {
	lockAny, _ := m.rowLocks.LoadOrStore(id, &sync.Mutex{})
	lock := lockAny.(*sync.Mutex)
	lock.Lock()

	m.mu.RLock()
	a, ok := m.availabilities[id]
	if !ok {
		m.mu.RUnlock()
		lock.Unlock()
		return nil, fmt.Errorf("availability %s: %w", id, types.ErrNotFound)
	}
	cp := *a
	m.mu.RUnlock()

	return &memoryLock{gw: m, row: lock, copy: &cp}, nil
}

type memoryLock struct {
	gw   *MemoryGateway
	row  *sync.Mutex
	copy *types.Availability
	done bool
}

func (l *memoryLock) Availability() *types.Availability {
	return l.copy
}

func (l *memoryLock) Commit(_ context.Context) error {
	if l.done {
		return fmt.Errorf("lock already released")
	}
	l.done = true
	defer l.row.Unlock()

	if err := l.copy.CheckQuantityInvariant(); err != nil {
		return fmt.Errorf("commit refused: %w", err)
	}

	l.gw.mu.Lock()
	cp := *l.copy
	cp.UpdatedAt = time.Now().UTC()
	l.gw.availabilities[cp.ID] = &cp
	l.gw.mu.Unlock()
	return nil
}

func (l *memoryLock) Rollback() error {
	if l.done {
		return nil
	}
	l.done = true
	l.row.Unlock()
	return nil
}

// AppendMatchAudit implements Gateway.
func (m *MemoryGateway) AppendMatchAudit(_ context.Context, records []*types.MatchAuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		cp := *r
		m.audits = append(m.audits, &cp)
	}
	return nil
}

// Audits returns a copy of all audit records. Test helper.
func (m *MemoryGateway) Audits() []*types.MatchAuditRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.MatchAuditRecord, len(m.audits))
	copy(out, m.audits)
	return out
}

// RecentDuplicateKeys implements Gateway.
func (m *MemoryGateway) RecentDuplicateKeys(_ context.Context, since time.Time) (map[string]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]time.Time)
	for _, a := range m.audits {
		if !a.Included || a.CreatedAt.Before(since) {
			continue
		}
		if prev, ok := out[a.DuplicateKey]; !ok || a.CreatedAt.After(prev) {
			out[a.DuplicateKey] = a.CreatedAt
		}
	}
	return out, nil
}

// ActiveRequirementIDsCreatedSince implements Gateway.
func (m *MemoryGateway) ActiveRequirementIDsCreatedSince(_ context.Context, since time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, r := range m.requirements {
		if r.Status == types.RequirementActive && !r.CreatedAt.Before(since) {
			out = append(out, r.ID)
		}
	}
	return out, nil
}

// ActiveAvailabilityIDsCreatedSince implements Gateway.
func (m *MemoryGateway) ActiveAvailabilityIDsCreatedSince(_ context.Context, since time.Time) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, a := range m.availabilities {
		if a.Status == types.AvailabilityActive && !a.CreatedAt.Before(since) {
			out = append(out, a.ID)
		}
	}
	return out, nil
}

// SameDayAvailabilityCount implements Gateway.
func (m *MemoryGateway) SameDayAvailabilityCount(_ context.Context, partnerID, commodityID string, day time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, a := range m.availabilities {
		if a.SellerID == partnerID && a.CommodityID == commodityID && sameDay(a.CreatedAt, day) {
			count++
		}
	}
	return count, nil
}

// SameDayRequirementCount implements Gateway.
func (m *MemoryGateway) SameDayRequirementCount(_ context.Context, partnerID, commodityID string, day time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, r := range m.requirements {
		if r.BuyerID == partnerID && r.CommodityID == commodityID && sameDay(r.CreatedAt, day) {
			count++
		}
	}
	return count, nil
}

// Close implements Gateway.
func (m *MemoryGateway) Close() error {
	m.logger.Info("closing-memory-storage")
	return nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func sortAvailabilitiesByID(items []*types.Availability) {
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
}

func sortRequirementsByID(items []*types.Requirement) {
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
}
