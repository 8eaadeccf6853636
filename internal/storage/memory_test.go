package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/types"
)

func newMemory(t *testing.T) *MemoryGateway {
	t.Helper()
	return NewMemoryGateway(zaptest.NewLogger(t))
}

func TestMemoryGateway_RoundTripsAreCopies(t *testing.T) {
	t.Parallel()

	gw := newMemory(t)
	gw.PutRequirement(&types.Requirement{ID: "req-1", BuyerID: "buyer-1", Status: types.RequirementActive})

	got, err := gw.GetRequirement(context.Background(), "req-1", false)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	got.BuyerID = "mutated"

	again, err := gw.GetRequirement(context.Background(), "req-1", false)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if again.BuyerID != "buyer-1" {
		t.Error("mutating a returned row must not leak into the store")
	}

	if _, err := gw.GetRequirement(context.Background(), "req-missing", false); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := gw.GetAvailability(context.Background(), "avail-missing", false); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := gw.GetPartner(context.Background(), "partner-missing"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAvailabilitiesByLocation_FiltersAndSorts(t *testing.T) {
	t.Parallel()

	gw := newMemory(t)
	gw.PutAvailability(&types.Availability{
		ID: "avail-b", CommodityID: "commodity-cotton", LocationID: "loc-1",
		Status: types.AvailabilityActive,
	})
	gw.PutAvailability(&types.Availability{
		ID: "avail-a", CommodityID: "commodity-cotton", LocationID: "loc-2",
		Status: types.AvailabilityActive,
	})
	gw.PutAvailability(&types.Availability{
		ID: "avail-other-commodity", CommodityID: "commodity-gold", LocationID: "loc-1",
		Status: types.AvailabilityActive,
	})
	gw.PutAvailability(&types.Availability{
		ID: "avail-reserved", CommodityID: "commodity-cotton", LocationID: "loc-1",
		Status: types.AvailabilityReserved,
	})
	gw.PutAvailability(&types.Availability{
		ID: "avail-elsewhere", CommodityID: "commodity-cotton", LocationID: "loc-9",
		Status: types.AvailabilityActive,
	})

	got, err := gw.AvailabilitiesByLocation(context.Background(),
		[]string{"loc-1", "loc-2"}, "commodity-cotton", types.AvailabilityActive)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "avail-a" || got[1].ID != "avail-b" {
		t.Errorf("expected sorted [avail-a avail-b], got %+v", got)
	}
}

func TestRequirementsByDeliveryLocation(t *testing.T) {
	t.Parallel()

	gw := newMemory(t)
	gw.PutRequirement(&types.Requirement{
		ID: "req-b", CommodityID: "commodity-cotton", Status: types.RequirementActive,
		DeliveryLocations: []types.DeliveryLocation{{LocationID: "loc-1"}, {LocationID: "loc-2"}},
	})
	gw.PutRequirement(&types.Requirement{
		ID: "req-a", CommodityID: "commodity-cotton", Status: types.RequirementActive,
		DeliveryLocations: []types.DeliveryLocation{{LocationID: "loc-1"}},
	})
	gw.PutRequirement(&types.Requirement{
		ID: "req-draft", CommodityID: "commodity-cotton", Status: types.RequirementDraft,
		DeliveryLocations: []types.DeliveryLocation{{LocationID: "loc-1"}},
	})

	got, err := gw.RequirementsByDeliveryLocation(context.Background(),
		"loc-1", "commodity-cotton", types.RequirementActive)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "req-a" || got[1].ID != "req-b" {
		t.Errorf("expected sorted [req-a req-b], got %+v", got)
	}
}

func TestLockAvailability_CommitPersists(t *testing.T) {
	t.Parallel()

	gw := newMemory(t)
	gw.PutAvailability(&types.Availability{
		ID: "avail-1", TotalQty: 100, AvailableQty: 100,
		Status: types.AvailabilityActive,
	})

	lock, err := gw.LockAvailability(context.Background(), "avail-1")
	if err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	row := lock.Availability()
	row.AvailableQty = 70
	row.ReservedQty = 30
	if err := lock.Commit(context.Background()); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	stored, err := gw.GetAvailability(context.Background(), "avail-1", false)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if stored.AvailableQty != 70 || stored.ReservedQty != 30 {
		t.Errorf("unexpected buckets %+v", stored)
	}
	if stored.UpdatedAt.IsZero() {
		t.Error("commit must stamp updated_at")
	}

	// The lock is single-use.
	if err := lock.Commit(context.Background()); err == nil {
		t.Error("second commit must fail")
	}
}

func TestLockAvailability_RollbackDiscards(t *testing.T) {
	t.Parallel()

	gw := newMemory(t)
	gw.PutAvailability(&types.Availability{
		ID: "avail-1", TotalQty: 100, AvailableQty: 100,
		Status: types.AvailabilityActive,
	})

	lock, err := gw.LockAvailability(context.Background(), "avail-1")
	if err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	lock.Availability().AvailableQty = 1
	if err := lock.Rollback(); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	// Rollback after release is a no-op.
	if err := lock.Rollback(); err != nil {
		t.Fatalf("repeated rollback failed: %v", err)
	}

	stored, err := gw.GetAvailability(context.Background(), "avail-1", false)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if stored.AvailableQty != 100 {
		t.Errorf("rollback must discard changes, got %v", stored.AvailableQty)
	}

	// The row lock must be free again.
	relock, err := gw.LockAvailability(context.Background(), "avail-1")
	if err != nil {
		t.Fatalf("relock failed: %v", err)
	}
	if err := relock.Rollback(); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
}

func TestLockAvailability_CommitRefusesBrokenInvariant(t *testing.T) {
	t.Parallel()

	gw := newMemory(t)
	gw.PutAvailability(&types.Availability{
		ID: "avail-1", TotalQty: 100, AvailableQty: 100,
		Status: types.AvailabilityActive,
	})

	lock, err := gw.LockAvailability(context.Background(), "avail-1")
	if err != nil {
		t.Fatalf("lock failed: %v", err)
	}
	lock.Availability().AvailableQty = 90 // buckets no longer sum to total
	if err := lock.Commit(context.Background()); err == nil {
		t.Fatal("commit must refuse a broken quantity invariant")
	}

	stored, err := gw.GetAvailability(context.Background(), "avail-1", false)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if stored.AvailableQty != 100 {
		t.Errorf("refused commit must not persist, got %v", stored.AvailableQty)
	}
}

func TestLockAvailability_MissingRow(t *testing.T) {
	t.Parallel()

	gw := newMemory(t)
	if _, err := gw.LockAvailability(context.Background(), "avail-missing"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecentDuplicateKeys(t *testing.T) {
	t.Parallel()

	gw := newMemory(t)
	now := time.Now().UTC()
	err := gw.AppendMatchAudit(context.Background(), []*types.MatchAuditRecord{
		{ID: "a1", DuplicateKey: "k1", Included: true, CreatedAt: now.Add(-2 * time.Minute)},
		{ID: "a2", DuplicateKey: "k1", Included: true, CreatedAt: now.Add(-time.Minute)},
		{ID: "a3", DuplicateKey: "k2", Included: true, CreatedAt: now.Add(-time.Hour)},
		{ID: "a4", DuplicateKey: "k3", Included: false, CreatedAt: now},
	})
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}

	keys, err := gw.RecentDuplicateKeys(context.Background(), now.Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("expected 1 key, got %+v", keys)
	}
	if !keys["k1"].Equal(now.Add(-time.Minute)) {
		t.Errorf("expected most recent k1 emission, got %v", keys["k1"])
	}
}

func TestActiveIDsCreatedSince(t *testing.T) {
	t.Parallel()

	gw := newMemory(t)
	now := time.Now().UTC()
	gw.PutRequirement(&types.Requirement{
		ID: "req-recent", Status: types.RequirementActive, CreatedAt: now.Add(-time.Minute),
	})
	gw.PutRequirement(&types.Requirement{
		ID: "req-old", Status: types.RequirementActive, CreatedAt: now.Add(-time.Hour),
	})
	gw.PutRequirement(&types.Requirement{
		ID: "req-cancelled", Status: types.RequirementCancelled, CreatedAt: now,
	})
	gw.PutAvailability(&types.Availability{
		ID: "avail-recent", TotalQty: 10, AvailableQty: 10,
		Status: types.AvailabilityActive, CreatedAt: now.Add(-time.Minute),
	})

	reqIDs, err := gw.ActiveRequirementIDsCreatedSince(context.Background(), now.Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(reqIDs) != 1 || reqIDs[0] != "req-recent" {
		t.Errorf("expected [req-recent], got %v", reqIDs)
	}

	availIDs, err := gw.ActiveAvailabilityIDsCreatedSince(context.Background(), now.Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(availIDs) != 1 || availIDs[0] != "avail-recent" {
		t.Errorf("expected [avail-recent], got %v", availIDs)
	}
}

func TestSameDayCounts(t *testing.T) {
	t.Parallel()

	gw := newMemory(t)
	day := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	gw.PutAvailability(&types.Availability{
		ID: "avail-1", SellerID: "partner-1", CommodityID: "commodity-cotton",
		TotalQty: 10, AvailableQty: 10, CreatedAt: day,
	})
	gw.PutAvailability(&types.Availability{
		ID: "avail-2", SellerID: "partner-1", CommodityID: "commodity-cotton",
		TotalQty: 10, AvailableQty: 10, CreatedAt: day.Add(13 * time.Hour),
	})
	gw.PutAvailability(&types.Availability{
		ID: "avail-next-day", SellerID: "partner-1", CommodityID: "commodity-cotton",
		TotalQty: 10, AvailableQty: 10, CreatedAt: day.Add(25 * time.Hour),
	})
	gw.PutRequirement(&types.Requirement{
		ID: "req-1", BuyerID: "partner-1", CommodityID: "commodity-cotton", CreatedAt: day,
	})

	n, err := gw.SameDayAvailabilityCount(context.Background(), "partner-1", "commodity-cotton", day)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 same-day availabilities, got %d", n)
	}

	n, err = gw.SameDayRequirementCount(context.Background(), "partner-1", "commodity-cotton", day)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 same-day requirement, got %d", n)
	}
}
