package webhook

import (
	"context"
	"fmt"
	"sync"

	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/types"
)

// Store persists subscriptions and delivery records so in-flight work
// survives restarts. The manager records every status change through it
// before advancing the in-memory state.
type Store interface {
	PutSubscription(ctx context.Context, sub *types.WebhookSubscription) error
	SubscriptionsForOrg(ctx context.Context, orgID string) ([]*types.WebhookSubscription, error)

	SaveDelivery(ctx context.Context, d *types.WebhookDelivery) error
	GetDelivery(ctx context.Context, id string) (*types.WebhookDelivery, error)
	PendingDeliveries(ctx context.Context) ([]*types.WebhookDelivery, error)
}

// MemoryStore is the in-process Store used by tests and single-node runs.
type MemoryStore struct {
	mu         sync.RWMutex
	subs       map[string]*types.WebhookSubscription
	deliveries map[string]*types.WebhookDelivery
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subs:       make(map[string]*types.WebhookSubscription),
		deliveries: make(map[string]*types.WebhookDelivery),
	}
}

// PutSubscription implements Store.
func (s *MemoryStore) PutSubscription(_ context.Context, sub *types.WebhookSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sub
	s.subs[sub.ID] = &cp
	return nil
}

// SubscriptionsForOrg implements Store.
func (s *MemoryStore) SubscriptionsForOrg(_ context.Context, orgID string) ([]*types.WebhookSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.WebhookSubscription
	for _, sub := range s.subs {
		if sub.OrganizationID == orgID {
			cp := *sub
			out = append(out, &cp)
		}
	}
	return out, nil
}

// SaveDelivery implements Store.
func (s *MemoryStore) SaveDelivery(_ context.Context, d *types.WebhookDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.deliveries[d.ID] = &cp
	return nil
}

// GetDelivery implements Store.
func (s *MemoryStore) GetDelivery(_ context.Context, id string) (*types.WebhookDelivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deliveries[id]
	if !ok {
		return nil, fmt.Errorf("delivery %s: %w", id, types.ErrNotFound)
	}
	cp := *d
	return &cp, nil
}

// PendingDeliveries implements Store: deliveries not yet in a terminal state.
func (s *MemoryStore) PendingDeliveries(_ context.Context) ([]*types.WebhookDelivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.WebhookDelivery
	for _, d := range s.deliveries {
		switch d.Status {
		case types.DeliveryPending, types.DeliveryRetrying:
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}
