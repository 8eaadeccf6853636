package storage

import (
	"context"
	"time"

	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/cache"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/types"
)

const referenceTTL = 5 * time.Minute

// CachedGateway wraps a Gateway with a read-through cache over the reference
// reads the candidate pipeline repeats per pair: partners and commodities.
// Entity reads stay uncached; matching must see fresh quantities and states.
type CachedGateway struct {
	Gateway
	cache cache.Cache
}

// WithCache wraps gw with the given cache.
func WithCache(gw Gateway, c cache.Cache) *CachedGateway {
	return &CachedGateway{Gateway: gw, cache: c}
}

// GetPartner serves partners from the cache, falling back to the backend.
func (g *CachedGateway) GetPartner(ctx context.Context, id string) (*types.Partner, error) {
	key := "partner:" + id
	if v, ok := g.cache.Get(key); ok {
		if p, ok := v.(*types.Partner); ok {
			return p, nil
		}
	}

	p, err := g.Gateway.GetPartner(ctx, id)
	if err != nil {
		return nil, err
	}
	g.cache.Set(key, p, referenceTTL)
	return p, nil
}

// GetCommodity serves commodities from the cache, falling back to the backend.
func (g *CachedGateway) GetCommodity(ctx context.Context, id string) (*types.Commodity, error) {
	key := "commodity:" + id
	if v, ok := g.cache.Get(key); ok {
		if c, ok := v.(*types.Commodity); ok {
			return c, nil
		}
	}

	c, err := g.Gateway.GetCommodity(ctx, id)
	if err != nil {
		return nil, err
	}
	g.cache.Set(key, c, referenceTTL)
	return c, nil
}

// Close releases the cache and the backend.
func (g *CachedGateway) Close() error {
	g.cache.Close()
	return g.Gateway.Close()
}
