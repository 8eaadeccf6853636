package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
)

// defaultReferenceTTL bounds how stale reference data (partners, commodities)
// may get when a caller does not pick a TTL.
const defaultReferenceTTL = 5 * time.Minute

// RistrettoCache backs the reference-data cache with ristretto. Admission is
// asynchronous, so a Set is not guaranteed to be visible to the next Get.
type RistrettoCache struct {
	cache      *ristretto.Cache
	defaultTTL time.Duration
	logger     *zap.Logger
}

// RistrettoConfig sizes the cache. Costs are counted in items, not bytes, so
// MaxCost is the item capacity and NumCounters should be roughly 10x that.
type RistrettoConfig struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	DefaultTTL  time.Duration // applied when Set is called with ttl <= 0
	Logger      *zap.Logger
}

// NewRistrettoCache creates a ristretto-backed Cache.
func NewRistrettoCache(cfg *RistrettoConfig) (Cache, error) {
	inner, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}

	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = defaultReferenceTTL
	}

	return &RistrettoCache{
		cache:      inner,
		defaultTTL: ttl,
		logger:     cfg.Logger,
	}, nil
}

// Get retrieves a value and records hit/miss metrics.
func (r *RistrettoCache) Get(key string) (interface{}, bool) {
	value, found := r.cache.Get(key)
	if found {
		CacheHitsTotal.Inc()
	} else {
		CacheMissesTotal.Inc()
	}
	return value, found
}

// Set stores a value with unit cost. A non-positive ttl falls back to the
// configured default so reference data always expires.
func (r *RistrettoCache) Set(key string, value interface{}, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	ok := r.cache.SetWithTTL(key, value, 1, ttl)
	if ok {
		CacheSetsTotal.Inc()
	}
	return ok
}

// Delete removes a single key.
func (r *RistrettoCache) Delete(key string) {
	r.cache.Del(key)
	CacheDeletesTotal.Inc()
}

// Clear drops every cached entry. Used when reference data changes out of
// band, e.g. a partner's risk tier is updated by an operator.
func (r *RistrettoCache) Clear() {
	r.cache.Clear()
	r.logger.Info("reference-cache-cleared")
}

// Close releases ristretto's internal goroutines.
func (r *RistrettoCache) Close() {
	r.cache.Close()
}

// Wait blocks until pending writes are admitted. Test helper.
func (r *RistrettoCache) Wait() {
	r.cache.Wait()
}
