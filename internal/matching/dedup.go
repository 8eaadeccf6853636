package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/storage"
)

// DuplicateKey builds the suppression key for a candidate pair.
func DuplicateKey(commodityID, buyerID, sellerID string) string {
	return fmt.Sprintf("%s:%s:%s", commodityID, buyerID, sellerID)
}

// dedupSet suppresses duplicate matches within one engine invocation and
// across the trailing time window recorded in match audits.
type dedupSet struct {
	window map[string]time.Time
	seen   map[string]bool
}

// newDedupSet seeds the set with keys emitted inside the suppression window.
func newDedupSet(ctx context.Context, gw storage.Gateway, window time.Duration, now time.Time) (*dedupSet, error) {
	recent, err := gw.RecentDuplicateKeys(ctx, now.Add(-window))
	if err != nil {
		return nil, fmt.Errorf("load recent duplicate keys: %w", err)
	}
	return &dedupSet{window: recent, seen: make(map[string]bool)}, nil
}

// Suppressed reports whether the key was already emitted, and marks it seen
// for the rest of the invocation either way.
func (d *dedupSet) Suppressed(key string) bool {
	if d.seen[key] {
		return true
	}
	d.seen[key] = true
	_, inWindow := d.window[key]
	return inWindow
}
