package risk

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// defaultCooldown is how long an open breaker waits before letting a single
// half-open probe through to tier 2.
const defaultCooldown = 30 * time.Second

// Breaker counts consecutive tier-2 failures and opens after a threshold,
// switching the orchestrator to rules-only operation. After the cooldown one
// probe call is allowed through: its success closes the breaker, its failure
// restarts the cooldown. Operator reset closes it immediately.
type Breaker struct {
	open atomic.Bool // lock-free reads on the hot path

	threshold int
	cooldown  time.Duration
	logger    *zap.Logger

	mu          sync.Mutex
	consecutive int
	probing     bool
	lastFailure time.Time
	openedAt    time.Time
	totalTrips  int

	now func() time.Time
}

// BreakerStatus is a snapshot for operators and the HTTP status endpoint.
type BreakerStatus struct {
	Open                bool      `json:"open"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Threshold           int       `json:"threshold"`
	LastFailure         time.Time `json:"last_failure,omitempty"`
	OpenedAt            time.Time `json:"opened_at,omitempty"`
	TotalTrips          int       `json:"total_trips"`
}

// NewBreaker creates a closed breaker with the given failure threshold.
func NewBreaker(threshold int, logger *zap.Logger) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	BreakerOpen.Set(0)
	return &Breaker{
		threshold: threshold,
		cooldown:  defaultCooldown,
		logger:    logger,
		now:       time.Now,
	}
}

// Allow reports whether tier 2 may be attempted. While open it admits exactly
// one probe per cooldown window.
func (b *Breaker) Allow() bool {
	if !b.open.Load() {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open.Load() {
		return true
	}
	if b.probing || b.now().Sub(b.openedAt) < b.cooldown {
		return false
	}
	b.probing = true
	b.logger.Info("ml-circuit-breaker-probing")
	return true
}

// RecordSuccess closes the breaker and resets the failure run.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive = 0
	b.probing = false
	if b.open.Load() {
		b.open.Store(false)
		BreakerOpen.Set(0)
		b.logger.Info("ml-circuit-breaker-closed")
	}
}

// RecordFailure counts one tier-2 failure; the run reaching the threshold
// opens the breaker, and a failed probe restarts the cooldown.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutive++
	b.lastFailure = b.now()
	BreakerFailuresTotal.Inc()

	if b.open.Load() {
		b.probing = false
		b.openedAt = b.now()
		return
	}

	if b.consecutive >= b.threshold {
		b.open.Store(true)
		b.openedAt = b.now()
		b.totalTrips++
		BreakerOpen.Set(1)
		BreakerTripsTotal.Inc()
		b.logger.Warn("ml-circuit-breaker-opened",
			zap.Int("consecutive_failures", b.consecutive),
			zap.Int("threshold", b.threshold))
	}
}

// Reset closes the breaker on operator request.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive = 0
	b.probing = false
	if b.open.Load() {
		b.open.Store(false)
		BreakerOpen.Set(0)
		b.logger.Info("ml-circuit-breaker-reset")
	}
}

// Status returns a snapshot of the breaker state.
func (b *Breaker) Status() BreakerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStatus{
		Open:                b.open.Load(),
		ConsecutiveFailures: b.consecutive,
		Threshold:           b.threshold,
		LastFailure:         b.lastFailure,
		OpenedAt:            b.openedAt,
		TotalTrips:          b.totalTrips,
	}
}
