// Package webhook implements the tenant-facing delivery subsystem: per-org
// strict-priority queues, HMAC-signed payloads, a retrying worker pool, and a
// dead-letter queue with operator retry.
package webhook

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/config"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/types"
)

// Config holds the manager dependencies.
type Config struct {
	Webhook config.WebhookConfig
	Store   Store
	Logger  *zap.Logger

	// Deliverer overrides the HTTP deliverer in tests.
	Deliverer *Deliverer
}

// OrgStats is the operator view of one organization's delivery state.
type OrgStats struct {
	OrganizationID string         `json:"organization_id"`
	QueueDepths    map[string]int `json:"queue_depths"`
	DLQSize        int            `json:"dlq_size"`
	TotalEnqueued  int64          `json:"total_enqueued"`
	TotalDelivered int64          `json:"total_delivered"`
	TotalFailed    int64          `json:"total_failed"`
	TotalRetries   int64          `json:"total_retries"`
}

type orgCounters struct {
	enqueued  int64
	delivered int64
	failed    int64
	retries   int64
}

// Manager owns the queues, the worker pool and the retry timers.
type Manager struct {
	cfg       config.WebhookConfig
	store     Store
	queues    *queueSet
	deliverer *Deliverer
	logger    *zap.Logger

	mu       sync.Mutex
	counters map[string]*orgCounters
	timers   map[string]*time.Timer
	stopped  bool

	sleep func(time.Duration)
	now   func() time.Time
}

// NewManager validates the config and builds a manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	deliverer := cfg.Deliverer
	if deliverer == nil {
		deliverer = NewDeliverer(cfg.Webhook.Timeout())
	}
	return &Manager{
		cfg:       cfg.Webhook,
		store:     cfg.Store,
		queues:    newQueueSet(),
		deliverer: deliverer,
		logger:    cfg.Logger,
		counters:  make(map[string]*orgCounters),
		timers:    make(map[string]*time.Timer),
		sleep:     time.Sleep,
		now:       time.Now,
	}, nil
}

// Subscribe registers a tenant endpoint.
func (m *Manager) Subscribe(ctx context.Context, sub *types.WebhookSubscription) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.MaxRetries <= 0 {
		sub.MaxRetries = m.cfg.MaxRetries
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = m.now().UTC()
	}
	return m.store.PutSubscription(ctx, sub)
}

// Publish fans the event out to every matching subscription of the event's
// organization, signing and enqueueing one delivery per endpoint. Never
// blocks on delivery.
func (m *Manager) Publish(ctx context.Context, event *types.WebhookEvent, priority types.WebhookPriority) (int, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = m.now().UTC()
	}

	subs, err := m.store.SubscriptionsForOrg(ctx, event.OrganizationID)
	if err != nil {
		return 0, fmt.Errorf("load subscriptions: %w", err)
	}

	body, err := CanonicalPayload(event)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, sub := range subs {
		if !sub.Accepts(event.EventType) {
			continue
		}

		delivery := &types.WebhookDelivery{
			ID:             uuid.NewString(),
			SubscriptionID: sub.ID,
			EventID:        event.ID,
			OrganizationID: event.OrganizationID,
			Status:         types.DeliveryPending,
			Priority:       priority,
			MaxAttempts:    sub.MaxRetries,
			URL:            sub.URL,
			Body:           body,
			RequestHeaders: map[string]string{
				SignatureHeader: Sign(sub.Secret, body),
			},
			CreatedAt: m.now().UTC(),
		}

		if err := m.store.SaveDelivery(ctx, delivery); err != nil {
			m.logger.Error("delivery-persist-failed", zap.String("delivery_id", delivery.ID), zap.Error(err))
			continue
		}
		m.enqueue(delivery)
		enqueued++
	}
	return enqueued, nil
}

func (m *Manager) enqueue(d *types.WebhookDelivery) {
	m.queues.Enqueue(d)
	EnqueuedTotal.WithLabelValues(d.Priority.String()).Inc()
	m.bump(d.OrganizationID, func(c *orgCounters) { c.enqueued++ })
}

// Start recovers persisted pending deliveries and runs the worker pool until
// ctx is cancelled.
func (m *Manager) Start(ctx context.Context, wg *sync.WaitGroup) error {
	if err := m.recoverPending(ctx); err != nil {
		return err
	}

	workers := m.cfg.MaxWorkers
	if workers <= 0 {
		workers = 10
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.workerLoop(ctx)
		}()
	}
	m.logger.Info("webhook-workers-started", zap.Int("workers", workers))
	return nil
}

// workerLoop polls the queues with a short sleep when idle.
func (m *Manager) workerLoop(ctx context.Context) {
	pollSleep := time.Duration(m.cfg.PollSleepMs) * time.Millisecond
	if pollSleep <= 0 {
		pollSleep = 100 * time.Millisecond
	}

	for {
		if ctx.Err() != nil {
			return
		}
		d := m.queues.Dequeue()
		if d == nil {
			m.sleep(pollSleep)
			continue
		}
		m.attempt(ctx, d)
	}
}

// attempt runs one delivery attempt and routes the outcome: success, retry,
// or dead letter. Each state change is persisted before it takes effect.
func (m *Manager) attempt(ctx context.Context, d *types.WebhookDelivery) {
	d.Attempt++
	d.Status = types.DeliverySending
	sentAt := m.now().UTC()
	d.SentAt = &sentAt
	m.persist(ctx, d)

	start := m.now()
	outcome := m.deliverer.Deliver(ctx, d)
	DeliveryDuration.Observe(m.now().Sub(start).Seconds())

	d.ResponseStatus = outcome.ResponseStatus
	d.ResponseBody = outcome.ResponseBody

	if outcome.Success {
		d.Status = types.DeliverySuccess
		completed := m.now().UTC()
		d.CompletedAt = &completed
		d.ErrorCode = ""
		d.ErrorMessage = ""
		m.persist(ctx, d)

		DeliveredTotal.Inc()
		m.bump(d.OrganizationID, func(c *orgCounters) { c.delivered++ })
		m.logger.Debug("webhook-delivered",
			zap.String("delivery_id", d.ID),
			zap.Int("attempt", d.Attempt))
		return
	}

	d.Status = types.DeliveryFailed
	d.ErrorCode = outcome.ErrorCode
	d.ErrorMessage = outcome.ErrorMessage
	m.persist(ctx, d)

	FailedTotal.WithLabelValues(outcome.ErrorCode).Inc()
	m.logger.Warn("webhook-attempt-failed",
		zap.String("delivery_id", d.ID),
		zap.Int("attempt", d.Attempt),
		zap.String("error_code", outcome.ErrorCode))

	if d.Attempt >= d.MaxAttempts {
		m.deadLetter(ctx, d)
		return
	}
	m.scheduleRetry(ctx, d)
}

// scheduleRetry re-enqueues the delivery at HIGH priority after the
// exponential delay min(base·2^(attempt−1), max).
func (m *Manager) scheduleRetry(ctx context.Context, d *types.WebhookDelivery) {
	base := m.cfg.RetryBaseSecs
	if base <= 0 {
		base = 60
	}
	maxDelay := m.cfg.RetryMaxSecs
	if maxDelay <= 0 {
		maxDelay = 3600
	}

	delaySecs := base << (d.Attempt - 1)
	if delaySecs > maxDelay {
		delaySecs = maxDelay
	}
	delay := time.Duration(delaySecs) * time.Second

	nextRetry := m.now().UTC().Add(delay)
	d.Status = types.DeliveryRetrying
	d.NextRetryAt = &nextRetry
	m.persist(ctx, d)

	RetriesTotal.Inc()
	m.bump(d.OrganizationID, func(c *orgCounters) { c.retries++ })
	m.logger.Info("webhook-retry-scheduled",
		zap.String("delivery_id", d.ID),
		zap.Int("attempt", d.Attempt),
		zap.Duration("delay", delay))

	m.scheduleEnqueue(d, delay)
}

// recoverPending re-enqueues persisted in-flight deliveries. RETRYING rows
// whose NextRetryAt has not passed keep their remaining backoff instead of
// re-entering the queue immediately.
func (m *Manager) recoverPending(ctx context.Context) error {
	pending, err := m.store.PendingDeliveries(ctx)
	if err != nil {
		return fmt.Errorf("recover pending deliveries: %w", err)
	}

	now := m.now().UTC()
	requeued, deferred := 0, 0
	for _, d := range pending {
		if d.Status == types.DeliveryRetrying && d.NextRetryAt != nil && d.NextRetryAt.After(now) {
			m.scheduleEnqueue(d, d.NextRetryAt.Sub(now))
			deferred++
			continue
		}
		m.queues.Enqueue(d)
		requeued++
	}
	if requeued+deferred > 0 {
		m.logger.Info("webhook-deliveries-recovered",
			zap.Int("requeued", requeued), zap.Int("deferred", deferred))
	}
	return nil
}

// scheduleEnqueue re-enqueues the delivery at HIGH priority after the delay.
// The timer is tracked so Stop can cancel it.
func (m *Manager) scheduleEnqueue(d *types.WebhookDelivery, delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.timers[d.ID] = time.AfterFunc(delay, func() {
		m.mu.Lock()
		delete(m.timers, d.ID)
		stopped := m.stopped
		m.mu.Unlock()
		if stopped {
			return
		}
		d.Priority = types.WebhookHigh
		m.queues.Enqueue(d)
	})
}

// Stop cancels outstanding retry timers. Deliveries they covered stay
// persisted as RETRYING and are picked up by the next Start.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	for id, timer := range m.timers {
		timer.Stop()
		delete(m.timers, id)
	}
}

func (m *Manager) deadLetter(ctx context.Context, d *types.WebhookDelivery) {
	d.Status = types.DeliveryDeadLetter
	completed := m.now().UTC()
	d.CompletedAt = &completed
	m.persist(ctx, d)

	m.queues.MoveToDLQ(d)
	DeadLetteredTotal.Inc()
	m.bump(d.OrganizationID, func(c *orgCounters) { c.failed++ })
	m.logger.Error("webhook-dead-lettered",
		zap.String("delivery_id", d.ID),
		zap.String("organization_id", d.OrganizationID),
		zap.Int("attempts", d.Attempt))
}

// ListDLQ returns one page of an org's dead-letter queue plus the total size.
func (m *Manager) ListDLQ(orgID string, offset, limit int) ([]*types.WebhookDelivery, int) {
	return m.queues.DLQPage(orgID, offset, limit)
}

// RetryDLQ pulls a dead-lettered delivery back into rotation: attempt reset
// to zero, status PENDING, NORMAL priority.
func (m *Manager) RetryDLQ(ctx context.Context, orgID, deliveryID string) error {
	d := m.queues.TakeFromDLQ(orgID, deliveryID)
	if d == nil {
		return fmt.Errorf("dead-lettered delivery %s: %w", deliveryID, types.ErrNotFound)
	}

	d.Attempt = 0
	d.Status = types.DeliveryPending
	d.Priority = types.WebhookNormal
	d.CompletedAt = nil
	d.NextRetryAt = nil
	d.ErrorCode = ""
	d.ErrorMessage = ""
	m.persist(ctx, d)

	m.enqueue(d)
	m.logger.Info("webhook-dlq-retry", zap.String("delivery_id", deliveryID))
	return nil
}

// Stats returns the operator stats for one organization.
func (m *Manager) Stats(orgID string) OrgStats {
	levels, dlq := m.queues.Depths(orgID)

	m.mu.Lock()
	c := m.counters[orgID]
	if c == nil {
		c = &orgCounters{}
	}
	stats := OrgStats{
		OrganizationID: orgID,
		QueueDepths: map[string]int{
			types.WebhookCritical.String(): levels[types.WebhookCritical],
			types.WebhookHigh.String():     levels[types.WebhookHigh],
			types.WebhookNormal.String():   levels[types.WebhookNormal],
			types.WebhookLow.String():      levels[types.WebhookLow],
		},
		DLQSize:        dlq,
		TotalEnqueued:  c.enqueued,
		TotalDelivered: c.delivered,
		TotalFailed:    c.failed,
		TotalRetries:   c.retries,
	}
	m.mu.Unlock()
	return stats
}

// bump mutates an org's counters under the lock.
func (m *Manager) bump(orgID string, fn func(*orgCounters)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[orgID]
	if !ok {
		c = &orgCounters{}
		m.counters[orgID] = c
	}
	fn(c)
}

func (m *Manager) persist(ctx context.Context, d *types.WebhookDelivery) {
	if err := m.store.SaveDelivery(ctx, d); err != nil {
		m.logger.Error("delivery-persist-failed",
			zap.String("delivery_id", d.ID), zap.Error(err))
	}
}
