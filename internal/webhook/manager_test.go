package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/config"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/types"
)

func newTestManager(t *testing.T) (*Manager, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	m, err := NewManager(Config{
		Webhook: config.WebhookConfig{
			TimeoutSeconds: 5,
			MaxWorkers:     2,
			RetryBaseSecs:  60,
			RetryMaxSecs:   3600,
			MaxRetries:     3,
			PollSleepMs:    10,
		},
		Store:  store,
		Logger: zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	return m, store
}

func subscribe(t *testing.T, m *Manager, orgID, url string, eventTypes ...string) *types.WebhookSubscription {
	t.Helper()
	sub := &types.WebhookSubscription{
		OrganizationID: orgID,
		URL:            url,
		EventTypes:     eventTypes,
		Active:         true,
		Secret:         "topsecret",
	}
	if err := m.Subscribe(context.Background(), sub); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	return sub
}

func TestPublish_FansOutToAcceptingSubscriptions(t *testing.T) {
	t.Parallel()

	m, store := newTestManager(t)
	subscribe(t, m, "org-1", "https://a.example.com/hook", "match.found")
	subscribe(t, m, "org-1", "https://b.example.com/hook", "*")
	subscribe(t, m, "org-1", "https://c.example.com/hook", "trade.created")
	inactive := subscribe(t, m, "org-1", "https://d.example.com/hook", "match.found")
	inactive.Active = false
	if err := store.PutSubscription(context.Background(), inactive); err != nil {
		t.Fatalf("update subscription: %v", err)
	}
	subscribe(t, m, "org-2", "https://other.example.com/hook", "match.found")

	n, err := m.Publish(context.Background(), &types.WebhookEvent{
		EventType:      "match.found",
		OrganizationID: "org-1",
		Data:           map[string]any{"score": 0.91},
	}, types.WebhookNormal)
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deliveries enqueued, got %d", n)
	}

	// Each delivery carries a signature the subscriber can verify.
	d := m.queues.Dequeue()
	if d == nil {
		t.Fatal("expected queued delivery")
	}
	if d.Status != types.DeliveryPending || d.MaxAttempts != 3 {
		t.Errorf("unexpected delivery %+v", d)
	}
	if !Verify("topsecret", d.Body, d.RequestHeaders[SignatureHeader]) {
		t.Error("delivery signature must verify against the body")
	}
	if _, err := store.GetDelivery(context.Background(), d.ID); err != nil {
		t.Errorf("delivery must be persisted before enqueue: %v", err)
	}
}

func TestAttempt_SuccessCompletesDelivery(t *testing.T) {
	t.Parallel()

	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m, store := newTestManager(t)
	subscribe(t, m, "org-1", srv.URL, "match.found")
	if _, err := m.Publish(context.Background(), &types.WebhookEvent{
		EventType: "match.found", OrganizationID: "org-1",
		Data: map[string]any{"k": "v"},
	}, types.WebhookNormal); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	d := m.queues.Dequeue()
	m.attempt(context.Background(), d)

	if d.Status != types.DeliverySuccess {
		t.Errorf("expected SUCCESS, got %s", d.Status)
	}
	if d.CompletedAt == nil || d.SentAt == nil {
		t.Error("expected sent and completed timestamps")
	}
	if !Verify("topsecret", d.Body, gotSig) {
		t.Error("server-received signature must verify")
	}

	persisted, err := store.GetDelivery(context.Background(), d.ID)
	if err != nil || persisted.Status != types.DeliverySuccess {
		t.Errorf("final state must be persisted, got %+v err=%v", persisted, err)
	}

	stats := m.Stats("org-1")
	if stats.TotalDelivered != 1 || stats.TotalEnqueued != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

// A persistently failing endpoint walks the full retry ladder: 60s, 120s
// delays on the first two failures, dead letter on the third.
func TestAttempt_RetryLadderEndsInDeadLetter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream broken", http.StatusInternalServerError)
	}))
	defer srv.Close()

	m, store := newTestManager(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	subscribe(t, m, "org-1", srv.URL, "match.found")
	if _, err := m.Publish(context.Background(), &types.WebhookEvent{
		EventType: "match.found", OrganizationID: "org-1",
		Data: map[string]any{"k": "v"},
	}, types.WebhookNormal); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	d := m.queues.Dequeue()

	m.attempt(context.Background(), d)
	if d.Status != types.DeliveryRetrying || d.Attempt != 1 {
		t.Fatalf("expected first failure RETRYING, got %+v", d)
	}
	if d.ErrorCode != types.DeliveryErrHTTP {
		t.Errorf("expected HTTP_ERROR, got %s", d.ErrorCode)
	}
	if d.ResponseStatus == nil || *d.ResponseStatus != http.StatusInternalServerError {
		t.Errorf("expected recorded 500, got %v", d.ResponseStatus)
	}
	if d.NextRetryAt == nil || !d.NextRetryAt.Equal(base.Add(60*time.Second)) {
		t.Errorf("expected first retry at +60s, got %v", d.NextRetryAt)
	}

	m.attempt(context.Background(), d)
	if d.NextRetryAt == nil || !d.NextRetryAt.Equal(base.Add(120*time.Second)) {
		t.Errorf("expected second retry at +120s, got %v", d.NextRetryAt)
	}

	m.attempt(context.Background(), d)
	if d.Status != types.DeliveryDeadLetter {
		t.Fatalf("expected DEAD_LETTER after exhausting attempts, got %s", d.Status)
	}
	if d.CompletedAt == nil {
		t.Error("dead letter must set completed_at")
	}

	persisted, err := store.GetDelivery(context.Background(), d.ID)
	if err != nil || persisted.Status != types.DeliveryDeadLetter {
		t.Errorf("dead-letter state must be persisted, got %+v err=%v", persisted, err)
	}

	stats := m.Stats("org-1")
	if stats.DLQSize != 1 || stats.TotalFailed != 1 || stats.TotalRetries != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}

	page, total := m.ListDLQ("org-1", 0, 10)
	if total != 1 || len(page) != 1 || page[0].ID != d.ID {
		t.Errorf("expected delivery in DLQ, got total=%d page=%+v", total, page)
	}
}

func TestRetryDLQ_ResetsAndRequeues(t *testing.T) {
	t.Parallel()

	m, store := newTestManager(t)
	d := &types.WebhookDelivery{
		ID: "d-1", OrganizationID: "org-1",
		Status: types.DeliveryFailed, Attempt: 3, MaxAttempts: 3,
		ErrorCode: types.DeliveryErrHTTP, ErrorMessage: "HTTP 500",
	}
	if err := store.SaveDelivery(context.Background(), d); err != nil {
		t.Fatalf("seed delivery: %v", err)
	}
	m.deadLetter(context.Background(), d)

	if err := m.RetryDLQ(context.Background(), "org-1", "d-1"); err != nil {
		t.Fatalf("dlq retry failed: %v", err)
	}

	requeued := m.queues.Dequeue()
	if requeued == nil || requeued.ID != "d-1" {
		t.Fatalf("expected d-1 requeued, got %+v", requeued)
	}
	if requeued.Attempt != 0 || requeued.Status != types.DeliveryPending || requeued.Priority != types.WebhookNormal {
		t.Errorf("expected attempt reset, got %+v", requeued)
	}
	if requeued.ErrorCode != "" || requeued.CompletedAt != nil || requeued.NextRetryAt != nil {
		t.Errorf("expected error state cleared, got %+v", requeued)
	}

	if err := m.RetryDLQ(context.Background(), "org-1", "d-missing"); err == nil {
		t.Error("expected error for unknown delivery")
	}
}

// A restart must not collapse the backoff ladder: RETRYING deliveries keep
// their remaining delay instead of re-entering the queue immediately.
func TestRecoverPending_HonorsBackoff(t *testing.T) {
	t.Parallel()

	m, store := newTestManager(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	future := base.Add(time.Hour)
	past := base.Add(-time.Minute)
	seed := []*types.WebhookDelivery{
		{ID: "d-wait", OrganizationID: "org-1", Status: types.DeliveryRetrying,
			Priority: types.WebhookHigh, NextRetryAt: &future},
		{ID: "d-due", OrganizationID: "org-1", Status: types.DeliveryRetrying,
			Priority: types.WebhookHigh, NextRetryAt: &past},
		{ID: "d-fresh", OrganizationID: "org-1", Status: types.DeliveryPending,
			Priority: types.WebhookNormal},
	}
	for _, d := range seed {
		if err := store.SaveDelivery(context.Background(), d); err != nil {
			t.Fatalf("seed delivery: %v", err)
		}
	}

	if err := m.recoverPending(context.Background()); err != nil {
		t.Fatalf("recover failed: %v", err)
	}

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		d := m.queues.Dequeue()
		if d == nil {
			t.Fatalf("expected 2 immediately requeued deliveries, got %d", i)
		}
		got[d.ID] = true
	}
	if !got["d-due"] || !got["d-fresh"] {
		t.Errorf("expected d-due and d-fresh requeued, got %v", got)
	}
	if d := m.queues.Dequeue(); d != nil {
		t.Errorf("d-wait must stay on its timer, got %+v", d)
	}

	m.mu.Lock()
	_, waiting := m.timers["d-wait"]
	m.mu.Unlock()
	if !waiting {
		t.Error("expected a tracked timer for the deferred delivery")
	}
}

func TestStop_CancelsRetryTimers(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	d := &types.WebhookDelivery{ID: "d-1", OrganizationID: "org-1", Status: types.DeliveryRetrying}

	m.scheduleEnqueue(d, time.Hour)
	m.mu.Lock()
	pending := len(m.timers)
	m.mu.Unlock()
	if pending != 1 {
		t.Fatalf("expected 1 tracked timer, got %d", pending)
	}

	m.Stop()
	m.mu.Lock()
	pending = len(m.timers)
	m.mu.Unlock()
	if pending != 0 {
		t.Errorf("expected timers cancelled on stop, got %d", pending)
	}

	// A schedule attempt after stop is a no-op.
	m.scheduleEnqueue(d, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	if got := m.queues.Dequeue(); got != nil {
		t.Errorf("stopped manager must not enqueue, got %+v", got)
	}
}

func TestScheduleEnqueue_FiresAtHighPriority(t *testing.T) {
	t.Parallel()

	m, _ := newTestManager(t)
	d := &types.WebhookDelivery{ID: "d-1", OrganizationID: "org-1",
		Status: types.DeliveryRetrying, Priority: types.WebhookNormal}

	m.scheduleEnqueue(d, time.Millisecond)

	deadline := time.After(2 * time.Second)
	for {
		if got := m.queues.Dequeue(); got != nil {
			if got.Priority != types.WebhookHigh {
				t.Errorf("retries re-enter at HIGH, got %s", got.Priority.String())
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("scheduled delivery never enqueued")
		case <-time.After(5 * time.Millisecond):
		}
	}

	m.mu.Lock()
	left := len(m.timers)
	m.mu.Unlock()
	if left != 0 {
		t.Errorf("fired timer must be untracked, got %d", left)
	}
}

func TestStart_RecoversPendingAndDelivers(t *testing.T) {
	t.Parallel()

	received := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		select {
		case received <- struct{}{}:
		default:
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m, store := newTestManager(t)
	if err := store.SaveDelivery(context.Background(), &types.WebhookDelivery{
		ID: "d-1", OrganizationID: "org-1",
		Status: types.DeliveryPending, Priority: types.WebhookNormal,
		MaxAttempts: 3, URL: srv.URL, Body: []byte(`{}`),
	}); err != nil {
		t.Fatalf("seed delivery: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	if err := m.Start(ctx, &wg); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	select {
	case <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("recovered delivery never reached the endpoint")
	}

	cancel()
	wg.Wait()
}
