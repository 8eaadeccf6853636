// Package dispatch hosts the event-driven match dispatcher: a priority queue
// of match tasks fed by domain events, a worker that invokes the engine, and
// the notification fan-out.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/matching"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/config"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/events"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/types"
)

const dequeueTimeout = time.Second

// Config holds the dispatcher dependencies.
type Config struct {
	Engine   *matching.Engine
	Notifier *Notifier
	Bus      *events.Bus
	Matching config.MatchingConfig
	Logger   *zap.Logger
}

// Service is the long-running dispatcher.
type Service struct {
	cfg      Config
	queue    *Queue
	engine   *matching.Engine
	notifier *Notifier
	bus      *events.Bus
	logger   *zap.Logger

	mu       sync.Mutex
	inFlight map[string]bool

	sem        *semaphore.Weighted
	maxRetries int
	batchDelay time.Duration
	sleep      func(time.Duration)
}

// NewService validates the config and builds a dispatcher.
func NewService(cfg Config) (*Service, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	maxRetries := cfg.Matching.TaskMaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	batchDelay := time.Duration(cfg.Matching.BatchDelayMs) * time.Millisecond
	if batchDelay <= 0 {
		batchDelay = time.Second
	}
	maxConcurrent := cfg.Matching.MaxConcurrentMatches
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Service{
		cfg:        cfg,
		queue:      NewQueue(),
		engine:     cfg.Engine,
		notifier:   cfg.Notifier,
		bus:        cfg.Bus,
		logger:     cfg.Logger,
		inFlight:   make(map[string]bool),
		sem:        semaphore.NewWeighted(maxConcurrent),
		maxRetries: maxRetries,
		batchDelay: batchDelay,
		sleep:      time.Sleep,
	}, nil
}

// Queue exposes the task queue for the sweep and manual retries.
func (s *Service) Queue() *Queue {
	return s.queue
}

// EnqueueManualRetry queues a user-triggered rematch at HIGH priority.
func (s *Service) EnqueueManualRetry(entityType EntityType, entityID string) {
	s.queue.Enqueue(&MatchRequest{
		Priority:   PriorityHigh,
		EntityType: entityType,
		EntityID:   entityID,
		CreatedAt:  time.Now().UTC(),
	})
}

// Start subscribes to domain events and runs the worker loop until ctx is
// cancelled.
func (s *Service) Start(ctx context.Context, wg *sync.WaitGroup) {
	sub := s.bus.Subscribe(
		events.RequirementCreated,
		events.RequirementPublished,
		events.AvailabilityCreated,
		events.AvailabilityUpdated,
		events.RiskStatusChanged,
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		s.consumeEvents(ctx, sub)
	}()
	go func() {
		defer wg.Done()
		s.workerLoop(ctx)
	}()
}

// consumeEvents translates domain events into queued tasks.
func (s *Service) consumeEvents(ctx context.Context, sub <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			s.handleEvent(ev)
		}
	}
}

func (s *Service) handleEvent(ev events.Event) {
	task := &MatchRequest{CreatedAt: ev.OccurredAt, EntityID: ev.AggregateID}

	switch ev.Name {
	case events.RequirementCreated, events.RequirementPublished:
		task.EntityType = EntityRequirement
		task.Priority = PriorityMedium
	case events.AvailabilityCreated, events.AvailabilityUpdated:
		task.EntityType = EntityAvailability
		task.Priority = PriorityMedium
	case events.RiskStatusChanged:
		// A changed verdict may unblock previously failed matches.
		task.EntityType = EntityRequirement
		task.Priority = PriorityHigh
		if id, ok := ev.Payload["requirement_id"].(string); ok && id != "" {
			task.EntityID = id
		}
	default:
		return
	}
	s.queue.Enqueue(task)
}

// workerLoop is the single consumer: dequeue with timeout, drop in-flight
// duplicates, then hand the task to a bounded set of match goroutines. The
// micro-batch delay after each dispatch smooths bursts.
func (s *Service) workerLoop(ctx context.Context) {
	var tasks sync.WaitGroup
	defer tasks.Wait()

	for {
		if ctx.Err() != nil {
			return
		}
		task := s.queue.Dequeue(dequeueTimeout)
		if task == nil {
			continue
		}

		if !s.markInFlight(task.EntityID) {
			InFlightDroppedTotal.Inc()
			ProcessedTotal.WithLabelValues("dropped_in_flight").Inc()
			continue
		}

		if err := s.sem.Acquire(ctx, 1); err != nil {
			s.clearInFlight(task.EntityID)
			return
		}
		tasks.Add(1)
		go func(task *MatchRequest) {
			defer tasks.Done()
			defer s.sem.Release(1)
			defer s.clearInFlight(task.EntityID)
			s.process(ctx, task)
		}(task)

		s.sleep(s.batchDelay)
	}
}

func (s *Service) process(ctx context.Context, task *MatchRequest) {
	var (
		matches []*types.MatchResult
		err     error
	)
	opts := matching.SearchOptions{IncludeRiskCheck: true}

	switch task.EntityType {
	case EntityRequirement:
		matches, err = s.engine.FindMatchesForRequirement(ctx, task.EntityID, opts)
	case EntityAvailability:
		matches, err = s.engine.FindMatchesForAvailability(ctx, task.EntityID, opts)
	default:
		s.logger.Error("unknown-entity-type", zap.String("entity_type", string(task.EntityType)))
		ProcessedTotal.WithLabelValues("invalid").Inc()
		return
	}

	if err != nil {
		s.retry(task, err)
		return
	}

	ProcessedTotal.WithLabelValues("ok").Inc()
	s.logger.Info("match-task-processed",
		zap.String("entity_type", string(task.EntityType)),
		zap.String("entity_id", task.EntityID),
		zap.String("priority", task.Priority.String()),
		zap.Int("matches", len(matches)))

	if s.notifier != nil && len(matches) > 0 {
		s.notifier.NotifyMatches(ctx, task, matches)
	}
}

// retry re-enqueues a failed task with exponential backoff until the retry
// budget runs out.
func (s *Service) retry(task *MatchRequest, cause error) {
	if task.RetryCount >= s.maxRetries {
		ProcessedTotal.WithLabelValues("abandoned").Inc()
		s.logger.Error("match-task-abandoned",
			zap.String("entity_id", task.EntityID),
			zap.Int("retries", task.RetryCount),
			zap.Error(cause))
		return
	}

	task.RetryCount++
	backoff := time.Duration(1<<task.RetryCount) * time.Second
	ProcessedTotal.WithLabelValues("retried").Inc()
	s.logger.Warn("match-task-retry",
		zap.String("entity_id", task.EntityID),
		zap.Int("retry", task.RetryCount),
		zap.Duration("backoff", backoff),
		zap.Error(cause))

	time.AfterFunc(backoff, func() {
		s.queue.Enqueue(task)
	})
}

func (s *Service) markInFlight(entityID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[entityID] {
		return false
	}
	s.inFlight[entityID] = true
	return true
}

func (s *Service) clearInFlight(entityID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, entityID)
}
