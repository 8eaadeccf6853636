package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/storage"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/config"
)

// Sweep periodically re-enqueues recently created entities at LOW priority.
// It is the safety net for events lost between publish and dequeue; the
// in-flight set and duplicate suppression make the re-runs harmless.
type Sweep struct {
	cfg     config.SafetyConfig
	storage storage.Gateway
	queue   *Queue
	logger  *zap.Logger
	cron    *cron.Cron
}

// NewSweep creates the sweep. Start schedules it; a disabled config yields a
// sweep whose Start is a no-op.
func NewSweep(cfg config.SafetyConfig, gw storage.Gateway, queue *Queue, logger *zap.Logger) (*Sweep, error) {
	if gw == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if queue == nil {
		return nil, fmt.Errorf("queue is required")
	}
	return &Sweep{
		cfg:     cfg,
		storage: gw,
		queue:   queue,
		logger:  logger,
		cron:    cron.New(cron.WithSeconds()),
	}, nil
}

// Start schedules the sweep and stops it when ctx is cancelled.
func (s *Sweep) Start(ctx context.Context) error {
	if !s.cfg.Enable {
		s.logger.Info("safety-sweep-disabled")
		return nil
	}

	spec := fmt.Sprintf("*/%d * * * * *", s.cfg.IntervalSeconds)
	if _, err := s.cron.AddFunc(spec, func() { s.run(ctx) }); err != nil {
		return fmt.Errorf("schedule safety sweep: %w", err)
	}
	s.cron.Start()

	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
	}()

	s.logger.Info("safety-sweep-started",
		zap.Int("interval_seconds", s.cfg.IntervalSeconds),
		zap.Int("lookback_minutes", s.cfg.LookbackMinutes))
	return nil
}

// run enqueues one LOW task per recently created active entity.
func (s *Sweep) run(ctx context.Context) {
	since := time.Now().Add(-time.Duration(s.cfg.LookbackMinutes) * time.Minute)

	reqIDs, err := s.storage.ActiveRequirementIDsCreatedSince(ctx, since)
	if err != nil {
		s.logger.Error("sweep-requirement-scan-failed", zap.Error(err))
		return
	}
	availIDs, err := s.storage.ActiveAvailabilityIDsCreatedSince(ctx, since)
	if err != nil {
		s.logger.Error("sweep-availability-scan-failed", zap.Error(err))
		return
	}

	now := time.Now().UTC()
	for _, id := range reqIDs {
		s.queue.Enqueue(&MatchRequest{
			Priority:   PriorityLow,
			EntityType: EntityRequirement,
			EntityID:   id,
			CreatedAt:  now,
		})
		SweepEnqueuedTotal.Inc()
	}
	for _, id := range availIDs {
		s.queue.Enqueue(&MatchRequest{
			Priority:   PriorityLow,
			EntityType: EntityAvailability,
			EntityID:   id,
			CreatedAt:  now,
		})
		SweepEnqueuedTotal.Inc()
	}

	if len(reqIDs)+len(availIDs) > 0 {
		s.logger.Debug("sweep-enqueued",
			zap.Int("requirements", len(reqIDs)),
			zap.Int("availabilities", len(availIDs)))
	}
}
