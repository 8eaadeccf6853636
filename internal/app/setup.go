package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/allocation"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/dispatch"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/matching"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/risk"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/scoring"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/storage"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/validation"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/webhook"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/cache"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/config"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/events"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/healthprobe"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/httpserver"
)

// New builds the application from configuration. Nothing runs until Run.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		cfg:           cfg,
		logger:        logger,
		healthChecker: healthprobe.New("storage", "matching-engine", "dispatcher", "webhooks"),
		bus:           events.NewBus(256, logger),
		ctx:           ctx,
		cancel:        cancel,
	}

	if err := a.setupStorage(); err != nil {
		cancel()
		return nil, err
	}
	if err := a.setupCore(); err != nil {
		cancel()
		return nil, err
	}
	if err := a.setupHTTP(); err != nil {
		cancel()
		return nil, err
	}
	return a, nil
}

func (a *App) setupStorage() error {
	var gw storage.Gateway
	switch a.cfg.Storage.Mode {
	case "postgres":
		pg, err := storage.NewPostgresGateway(&storage.PostgresConfig{
			Host:     a.cfg.Storage.PostgresHost,
			Port:     a.cfg.Storage.PostgresPort,
			User:     a.cfg.Storage.PostgresUser,
			Password: a.cfg.Storage.PostgresPass,
			Database: a.cfg.Storage.PostgresDB,
			SSLMode:  a.cfg.Storage.PostgresSSL,
			Logger:   a.logger,
		})
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		gw = pg
	default:
		gw = storage.NewMemoryGateway(a.logger)
	}

	refCache, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 100_000,
		MaxCost:     10_000,
		BufferItems: 64,
		Logger:      a.logger,
	})
	if err != nil {
		return fmt.Errorf("create reference cache: %w", err)
	}

	a.storage = storage.WithCache(gw, refCache)
	return nil
}

func (a *App) setupCore() error {
	riskOrch, err := risk.NewOrchestrator(risk.Config{
		Risk:    a.cfg.Risk,
		Storage: a.storage,
		Logger:  a.logger,
		Bus:     a.bus,
	})
	if err != nil {
		return fmt.Errorf("create risk orchestrator: %w", err)
	}
	a.riskOrch = riskOrch

	scorer, err := scoring.New(scoring.Config{
		Scoring:     a.cfg.Scoring,
		WarnPenalty: a.cfg.Risk.WarnGlobalPenalty,
		AIBoost:     a.cfg.Risk.AIScoreBoost,
		EnableBoost: a.cfg.Risk.EnableAIScoreBoost,
		Logger:      a.logger,
	})
	if err != nil {
		return fmt.Errorf("create scorer: %w", err)
	}

	validator, err := validation.NewFromConfig(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("create validator: %w", err)
	}

	engine, err := matching.NewEngine(matching.Config{
		Storage:   a.storage,
		Scorer:    scorer,
		Validator: validator,
		Risk:      riskOrch,
		Bus:       a.bus,
		Logger:    a.logger,
		Scoring:   a.cfg.Scoring,
		Matching:  a.cfg.Matching,
		Location:  a.cfg.Location,
		Dedup:     a.cfg.Dedup,
	})
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	a.engine = engine

	allocator, err := allocation.New(allocation.Config{
		Storage: a.storage,
		Bus:     a.bus,
		Logger:  a.logger,
	})
	if err != nil {
		return fmt.Errorf("create allocator: %w", err)
	}
	a.allocator = allocator

	webhooks, err := webhook.NewManager(webhook.Config{
		Webhook: a.cfg.Webhook,
		Store:   webhook.NewMemoryStore(),
		Logger:  a.logger,
	})
	if err != nil {
		return fmt.Errorf("create webhook manager: %w", err)
	}
	a.webhooks = webhooks

	notifier := dispatch.NewNotifier(a.cfg.Notification, a.storage,
		&dispatch.LogSender{Logger: a.logger}, a.logger)

	dispatcher, err := dispatch.NewService(dispatch.Config{
		Engine:   engine,
		Notifier: notifier,
		Bus:      a.bus,
		Matching: a.cfg.Matching,
		Logger:   a.logger,
	})
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}
	a.dispatcher = dispatcher

	sweep, err := dispatch.NewSweep(a.cfg.Safety, a.storage, dispatcher.Queue(), a.logger)
	if err != nil {
		return fmt.Errorf("create safety sweep: %w", err)
	}
	a.sweep = sweep
	return nil
}

func (a *App) setupHTTP() error {
	a.httpServer = httpserver.New(&httpserver.Config{
		Port:          a.cfg.HTTPPort,
		Logger:        a.logger,
		HealthChecker: a.healthChecker,
		Engine:        a.engine,
		Allocator:     a.allocator,
		Webhooks:      a.webhooks,
		Risk:          a.riskOrch,
	})
	return nil
}
