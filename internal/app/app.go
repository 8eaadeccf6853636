// Package app wires the matching backend together: storage, risk, scoring,
// the engine, the dispatcher, webhooks and the operator HTTP plane.
package app

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/allocation"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/dispatch"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/matching"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/risk"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/storage"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/webhook"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/config"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/events"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/healthprobe"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/httpserver"
)

// App is the application orchestrator.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server

	storage    storage.Gateway
	bus        *events.Bus
	riskOrch   *risk.Orchestrator
	engine     *matching.Engine
	allocator  *allocation.Allocator
	dispatcher *dispatch.Service
	sweep      *dispatch.Sweep
	webhooks   *webhook.Manager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}
