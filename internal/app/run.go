package app

import (
	"fmt"

	"go.uber.org/zap"
)

// Run starts every component and blocks until a shutdown signal arrives.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.String("storage-mode", a.cfg.Storage.Mode),
		zap.String("log-level", a.cfg.LogLevel))

	if err := a.startComponents(); err != nil {
		return err
	}

	a.healthChecker.SetReady(true)
	a.logger.Info("application-ready", zap.String("http-addr", ":"+a.cfg.HTTPPort))

	return a.waitForShutdown()
}

func (a *App) startComponents() error {
	// Storage is connected during setup; the probe just needs to know.
	a.healthChecker.SetSubsystemReady("storage", true)

	a.wg.Add(1)
	go a.runHTTPServer()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.engine.Start(a.ctx)
	}()
	a.healthChecker.SetSubsystemReady("matching-engine", true)

	if err := a.webhooks.Start(a.ctx, &a.wg); err != nil {
		return fmt.Errorf("start webhook manager: %w", err)
	}
	a.healthChecker.SetSubsystemReady("webhooks", true)

	a.dispatcher.Start(a.ctx, &a.wg)
	a.healthChecker.SetSubsystemReady("dispatcher", true)

	if err := a.sweep.Start(a.ctx); err != nil {
		return fmt.Errorf("start safety sweep: %w", err)
	}
	return nil
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}
