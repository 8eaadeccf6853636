package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// waitForShutdown blocks until SIGINT/SIGTERM, then runs Shutdown.
func (a *App) waitForShutdown() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))

	return a.Shutdown()
}

// Shutdown stops components in dependency order and waits for goroutines.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)
	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	// Workers drain on ctx cancellation; wait for them before closing the
	// bus and the storage they use.
	a.wg.Wait()

	// Workers are gone, so no new retry timers can appear after this.
	a.webhooks.Stop()

	a.bus.Close()

	if err := a.storage.Close(); err != nil {
		a.logger.Error("storage-close-error", zap.Error(err))
	}

	a.logger.Info("application-shutdown-complete")
	return nil
}
