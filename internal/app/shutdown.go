package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown stops components in dependency order and waits for the
// background goroutines to drain.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetNotReady("shutting down")

	// Stops every ticker loop: strategies, stop-loss, drainer,
	// watchdog, feeds.
	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	if a.wsManager != nil {
		if err := a.wsManager.Close(); err != nil {
			a.logger.Error("websocket-close-error", zap.Error(err))
		}
	}

	a.wg.Wait()

	// Last: the history mirror, once nothing records anymore.
	if err := a.store.Close(); err != nil {
		a.logger.Error("storage-close-error", zap.Error(err))
	}

	a.logger.Info("application-shutdown-complete")

	return nil
}
