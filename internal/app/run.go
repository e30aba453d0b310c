package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// Run starts every component and blocks until a shutdown signal.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.String("log-level", a.cfg.LogLevel),
		zap.String("redeem-method", a.cfg.RedeemMethod),
		zap.Int("strategies", len(a.engines)))

	if err := a.startComponents(); err != nil {
		return err
	}

	a.healthChecker.SetReady(true)

	a.logger.Info("application-ready",
		zap.String("http-addr", ":"+a.cfg.HTTPPort),
		zap.Bool("websocket-feed", a.wsManager != nil))

	return a.waitForShutdown()
}

func (a *App) startComponents() error {
	a.wg.Add(1)
	go a.runHTTPServer()

	// Resolve the active markets before anything trades on them.
	if err := a.snapshot.Refresh(a.ctx); err != nil {
		a.logger.Warn("initial-snapshot-refresh-failed", zap.Error(err))
	}
	a.syncInstruments(a.ctx)

	a.spawn("market-snapshot", a.snapshot.Run)
	a.spawn("quote-cache", a.quoteCache.Run)
	a.spawn("instrument-sync", a.runInstrumentSync)

	if a.wsManager != nil {
		if err := a.wsManager.Start(); err != nil {
			// The REST poller still covers quotes; degrade instead of
			// refusing to start.
			a.logger.Warn("websocket-start-failed", zap.Error(err))
			a.wsManager = nil
		}
	}

	a.watchdog.Start()
	a.spawn("watchdog", a.watchdog.Run)
	a.spawn("redeem-drainer", a.drainer.Run)

	for _, engine := range a.engines {
		a.spawn("strategy-"+engine.Name(), engine.Run)
	}
	for _, scheduler := range a.schedulers {
		a.spawn("split-scheduler", scheduler.Run)
	}
	for _, stopEngine := range a.stopEngines {
		a.spawn("stop-loss", stopEngine.Run)
	}

	a.spawn("position-sweep", a.runPositionSweep)

	a.wg.Add(1)
	go a.runWalletTracker()

	return nil
}

// spawn runs a context-driven loop on the app WaitGroup.
func (a *App) spawn(name string, run func(ctx context.Context)) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		run(a.ctx)
		a.logger.Debug("component-stopped", zap.String("component", name))
	}()
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) runWalletTracker() {
	defer a.wg.Done()

	if err := a.walletTracker.Run(a.ctx); err != nil && a.ctx.Err() == nil {
		a.logger.Error("wallet-tracker-error", zap.Error(err))
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	if err := a.Shutdown(); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}
