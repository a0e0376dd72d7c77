package app

import (
	"context"

	"groupchat/pkg/state/logger"
)

// Shutdown stops accepting requests, then closes websocket subscribers,
// background jobs and the store, in that order.
func (a *App) Shutdown(ctx context.Context) error {
	a.state = "shutting_down"
	logger.Info("shutdown_started")

	var firstErr error
	if a.srvFast != nil {
		if err := a.srvFast.ShutdownWithContext(ctx); err != nil {
			logger.Error("http_shutdown_failed", "error", err)
			firstErr = err
		}
	}
	// closing the hub ends every websocket with a going-away frame
	a.hub.Close()
	if a.presenceCancel != nil {
		a.presenceCancel()
	}
	if a.sweeperCancel != nil {
		a.sweeperCancel()
	}
	if a.api != nil {
		a.api.Shutdown()
	}
	if err := a.store.Close(); err != nil {
		logger.Error("store_close_failed", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	if firstErr == nil {
		a.state = "stopped"
		logger.Info("shutdown_complete")
	}
	return firstErr
}

// State reports the lifecycle phase.
func (a *App) State() string { return a.state }
