package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/avproxygw/internal/gateway"
)

// shutdownTimeout bounds graceful shutdown after a signal.
const shutdownTimeout = 30 * time.Second

// runGateway runs the gateway until a termination signal arrives, then shuts
// it down gracefully.
func runGateway(gw *gateway.Gateway, logger *zap.Logger) {
	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Start(context.Background())
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Fatal("gateway exited", zap.Error(err))
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := gw.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop gateway gracefully", zap.Error(err))
	}
}
