// Command gateway serves the realtime WebSocket endpoint. It validates
// sessions against the datastore over IPC, bridges client traffic to the
// provider, and streams usage and conversation checkpoints back.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apuravchauhan/realtime-switch-v2/internal/logging"
	"github.com/apuravchauhan/realtime-switch-v2/pkg/config"
	"github.com/apuravchauhan/realtime-switch-v2/pkg/gateway/server"
	"github.com/apuravchauhan/realtime-switch-v2/pkg/ipc"
)

const shutdownGracePeriod = 10 * time.Second

func run(ctx context.Context) error {
	cfg, err := config.LoadGateway(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.Setup(cfg.LogLevel, cfg.LogPath)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}

	broker, err := ipc.NewBroker(ipc.BrokerConfig{
		SocketPath: cfg.IPCSocketPath,
		Timeout:    cfg.IPCTimeout(),
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("connect datastore: %w", err)
	}
	defer broker.Destroy()

	srv := server.New(cfg, broker, logger)

	listenErrCh := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}
}
