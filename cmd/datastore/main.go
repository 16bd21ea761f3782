// Command datastore owns the SQLite database and answers the gateway's IPC
// traffic: key validation, session load and persistence, usage recording,
// and conversation checkpoints.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apuravchauhan/realtime-switch-v2/internal/logging"
	"github.com/apuravchauhan/realtime-switch-v2/pkg/config"
	"github.com/apuravchauhan/realtime-switch-v2/pkg/datastore/migrate"
	"github.com/apuravchauhan/realtime-switch-v2/pkg/datastore/repo"
	"github.com/apuravchauhan/realtime-switch-v2/pkg/datastore/service"
	"github.com/apuravchauhan/realtime-switch-v2/pkg/datastore/store"
	"github.com/apuravchauhan/realtime-switch-v2/pkg/datastore/summarize"
	"github.com/apuravchauhan/realtime-switch-v2/pkg/ipc"
)

func run(ctx context.Context) error {
	cfg, err := config.LoadDatastore(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.Setup(cfg.LogLevel, cfg.LogPath)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}

	st, err := store.Open(cfg.DBPath, cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	results := migrate.RunAll(st.DB(), logger)
	if migrate.Failed(results) {
		return fmt.Errorf("migrations failed")
	}

	var summarizer summarize.Summarizer
	if cfg.GeminiAPIKey != "" {
		summarizer, err = summarize.NewGemini(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return fmt.Errorf("gemini client: %w", err)
		}
	} else {
		logger.Warn("GEMINI_API_KEY not set, conversation summarization disabled")
	}

	svc := service.New(
		repo.NewAccounts(st.DB()),
		repo.NewUsage(st.DB()),
		repo.NewSessions(st.DB()),
		summarizer,
		logger,
	)

	srv, err := ipc.NewServer(cfg.IPCSocketPath, service.NewHandler(svc), logger)
	if err != nil {
		return fmt.Errorf("bind socket: %w", err)
	}

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- srv.Serve() }()
	logger.Info("datastore listening", "socket", cfg.IPCSocketPath, "db", st.Path())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-serveErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	if err := srv.Close(); err != nil {
		logger.Warn("socket close", "error", err)
	}
	svc.Wait()
	ckCtx, ckCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := st.Checkpoint(ckCtx); err != nil {
		logger.Warn("wal checkpoint", "error", err)
	}
	ckCancel()

	logger.Info("datastore stopped")
	return nil
}

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "datastore: %v\n", err)
		os.Exit(1)
	}
}
