// Package server assembles the gateway's HTTP server.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/apuravchauhan/realtime-switch-v2/pkg/config"
	"github.com/apuravchauhan/realtime-switch-v2/pkg/gateway/handlers"
	"github.com/apuravchauhan/realtime-switch-v2/pkg/gateway/mw"
	"github.com/apuravchauhan/realtime-switch-v2/pkg/gateway/orchestrator"
)

// Server wraps the HTTP listener serving the realtime accept path.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New builds the server with its routes mounted.
func New(cfg *config.Gateway, ipc orchestrator.IPC, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/v1/realtime", handlers.NewRealtimeHandler(cfg, ipc, logger))
	mux.Handle("/healthz", handlers.HealthHandler{})
	mux.Handle("/readyz", handlers.ReadyHandler{Config: cfg})

	handler := mw.RequestID(mw.Recover(logger, mw.AccessLog(logger, mux)))

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Handler exposes the assembled handler chain, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks serving connections.
func (s *Server) ListenAndServe() error {
	s.logger.Info("gateway listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
