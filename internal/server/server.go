// Package server runs the HTTP listener that hosts the webhook front-ends,
// the health probe and the metrics endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mississippi1/whatsapp-transcripts-server/internal/channel"
	"github.com/mississippi1/whatsapp-transcripts-server/internal/metrics"
)

const defaultShutdownTimeout = 5 * time.Second

// Config configures the HTTP listener.
type Config struct {
	Host            string
	Port            int
	MetricsPath     string // empty disables the metrics endpoint
	ShutdownTimeout time.Duration
	Routes          []channel.Route
	Metrics         *metrics.Metrics // optional
	Logger          *slog.Logger
}

// Server wraps an http.Server with the service's routes.
type Server struct {
	server          *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	s := &Server{
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          cfg.Logger,
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.routes(cfg),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes(cfg Config) http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern, endpoint string, h http.Handler) {
		if cfg.Metrics != nil {
			h = cfg.Metrics.Middleware(endpoint, h)
		}
		mux.Handle(pattern, h)
	}

	for _, r := range cfg.Routes {
		handle(r.Pattern, r.Endpoint, r.Handler)
		s.logger.Debug("route registered", "pattern", r.Pattern)
	}
	handle("GET /health", "/health", http.HandlerFunc(handleHealth))

	// No request metrics on the metrics endpoint itself.
	if cfg.Metrics != nil && cfg.MetricsPath != "" {
		mux.Handle("GET "+cfg.MetricsPath, cfg.Metrics.Handler())
	}
	return mux
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.server.Addr }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("http server starting", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
