// Package api provides the HTTP API server implementation for the X-Ray service.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xray-io/xray/internal/api/middleware"
	"github.com/xray-io/xray/internal/ingest"
)

// Server owns the HTTP listener, the middleware chain, and the ingestion
// pipeline wired behind it.
type Server struct {
	httpServer  *http.Server
	logger      *slog.Logger
	config      *ServerConfig
	startTime   time.Time
	store       ingest.Store
	processor   *ingest.Processor
	auth        *middleware.Authenticator
	rateLimiter middleware.RateLimiter
}

// NewServer wires routes, middleware, and the ingestion processor. A nil
// auth or rateLimiter disables that layer, which is logged loudly since
// both should be configured outside development.
func NewServer(
	cfg *ServerConfig,
	store ingest.Store,
	auth *middleware.Authenticator,
	rateLimiter middleware.RateLimiter,
) *Server {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	server := &Server{
		logger:      logger,
		config:      cfg,
		store:       store,
		processor:   ingest.NewProcessor(store, logger),
		auth:        auth,
		rateLimiter: rateLimiter,
	}

	mux := http.NewServeMux()
	server.setupRoutes(mux)

	if auth == nil {
		logger.Warn("No API keys configured - authentication middleware disabled")
	}

	if rateLimiter == nil {
		logger.Warn("RateLimiter not configured - rate limiting middleware disabled")
	}

	// Ordering matters: correlation IDs first so every later layer can tag
	// its logs, recovery before anything that can panic, auth and rate
	// limiting before the request logger so rejected spam stays out of the
	// request log.
	handler := middleware.Apply(mux,
		middleware.WithCorrelationID(),
		middleware.WithRecovery(logger),
		middleware.WithAuth(auth, logger),
		middleware.WithRateLimit(rateLimiter, logger),
		middleware.WithRequestLogger(logger),
		middleware.WithCORS(cfg.ToCORSConfig()),
	)

	server.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return server
}

// Start runs the listener and blocks until SIGINT, SIGTERM, or a listen
// failure, then shuts down gracefully.
func (s *Server) Start() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	s.startTime = time.Now()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("Starting X-Ray API server",
			slog.String("address", s.config.Address()),
			slog.Duration("read_timeout", s.config.ReadTimeout),
			slog.Duration("write_timeout", s.config.WriteTimeout),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case sig := <-stop:
		s.logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

		return s.shutdown()
	}
}

// shutdown drains in-flight requests within the configured timeout, then
// releases the store and rate limiter if they hold resources.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Initiating server shutdown",
		slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
	)

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if closer, ok := s.store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			s.logger.Error("Failed to close event store", slog.Any("error", err))
		}
	}

	if closer, ok := s.rateLimiter.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			s.logger.Error("Failed to close rate limiter", slog.Any("error", err))
		}
	}

	s.logger.Info("Server shutdown completed")

	return nil
}
