// Package api provides the HTTP API server implementation for the X-Ray service.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/xray-io/xray/internal/api/middleware"
)

const (
	healthCheckTimeout = 2 * time.Second

	// TODO: inject version via -ldflags once release builds exist.
	serviceVersion = "v1.0.0"
	versionHeader  = "X-Xray-Version"
)

// HealthStatus is the /health response body.
type HealthStatus struct {
	Status      string `json:"status"`
	ServiceName string `json:"serviceName"`
	Version     string `json:"version"`
	Uptime      string `json:"uptime,omitempty"`
}

// setupRoutes registers every endpoint. Health endpoints are public so
// Kubernetes probes work without credentials; everything else sits behind
// the full middleware chain.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	s.public(mux, "GET /ping", s.handlePing)
	s.public(mux, "GET /ready", s.handleReady)
	s.public(mux, "GET /health", s.handleHealth)
	s.public(mux, "/", s.handleNotFound)

	mux.HandleFunc("POST /ingest", s.handleIngest)
}

// public registers a route and exempts its path from auth and rate limiting.
// pattern may carry a Go 1.22 method prefix ("GET /ping"); the bypass list
// is keyed by bare path since that is what the middleware sees.
func (s *Server) public(mux *http.ServeMux, pattern string, handler http.HandlerFunc) {
	mux.HandleFunc(pattern, handler)

	path := pattern
	if method, rest, ok := strings.Cut(pattern, " "); ok && !strings.HasPrefix(method, "/") {
		path = strings.TrimSpace(rest)
	}

	if path == "" {
		s.logger.Warn("Malformed route pattern, not registering as public",
			slog.String("pattern", pattern))

		return
	}

	middleware.RegisterPublicEndpoint(path)
}

// writeText writes a small plain-text response, logging write failures since
// there is no one else left to report them to.
func (s *Server) writeText(w http.ResponseWriter, r *http.Request, status int, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set(versionHeader, serviceVersion)
	w.WriteHeader(status)

	if _, err := w.Write([]byte(body)); err != nil {
		s.logger.Error("Failed to write response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
}

// handlePing is the liveness probe: the process is up and serving.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	s.writeText(w, r, http.StatusOK, "pong")
}

// handleReady is the readiness probe: 200 when the event store answers a
// health check within the timeout, 503 otherwise so the load balancer stops
// sending traffic.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.store.HealthCheck(ctx); err != nil {
		s.logger.Error("Storage health check failed",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.Any("error", err),
		)

		s.writeText(w, r, http.StatusServiceUnavailable, "storage unavailable")

		return
	}

	s.writeText(w, r, http.StatusOK, "ready")
}

// handleHealth reports service identity and uptime.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var uptime string
	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime).Round(time.Second).String()
	}

	health := HealthStatus{
		Status:      "healthy",
		ServiceName: "xray",
		Version:     serviceVersion,
		Uptime:      uptime,
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(versionHeader, serviceVersion)
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Error("Failed to write health response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.Any("error", err),
		)
	}
}

// handleNotFound answers unknown paths with an RFC 7807 404.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	WriteErrorResponse(w, r, s.logger, NotFound("The requested resource was not found"))
}

// hasJSONContentType accepts "application/json" with or without parameters
// such as charset.
func hasJSONContentType(contentType string) bool {
	return strings.HasPrefix(strings.TrimSpace(contentType), "application/json")
}
