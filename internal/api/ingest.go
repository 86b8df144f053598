package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/xray-io/xray/apitypes"
	"github.com/xray-io/xray/internal/api/middleware"
)

// handleIngest handles decision event ingestion.
// POST /ingest - Ingest a batch of run/step lifecycle events
//
// Request validation (returns 4xx):
//   - 405 Method Not Allowed: Only POST is allowed (handled by route pattern)
//   - 415 Unsupported Media Type: Content-Type must be application/json
//   - 413 Payload Too Large: Request body exceeds MaxRequestSize
//   - 422 Unprocessable Entity: Empty body, malformed JSON, a non-array
//     body, or any event violating the schema (unknown event_type, missing
//     fields, bad enum values). Validation failures reject the whole request.
//
// Success response:
//   - 200 OK: Batch accepted and dispatched. Per-event referential failures
//     (unknown run, duplicate run) are reported in the response body, never
//     as an HTTP error.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	correlationID := middleware.GetCorrelationID(r.Context())

	// Content-Type validation
	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		WriteErrorResponse(w, r, s.logger, UnsupportedMediaType("Content-Type must be application/json"))

		return
	}

	// Parse and validate request
	events, problem := s.parseIngestRequest(r)
	if problem != nil {
		WriteErrorResponse(w, r, s.logger, problem)

		return
	}

	// Dispatch events sequentially with per-event error isolation
	response := s.processor.ProcessBatch(r.Context(), events)

	// Send response (always 200 once the batch passed schema validation)
	s.sendIngestResponse(w, r, response)

	// Log success with duration
	duration := time.Since(startTime)
	s.logger.Info("Ingest batch processed",
		slog.String("correlation_id", correlationID),
		slog.Int("processed", response.Processed),
		slog.Int("succeeded", response.Succeeded),
		slog.Int("failed", response.Failed),
		slog.Duration("duration", duration),
	)
}

// parseIngestRequest parses and validates the HTTP request body.
// Returns the decoded events or a ProblemDetail if parsing fails.
//
// Validates:
//   - Request size (optimization for known oversized requests)
//   - Empty body check (better UX than JSON decode error)
//   - JSON well-formedness and array shape (422)
//   - Event schema (422, whole batch)
func (s *Server) parseIngestRequest(r *http.Request) ([]apitypes.Event, *ProblemDetail) {
	// Request size check (optimization: fail fast for known oversized requests)
	// Allow unknown sizes (-1) or 0 (empty, caught later)
	if r.ContentLength > 0 && r.ContentLength > s.config.MaxRequestSize {
		return nil, PayloadTooLarge(
			fmt.Sprintf("Request body exceeds maximum size of %d bytes", s.config.MaxRequestSize),
		)
	}

	// Empty body check (better UX: specific error message)
	if r.ContentLength == 0 {
		return nil, UnprocessableEntity("Request body cannot be empty")
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxRequestSize+1))
	if err != nil {
		return nil, BadRequest("Failed to read request body: " + err.Error())
	}

	if int64(len(body)) > s.config.MaxRequestSize {
		return nil, PayloadTooLarge(
			fmt.Sprintf("Request body exceeds maximum size of %d bytes", s.config.MaxRequestSize),
		)
	}

	if len(body) == 0 {
		return nil, UnprocessableEntity("Request body cannot be empty")
	}

	// Well-formedness first for a precise message; malformed JSON and a
	// non-array body are validation failures like any schema violation.
	var elements []json.RawMessage
	if err := json.Unmarshal(body, &elements); err != nil {
		return nil, UnprocessableEntity("Invalid JSON: request body must be a JSON array of events")
	}

	events, err := apitypes.ParseBatch(body)
	if err != nil {
		return nil, UnprocessableEntity(err.Error())
	}

	return events, nil
}

// sendIngestResponse marshals and sends the ingest response to the client.
//
// The batch passed schema validation, so the status is always 200 OK.
// Per-event failures are carried in the results array.
func (s *Server) sendIngestResponse(
	w http.ResponseWriter,
	r *http.Request,
	response *apitypes.IngestResponse,
) {
	// Marshal response (fail fast before headers)
	data, err := json.Marshal(response)
	if err != nil {
		s.logger.Error("Failed to marshal ingest response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("error", err.Error()),
		)
		WriteErrorResponse(w, r, s.logger, InternalServerError("Failed to encode response"))

		return
	}

	// Write headers and response body
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write ingest response",
			slog.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			slog.String("error", err.Error()),
		)
	}
}
