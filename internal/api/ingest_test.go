package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xray-io/xray/apitypes"
	"github.com/xray-io/xray/internal/api/middleware"
	"github.com/xray-io/xray/internal/storage"
)

// newTestServer builds a server backed by the in-memory event store.
// Auth and rate limiting are disabled unless an authenticator is provided.
func newTestServer(t *testing.T, auth *middleware.Authenticator) (*Server, *storage.InMemoryEventStore) {
	t.Helper()

	cfg := LoadServerConfig()
	store := storage.NewInMemoryEventStore()

	return NewServer(cfg, store, auth, nil), store
}

func postIngest(t *testing.T, s *Server, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewReader(body))
	req.Header.Set("Content-Type", contentType)

	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)

	return rec
}

func runLifecycleBatch(runID, stepID uuid.UUID) []byte {
	started := time.Now().UTC().Truncate(time.Second)
	ended := started.Add(2 * time.Second)

	batch := fmt.Sprintf(`[
		{"event_type":"run_start","id":%q,"pipeline_name":"checkout-recs","status":"running","started_at":%q},
		{"event_type":"step_start","id":%q,"run_id":%q,"step_name":"filter","step_type":"filter","index":0,"started_at":%q},
		{"event_type":"step_end","id":%q,"run_id":%q,"status":"success","ended_at":%q},
		{"event_type":"run_end","id":%q,"status":"success","ended_at":%q}
	]`,
		runID, started.Format(time.RFC3339),
		stepID, runID, started.Format(time.RFC3339),
		stepID, runID, ended.Format(time.RFC3339),
		runID, ended.Format(time.RFC3339),
	)

	return []byte(batch)
}

func TestHandleIngestLifecycle(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, store := newTestServer(t, nil)
	runID := uuid.New()
	stepID := uuid.New()

	rec := postIngest(t, server, runLifecycleBatch(runID, stepID), "application/json")

	require.Equal(t, http.StatusOK, rec.Code)

	var response apitypes.IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))

	assert.Equal(t, 4, response.Processed)
	assert.Equal(t, 4, response.Succeeded)
	assert.Equal(t, 0, response.Failed)
	require.Len(t, response.Results, 4)

	run, err := store.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, apitypes.RunStatusSuccess, run.Status)
}

func TestHandleIngestPerEventFailure(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, _ := newTestServer(t, nil)
	runID := uuid.New()

	// run_end for a run that was never started: referential failure,
	// reported per event, not as an HTTP error.
	body := fmt.Sprintf(`[{"event_type":"run_end","id":%q,"status":"error","ended_at":%q}]`,
		runID, time.Now().UTC().Format(time.RFC3339))

	rec := postIngest(t, server, []byte(body), "application/json")

	require.Equal(t, http.StatusOK, rec.Code)

	var response apitypes.IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))

	assert.Equal(t, 1, response.Processed)
	assert.Equal(t, 0, response.Succeeded)
	assert.Equal(t, 1, response.Failed)
	require.Len(t, response.Results, 1)
	assert.False(t, response.Results[0].Success)
	assert.Equal(t, fmt.Sprintf("Run %s not found", runID), response.Results[0].Error)
}

func TestHandleIngestEmptyArray(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, _ := newTestServer(t, nil)

	rec := postIngest(t, server, []byte(`[]`), "application/json")

	require.Equal(t, http.StatusOK, rec.Code)

	var response apitypes.IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, 0, response.Processed)
	assert.Empty(t, response.Results)
}

func TestHandleIngestRequestValidation(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name        string
		body        string
		contentType string
		wantStatus  int
	}{
		{
			name:        "wrong content type",
			body:        `[]`,
			contentType: "text/plain",
			wantStatus:  http.StatusUnsupportedMediaType,
		},
		{
			name:        "empty body",
			body:        "",
			contentType: "application/json",
			wantStatus:  http.StatusUnprocessableEntity,
		},
		{
			name:        "malformed JSON",
			body:        `[{"event_type":`,
			contentType: "application/json",
			wantStatus:  http.StatusUnprocessableEntity,
		},
		{
			name:        "object instead of array",
			body:        `{"event_type":"run_start"}`,
			contentType: "application/json",
			wantStatus:  http.StatusUnprocessableEntity,
		},
		{
			name:        "unknown event type rejects whole batch",
			body:        `[{"event_type":"run_pause","id":"5ad601c5-0a69-4d8e-9c80-6ee1bd36a218"}]`,
			contentType: "application/json",
			wantStatus:  http.StatusUnprocessableEntity,
		},
		{
			name: "schema violation rejects whole batch",
			body: `[{"event_type":"run_start","id":"5ad601c5-0a69-4d8e-9c80-6ee1bd36a218",` +
				`"pipeline_name":"p","status":"success","started_at":"2026-01-02T15:04:05Z"}]`,
			contentType: "application/json",
			wantStatus:  http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newTestServer(t, nil)

			rec := postIngest(t, server, []byte(tt.body), tt.contentType)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, contentTypeProblemJSON, rec.Header().Get("Content-Type"))

			var problem ProblemDetail
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
			assert.Equal(t, tt.wantStatus, problem.Status)
			assert.NotEmpty(t, problem.CorrelationID)
		})
	}
}

func TestHandleIngestSchemaViolationStoresNothing(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, store := newTestServer(t, nil)
	runID := uuid.New()

	// Valid run_start followed by an invalid event: the whole batch is
	// rejected and the valid event is not applied.
	body := fmt.Sprintf(`[
		{"event_type":"run_start","id":%q,"pipeline_name":"p","status":"running","started_at":"2026-01-02T15:04:05Z"},
		{"event_type":"bogus"}
	]`, runID)

	rec := postIngest(t, server, []byte(body), "application/json")

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	_, err := store.GetRun(context.Background(), runID)
	assert.Error(t, err)
}

func TestHandleIngestPayloadTooLarge(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg := LoadServerConfig()
	cfg.MaxRequestSize = 64

	server := NewServer(cfg, storage.NewInMemoryEventStore(), nil, nil)

	body := bytes.Repeat([]byte("x"), 128)
	rec := postIngest(t, server, body, "application/json")

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHandleIngestRequiresAPIKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	auth := middleware.NewAuthenticator(&middleware.AuthConfig{Keys: []string{"test-key"}})
	server, _ := newTestServer(t, auth)

	// Missing key
	rec := postIngest(t, server, []byte(`[]`), "application/json")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid bearer key
	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewReader([]byte(`[]`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer test-key")

	rec = httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health probes bypass auth
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec = httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}

// failingStore reports an unhealthy storage backend.
type failingStore struct {
	*storage.InMemoryEventStore
}

func (f *failingStore) HealthCheck(_ context.Context) error {
	return errors.New("connection refused")
}

func TestHandleReady(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("healthy store", func(t *testing.T) {
		server, _ := newTestServer(t, nil)

		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		rec := httptest.NewRecorder()
		server.httpServer.Handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ready", rec.Body.String())
	})

	t.Run("unhealthy store", func(t *testing.T) {
		store := &failingStore{InMemoryEventStore: storage.NewInMemoryEventStore()}
		server := NewServer(LoadServerConfig(), store, nil, nil)

		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		rec := httptest.NewRecorder()
		server.httpServer.Handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "storage unavailable", rec.Body.String())
	})
}

func TestHandleHealth(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var health HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "xray", health.ServiceName)
}

func TestHandleNotFound(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	server, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	server.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, contentTypeProblemJSON, rec.Header().Get("Content-Type"))
}
