package apitypes

import (
	"time"

	"github.com/google/uuid"
)

// Event kind discriminator values carried in the event_type field.
const (
	KindRunStart  = "run_start"
	KindRunEnd    = "run_end"
	KindStepStart = "step_start"
	KindStepEnd   = "step_end"
)

// Event is the common interface of the four wire event kinds.
// ParseEvent returns values of the concrete pointer types below.
type Event interface {
	// Kind returns the event_type discriminator value.
	Kind() string

	// EventID returns the identifier of the run or step the event is about.
	EventID() uuid.UUID

	// Validate checks required fields and enum values.
	Validate() error
}

// RunStartEvent announces the creation of a pipeline run.
type RunStartEvent struct {
	EventType    string         `json:"event_type"`
	ID           uuid.UUID      `json:"id"`
	PipelineName string         `json:"pipeline_name"`
	Status       RunStatus      `json:"status"`
	StartedAt    time.Time      `json:"started_at"`
	InputSummary map[string]any `json:"input_summary,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	RequestID    string         `json:"request_id,omitempty"`
	UserID       string         `json:"user_id,omitempty"`
	Environment  string         `json:"environment,omitempty"`

	// Payloads maps client-assigned ref ids to externalized payload bodies.
	// The wire name starts with an underscore to signal out-of-band data.
	Payloads map[string]any `json:"_payloads,omitempty"`
}

// RunEndEvent marks the termination of a run.
type RunEndEvent struct {
	EventType     string         `json:"event_type"`
	ID            uuid.UUID      `json:"id"`
	Status        RunStatus      `json:"status"`
	EndedAt       time.Time      `json:"ended_at"`
	OutputSummary map[string]any `json:"output_summary,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	Payloads      map[string]any `json:"_payloads,omitempty"`
}

// StepStartEvent announces the creation of a step within a run.
type StepStartEvent struct {
	EventType    string         `json:"event_type"`
	ID           uuid.UUID      `json:"id"`
	RunID        uuid.UUID      `json:"run_id"`
	StepName     string         `json:"step_name"`
	StepType     StepType       `json:"step_type"`
	Index        int            `json:"index"`
	StartedAt    time.Time      `json:"started_at"`
	InputSummary map[string]any `json:"input_summary,omitempty"`
	InputCount   *int           `json:"input_count,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Payloads     map[string]any `json:"_payloads,omitempty"`
}

// StepEndEvent marks the termination of a step.
type StepEndEvent struct {
	EventType     string         `json:"event_type"`
	ID            uuid.UUID      `json:"id"`
	RunID         uuid.UUID      `json:"run_id"`
	Status        StepStatus     `json:"status"`
	EndedAt       time.Time      `json:"ended_at"`
	DurationMS    *int64         `json:"duration_ms,omitempty"`
	OutputSummary map[string]any `json:"output_summary,omitempty"`
	OutputCount   *int           `json:"output_count,omitempty"`
	Reasoning     map[string]any `json:"reasoning,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	Payloads      map[string]any `json:"_payloads,omitempty"`
}

// Kind returns the event_type discriminator value.
func (e *RunStartEvent) Kind() string { return KindRunStart }

// EventID returns the run identifier.
func (e *RunStartEvent) EventID() uuid.UUID { return e.ID }

// Kind returns the event_type discriminator value.
func (e *RunEndEvent) Kind() string { return KindRunEnd }

// EventID returns the run identifier.
func (e *RunEndEvent) EventID() uuid.UUID { return e.ID }

// Kind returns the event_type discriminator value.
func (e *StepStartEvent) Kind() string { return KindStepStart }

// EventID returns the step identifier.
func (e *StepStartEvent) EventID() uuid.UUID { return e.ID }

// Kind returns the event_type discriminator value.
func (e *StepEndEvent) Kind() string { return KindStepEnd }

// EventID returns the step identifier.
func (e *StepEndEvent) EventID() uuid.UUID { return e.ID }

// EventResult reports the per-event outcome of an ingest request.
type EventResult struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// IngestResponse is the response body of POST /ingest. It is returned with
// HTTP 200 on any schema-valid request, even when individual events failed.
type IngestResponse struct {
	Processed int           `json:"processed"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Results   []EventResult `json:"results"`
}
