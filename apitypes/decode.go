package apitypes

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Decode errors. Both indicate a schema violation: the ingest API rejects the
// entire request with 422 when any element fails to decode.
var (
	// ErrInvalidEvent indicates a malformed event: bad JSON, missing
	// required fields, malformed UUIDs, or illegal enum values.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrUnknownEventType indicates an unrecognized event_type discriminator.
	ErrUnknownEventType = errors.New("unknown event_type")
)

// eventEnvelope extracts the discriminator before the full decode.
type eventEnvelope struct {
	EventType string `json:"event_type"`
}

// ParseEvent decodes a single wire event, branching on the event_type
// discriminator, and validates the result.
func ParseEvent(raw []byte) (Event, error) {
	var envelope eventEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	var event Event

	switch envelope.EventType {
	case KindRunStart:
		event = &RunStartEvent{}
	case KindRunEnd:
		event = &RunEndEvent{}
	case KindStepStart:
		event = &StepStartEvent{}
	case KindStepEnd:
		event = &StepEndEvent{}
	case "":
		return nil, fmt.Errorf("%w: event_type is required", ErrInvalidEvent)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, envelope.EventType)
	}

	if err := json.Unmarshal(raw, event); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEvent, envelope.EventType, err)
	}

	if err := event.Validate(); err != nil {
		return nil, err
	}

	return event, nil
}

// ParseBatch decodes a JSON array of wire events. Any malformed element fails
// the whole batch.
func ParseBatch(body []byte) ([]Event, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(body, &elements); err != nil {
		return nil, fmt.Errorf("%w: request body must be a JSON array: %v", ErrInvalidEvent, err)
	}

	events := make([]Event, 0, len(elements))

	for i, raw := range elements {
		event, err := ParseEvent(raw)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}

		events = append(events, event)
	}

	return events, nil
}

// Validate checks required fields and enum values.
func (e *RunStartEvent) Validate() error {
	if e.ID == uuid.Nil {
		return fmt.Errorf("%w: run_start: id is required", ErrInvalidEvent)
	}

	if e.PipelineName == "" {
		return fmt.Errorf("%w: run_start: pipeline_name is required", ErrInvalidEvent)
	}

	if e.Status != RunStatusRunning {
		return fmt.Errorf("%w: run_start: status must be %q, got %q",
			ErrInvalidEvent, RunStatusRunning, e.Status)
	}

	if e.StartedAt.IsZero() {
		return fmt.Errorf("%w: run_start: started_at is required", ErrInvalidEvent)
	}

	return nil
}

// Validate checks required fields and enum values.
func (e *RunEndEvent) Validate() error {
	if e.ID == uuid.Nil {
		return fmt.Errorf("%w: run_end: id is required", ErrInvalidEvent)
	}

	if !e.Status.IsTerminal() {
		return fmt.Errorf("%w: run_end: status must be %q or %q, got %q",
			ErrInvalidEvent, RunStatusSuccess, RunStatusError, e.Status)
	}

	if e.EndedAt.IsZero() {
		return fmt.Errorf("%w: run_end: ended_at is required", ErrInvalidEvent)
	}

	return nil
}

// Validate checks required fields and enum values.
func (e *StepStartEvent) Validate() error {
	if e.ID == uuid.Nil {
		return fmt.Errorf("%w: step_start: id is required", ErrInvalidEvent)
	}

	if e.RunID == uuid.Nil {
		return fmt.Errorf("%w: step_start: run_id is required", ErrInvalidEvent)
	}

	if e.StepName == "" {
		return fmt.Errorf("%w: step_start: step_name is required", ErrInvalidEvent)
	}

	if !e.StepType.IsValid() {
		return fmt.Errorf("%w: step_start: invalid step_type %q", ErrInvalidEvent, e.StepType)
	}

	if e.Index < 0 {
		return fmt.Errorf("%w: step_start: index must be >= 0, got %d", ErrInvalidEvent, e.Index)
	}

	if e.StartedAt.IsZero() {
		return fmt.Errorf("%w: step_start: started_at is required", ErrInvalidEvent)
	}

	return nil
}

// Validate checks required fields and enum values.
func (e *StepEndEvent) Validate() error {
	if e.ID == uuid.Nil {
		return fmt.Errorf("%w: step_end: id is required", ErrInvalidEvent)
	}

	if e.RunID == uuid.Nil {
		return fmt.Errorf("%w: step_end: run_id is required", ErrInvalidEvent)
	}

	if !e.Status.IsTerminal() {
		return fmt.Errorf("%w: step_end: status must be %q or %q, got %q",
			ErrInvalidEvent, StepStatusSuccess, StepStatusError, e.Status)
	}

	if e.EndedAt.IsZero() {
		return fmt.Errorf("%w: step_end: ended_at is required", ErrInvalidEvent)
	}

	if e.DurationMS != nil && *e.DurationMS < 0 {
		return fmt.Errorf("%w: step_end: duration_ms must be >= 0, got %d",
			ErrInvalidEvent, *e.DurationMS)
	}

	return nil
}
