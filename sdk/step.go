package sdk

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xray-io/xray/apitypes"
)

type (
	// Step is one decision/processing stage within a run. It emits
	// step_start on creation and step_end exactly once on End or
	// EndWithError.
	//
	// A step holds only its run's identifier, never the Run itself.
	Step struct {
		id       uuid.UUID
		runID    uuid.UUID
		name     string
		stepType apitypes.StepType
		index    int
		detail   apitypes.DetailLevel
		sink     Sink

		start time.Time // monotonic reading for duration_ms

		mu        sync.Mutex
		ended     bool
		reasoning map[string]any
	}

	// StepOption attaches optional settings to a step.
	StepOption func(*stepSettings)

	stepSettings struct {
		metadata map[string]any
	}
)

// WithStepMetadata attaches a free-form metadata map to the step.
func WithStepMetadata(metadata map[string]any) StepOption {
	return func(s *stepSettings) { s.metadata = metadata }
}

func newStep(
	runID uuid.UUID,
	name string,
	stepType apitypes.StepType,
	index int,
	input any,
	detail apitypes.DetailLevel,
	sink Sink,
	opts ...StepOption,
) *Step {
	settings := &stepSettings{}
	for _, opt := range opts {
		opt(settings)
	}

	if !stepType.IsValid() {
		stepType = apitypes.StepTypeOther
	}

	now := time.Now()

	step := &Step{
		id:       uuid.New(),
		runID:    runID,
		name:     name,
		stepType: stepType,
		index:    index,
		detail:   detail,
		sink:     sink,
		start:    now,
	}

	event := &apitypes.StepStartEvent{
		EventType: apitypes.KindStepStart,
		ID:        step.id,
		RunID:     runID,
		StepName:  name,
		StepType:  stepType,
		Index:     index,
		StartedAt: now.UTC(),
		Metadata:  settings.metadata,
	}

	if input != nil {
		event.InputSummary = Summarize(input)
		event.InputCount = InferCount(input)

		if detail == apitypes.DetailFull {
			event.Payloads = map[string]any{"input": input}
		}
	}

	sink.Send(event)

	return step
}

// ID returns the step identifier.
func (s *Step) ID() uuid.UUID {
	return s.id
}

// Index returns the step's position within its run.
func (s *Step) Index() int {
	return s.index
}

// AttachReasoning merges reasoning into the step's reasoning map.
//
// A map argument merges key by key; a string is stored under the key
// "explanation"; anything else is stored under its summarized form's
// "explanation" key equivalent — callers normally pass maps or strings.
// Reasoning attached after End is dropped.
func (s *Step) AttachReasoning(reasoning any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return
	}

	if s.reasoning == nil {
		s.reasoning = make(map[string]any)
	}

	switch v := reasoning.(type) {
	case string:
		s.reasoning["explanation"] = v
	case map[string]any:
		for key, value := range v {
			s.reasoning[key] = value
		}
	default:
		s.reasoning["explanation"] = Summarize(v)
	}
}

// End emits step_end with status success, the monotonic duration, and the
// summarized output. Idempotent.
func (s *Step) End(output any) {
	s.end(output, apitypes.StepStatusSuccess, "")
}

// EndWithError emits step_end with status error and the formatted error
// message.
func (s *Step) EndWithError(err error) {
	s.end(nil, apitypes.StepStatusError, formatError(err))
}

func (s *Step) end(output any, status apitypes.StepStatus, errorMessage string) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()

		return
	}

	s.ended = true
	reasoning := s.reasoning
	s.mu.Unlock()

	// time.Since reads the monotonic clock: duration_ms is immune to
	// wall-clock adjustments.
	durationMS := time.Since(s.start).Milliseconds()

	event := &apitypes.StepEndEvent{
		EventType:    apitypes.KindStepEnd,
		ID:           s.id,
		RunID:        s.runID,
		Status:       status,
		EndedAt:      time.Now().UTC(),
		DurationMS:   &durationMS,
		Reasoning:    reasoning,
		ErrorMessage: errorMessage,
		// A nil output still gets a null summary so stored rows always
		// carry an output_summary.
		OutputSummary: Summarize(output),
		OutputCount:   InferCount(output),
	}

	if output != nil && s.detail == apitypes.DetailFull {
		event.Payloads = map[string]any{"output": output}
	}

	s.sink.Send(event)
}
