package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xray-io/xray/apitypes"
)

// Processor applies decoded wire events to a Store. It is shared by the HTTP
// ingest handler and the Kafka consumer so both paths have identical
// semantics: sequential dispatch, per-event error isolation, best-effort
// payload persistence.
type Processor struct {
	store  Store
	logger *slog.Logger
}

// NewProcessor creates a Processor backed by the given store.
func NewProcessor(store Store, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Processor{store: store, logger: logger}
}

// ProcessBatch dispatches events in the order received. A failing event is
// recorded in its result and processing continues with the next event; the
// response always covers every event in the batch.
func (p *Processor) ProcessBatch(ctx context.Context, events []apitypes.Event) *apitypes.IngestResponse {
	response := &apitypes.IngestResponse{
		Processed: len(events),
		Results:   make([]apitypes.EventResult, 0, len(events)),
	}

	for _, event := range events {
		result := apitypes.EventResult{
			ID:        event.EventID().String(),
			EventType: event.Kind(),
		}

		if err := p.ProcessEvent(ctx, event); err != nil {
			result.Error = err.Error()
			response.Failed++

			p.logger.Error("event processing failed",
				"event_type", event.Kind(),
				"event_id", event.EventID(),
				"error", err,
			)
		} else {
			result.Success = true
			response.Succeeded++
		}

		response.Results = append(response.Results, result)
	}

	return response
}

// ProcessEvent applies a single event to the store.
func (p *Processor) ProcessEvent(ctx context.Context, event apitypes.Event) error {
	switch e := event.(type) {
	case *apitypes.RunStartEvent:
		return p.handleRunStart(ctx, e)
	case *apitypes.RunEndEvent:
		return p.handleRunEnd(ctx, e)
	case *apitypes.StepStartEvent:
		return p.handleStepStart(ctx, e)
	case *apitypes.StepEndEvent:
		return p.handleStepEnd(ctx, e)
	default:
		return fmt.Errorf("unsupported event type %T", event)
	}
}

func (p *Processor) handleRunStart(ctx context.Context, e *apitypes.RunStartEvent) error {
	run := &Run{
		ID:           e.ID,
		PipelineName: e.PipelineName,
		Status:       e.Status,
		StartedAt:    e.StartedAt,
		InputSummary: e.InputSummary,
		Metadata:     e.Metadata,
		RequestID:    e.RequestID,
		UserID:       e.UserID,
		Environment:  e.Environment,
	}

	if err := p.store.CreateRun(ctx, run); err != nil {
		if errors.Is(err, ErrRunExists) {
			return fmt.Errorf("Run %s already exists", e.ID)
		}

		return err
	}

	p.storePayloads(ctx, payloadRows(e.ID, nil, apitypes.PhaseInput, e.Payloads))

	return nil
}

func (p *Processor) handleRunEnd(ctx context.Context, e *apitypes.RunEndEvent) error {
	end := RunEnd{
		Status:        e.Status,
		EndedAt:       e.EndedAt,
		OutputSummary: e.OutputSummary,
		ErrorMessage:  e.ErrorMessage,
	}

	if err := p.store.EndRun(ctx, e.ID, end); err != nil {
		if errors.Is(err, ErrRunNotFound) {
			return fmt.Errorf("Run %s not found", e.ID)
		}

		return err
	}

	p.storePayloads(ctx, payloadRows(e.ID, nil, apitypes.PhaseOutput, e.Payloads))

	return nil
}

func (p *Processor) handleStepStart(ctx context.Context, e *apitypes.StepStartEvent) error {
	step := &Step{
		ID:           e.ID,
		RunID:        e.RunID,
		StepName:     e.StepName,
		StepType:     e.StepType,
		Index:        e.Index,
		Status:       apitypes.StepStatusRunning,
		StartedAt:    e.StartedAt,
		InputSummary: e.InputSummary,
		InputCount:   e.InputCount,
		Metadata:     e.Metadata,
	}

	if err := p.store.CreateStep(ctx, step); err != nil {
		if errors.Is(err, ErrRunNotFound) {
			return fmt.Errorf("Run %s not found", e.RunID)
		}

		return err
	}

	p.storePayloads(ctx, payloadRows(e.RunID, &e.ID, apitypes.PhaseInput, e.Payloads))

	return nil
}

func (p *Processor) handleStepEnd(ctx context.Context, e *apitypes.StepEndEvent) error {
	end := StepEnd{
		Status:        e.Status,
		EndedAt:       e.EndedAt,
		DurationMS:    e.DurationMS,
		OutputSummary: e.OutputSummary,
		OutputCount:   e.OutputCount,
		Reasoning:     e.Reasoning,
		ErrorMessage:  e.ErrorMessage,
	}

	// The store returns the step's authoritative run id; payload rows use it
	// instead of the client-supplied run_id.
	runID, err := p.store.EndStep(ctx, e.ID, end)
	if err != nil {
		if errors.Is(err, ErrStepNotFound) {
			return fmt.Errorf("Step %s not found", e.ID)
		}

		return err
	}

	p.storePayloads(ctx, payloadRows(runID, &e.ID, apitypes.PhaseOutput, e.Payloads))

	return nil
}

// storePayloads inserts payload rows after the owning event committed.
// Failures are logged and swallowed: the run/step row already exists and a
// lost payload must not fail the event.
func (p *Processor) storePayloads(ctx context.Context, rows []Payload) {
	if len(rows) == 0 {
		return
	}

	if err := p.store.CreatePayloads(ctx, rows); err != nil {
		stepID := "none"
		if rows[0].StepID != nil {
			stepID = rows[0].StepID.String()
		}

		p.logger.Error("payload persistence failed",
			"run_id", rows[0].RunID,
			"step_id", stepID,
			"phase", rows[0].Phase,
			"count", len(rows),
			"error", err,
		)
	}
}
