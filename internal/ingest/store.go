package ingest

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/xray-io/xray/apitypes"
)

// Storage errors. Store implementations wrap these so the processor can
// classify failures with errors.Is regardless of the backing store.
var (
	// ErrRunNotFound indicates an end or step event referenced a run that
	// was never created (or was deleted).
	ErrRunNotFound = errors.New("run not found")

	// ErrStepNotFound indicates a step_end event referenced an unknown step.
	ErrStepNotFound = errors.New("step not found")

	// ErrRunExists indicates a run_start event reused an existing run id.
	ErrRunExists = errors.New("run already exists")
)

// Store defines the interface for X-Ray event persistence.
//
// The domain package defines this interface to specify what it needs for
// event storage, without depending on concrete implementations. Each method
// is a single atomic operation; the processor calls them one event at a time
// so that one failing event never poisons its neighbors.
type Store interface {
	// CreateRun inserts a new run. A duplicate run id returns ErrRunExists.
	CreateRun(ctx context.Context, run *Run) error

	// EndRun atomically applies terminal status, ended_at, output summary
	// and error message to an existing run. Returns ErrRunNotFound if no
	// row exists.
	EndRun(ctx context.Context, id uuid.UUID, end RunEnd) error

	// CreateStep inserts a new step. The run must exist: a missing parent
	// returns ErrRunNotFound.
	CreateStep(ctx context.Context, step *Step) error

	// EndStep atomically applies terminal fields to an existing step and
	// returns the step's authoritative run id, which callers must use in
	// place of any client-supplied run id when recording payloads.
	// Returns uuid.Nil and ErrStepNotFound if no row exists.
	EndStep(ctx context.Context, id uuid.UUID, end StepEnd) (uuid.UUID, error)

	// CreatePayloads inserts one row per payload. The owning run/step is
	// already committed when this is called; callers treat failures as
	// non-fatal.
	CreatePayloads(ctx context.Context, payloads []Payload) error

	// GetRun fetches a run by id. Returns ErrRunNotFound if no row exists.
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)

	// ListSteps returns the steps of a run ordered by index.
	ListSteps(ctx context.Context, runID uuid.UUID) ([]*Step, error)

	// HealthCheck verifies the storage backend is ready to serve requests.
	// Used by the /ready endpoint.
	HealthCheck(ctx context.Context) error
}

// payloadRows converts a wire _payloads map into payload rows for a run or
// step. Returns nil when the event carried no payloads.
func payloadRows(runID uuid.UUID, stepID *uuid.UUID, phase apitypes.Phase, wire map[string]any) []Payload {
	if len(wire) == 0 {
		return nil
	}

	rows := make([]Payload, 0, len(wire))
	for refID, body := range wire {
		rows = append(rows, Payload{
			RefID:  refID,
			RunID:  runID,
			StepID: stepID,
			Phase:  phase,
			Body:   body,
		})
	}

	return rows
}
