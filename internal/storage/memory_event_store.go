package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/xray-io/xray/internal/ingest"
)

// InMemoryEventStore provides thread-safe in-memory event persistence. It is
// used by tests and by the server in debug mode when no database URL is
// configured.
type InMemoryEventStore struct {
	// runs maps run ids to run rows
	runs map[uuid.UUID]*ingest.Run
	// steps maps step ids to step rows
	steps map[uuid.UUID]*ingest.Step
	// payloads holds payload rows in insertion order
	payloads []ingest.Payload
	// mutex protects concurrent access to all maps
	mutex sync.RWMutex
}

// Compile-time check that InMemoryEventStore implements the domain Store interface.
var _ ingest.Store = (*InMemoryEventStore)(nil)

// NewInMemoryEventStore creates a new thread-safe in-memory event store.
func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{
		runs:  make(map[uuid.UUID]*ingest.Run),
		steps: make(map[uuid.UUID]*ingest.Step),
	}
}

// CreateRun inserts a new run.
func (s *InMemoryEventStore) CreateRun(_ context.Context, run *ingest.Run) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("%w: %s", ingest.ErrRunExists, run.ID)
	}

	// Store a copy to prevent external modification
	runCopy := *run
	s.runs[run.ID] = &runCopy

	return nil
}

// EndRun applies terminal fields to an existing run.
func (s *InMemoryEventStore) EndRun(_ context.Context, id uuid.UUID, end ingest.RunEnd) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	run, exists := s.runs[id]
	if !exists {
		return fmt.Errorf("%w: %s", ingest.ErrRunNotFound, id)
	}

	run.Status = end.Status
	endedAt := end.EndedAt
	run.EndedAt = &endedAt
	run.OutputSummary = end.OutputSummary
	run.ErrorMessage = end.ErrorMessage

	return nil
}

// CreateStep inserts a new step. The parent run must exist.
func (s *InMemoryEventStore) CreateStep(_ context.Context, step *ingest.Step) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.runs[step.RunID]; !exists {
		return fmt.Errorf("%w: %s", ingest.ErrRunNotFound, step.RunID)
	}

	stepCopy := *step
	s.steps[step.ID] = &stepCopy

	return nil
}

// EndStep applies terminal fields to an existing step and returns the step's
// authoritative run id.
func (s *InMemoryEventStore) EndStep(_ context.Context, id uuid.UUID, end ingest.StepEnd) (uuid.UUID, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	step, exists := s.steps[id]
	if !exists {
		return uuid.Nil, fmt.Errorf("%w: %s", ingest.ErrStepNotFound, id)
	}

	step.Status = end.Status
	endedAt := end.EndedAt
	step.EndedAt = &endedAt
	step.DurationMS = end.DurationMS
	step.OutputSummary = end.OutputSummary
	step.OutputCount = end.OutputCount
	step.Reasoning = end.Reasoning
	step.ErrorMessage = end.ErrorMessage

	return step.RunID, nil
}

// CreatePayloads appends payload rows.
func (s *InMemoryEventStore) CreatePayloads(_ context.Context, payloads []ingest.Payload) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.payloads = append(s.payloads, payloads...)

	return nil
}

// GetRun fetches a run by id.
func (s *InMemoryEventStore) GetRun(_ context.Context, id uuid.UUID) (*ingest.Run, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	run, exists := s.runs[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ingest.ErrRunNotFound, id)
	}

	runCopy := *run

	return &runCopy, nil
}

// ListSteps returns the steps of a run ordered by index.
func (s *InMemoryEventStore) ListSteps(_ context.Context, runID uuid.UUID) ([]*ingest.Step, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var steps []*ingest.Step

	for _, step := range s.steps {
		if step.RunID == runID {
			stepCopy := *step
			steps = append(steps, &stepCopy)
		}
	}

	sort.Slice(steps, func(i, j int) bool {
		return steps[i].Index < steps[j].Index
	})

	return steps, nil
}

// Payloads returns a copy of all stored payload rows, for tests.
func (s *InMemoryEventStore) Payloads() []ingest.Payload {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result := make([]ingest.Payload, len(s.payloads))
	copy(result, s.payloads)

	return result
}

// HealthCheck always succeeds for the in-memory store.
func (s *InMemoryEventStore) HealthCheck(_ context.Context) error {
	return nil
}
