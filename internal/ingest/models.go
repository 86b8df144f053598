// Package ingest provides the X-Ray domain models, the persistence interface,
// and the event processor that applies ingested events to a store.
//
// This package defines the Store interface which represents what the domain
// needs for event persistence. Concrete implementations (PostgreSQL,
// in-memory) live in the internal/storage package.
package ingest

import (
	"time"

	"github.com/google/uuid"

	"github.com/xray-io/xray/apitypes"
)

// Run is a persisted pipeline run.
type Run struct {
	ID            uuid.UUID
	PipelineName  string
	Status        apitypes.RunStatus
	StartedAt     time.Time
	EndedAt       *time.Time
	InputSummary  map[string]any
	OutputSummary map[string]any
	Metadata      map[string]any
	RequestID     string
	UserID        string
	Environment   string
	ErrorMessage  string
}

// RunEnd carries the fields applied to a run on termination.
type RunEnd struct {
	Status        apitypes.RunStatus
	EndedAt       time.Time
	OutputSummary map[string]any
	ErrorMessage  string
}

// Step is a persisted step within a run.
type Step struct {
	ID            uuid.UUID
	RunID         uuid.UUID
	StepName      string
	StepType      apitypes.StepType
	Index         int
	Status        apitypes.StepStatus
	StartedAt     time.Time
	EndedAt       *time.Time
	DurationMS    *int64
	InputSummary  map[string]any
	OutputSummary map[string]any
	InputCount    *int
	OutputCount   *int
	Reasoning     map[string]any
	Metadata      map[string]any
	ErrorMessage  string
}

// StepEnd carries the fields applied to a step on termination.
type StepEnd struct {
	Status        apitypes.StepStatus
	EndedAt       time.Time
	DurationMS    *int64
	OutputSummary map[string]any
	OutputCount   *int
	Reasoning     map[string]any
	ErrorMessage  string
}

// Payload is an externalized blob referenced by a summary. StepID is nil for
// run-level payloads.
type Payload struct {
	RefID  string
	RunID  uuid.UUID
	StepID *uuid.UUID
	Phase  apitypes.Phase
	Body   any
}
