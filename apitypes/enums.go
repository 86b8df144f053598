// Package apitypes defines the wire contracts shared by the X-Ray SDK and
// the ingest API: lifecycle enumerations, the four event kinds, and the
// ingest response envelope.
//
// These are pure data types with JSON tags. The SDK marshals them on the way
// out and the server unmarshals the same types on the way in, so field values
// round-trip exactly.
package apitypes

type (
	// RunStatus is the lifecycle status of a pipeline run.
	// Lifecycle: running -> success | error.
	RunStatus string

	// StepStatus is the lifecycle status of a single step within a run.
	// Lifecycle: running -> success | error.
	StepStatus string

	// StepType categorizes a processing step for filtering and analysis.
	StepType string

	// DetailLevel controls how much payload data the SDK captures.
	DetailLevel string

	// Phase marks whether an externalized payload belongs to the input or
	// output side of its owning run/step.
	Phase string
)

const (
	// RunStatusRunning is the initial status of every run.
	RunStatusRunning RunStatus = "running"

	// RunStatusSuccess is the terminal status of a successful run.
	RunStatusSuccess RunStatus = "success"

	// RunStatusError is the terminal status of a failed run.
	RunStatusError RunStatus = "error"
)

const (
	// StepStatusRunning is the initial status of every step.
	StepStatusRunning StepStatus = "running"

	// StepStatusSuccess is the terminal status of a successful step.
	StepStatusSuccess StepStatus = "success"

	// StepStatusError is the terminal status of a failed step.
	StepStatusError StepStatus = "error"
)

const (
	// StepTypeFilter reduces candidates based on criteria.
	StepTypeFilter StepType = "filter"

	// StepTypeRank orders or scores candidates.
	StepTypeRank StepType = "rank"

	// StepTypeLLM is an LLM API call.
	StepTypeLLM StepType = "llm"

	// StepTypeRetrieval fetches data from external sources.
	StepTypeRetrieval StepType = "retrieval"

	// StepTypeTransform transforms data format or structure.
	StepTypeTransform StepType = "transform"

	// StepTypeOther is an uncategorized step.
	StepTypeOther StepType = "other"
)

const (
	// DetailSummary captures counts and bounded summaries only (default).
	DetailSummary DetailLevel = "summary"

	// DetailFull additionally externalizes complete payloads.
	DetailFull DetailLevel = "full"
)

const (
	// PhaseInput marks payloads captured before execution.
	PhaseInput Phase = "input"

	// PhaseOutput marks payloads captured after execution.
	PhaseOutput Phase = "output"
)

// IsValid checks if the RunStatus is a valid enum value.
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusRunning, RunStatusSuccess, RunStatusError:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the status is a terminal run state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSuccess || s == RunStatusError
}

// String returns the string representation of RunStatus.
func (s RunStatus) String() string {
	return string(s)
}

// IsValid checks if the StepStatus is a valid enum value.
func (s StepStatus) IsValid() bool {
	switch s {
	case StepStatusRunning, StepStatusSuccess, StepStatusError:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the status is a terminal step state.
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusSuccess || s == StepStatusError
}

// String returns the string representation of StepStatus.
func (s StepStatus) String() string {
	return string(s)
}

// ValidStepTypes returns all valid step types.
func ValidStepTypes() []StepType {
	return []StepType{
		StepTypeFilter,
		StepTypeRank,
		StepTypeLLM,
		StepTypeRetrieval,
		StepTypeTransform,
		StepTypeOther,
	}
}

// IsValid checks if the StepType is a valid enum value.
func (t StepType) IsValid() bool {
	for _, valid := range ValidStepTypes() {
		if t == valid {
			return true
		}
	}

	return false
}

// String returns the string representation of StepType.
func (t StepType) String() string {
	return string(t)
}

// IsValid checks if the DetailLevel is a valid enum value.
func (d DetailLevel) IsValid() bool {
	return d == DetailSummary || d == DetailFull
}

// IsValid checks if the Phase is a valid enum value.
func (p Phase) IsValid() bool {
	return p == PhaseInput || p == PhaseOutput
}

// String returns the string representation of Phase.
func (p Phase) String() string {
	return string(p)
}
