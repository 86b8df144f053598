package apitypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunStatus(t *testing.T) {
	assert.True(t, RunStatusRunning.IsValid())
	assert.True(t, RunStatusSuccess.IsValid())
	assert.True(t, RunStatusError.IsValid())
	assert.False(t, RunStatus("paused").IsValid())
	assert.False(t, RunStatus("").IsValid())

	assert.False(t, RunStatusRunning.IsTerminal())
	assert.True(t, RunStatusSuccess.IsTerminal())
	assert.True(t, RunStatusError.IsTerminal())
}

func TestStepStatus(t *testing.T) {
	assert.True(t, StepStatusRunning.IsValid())
	assert.False(t, StepStatus("skipped").IsValid())

	assert.False(t, StepStatusRunning.IsTerminal())
	assert.True(t, StepStatusError.IsTerminal())
}

func TestStepType(t *testing.T) {
	for _, st := range ValidStepTypes() {
		assert.True(t, st.IsValid(), "expected %q to be valid", st)
	}

	assert.False(t, StepType("magic").IsValid())
	assert.False(t, StepType("").IsValid())
}

func TestDetailLevel(t *testing.T) {
	assert.True(t, DetailSummary.IsValid())
	assert.True(t, DetailFull.IsValid())
	assert.False(t, DetailLevel("verbose").IsValid())
}

func TestPhase(t *testing.T) {
	assert.True(t, PhaseInput.IsValid())
	assert.True(t, PhaseOutput.IsValid())
	assert.False(t, Phase("intermediate").IsValid())
}
