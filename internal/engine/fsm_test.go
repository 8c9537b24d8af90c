package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varflow/varflow/pkg/schema"
)

func TestStepFSMValidTransitions(t *testing.T) {
	fsm := NewStepFSM()

	require.NoError(t, fsm.Transition("s1", schema.StepStatusPending, schema.StepStatusRunning))
	require.NoError(t, fsm.Transition("s1", schema.StepStatusRunning, schema.StepStatusCompleted))
	require.NoError(t, fsm.Transition("s1", schema.StepStatusRunning, schema.StepStatusFailed))
}

func TestStepFSMInvalidTransitions(t *testing.T) {
	fsm := NewStepFSM()

	tests := []struct {
		from, to schema.StepStatus
	}{
		{schema.StepStatusPending, schema.StepStatusCompleted},
		{schema.StepStatusPending, schema.StepStatusFailed},
		{schema.StepStatusCompleted, schema.StepStatusRunning},
		{schema.StepStatusFailed, schema.StepStatusPending},
		{schema.StepStatus("unknown"), schema.StepStatusRunning},
	}

	for _, tt := range tests {
		err := fsm.Transition("s1", tt.from, tt.to)
		require.Error(t, err, "%s -> %s", tt.from, tt.to)

		ferr, ok := err.(*schema.FlowError)
		require.True(t, ok)
		assert.Equal(t, schema.ErrCodeInvalidTransition, ferr.Code)
		assert.Equal(t, "s1", ferr.StepID)
	}
}

func TestStepFSMHooks(t *testing.T) {
	fsm := NewStepFSM()

	var calls []string
	fsm.OnBefore(schema.StepStatusPending, schema.StepStatusRunning, func(from, to string) error {
		calls = append(calls, "before:"+from+"->"+to)
		return nil
	})
	fsm.OnAfter(schema.StepStatusPending, schema.StepStatusRunning, func(from, to string) error {
		calls = append(calls, "after:"+from+"->"+to)
		return nil
	})

	require.NoError(t, fsm.Transition("s1", schema.StepStatusPending, schema.StepStatusRunning))
	assert.Equal(t, []string{"before:pending->running", "after:pending->running"}, calls)
}

func TestStepFSMBeforeHookFailureAborts(t *testing.T) {
	fsm := NewStepFSM()
	fsm.OnBefore(schema.StepStatusPending, schema.StepStatusRunning, func(string, string) error {
		return errors.New("denied")
	})

	err := fsm.Transition("s1", schema.StepStatusPending, schema.StepStatusRunning)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(schema.StepStatusCompleted))
	assert.True(t, IsTerminal(schema.StepStatusFailed))
	assert.False(t, IsTerminal(schema.StepStatusPending))
	assert.False(t, IsTerminal(schema.StepStatusRunning))
}
