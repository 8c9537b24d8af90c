package reducer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varflow/varflow/pkg/schema"
)

func buildWorkflow() schema.Workflow {
	wf := NewWorkflow("demo")
	wf.Steps = []schema.Step{
		{ID: "a", SequenceNumber: 0, Type: schema.StepTypeAction, Tool: &schema.ToolRef{ID: "t1"}},
		{ID: "b", SequenceNumber: 1, Type: schema.StepTypeEvaluation, Evaluation: &schema.EvaluationConfig{}},
		{ID: "c", SequenceNumber: 2, Type: schema.StepTypeAction, Tool: &schema.ToolRef{ID: "t2"}},
	}
	wf.State = []schema.Variable{
		NewVariable("topic", schema.ValueSchema{Type: schema.TypeString}, schema.IOInput),
		NewVariable("result", schema.ValueSchema{Type: schema.TypeString}, schema.IOOutput),
	}
	wf.State[0].Value = "go"
	wf.State[1].Value = "text"
	wf.Jumps = map[string]int{"b": 2}
	return wf
}

func TestApplyAddStep(t *testing.T) {
	wf := buildWorkflow()
	step := NewActionStep("new", &schema.ToolRef{ID: "t3"})

	next, err := Apply(wf, Action{Type: ActionAddStep, Step: &step})
	require.NoError(t, err)

	assert.Len(t, next.Steps, 4)
	assert.Equal(t, 3, next.Steps[3].SequenceNumber)
	assert.Len(t, wf.Steps, 3)
}

func TestApplyAddStepDuplicateID(t *testing.T) {
	wf := buildWorkflow()
	dup := schema.Step{ID: "a", Type: schema.StepTypeAction}

	next, err := Apply(wf, Action{Type: ActionAddStep, Step: &dup})
	require.Error(t, err)
	assert.Equal(t, wf, next)
}

func TestApplyRemoveStepRenumbersAndDropsCounter(t *testing.T) {
	wf := buildWorkflow()

	next, err := Apply(wf, Action{Type: ActionRemoveStep, StepID: "b"})
	require.NoError(t, err)

	require.Len(t, next.Steps, 2)
	assert.Equal(t, "a", next.Steps[0].ID)
	assert.Equal(t, "c", next.Steps[1].ID)
	assert.Equal(t, 1, next.Steps[1].SequenceNumber)
	assert.NotContains(t, next.Jumps, "b")
	// Original survives.
	assert.Len(t, wf.Steps, 3)
	assert.Equal(t, 2, wf.Jumps["b"])
}

func TestApplyMoveStep(t *testing.T) {
	wf := buildWorkflow()

	next, err := Apply(wf, Action{Type: ActionMoveStep, StepID: "c", ToIndex: 0})
	require.NoError(t, err)

	assert.Equal(t, []string{"c", "a", "b"}, stepIDs(next.Steps))
	for i, s := range next.Steps {
		assert.Equal(t, i, s.SequenceNumber)
	}
}

func TestApplyMoveStepClampsIndex(t *testing.T) {
	wf := buildWorkflow()

	next, err := Apply(wf, Action{Type: ActionMoveStep, StepID: "a", ToIndex: 99})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a"}, stepIDs(next.Steps))
}

func TestApplySetTool(t *testing.T) {
	wf := buildWorkflow()

	next, err := Apply(wf, Action{Type: ActionSetTool, StepID: "a", Tool: &schema.ToolRef{ID: "replacement"}})
	require.NoError(t, err)
	assert.Equal(t, "replacement", next.Steps[0].Tool.ID)
	assert.Equal(t, "t1", wf.Steps[0].Tool.ID)
}

func TestApplySetToolRejectsEvaluationStep(t *testing.T) {
	wf := buildWorkflow()

	next, err := Apply(wf, Action{Type: ActionSetTool, StepID: "b", Tool: &schema.ToolRef{ID: "x"}})
	require.Error(t, err)
	assert.Equal(t, wf, next)
}

func TestApplyBindParameter(t *testing.T) {
	wf := buildWorkflow()

	next, err := Apply(wf, Action{Type: ActionBindParameter, StepID: "a", Parameter: "subject", Path: "topic"})
	require.NoError(t, err)
	assert.Equal(t, "topic", next.Steps[0].ParameterMappings["subject"])

	// Empty path unbinds.
	next, err = Apply(next, Action{Type: ActionBindParameter, StepID: "a", Parameter: "subject"})
	require.NoError(t, err)
	assert.NotContains(t, next.Steps[0].ParameterMappings, "subject")
}

func TestApplyBindOutput(t *testing.T) {
	wf := buildWorkflow()

	next, err := Apply(wf, Action{
		Type: ActionBindOutput, StepID: "a", Output: "summary",
		Mapping: &schema.OutputMapping{Variable: "result", Operation: schema.OperationAppend},
	})
	require.NoError(t, err)
	assert.Equal(t, schema.OperationAppend, next.Steps[0].OutputMappings["summary"].Operation)

	next, err = Apply(next, Action{Type: ActionBindOutput, StepID: "a", Output: "summary"})
	require.NoError(t, err)
	assert.NotContains(t, next.Steps[0].OutputMappings, "summary")
}

func TestApplySetStepTypeClearsIrrelevantHalf(t *testing.T) {
	wf := buildWorkflow()

	next, err := Apply(wf, Action{Type: ActionSetStepType, StepID: "a", StepType: schema.StepTypeEvaluation})
	require.NoError(t, err)
	step := next.Steps[0]
	assert.Nil(t, step.Tool)
	require.NotNil(t, step.Evaluation)

	next, err = Apply(next, Action{Type: ActionSetStepType, StepID: "b", StepType: schema.StepTypeAction})
	require.NoError(t, err)
	assert.Nil(t, next.Steps[1].Evaluation)
	assert.NotContains(t, next.Jumps, "b")
}

func TestApplyReplaceState(t *testing.T) {
	wf := buildWorkflow()

	next, err := Apply(wf, Action{Type: ActionReplaceState, State: []schema.Variable{
		{Name: "fresh", Schema: schema.ValueSchema{Type: schema.TypeString}},
	}})
	require.NoError(t, err)
	require.Len(t, next.State, 1)
	assert.Equal(t, "fresh", next.State[0].Name)
}

func TestApplyReplaceStateRejectsDuplicates(t *testing.T) {
	wf := buildWorkflow()

	next, err := Apply(wf, Action{Type: ActionReplaceState, State: []schema.Variable{
		{Name: "dup"}, {Name: "dup"},
	}})
	require.Error(t, err)

	ferr, ok := err.(*schema.FlowError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeConflict, ferr.Code)
	assert.Equal(t, wf, next)
}

func TestApplyResetValues(t *testing.T) {
	wf := buildWorkflow()
	wf.Status = schema.WorkflowStatusCompleted

	next, err := Apply(wf, Action{Type: ActionResetValues})
	require.NoError(t, err)

	for _, v := range next.State {
		assert.Nil(t, v.Value)
	}
	assert.Len(t, next.State, 2)
	// Counters survive a values-only reset.
	assert.Equal(t, 2, next.Jumps["b"])
	assert.Equal(t, schema.WorkflowStatusDraft, next.Status)
}

func TestApplyResetAll(t *testing.T) {
	wf := buildWorkflow()
	wf.State = append(wf.State, schema.Variable{
		Name: "eval_b1234567", IOType: schema.IOEvaluation,
		Schema: schema.ValueSchema{Type: schema.TypeObject},
		Value:  map[string]any{"next_action": "continue"},
	})

	next, err := Apply(wf, Action{Type: ActionResetAll})
	require.NoError(t, err)

	assert.Len(t, next.State, 2)
	assert.Nil(t, next.Jumps)
	for _, v := range next.State {
		assert.NotEqual(t, schema.IOEvaluation, v.IOType)
	}
}

func TestApplyResetAllRetainCounters(t *testing.T) {
	wf := buildWorkflow()

	next, err := Apply(wf, Action{Type: ActionResetAll, RetainCounters: true})
	require.NoError(t, err)
	assert.Equal(t, 2, next.Jumps["b"])
}

func TestApplyUnknownAction(t *testing.T) {
	wf := buildWorkflow()
	next, err := Apply(wf, Action{Type: "explode"})
	require.Error(t, err)
	assert.Equal(t, wf, next)
}

func stepIDs(steps []schema.Step) []string {
	ids := make([]string, len(steps))
	for i, s := range steps {
		ids[i] = s.ID
	}
	return ids
}
