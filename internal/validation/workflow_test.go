package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varflow/varflow/pkg/schema"
)

func intPtr(i int) *int { return &i }

func validWorkflow() *schema.Workflow {
	return &schema.Workflow{
		ID:     "wf-1",
		Name:   "demo",
		Status: schema.WorkflowStatusDraft,
		State: []schema.Variable{
			{ID: "v1", Name: "topic", Schema: schema.ValueSchema{Type: schema.TypeString}, IOType: schema.IOInput},
			{ID: "v2", Name: "summary", Schema: schema.ValueSchema{Type: schema.TypeString}, IOType: schema.IOOutput},
		},
		Steps: []schema.Step{
			{
				ID: "s1", SequenceNumber: 0, Type: schema.StepTypeAction,
				Tool:              &schema.ToolRef{ID: "tool-1"},
				ParameterMappings: map[string]string{"subject": "topic"},
				OutputMappings:    map[string]schema.OutputMapping{"text": {Variable: "summary"}},
			},
			{
				ID: "s2", SequenceNumber: 1, Type: schema.StepTypeEvaluation,
				Evaluation: &schema.EvaluationConfig{
					Conditions: []schema.Condition{
						{Variable: "summary", Operator: schema.OpContains, Value: "done", TargetStepIndex: intPtr(0), Action: schema.ActionJump},
					},
				},
			},
		},
	}
}

func newValidator(t *testing.T) *WorkflowValidator {
	t.Helper()
	v, err := NewWorkflowValidator()
	require.NoError(t, err)
	return v
}

func TestValidateAcceptsWellFormedWorkflow(t *testing.T) {
	v := newValidator(t)

	result := v.Validate(validWorkflow())
	assert.True(t, result.Valid(), "unexpected errors: %+v", result.Errors)
}

func TestValidateNilWorkflow(t *testing.T) {
	v := newValidator(t)
	result := v.Validate(nil)
	assert.False(t, result.Valid())
}

func TestValidateDuplicateVariableNames(t *testing.T) {
	v := newValidator(t)
	wf := validWorkflow()
	wf.State = append(wf.State, schema.Variable{
		ID: "v3", Name: "topic", Schema: schema.ValueSchema{Type: schema.TypeString}, IOType: schema.IOInput,
	})

	result := v.Validate(wf)
	require.False(t, result.Valid())
	assert.Equal(t, CodeDuplicateVariable, result.Errors[0].Code)
}

func TestValidateDuplicateStepIDs(t *testing.T) {
	v := newValidator(t)
	wf := validWorkflow()
	wf.Steps = append(wf.Steps, schema.Step{
		ID: "s1", SequenceNumber: 2, Type: schema.StepTypeAction, Tool: &schema.ToolRef{ID: "t"},
	})

	result := v.Validate(wf)
	require.False(t, result.Valid())
	assert.Equal(t, CodeDuplicateStep, result.Errors[0].Code)
}

func TestValidateSequenceMismatch(t *testing.T) {
	v := newValidator(t)
	wf := validWorkflow()
	wf.Steps[1].SequenceNumber = 7

	result := v.Validate(wf)
	require.False(t, result.Valid())
	assert.Equal(t, CodeSequenceMismatch, result.Errors[0].Code)
}

func TestValidateStepTypeConfigConsistency(t *testing.T) {
	v := newValidator(t)

	t.Run("action with evaluation config", func(t *testing.T) {
		wf := validWorkflow()
		wf.Steps[0].Evaluation = &schema.EvaluationConfig{}
		result := v.Validate(wf)
		assert.False(t, result.Valid())
	})

	t.Run("evaluation with tool", func(t *testing.T) {
		wf := validWorkflow()
		wf.Steps[1].Tool = &schema.ToolRef{ID: "t"}
		result := v.Validate(wf)
		assert.False(t, result.Valid())
	})

	t.Run("evaluation without config", func(t *testing.T) {
		wf := validWorkflow()
		wf.Steps[1].Evaluation = nil
		result := v.Validate(wf)
		assert.False(t, result.Valid())
	})

	t.Run("action without tool warns only", func(t *testing.T) {
		wf := validWorkflow()
		wf.Steps[0].Tool = nil
		result := v.Validate(wf)
		assert.True(t, result.Valid())
		assert.NotEmpty(t, result.Warnings)
	})
}

func TestValidateJumpTargets(t *testing.T) {
	v := newValidator(t)

	t.Run("out of range", func(t *testing.T) {
		wf := validWorkflow()
		wf.Steps[1].Evaluation.Conditions[0].TargetStepIndex = intPtr(9)
		result := v.Validate(wf)
		require.False(t, result.Valid())
		assert.Equal(t, CodeBadJumpTarget, result.Errors[0].Code)
	})

	t.Run("jump without target", func(t *testing.T) {
		wf := validWorkflow()
		wf.Steps[1].Evaluation.Conditions[0].TargetStepIndex = nil
		result := v.Validate(wf)
		require.False(t, result.Valid())
		assert.Equal(t, CodeBadJumpTarget, result.Errors[0].Code)
	})
}

func TestValidateConditionShape(t *testing.T) {
	v := newValidator(t)
	wf := validWorkflow()
	wf.Steps[1].Evaluation.Conditions = []schema.Condition{{}}

	result := v.Validate(wf)
	require.False(t, result.Valid())
	assert.Equal(t, CodeBadCondition, result.Errors[0].Code)
}

func TestValidateDefaultActionJumpRejected(t *testing.T) {
	v := newValidator(t)
	wf := validWorkflow()
	wf.Steps[1].Evaluation.DefaultAction = schema.ActionJump

	result := v.Validate(wf)
	assert.False(t, result.Valid())
}

func TestValidateUnknownVariableReferencesWarn(t *testing.T) {
	v := newValidator(t)
	wf := validWorkflow()
	wf.Steps[0].ParameterMappings["extra"] = "nowhere.to.be.found"

	result := v.Validate(wf)
	assert.True(t, result.Valid())
	assert.NotEmpty(t, result.Warnings)
}

func TestValidateDocumentRejectsUnknownStatus(t *testing.T) {
	v := newValidator(t)
	wf := validWorkflow()
	wf.Status = "archived"

	result := v.Validate(wf)
	require.False(t, result.Valid())
	assert.Equal(t, CodeSchemaViolation, result.Errors[0].Code)
}

func TestValidateStepIssuesCarryStepID(t *testing.T) {
	v := newValidator(t)
	wf := validWorkflow()
	wf.Steps[1].Evaluation.Conditions[0].TargetStepIndex = intPtr(99)
	wf.Steps[0].Tool = nil

	result := v.Validate(wf)
	require.False(t, result.Valid())

	assert.Equal(t, "s2", result.Errors[0].StepID)
	assert.Equal(t, CodeBadJumpTarget, result.Errors[0].Code)

	require.NotEmpty(t, result.Warnings)
	assert.Equal(t, "s1", result.Warnings[0].StepID)
	assert.Equal(t, CodeStepConfig, result.Warnings[0].Code)
}
