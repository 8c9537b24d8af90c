package validation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varflow/varflow/pkg/schema"
)

func TestNewJSONSchemaValidator(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)
	assert.NotNil(t, v)
	assert.NotNil(t, v.workflowSchema)
}

func minimalDocument() *schema.Workflow {
	return &schema.Workflow{
		ID:    "wf-1",
		State: []schema.Variable{},
		Steps: []schema.Step{},
	}
}

func fullDocument() *schema.Workflow {
	target := 0
	return &schema.Workflow{
		ID:     "wf-full",
		Name:   "research pipeline",
		Status: schema.WorkflowStatusDraft,
		State: []schema.Variable{
			{
				ID:     "var-1",
				Name:   "topic",
				Schema: schema.ValueSchema{Type: schema.TypeString},
				IOType: schema.IOInput,
				Value:  "climate",
			},
			{
				Name:   "findings",
				Schema: schema.ValueSchema{Type: schema.TypeString, IsArray: true},
				IOType: schema.IOOutput,
			},
			{
				Name: "profile",
				Schema: schema.ValueSchema{Type: schema.TypeObject, Fields: map[string]schema.ValueSchema{
					"score": {Type: schema.TypeNumber},
				}},
				IOType: schema.IOOutput,
			},
		},
		Steps: []schema.Step{
			{
				ID:             "research",
				SequenceNumber: 0,
				Name:           "gather findings",
				Type:           schema.StepTypeAction,
				Tool:           &schema.ToolRef{ID: "search", Type: schema.ToolTypeLLM, PromptTemplate: "find {{topic}}"},
				ParameterMappings: map[string]string{
					"query": "topic",
				},
				OutputMappings: map[string]schema.OutputMapping{
					"results": {Variable: "findings", Operation: schema.OperationAppend, Transform: ".items"},
				},
			},
			{
				ID:             "check",
				SequenceNumber: 1,
				Type:           schema.StepTypeEvaluation,
				Evaluation: &schema.EvaluationConfig{
					Conditions: []schema.Condition{
						{Variable: "findings", Operator: schema.OpContains, Value: "enough", TargetStepIndex: &target},
						{Expression: `len(vars.findings ?? []) > 3`, Action: schema.ActionEnd},
					},
					DefaultAction: schema.ActionContinue,
					MaximumJumps:  5,
					Engine:        "expr",
				},
			},
		},
		Jumps:    map[string]int{"check": 1},
		Metadata: map[string]any{"owner": "data-team"},
	}
}

func TestValidateDocument_Nil(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	err = v.ValidateDocument(nil)
	require.Error(t, err)

	ferr, ok := err.(*schema.FlowError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeValidation, ferr.Code)
	assert.Contains(t, ferr.Message, "nil")
}

func TestValidateDocument_MinimalValid(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	assert.NoError(t, v.ValidateDocument(minimalDocument()))
}

func TestValidateDocument_FullValid(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	assert.NoError(t, v.ValidateDocument(fullDocument()))
}

func TestValidateDocument_MissingID(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	wf := minimalDocument()
	wf.ID = ""
	err = v.ValidateDocument(wf)
	require.Error(t, err)

	ferr, ok := err.(*schema.FlowError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeValidation, ferr.Code)
}

func TestValidateDocument_InvalidStatus(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	wf := minimalDocument()
	wf.Status = "archived"
	require.Error(t, v.ValidateDocument(wf))
}

func TestValidateDocument_VariableMissingIOType(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	wf := minimalDocument()
	wf.State = []schema.Variable{
		{Name: "loose", Schema: schema.ValueSchema{Type: schema.TypeString}},
	}
	require.Error(t, v.ValidateDocument(wf))
}

func TestValidateDocument_InvalidVariableType(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	wf := minimalDocument()
	wf.State = []schema.Variable{
		{Name: "odd", Schema: schema.ValueSchema{Type: "tuple"}, IOType: schema.IOInput},
	}
	require.Error(t, v.ValidateDocument(wf))
}

func TestValidateDocument_InvalidStepType(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	wf := minimalDocument()
	wf.Steps = []schema.Step{
		{ID: "s1", Type: "LOOP"},
	}
	require.Error(t, v.ValidateDocument(wf))
}

func TestValidateDocument_NegativeSequenceNumber(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	wf := minimalDocument()
	wf.Steps = []schema.Step{
		{ID: "s1", SequenceNumber: -1, Type: schema.StepTypeAction},
	}
	require.Error(t, v.ValidateDocument(wf))
}

func TestValidateDocument_InvalidOperator(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	wf := minimalDocument()
	wf.Steps = []schema.Step{
		{ID: "s1", Type: schema.StepTypeEvaluation, Evaluation: &schema.EvaluationConfig{
			Conditions: []schema.Condition{
				{Variable: "x", Operator: "matches_regex", Value: ".*"},
			},
		}},
	}
	require.Error(t, v.ValidateDocument(wf))
}

func TestValidateDocument_NegativeTargetIndex(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	target := -2
	wf := minimalDocument()
	wf.Steps = []schema.Step{
		{ID: "s1", Type: schema.StepTypeEvaluation, Evaluation: &schema.EvaluationConfig{
			Conditions: []schema.Condition{
				{Variable: "x", Operator: schema.OpEquals, Value: 1, TargetStepIndex: &target},
			},
		}},
	}
	require.Error(t, v.ValidateDocument(wf))
}

func TestValidateDocument_InvalidDefaultAction(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	wf := minimalDocument()
	wf.Steps = []schema.Step{
		{ID: "s1", Type: schema.StepTypeEvaluation, Evaluation: &schema.EvaluationConfig{
			Conditions:    []schema.Condition{{Expression: "true"}},
			DefaultAction: "retry",
		}},
	}
	require.Error(t, v.ValidateDocument(wf))
}

func TestValidateDocument_NegativeJumpCounter(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	wf := minimalDocument()
	wf.Jumps = map[string]int{"check": -1}
	require.Error(t, v.ValidateDocument(wf))
}

func TestValidateDocument_ErrorDetails(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	wf := minimalDocument()
	wf.ID = ""
	wf.Status = "archived"
	err = v.ValidateDocument(wf)
	require.Error(t, err)

	ferr, ok := err.(*schema.FlowError)
	require.True(t, ok)
	require.NotNil(t, ferr.Details)
	violations, ok := ferr.Details["violations"].([]string)
	require.True(t, ok)
	assert.GreaterOrEqual(t, len(violations), 1)
}

func TestValidateDocument_Concurrent(t *testing.T) {
	v, err := NewJSONSchemaValidator()
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 50)

	for i := range 50 {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			errs[idx] = v.ValidateDocument(fullDocument())
		}(i)
	}
	wg.Wait()

	for i, e := range errs {
		assert.NoError(t, e, "goroutine %d should not error", i)
	}
}
