// Package reducer applies structural edits to a workflow document as
// discrete actions. It has no execution semantics; it exists to keep
// workflow mutation atomic and variable names unique. Apply is pure: the
// input document is never modified, and a rejected action returns it
// unchanged alongside an explicit error.
package reducer

import (
	"github.com/google/uuid"

	"github.com/varflow/varflow/internal/vars"
	"github.com/varflow/varflow/pkg/schema"
)

// ActionType enumerates the structural edits the reducer understands.
type ActionType string

const (
	ActionAddStep       ActionType = "add_step"
	ActionRemoveStep    ActionType = "remove_step"
	ActionMoveStep      ActionType = "move_step"
	ActionSetTool       ActionType = "set_tool"
	ActionBindParameter ActionType = "bind_parameter"
	ActionBindOutput    ActionType = "bind_output"
	ActionSetStepType   ActionType = "set_step_type"
	ActionReplaceState  ActionType = "replace_state"
	ActionResetValues   ActionType = "reset_values"
	ActionResetAll      ActionType = "reset_all"
)

// Action describes one structural edit. Only the fields relevant to the
// action type are consulted.
type Action struct {
	Type ActionType `json:"type"`

	Step   *schema.Step `json:"step,omitempty"`    // add_step
	StepID string       `json:"step_id,omitempty"` // per-step edits
	ToIndex int         `json:"to_index,omitempty"` // move_step

	Tool      *schema.ToolRef       `json:"tool,omitempty"`      // set_tool
	Parameter string                `json:"parameter,omitempty"` // bind_parameter
	Path      string                `json:"path,omitempty"`      // bind_parameter
	Output    string                `json:"output,omitempty"`    // bind_output
	Mapping   *schema.OutputMapping `json:"mapping,omitempty"`   // bind_output
	StepType  schema.StepType       `json:"step_type,omitempty"` // set_step_type

	State []schema.Variable `json:"state,omitempty"` // replace_state

	RetainCounters bool `json:"retain_counters,omitempty"` // reset_all
}

// Apply executes one structural action against a workflow document and
// returns the edited copy. On rejection the original document is returned
// unchanged together with the error; callers decide whether that is fatal.
func Apply(wf schema.Workflow, action Action) (schema.Workflow, error) {
	next := cloneWorkflow(wf)

	switch action.Type {
	case ActionAddStep:
		return addStep(wf, next, action)
	case ActionRemoveStep:
		return removeStep(wf, next, action)
	case ActionMoveStep:
		return moveStep(wf, next, action)
	case ActionSetTool:
		return setTool(wf, next, action)
	case ActionBindParameter:
		return bindParameter(wf, next, action)
	case ActionBindOutput:
		return bindOutput(wf, next, action)
	case ActionSetStepType:
		return setStepType(wf, next, action)
	case ActionReplaceState:
		return replaceState(wf, next, action)
	case ActionResetValues:
		return resetValues(next), nil
	case ActionResetAll:
		return resetAll(next, action.RetainCounters), nil
	default:
		return wf, schema.NewErrorf(schema.ErrCodeValidation, "unknown reducer action %q", action.Type)
	}
}

func addStep(orig, next schema.Workflow, action Action) (schema.Workflow, error) {
	if action.Step == nil {
		return orig, schema.NewError(schema.ErrCodeValidation, "add_step requires a step")
	}
	step := *action.Step
	if step.ID == "" {
		step.ID = uuid.NewString()
	}
	for i := range next.Steps {
		if next.Steps[i].ID == step.ID {
			return orig, schema.NewErrorf(schema.ErrCodeConflict, "step %s already exists", step.ID)
		}
	}
	next.Steps = append(next.Steps, step)
	renumber(next.Steps)
	return next, nil
}

func removeStep(orig, next schema.Workflow, action Action) (schema.Workflow, error) {
	idx := stepIndex(next.Steps, action.StepID)
	if idx == -1 {
		return orig, schema.NewErrorf(schema.ErrCodeNotFound, "step %s not found", action.StepID)
	}
	next.Steps = append(next.Steps[:idx], next.Steps[idx+1:]...)
	delete(next.Jumps, action.StepID)
	renumber(next.Steps)
	return next, nil
}

func moveStep(orig, next schema.Workflow, action Action) (schema.Workflow, error) {
	idx := stepIndex(next.Steps, action.StepID)
	if idx == -1 {
		return orig, schema.NewErrorf(schema.ErrCodeNotFound, "step %s not found", action.StepID)
	}
	to := action.ToIndex
	if to < 0 {
		to = 0
	}
	if to >= len(next.Steps) {
		to = len(next.Steps) - 1
	}

	step := next.Steps[idx]
	next.Steps = append(next.Steps[:idx], next.Steps[idx+1:]...)
	next.Steps = append(next.Steps[:to], append([]schema.Step{step}, next.Steps[to:]...)...)
	renumber(next.Steps)
	return next, nil
}

func setTool(orig, next schema.Workflow, action Action) (schema.Workflow, error) {
	step := lookupStep(&next, action.StepID)
	if step == nil {
		return orig, schema.NewErrorf(schema.ErrCodeNotFound, "step %s not found", action.StepID)
	}
	if step.Type != schema.StepTypeAction {
		return orig, schema.NewErrorf(schema.ErrCodeConflict, "step %s is not an action step", action.StepID)
	}
	step.Tool = action.Tool
	return next, nil
}

func bindParameter(orig, next schema.Workflow, action Action) (schema.Workflow, error) {
	step := lookupStep(&next, action.StepID)
	if step == nil {
		return orig, schema.NewErrorf(schema.ErrCodeNotFound, "step %s not found", action.StepID)
	}
	if action.Parameter == "" {
		return orig, schema.NewError(schema.ErrCodeValidation, "bind_parameter requires a parameter name")
	}
	if step.ParameterMappings == nil {
		step.ParameterMappings = make(map[string]string)
	}
	if action.Path == "" {
		delete(step.ParameterMappings, action.Parameter)
	} else {
		step.ParameterMappings[action.Parameter] = action.Path
	}
	return next, nil
}

func bindOutput(orig, next schema.Workflow, action Action) (schema.Workflow, error) {
	step := lookupStep(&next, action.StepID)
	if step == nil {
		return orig, schema.NewErrorf(schema.ErrCodeNotFound, "step %s not found", action.StepID)
	}
	if action.Output == "" {
		return orig, schema.NewError(schema.ErrCodeValidation, "bind_output requires an output name")
	}
	if step.OutputMappings == nil {
		step.OutputMappings = make(map[string]schema.OutputMapping)
	}
	if action.Mapping == nil {
		delete(step.OutputMappings, action.Output)
	} else {
		step.OutputMappings[action.Output] = *action.Mapping
	}
	return next, nil
}

// setStepType toggles a step between ACTION and EVALUATION, clearing the
// half of its configuration the new type makes irrelevant.
func setStepType(orig, next schema.Workflow, action Action) (schema.Workflow, error) {
	step := lookupStep(&next, action.StepID)
	if step == nil {
		return orig, schema.NewErrorf(schema.ErrCodeNotFound, "step %s not found", action.StepID)
	}
	if action.StepType != schema.StepTypeAction && action.StepType != schema.StepTypeEvaluation {
		return orig, schema.NewErrorf(schema.ErrCodeValidation, "unknown step type %q", action.StepType)
	}
	if step.Type == action.StepType {
		return next, nil
	}

	step.Type = action.StepType
	switch action.StepType {
	case schema.StepTypeEvaluation:
		step.Tool = nil
		step.ParameterMappings = nil
		step.OutputMappings = nil
		if step.Evaluation == nil {
			step.Evaluation = &schema.EvaluationConfig{}
		}
	case schema.StepTypeAction:
		step.Evaluation = nil
		delete(next.Jumps, step.ID)
	}
	return next, nil
}

// replaceState bulk-replaces the variable pool. Duplicate names are
// rejected: the original document is returned unchanged with an explicit
// error rather than a silent no-op.
func replaceState(orig, next schema.Workflow, action Action) (schema.Workflow, error) {
	if dup, found := vars.DuplicateName(action.State); found {
		return orig, schema.NewErrorf(schema.ErrCodeConflict,
			"duplicate variable name %q in state replace", dup)
	}
	next.State = vars.Pool(action.State).Clone()
	return next, nil
}

// resetValues clears every variable value but keeps variables and jump
// counters, readying the document for re-execution.
func resetValues(next schema.Workflow) schema.Workflow {
	next.State = vars.Pool(next.State).ClearValues()
	next.Status = schema.WorkflowStatusDraft
	return next
}

// resetAll clears values, drops the implicit evaluation result variables,
// and purges jump counters unless explicitly retained.
func resetAll(next schema.Workflow, retainCounters bool) schema.Workflow {
	cleared := vars.Pool(next.State).ClearValues()
	kept := make(vars.Pool, 0, len(cleared))
	for i := range cleared {
		if cleared[i].IOType == schema.IOEvaluation {
			continue
		}
		kept = append(kept, cleared[i])
	}
	next.State = kept
	if !retainCounters {
		next.Jumps = nil
	}
	next.Status = schema.WorkflowStatusDraft
	return next
}

// --- Constructors ---

// NewWorkflow creates an empty draft workflow document.
func NewWorkflow(name string) schema.Workflow {
	return schema.Workflow{
		ID:     uuid.NewString(),
		Name:   name,
		Status: schema.WorkflowStatusDraft,
	}
}

// NewActionStep creates an action step bound to a tool.
func NewActionStep(name string, tool *schema.ToolRef) schema.Step {
	return schema.Step{
		ID:   uuid.NewString(),
		Name: name,
		Type: schema.StepTypeAction,
		Tool: tool,
	}
}

// NewEvaluationStep creates an evaluation step with the given config.
func NewEvaluationStep(name string, cfg *schema.EvaluationConfig) schema.Step {
	if cfg == nil {
		cfg = &schema.EvaluationConfig{}
	}
	return schema.Step{
		ID:         uuid.NewString(),
		Name:       name,
		Type:       schema.StepTypeEvaluation,
		Evaluation: cfg,
	}
}

// NewVariable creates a pool variable with no value.
func NewVariable(name string, s schema.ValueSchema, ioType schema.IOType) schema.Variable {
	return schema.Variable{
		ID:     uuid.NewString(),
		Name:   name,
		Schema: s,
		IOType: ioType,
	}
}

// --- Helpers ---

func cloneWorkflow(wf schema.Workflow) schema.Workflow {
	next := wf
	next.State = vars.Pool(wf.State).Clone()
	next.Steps = cloneSteps(wf.Steps)
	if wf.Jumps != nil {
		next.Jumps = make(map[string]int, len(wf.Jumps))
		for k, v := range wf.Jumps {
			next.Jumps[k] = v
		}
	}
	return next
}

func cloneSteps(steps []schema.Step) []schema.Step {
	cp := make([]schema.Step, len(steps))
	copy(cp, steps)
	for i := range cp {
		if cp[i].ParameterMappings != nil {
			m := make(map[string]string, len(cp[i].ParameterMappings))
			for k, v := range cp[i].ParameterMappings {
				m[k] = v
			}
			cp[i].ParameterMappings = m
		}
		if cp[i].OutputMappings != nil {
			m := make(map[string]schema.OutputMapping, len(cp[i].OutputMappings))
			for k, v := range cp[i].OutputMappings {
				m[k] = v
			}
			cp[i].OutputMappings = m
		}
		if cp[i].Tool != nil {
			tool := *cp[i].Tool
			cp[i].Tool = &tool
		}
		if cp[i].Evaluation != nil {
			cfg := *cp[i].Evaluation
			cfg.Conditions = append([]schema.Condition(nil), cp[i].Evaluation.Conditions...)
			cp[i].Evaluation = &cfg
		}
	}
	return cp
}

func renumber(steps []schema.Step) {
	for i := range steps {
		steps[i].SequenceNumber = i
	}
}

func stepIndex(steps []schema.Step, id string) int {
	for i := range steps {
		if steps[i].ID == id {
			return i
		}
	}
	return -1
}

func lookupStep(wf *schema.Workflow, id string) *schema.Step {
	for i := range wf.Steps {
		if wf.Steps[i].ID == id {
			return &wf.Steps[i]
		}
	}
	return nil
}
