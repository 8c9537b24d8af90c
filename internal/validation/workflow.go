package validation

import (
	"fmt"

	"github.com/varflow/varflow/pkg/schema"
)

// Issue codes emitted by the semantic validation stage.
const (
	CodeSchemaViolation   = "schema_violation"
	CodeDuplicateVariable = "duplicate_variable"
	CodeDuplicateStep     = "duplicate_step"
	CodeSequenceMismatch  = "sequence_mismatch"
	CodeStepConfig        = "step_config"
	CodeUnknownVariable   = "unknown_variable"
	CodeUnknownOperation  = "unknown_operation"
	CodeUnknownOperator   = "unknown_operator"
	CodeBadCondition      = "bad_condition"
	CodeBadJumpTarget     = "bad_jump_target"
)

// WorkflowValidator runs the full validation pipeline over a workflow:
// structural (JSON Schema) first, then semantic rules. Structural failures
// short-circuit since the semantic checks assume a well-formed document.
type WorkflowValidator struct {
	jsonValidator *JSONSchemaValidator
}

// NewWorkflowValidator creates a validator with a pre-compiled JSON Schema.
func NewWorkflowValidator() (*WorkflowValidator, error) {
	jv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &WorkflowValidator{jsonValidator: jv}, nil
}

// Validate runs all validation stages and aggregates the results.
func (v *WorkflowValidator) Validate(wf *schema.Workflow) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	if err := v.jsonValidator.ValidateDocument(wf); err != nil {
		appendStructural(result, err)
		return result
	}

	result.Merge(validateVariables(wf))
	result.Merge(validateSteps(wf))
	return result
}

func appendStructural(result *schema.ValidationResult, err error) {
	if ferr, ok := err.(*schema.FlowError); ok {
		if raw, exists := ferr.Details["violations"]; exists {
			if violations, ok := raw.([]string); ok {
				for _, violation := range violations {
					result.AddError("", CodeSchemaViolation, violation)
				}
				return
			}
		}
		result.AddError("", CodeSchemaViolation, ferr.Message)
		return
	}
	result.AddError("", CodeSchemaViolation, err.Error())
}

// validateVariables enforces state pool rules.
func validateVariables(wf *schema.Workflow) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	seen := make(map[string]bool, len(wf.State))
	for i, variable := range wf.State {
		path := fmt.Sprintf("state[%d]", i)
		if seen[variable.Name] {
			result.AddError(path, CodeDuplicateVariable,
				fmt.Sprintf("duplicate variable name %q", variable.Name))
		}
		seen[variable.Name] = true
	}

	return result
}

// validateSteps enforces step rules: unique IDs, sequence numbers matching
// positions, type/config consistency, jump targets in range.
func validateSteps(wf *schema.Workflow) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	varNames := make(map[string]bool, len(wf.State))
	for _, variable := range wf.State {
		varNames[variable.Name] = true
	}

	seenIDs := make(map[string]bool, len(wf.Steps))
	for i, step := range wf.Steps {
		path := fmt.Sprintf("steps[%d]", i)

		if seenIDs[step.ID] {
			result.AddStepError(step.ID, path, CodeDuplicateStep, fmt.Sprintf("duplicate step id %q", step.ID))
		}
		seenIDs[step.ID] = true

		if step.SequenceNumber != i {
			result.AddStepError(step.ID, path, CodeSequenceMismatch,
				fmt.Sprintf("sequence_number %d does not match position %d", step.SequenceNumber, i))
		}

		switch step.Type {
		case schema.StepTypeAction:
			if step.Evaluation != nil {
				result.AddStepError(step.ID, path, CodeStepConfig, "ACTION step must not carry an evaluation config")
			}
			if step.Tool == nil {
				result.AddStepWarning(step.ID, path, CodeStepConfig, "ACTION step has no tool and will fail at runtime")
			}
			validateMappings(result, path, step, varNames)
		case schema.StepTypeEvaluation:
			if step.Tool != nil {
				result.AddStepError(step.ID, path, CodeStepConfig, "EVALUATION step must not carry a tool")
			}
			if step.Evaluation == nil {
				result.AddStepError(step.ID, path, CodeStepConfig, "EVALUATION step requires an evaluation config")
			} else {
				validateEvaluation(result, step.ID, path, step.Evaluation, len(wf.Steps))
			}
		default:
			result.AddStepError(step.ID, path, CodeStepConfig, fmt.Sprintf("unknown step type %q", step.Type))
		}
	}

	return result
}

func validateMappings(result *schema.ValidationResult, path string, step schema.Step, varNames map[string]bool) {
	for param, varPath := range step.ParameterMappings {
		root := rootName(varPath)
		if !varNames[root] {
			result.AddStepWarning(step.ID, path, CodeUnknownVariable,
				fmt.Sprintf("parameter %q maps to unknown variable %q", param, root))
		}
	}
	for output, mapping := range step.OutputMappings {
		m := mapping.Normalized()
		if !varNames[m.Variable] {
			result.AddStepWarning(step.ID, path, CodeUnknownVariable,
				fmt.Sprintf("output %q maps to unknown variable %q", output, m.Variable))
		}
		if m.Operation != schema.OperationAssign && m.Operation != schema.OperationAppend {
			result.AddStepError(step.ID, path, CodeUnknownOperation,
				fmt.Sprintf("output %q uses unknown operation %q", output, m.Operation))
		}
	}
}

func validateEvaluation(result *schema.ValidationResult, stepID, path string, cfg *schema.EvaluationConfig, stepCount int) {
	for j, cond := range cfg.Conditions {
		condPath := fmt.Sprintf("%s.conditions[%d]", path, j)

		if cond.Expression == "" && cond.Variable == "" {
			result.AddStepError(stepID, condPath, CodeBadCondition,
				"condition requires either an expression or a variable/operator pair")
		}
		if cond.Expression == "" && cond.Variable != "" && !cond.Operator.Valid() {
			result.AddStepError(stepID, condPath, CodeUnknownOperator,
				fmt.Sprintf("unknown operator %q", cond.Operator))
		}
		if cond.Action == schema.ActionJump {
			if cond.TargetStepIndex == nil {
				result.AddStepError(stepID, condPath, CodeBadJumpTarget, "jump condition requires target_step_index")
			} else if *cond.TargetStepIndex < 0 || *cond.TargetStepIndex >= stepCount {
				result.AddStepError(stepID, condPath, CodeBadJumpTarget,
					fmt.Sprintf("target_step_index %d out of range [0, %d)", *cond.TargetStepIndex, stepCount))
			}
		}
	}
	if cfg.DefaultAction == schema.ActionJump {
		result.AddStepError(stepID, path, CodeBadCondition, "default_action must not be jump")
	}
	if cfg.MaximumJumps < 0 {
		result.AddStepError(stepID, path, CodeBadCondition, "maximum_jumps must not be negative")
	}
}

// rootName extracts the pool variable name from a dotted/indexed path.
func rootName(path string) string {
	for i := 0; i < len(path); i++ {
		if path[i] == '.' || path[i] == '[' {
			return path[:i]
		}
	}
	return path
}
