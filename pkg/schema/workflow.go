package schema

import "encoding/json"

// Workflow is the document exchanged with the engine: the variable pool plus
// the ordered step list. It is the sole artifact persisted between engine
// calls; hosting code owns storage.
type Workflow struct {
	ID     string         `json:"id"`
	Name   string         `json:"name,omitempty"`
	Status WorkflowStatus `json:"status,omitempty"`
	State  []Variable     `json:"state"`
	Steps  []Step         `json:"steps"`

	// Jumps is the per-step jump-counter side table, keyed by step ID.
	// Kept outside the variable namespace so counters cannot collide with
	// user variables and survive a values-only reset.
	Jumps map[string]int `json:"jumps,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// Variable is one entry of the workflow variable pool. Value is nil until a
// step produces it; Schema governs coercion of anything written into it.
type Variable struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Schema   ValueSchema `json:"schema"`
	IOType   IOType      `json:"io_type"`
	Required bool        `json:"required,omitempty"`
	Value    any         `json:"value,omitempty"`
}

// ValueSchema describes the shape a variable's value must take.
// Fields is present only for object types and is recursively schema-typed.
type ValueSchema struct {
	Type    VarType                `json:"type"`
	IsArray bool                   `json:"is_array,omitempty"`
	Fields  map[string]ValueSchema `json:"fields,omitempty"`
}

// VarType enumerates the scalar/object kinds a variable can hold.
type VarType string

const (
	TypeString  VarType = "string"
	TypeNumber  VarType = "number"
	TypeBoolean VarType = "boolean"
	TypeObject  VarType = "object"
	TypeFile    VarType = "file"
)

// IOType classifies a variable's role within the workflow.
type IOType string

const (
	IOInput      IOType = "input"
	IOOutput     IOType = "output"
	IOEvaluation IOType = "evaluation"
)

// Step is one unit of execution. Exactly one of the action half (Tool plus
// mappings) or the evaluation half (Evaluation) is active, selected by Type.
type Step struct {
	ID                string                   `json:"id"`
	SequenceNumber    int                      `json:"sequence_number"`
	Name              string                   `json:"name,omitempty"`
	Type              StepType                 `json:"type"`
	Tool              *ToolRef                 `json:"tool,omitempty"`
	ParameterMappings map[string]string        `json:"parameter_mappings,omitempty"`
	OutputMappings    map[string]OutputMapping `json:"output_mappings,omitempty"`
	Evaluation        *EvaluationConfig        `json:"evaluation_config,omitempty"`
}

// StepType selects between action and evaluation semantics.
type StepType string

const (
	StepTypeAction     StepType = "ACTION"
	StepTypeEvaluation StepType = "EVALUATION"
)

// ToolRef identifies the external tool an action step invokes.
// LLM-type tools additionally carry the prompt template to invoke with.
type ToolRef struct {
	ID             string `json:"id"`
	Type           string `json:"type,omitempty"` // e.g. "llm", "http", "custom"
	PromptTemplate string `json:"prompt_template,omitempty"`
}

// ToolTypeLLM marks tools that receive their prompt template as a parameter.
const ToolTypeLLM = "llm"

// EvaluationConfig drives an evaluation step: an ordered condition list,
// the action when nothing matches, and the per-step jump bound.
type EvaluationConfig struct {
	Conditions    []Condition `json:"conditions"`
	DefaultAction NextAction  `json:"default_action,omitempty"` // continue unless configured
	MaximumJumps  int         `json:"maximum_jumps,omitempty"`  // 0 means DefaultMaximumJumps
	Engine        string      `json:"engine,omitempty"`         // expression engine: expr (default) | cel
}

// DefaultMaximumJumps bounds backward jumps per evaluation step when the
// config does not set its own limit.
const DefaultMaximumJumps = 3

// Condition is one branch of an evaluation step. Either the operator triple
// (Variable/Operator/Value) or Expression is set; expression conditions are
// evaluated by the configured expression engine and match on truthy results.
type Condition struct {
	Variable        string     `json:"variable,omitempty"`
	Operator        Operator   `json:"operator,omitempty"`
	Value           any        `json:"value,omitempty"`
	Expression      string     `json:"expression,omitempty"`
	TargetStepIndex *int       `json:"target_step_index,omitempty"`
	Action          NextAction `json:"action,omitempty"` // continue unless set; jump implied by target
}

// Operator enumerates the comparison operators of operator conditions.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
)

// Valid reports whether op is one of the known comparison operators.
func (op Operator) Valid() bool {
	switch op {
	case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan, OpContains, OpNotContains:
		return true
	}
	return false
}

// NextAction is the control-flow decision an evaluation step produces.
type NextAction string

const (
	ActionContinue NextAction = "continue"
	ActionJump     NextAction = "jump"
	ActionEnd      NextAction = "end"
)

// Operation selects how a tool output is folded into a variable.
type Operation string

const (
	OperationAssign Operation = "assign"
	OperationAppend Operation = "append"
)

// OutputMapping binds a tool output to a pool variable. On the wire it is
// either a bare variable name or {variable, operation}; both forms normalize
// to this struct, with an empty Operation meaning assign.
type OutputMapping struct {
	Variable  string    `json:"variable"`
	Operation Operation `json:"operation,omitempty"`
	Transform string    `json:"transform,omitempty"` // optional jq expression applied to the raw output
}

// UnmarshalJSON accepts both the bare-name and the object form.
func (m *OutputMapping) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		m.Variable = name
		m.Operation = ""
		m.Transform = ""
		return nil
	}

	type alias OutputMapping
	var obj alias
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*m = OutputMapping(obj)
	return nil
}

// Normalized returns the mapping with an explicit operation: bare mappings
// behave as assign.
func (m OutputMapping) Normalized() OutputMapping {
	if m.Operation == "" {
		m.Operation = OperationAssign
	}
	return m
}

// WorkflowStatus represents the lifecycle state of a workflow document.
type WorkflowStatus string

const (
	WorkflowStatusDraft     WorkflowStatus = "draft"
	WorkflowStatusActive    WorkflowStatus = "active"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
)

// StepStatus represents the lifecycle state of a single step execution.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
)
