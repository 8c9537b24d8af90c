// Package engine executes workflow steps one at a time: it resolves a step's
// inputs from the variable pool, invokes the external tool or the condition
// evaluator, applies outputs back onto the pool, and reports the next step
// index. Each call receives a full workflow snapshot and returns a new one;
// the engine holds no mutable state between invocations.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/varflow/varflow/internal/coerce"
	"github.com/varflow/varflow/internal/expressions"
	"github.com/varflow/varflow/internal/logging"
	"github.com/varflow/varflow/internal/vars"
	"github.com/varflow/varflow/pkg/schema"
)

// Executor runs single steps of a workflow document.
type Executor struct {
	tools   ToolCaller
	sink    StatusSink
	logger  *slog.Logger
	fsm     *StepFSM
	engines map[string]expressions.Engine
	jq      *expressions.JQEngine
}

// Config holds optional executor collaborators.
type Config struct {
	Sink   StatusSink   // receives phase-boundary updates; nil disables
	Logger *slog.Logger // nil uses slog.Default
}

// NewExecutor creates an Executor around the given tool caller.
func NewExecutor(tools ToolCaller, cfg Config) *Executor {
	sink := cfg.Sink
	if sink == nil {
		sink = noopSink{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	engines := map[string]expressions.Engine{
		"expr": expressions.NewExprEngine(),
	}
	// CEL is optional — conditions check availability before use.
	if celEngine, err := expressions.NewCELEngine(); err == nil {
		engines["cel"] = celEngine
	}

	return &Executor{
		tools:   tools,
		sink:    sink,
		logger:  logger,
		fsm:     NewStepFSM(),
		engines: engines,
		jq:      expressions.NewJQEngine(),
	}
}

// StepResult summarizes the outcome of a single step execution.
type StepResult struct {
	StepID     string            `json:"step_id"`
	StepIndex  int               `json:"step_index"`
	Status     schema.StepStatus `json:"status"`
	Success    bool              `json:"success"`
	Outputs    map[string]any    `json:"outputs,omitempty"`
	Error      string            `json:"error,omitempty"`
	DurationMs int64             `json:"duration_ms"`
}

// StepOutcome is the full result of ExecuteStep: the new variable pool and
// jump table, the step result, and the index the host should run next.
// NextIndex equal to len(steps) means the workflow is complete.
type StepOutcome struct {
	State      []schema.Variable `json:"state"`
	Jumps      map[string]int    `json:"jumps,omitempty"`
	Result     *StepResult       `json:"result"`
	NextIndex  int               `json:"next_index"`
	Evaluation *Evaluation       `json:"evaluation,omitempty"`
}

// ExecuteStep runs the step at index against the workflow snapshot. The
// input document is never mutated; the returned outcome carries the new
// pool. Tool failures are reported in the result, never returned as an
// error — the only errors are an invalid index or a nil workflow, both of
// which leave the document untouched.
func (e *Executor) ExecuteStep(ctx context.Context, wf *schema.Workflow, index int) (*StepOutcome, error) {
	if wf == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow is nil")
	}
	if index < 0 || index >= len(wf.Steps) {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidIndex,
			"step index %d out of range [0, %d)", index, len(wf.Steps))
	}

	step := wf.Steps[index]
	ctx = logging.WithIDs(ctx, wf.ID, step.ID, logging.RunID(ctx))
	log := logging.LogWith(ctx, e.logger)
	start := time.Now()

	pool := vars.Pool(wf.State).Clone()
	jumps := cloneJumps(wf.Jumps)

	if err := e.fsm.Transition(step.ID, schema.StepStatusPending, schema.StepStatusRunning); err != nil {
		return nil, err
	}
	e.notify(ctx, wf.ID, step, index, schema.StepStatusRunning, "step started", 0, nil)

	// Clear previous outputs so a re-run starts from a clean slate.
	pool = clearStepOutputs(pool, step)
	cleared := pool.Clone()

	result := &StepResult{StepID: step.ID, StepIndex: index}
	outcome := &StepOutcome{Jumps: jumps, NextIndex: index + 1, Result: result}

	switch step.Type {
	case schema.StepTypeEvaluation:
		pool = e.runEvaluation(ctx, wf, step, index, pool, jumps, outcome)

	case schema.StepTypeAction:
		pool = e.runAction(ctx, wf, step, index, pool, cleared, outcome)

	default:
		result.Error = fmt.Sprintf("unknown step type %q", step.Type)
	}

	result.DurationMs = time.Since(start).Milliseconds()

	if result.Error != "" {
		result.Status = schema.StepStatusFailed
		result.Success = false
		if err := e.fsm.Transition(step.ID, schema.StepStatusRunning, schema.StepStatusFailed); err != nil {
			log.WarnContext(ctx, "step transition failed", "error", err)
		}
		e.notify(ctx, wf.ID, step, index, schema.StepStatusFailed, result.Error, 1, result.Outputs)
	} else {
		result.Status = schema.StepStatusCompleted
		result.Success = true
		if err := e.fsm.Transition(step.ID, schema.StepStatusRunning, schema.StepStatusCompleted); err != nil {
			log.WarnContext(ctx, "step transition failed", "error", err)
		}
		e.notify(ctx, wf.ID, step, index, schema.StepStatusCompleted, "step completed", 1, result.Outputs)
	}

	outcome.State = pool
	return outcome, nil
}

// runEvaluation executes an evaluation step: conditions are tested against
// the cleared pool, jump governance is folded into the reported outputs, and
// the outcome is recorded in the step's implicit result variable.
func (e *Executor) runEvaluation(ctx context.Context, wf *schema.Workflow, step schema.Step, index int, pool vars.Pool, jumps map[string]int, outcome *StepOutcome) vars.Pool {
	// Expression conditions see the cleared pool, not the caller's snapshot.
	scratch := *wf
	scratch.State = pool

	ev := e.evaluate(ctx, &scratch, step, index, pool, jumps)
	outcome.Evaluation = ev

	outputs := map[string]any{
		"next_action":       string(ev.NextAction),
		"condition_met":     ev.ConditionMet,
		"matched_condition": ev.MatchedIndex,
		"max_jumps_reached": ev.MaxJumpsReached,
		"reason":            ev.Reason,
	}
	if ev.NextAction == schema.ActionJump {
		outputs["target_step_index"] = ev.TargetStepIndex
		outputs["jump_count"] = ev.JumpCount
	}
	outcome.Result.Outputs = outputs

	switch ev.NextAction {
	case schema.ActionJump:
		outcome.NextIndex = ev.TargetStepIndex
	case schema.ActionEnd:
		outcome.NextIndex = len(wf.Steps)
	default:
		outcome.NextIndex = index + 1
	}

	pool, resultVar := ensureEvalVariable(pool, step)
	resultVar.Value = outputs
	return pool
}

// runAction executes an action step: parameter mappings resolve against the
// cleared pool, the tool is invoked, and declared outputs are applied. On
// tool failure the cleared snapshot is returned unchanged.
func (e *Executor) runAction(ctx context.Context, wf *schema.Workflow, step schema.Step, index int, pool vars.Pool, cleared vars.Pool, outcome *StepOutcome) vars.Pool {
	log := logging.LogWith(ctx, e.logger)
	result := outcome.Result

	if step.Tool == nil || step.Tool.ID == "" {
		// No tool, nothing to retry: terminal per-step failure.
		result.Error = "step has no tool configured"
		return cleared
	}

	params := make(map[string]any, len(step.ParameterMappings)+1)
	for name, path := range step.ParameterMappings {
		res := vars.Resolve(pool, path)
		if !res.ValidPath {
			log.WarnContext(ctx, "parameter path did not resolve, substituting null",
				"parameter", name, "path", path, "root", res.Root)
			params[name] = nil
			continue
		}
		params[name] = res.Value
	}
	if step.Tool.Type == schema.ToolTypeLLM && step.Tool.PromptTemplate != "" {
		params["prompt_template"] = step.Tool.PromptTemplate
	}

	e.notify(ctx, wf.ID, step, index, schema.StepStatusRunning, "invoking tool "+step.Tool.ID, 0.5, nil)

	outputs, err := e.callTool(ctx, step.Tool.ID, params)
	if err != nil {
		log.WarnContext(ctx, "tool invocation failed", "tool_id", step.Tool.ID, "error", err)
		result.Error = err.Error()
		return cleared
	}

	result.Outputs = outputs
	return e.applyOutputs(ctx, pool, step, outputs)
}

// callTool invokes the external tool, converting panics into step failures.
// Nothing thrown by a tool may propagate past the executor.
func (e *Executor) callTool(ctx context.Context, toolID string, params map[string]any) (outputs map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			outputs = nil
			err = schema.NewErrorf(schema.ErrCodeTool, "tool %s panicked: %v", toolID, r)
		}
	}()
	return e.tools.Execute(ctx, toolID, params)
}

// applyOutputs folds every declared output mapping into the pool. Missing
// outputs, unknown variables, and unknown operations are warnings, not
// failures.
func (e *Executor) applyOutputs(ctx context.Context, pool vars.Pool, step schema.Step, outputs map[string]any) vars.Pool {
	log := logging.LogWith(ctx, e.logger)

	for outName, mapping := range step.OutputMappings {
		raw, ok := outputs[outName]
		if !ok {
			log.WarnContext(ctx, "tool produced no value for declared output", "output", outName)
			continue
		}

		if mapping.Transform != "" {
			transformed, err := e.jq.Transform(ctx, mapping.Transform, raw)
			if err != nil {
				log.WarnContext(ctx, "output transform failed, using raw value",
					"output", outName, "transform", mapping.Transform, "error", err)
			} else {
				raw = transformed
			}
		}

		target := pool.Lookup(mapping.Variable)
		if target == nil {
			log.WarnContext(ctx, "output mapping names unknown variable",
				"output", outName, "variable", mapping.Variable)
			continue
		}

		newValue, applied := coerce.Apply(*target, mapping, raw)
		if !applied {
			log.WarnContext(ctx, "unknown output operation, skipping",
				"output", outName, "operation", string(mapping.Operation))
			continue
		}
		target.Value = newValue
	}

	return pool
}

func (e *Executor) notify(ctx context.Context, workflowID string, step schema.Step, index int, status schema.StepStatus, message string, progress float64, result map[string]any) {
	e.sink.Notify(ctx, schema.StatusUpdate{
		WorkflowID: workflowID,
		StepID:     step.ID,
		StepIndex:  index,
		Status:     status,
		Message:    message,
		Progress:   progress,
		Result:     result,
	})
}

// clearStepOutputs removes values this step is about to produce: every
// variable named by an output mapping, plus the implicit evaluation result
// variable for evaluation steps. Idempotent re-run safety.
func clearStepOutputs(pool vars.Pool, step schema.Step) vars.Pool {
	for _, mapping := range step.OutputMappings {
		if v := pool.Lookup(mapping.Variable); v != nil {
			v.Value = nil
		}
	}
	if step.Type == schema.StepTypeEvaluation {
		if v := pool.Lookup(EvalResultName(step.ID)); v != nil {
			v.Value = nil
		}
	}
	return pool
}

// EvalResultName is the implicit pool variable holding an evaluation step's
// last outcome, derived from a shortened step ID.
func EvalResultName(stepID string) string {
	return "eval_" + shortID(stepID)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// ensureEvalVariable looks up (or lazily creates) the evaluation result
// variable for a step. Created variables carry the evaluation IO type so a
// full reset can purge them.
func ensureEvalVariable(pool vars.Pool, step schema.Step) (vars.Pool, *schema.Variable) {
	name := EvalResultName(step.ID)
	if v := pool.Lookup(name); v != nil {
		return pool, v
	}
	pool = append(pool, schema.Variable{
		ID:     uuid.NewString(),
		Name:   name,
		Schema: schema.ValueSchema{Type: schema.TypeObject},
		IOType: schema.IOEvaluation,
	})
	return pool, &pool[len(pool)-1]
}

func cloneJumps(jumps map[string]int) map[string]int {
	cp := make(map[string]int, len(jumps))
	for k, v := range jumps {
		cp[k] = v
	}
	return cp
}
