package engine

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/varflow/varflow/internal/expressions"
	"github.com/varflow/varflow/internal/logging"
	"github.com/varflow/varflow/internal/vars"
	"github.com/varflow/varflow/pkg/schema"
)

// Evaluation is the decision an evaluation step produces: the winning
// condition (if any), the resulting control-flow action, and the jump
// governance outcome.
type Evaluation struct {
	ConditionMet    bool              `json:"condition_met"`
	MatchedIndex    int               `json:"matched_condition,omitempty"` // -1 when no condition matched
	NextAction      schema.NextAction `json:"next_action"`
	TargetStepIndex int               `json:"target_step_index,omitempty"` // valid only for jump
	JumpCount       int               `json:"jump_count,omitempty"`
	MaxJumpsReached bool              `json:"max_jumps_reached,omitempty"`
	Reason          string            `json:"reason,omitempty"`
}

// evaluate runs the step's ordered condition list against the pool.
// First-match-wins: the first condition whose variable resolves and whose
// operator test passes selects the action; later conditions are never
// consulted. Jump candidates pass through manageJumpCount, which mutates the
// jumps side table (already a working copy owned by the caller).
func (e *Executor) evaluate(ctx context.Context, wf *schema.Workflow, step schema.Step, stepIndex int, pool vars.Pool, jumps map[string]int) *Evaluation {
	cfg := step.Evaluation
	log := logging.LogWith(ctx, e.logger)

	if cfg == nil || len(cfg.Conditions) == 0 {
		return &Evaluation{
			MatchedIndex: -1,
			NextAction:   defaultAction(cfg),
			Reason:       "no conditions configured",
		}
	}

	for i, cond := range cfg.Conditions {
		matched := e.conditionMatches(ctx, wf, step, stepIndex, pool, cfg, cond)
		if !matched {
			continue
		}

		ev := &Evaluation{
			ConditionMet: true,
			MatchedIndex: i,
			Reason:       conditionReason(cond),
		}

		if cond.TargetStepIndex != nil {
			e.manageJumpCount(ctx, step, jumps, cfg, *cond.TargetStepIndex, ev)
			return ev
		}

		if cond.Action == schema.ActionEnd {
			ev.NextAction = schema.ActionEnd
			return ev
		}

		ev.NextAction = schema.ActionContinue
		return ev
	}

	log.DebugContext(ctx, "no condition matched, applying default action")
	return &Evaluation{
		MatchedIndex: -1,
		NextAction:   defaultAction(cfg),
		Reason:       "no condition matched",
	}
}

// conditionMatches tests one condition. Expression conditions are evaluated
// by the configured engine and match on truthy results; operator conditions
// resolve their variable path first and skip on an invalid path. Neither
// form ever aborts the step.
func (e *Executor) conditionMatches(ctx context.Context, wf *schema.Workflow, step schema.Step, stepIndex int, pool vars.Pool, cfg *schema.EvaluationConfig, cond schema.Condition) bool {
	log := logging.LogWith(ctx, e.logger)

	if cond.Expression != "" {
		engine := e.expressionEngine(cfg.Engine)
		if engine == nil {
			log.WarnContext(ctx, "expression engine unavailable, skipping condition",
				"engine", cfg.Engine)
			return false
		}
		scope := expressions.BuildScope(wf, step.ID, stepIndex)
		out, err := engine.Evaluate(ctx, cond.Expression, scope)
		if err != nil {
			log.WarnContext(ctx, "expression condition failed, skipping",
				"expression", cond.Expression, "error", err)
			return false
		}
		return truthy(out)
	}

	res := vars.Resolve(pool, cond.Variable)
	if !res.ValidPath {
		log.WarnContext(ctx, "condition variable did not resolve, skipping",
			"variable", cond.Variable, "root", res.Root)
		return false
	}

	return operatorTest(cond.Operator, res.Value, cond.Value)
}

// manageJumpCount applies jump governance: the counter for this step is
// looked up (lazily created) in the side table; below the limit the jump is
// permitted and the counter incremented, at the limit the counter is left
// unchanged and the decision degrades to continue. Exhaustion is a designed
// degradation, not an error.
func (e *Executor) manageJumpCount(ctx context.Context, step schema.Step, jumps map[string]int, cfg *schema.EvaluationConfig, target int, ev *Evaluation) {
	max := cfg.MaximumJumps
	if max <= 0 {
		max = schema.DefaultMaximumJumps
	}

	count := jumps[step.ID]
	if count < max {
		jumps[step.ID] = count + 1
		ev.NextAction = schema.ActionJump
		ev.TargetStepIndex = target
		ev.JumpCount = count + 1
		ev.Reason = fmt.Sprintf("jump to step %d (%d/%d)", target, count+1, max)
		return
	}

	ev.NextAction = schema.ActionContinue
	ev.JumpCount = count
	ev.MaxJumpsReached = true
	ev.Reason = fmt.Sprintf("jump limit reached (%d/%d), continuing", count, max)
	logging.LogWith(ctx, e.logger).InfoContext(ctx, "jump limit reached, continuing to next step",
		"step_id", step.ID, "jump_count", count, "maximum_jumps", max)
}

func defaultAction(cfg *schema.EvaluationConfig) schema.NextAction {
	if cfg != nil && cfg.DefaultAction != "" {
		return cfg.DefaultAction
	}
	return schema.ActionContinue
}

func (e *Executor) expressionEngine(name string) expressions.Engine {
	if name == "" {
		name = "expr"
	}
	return e.engines[name]
}

func conditionReason(cond schema.Condition) string {
	if cond.Expression != "" {
		return fmt.Sprintf("expression %q matched", cond.Expression)
	}
	return fmt.Sprintf("%s %s %v", cond.Variable, cond.Operator, cond.Value)
}

// --- Operator semantics ---

// operatorTest implements the comparison operators. Tests never panic:
// anything that cannot be compared under an operator's rules is false.
// Array membership for contains is intentionally unsupported and yields
// false; only string containment is defined.
func operatorTest(op schema.Operator, actual, expected any) bool {
	switch op {
	case schema.OpEquals:
		return looseEquals(actual, expected)
	case schema.OpNotEquals:
		return !looseEquals(actual, expected)
	case schema.OpGreaterThan:
		a, aok := numericValue(actual)
		b, bok := numericValue(expected)
		return aok && bok && a > b
	case schema.OpLessThan:
		a, aok := numericValue(actual)
		b, bok := numericValue(expected)
		return aok && bok && a < b
	case schema.OpContains:
		a, aok := actual.(string)
		b, bok := expected.(string)
		return aok && bok && strings.Contains(a, b)
	case schema.OpNotContains:
		a, aok := actual.(string)
		b, bok := expected.(string)
		return aok && bok && !strings.Contains(a, b)
	default:
		return false
	}
}

// looseEquals special-cases boolean-like strings and permits cross-type
// numeric/string equality by normalizing the non-numeric side.
func looseEquals(a, b any) bool {
	if ab, aok := booleanValue(a); aok {
		if bb, bok := booleanValue(b); bok {
			return ab == bb
		}
	}

	an, aok := numericValue(a)
	bn, bok := numericValue(b)
	if aok && bok {
		return an == bn
	}

	return reflect.DeepEqual(a, b)
}

// booleanValue recognizes booleans and the strings "true"/"false"
// (case-insensitive).
func booleanValue(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		if strings.EqualFold(val, "true") {
			return true, true
		}
		if strings.EqualFold(val, "false") {
			return false, true
		}
	}
	return false, false
}

// numericValue parses numbers and numeric strings; everything else fails.
func numericValue(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// truthy interprets an expression result as a condition outcome.
func truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case nil:
		return false
	case string:
		return val != ""
	case float64:
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}
