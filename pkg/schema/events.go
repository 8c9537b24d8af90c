package schema

// Event type constants for the run event log.
const (
	EventRunStarted   = "run_started"
	EventRunCompleted = "run_completed"
	EventRunFailed    = "run_failed"

	EventStepStarted   = "step_started"
	EventStepProgress  = "step_progress"
	EventStepCompleted = "step_completed"
	EventStepFailed    = "step_failed"

	EventConditionEvaluated = "condition_evaluated"
	EventJumpTaken          = "jump_taken"
	EventJumpBlocked        = "jump_blocked"

	EventStateReset = "state_reset"
)

// StatusUpdate is delivered to the optional status sink at each phase
// boundary of a step execution. It is purely observational.
type StatusUpdate struct {
	WorkflowID string         `json:"workflow_id"`
	StepID     string         `json:"step_id"`
	StepIndex  int            `json:"step_index"`
	Status     StepStatus     `json:"status"`
	Message    string         `json:"message,omitempty"`
	Progress   float64        `json:"progress,omitempty"` // 0..1
	Result     map[string]any `json:"result,omitempty"`
}
