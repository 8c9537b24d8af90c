package store

import (
	"encoding/json"
	"time"

	"github.com/varflow/varflow/pkg/schema"
)

// Workflow is the persisted representation of a workflow document. The
// engine never touches storage; hosting code snapshots documents here
// between calls.
type Workflow struct {
	ID        string                `json:"id"`
	Name      string                `json:"name,omitempty"`
	Document  *schema.Workflow      `json:"document"`
	Status    schema.WorkflowStatus `json:"status"`
	LastRunID string                `json:"last_run_id,omitempty"`
	Error     json.RawMessage       `json:"error,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// RunEvent is an immutable entry in the run history log.
type RunEvent struct {
	ID         int64           `json:"id"`
	RunID      string          `json:"run_id"`
	WorkflowID string          `json:"workflow_id"`
	StepID     string          `json:"step_id,omitempty"`
	StepIndex  int             `json:"step_index"`
	Type       string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Sequence   int64           `json:"sequence"`
}

// ScheduledJob is a cron-triggered run of a stored workflow.
type ScheduledJob struct {
	ID             string     `json:"id"`
	WorkflowID     string     `json:"workflow_id"`
	CronExpression string     `json:"cron_expression"`
	Enabled        bool       `json:"enabled"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus  string     `json:"last_run_status,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// --- Filter and update types ---

// WorkflowFilter specifies criteria for listing workflows.
type WorkflowFilter struct {
	Status *schema.WorkflowStatus `json:"status,omitempty"`
	Since  *time.Time             `json:"since,omitempty"`
	Limit  int                    `json:"limit,omitempty"`
	Offset int                    `json:"offset,omitempty"`
}

// WorkflowUpdate specifies mutable fields of a stored workflow.
type WorkflowUpdate struct {
	Document  *schema.Workflow       `json:"document,omitempty"`
	Status    *schema.WorkflowStatus `json:"status,omitempty"`
	LastRunID string                 `json:"last_run_id,omitempty"`
	Error     json.RawMessage        `json:"error,omitempty"`
}

// EventFilter specifies criteria for listing run events.
type EventFilter struct {
	RunID      string `json:"run_id,omitempty"`
	WorkflowID string `json:"workflow_id,omitempty"`
	StepID     string `json:"step_id,omitempty"`
	EventType  string `json:"event_type,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// ScheduledJobUpdate specifies mutable fields of a scheduled job.
type ScheduledJobUpdate struct {
	Enabled       *bool      `json:"enabled,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
}

// ScheduledJobFilter specifies criteria for listing scheduled jobs.
type ScheduledJobFilter struct {
	Enabled    *bool  `json:"enabled,omitempty"`
	WorkflowID string `json:"workflow_id,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}
