// Package runner is the reference hosting loop around the step executor: it
// drives a workflow document from its first step to completion, persisting
// snapshots and run events when a store is configured. The executor itself
// stays single-step and stateless; everything loop-shaped lives here.
package runner

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/varflow/varflow/internal/engine"
	"github.com/varflow/varflow/internal/logging"
	"github.com/varflow/varflow/internal/store"
	"github.com/varflow/varflow/pkg/schema"
)

// DefaultMaxSteps bounds a single run. Jump governance already bounds each
// evaluation step; this is the global backstop against pathological graphs.
const DefaultMaxSteps = 1000

// Runner drives a workflow to completion one step at a time.
type Runner struct {
	executor *engine.Executor
	store    store.Store
	logger   *slog.Logger
	maxSteps int
}

// Config holds optional runner collaborators.
type Config struct {
	Store    store.Store  // nil disables persistence
	Logger   *slog.Logger // nil uses slog.Default
	MaxSteps int          // 0 means DefaultMaxSteps
}

// New creates a Runner around the given executor.
func New(executor *engine.Executor, cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Runner{
		executor: executor,
		store:    cfg.Store,
		logger:   logger,
		maxSteps: maxSteps,
	}
}

// RunReport summarizes a completed run.
type RunReport struct {
	RunID         string                `json:"run_id"`
	WorkflowID    string                `json:"workflow_id"`
	Status        schema.WorkflowStatus `json:"status"`
	Workflow      *schema.Workflow      `json:"workflow"`
	Steps         []*engine.StepResult  `json:"steps"`
	StepsExecuted int                   `json:"steps_executed"`
	StartedAt     time.Time             `json:"started_at"`
	CompletedAt   time.Time             `json:"completed_at"`
	Error         string                `json:"error,omitempty"`
}

// Run executes the workflow from step 0 until the step list is exhausted, a
// step fails, the context is cancelled, or the global step cap is hit. The
// input document is not mutated; the report carries the final snapshot.
func (r *Runner) Run(ctx context.Context, wf *schema.Workflow) (*RunReport, error) {
	if wf == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow is nil")
	}

	runID := uuid.NewString()
	ctx = logging.WithIDs(ctx, wf.ID, "", runID)
	log := logging.LogWith(ctx, r.logger)

	doc := *wf
	doc.Status = schema.WorkflowStatusActive

	report := &RunReport{
		RunID:      runID,
		WorkflowID: wf.ID,
		StartedAt:  time.Now().UTC(),
	}

	r.recordEvent(ctx, runID, wf.ID, "", 0, schema.EventRunStarted, nil)
	log.InfoContext(ctx, "run started", "steps", len(doc.Steps))

	index := 0
	for report.StepsExecuted < r.maxSteps {
		if err := ctx.Err(); err != nil {
			report.Error = err.Error()
			break
		}
		if index >= len(doc.Steps) {
			break
		}

		outcome, err := r.executor.ExecuteStep(ctx, &doc, index)
		if err != nil {
			report.Error = err.Error()
			break
		}

		report.StepsExecuted++
		report.Steps = append(report.Steps, outcome.Result)
		doc.State = outcome.State
		doc.Jumps = outcome.Jumps

		eventType := schema.EventStepCompleted
		if !outcome.Result.Success {
			eventType = schema.EventStepFailed
		}
		r.recordEvent(ctx, runID, wf.ID, outcome.Result.StepID, index, eventType, outcome.Result)

		if !outcome.Result.Success {
			report.Error = outcome.Result.Error
			break
		}
		index = outcome.NextIndex
	}

	if report.Error == "" && index < len(doc.Steps) && report.StepsExecuted >= r.maxSteps {
		report.Error = "step cap exceeded"
	}

	if report.Error != "" {
		doc.Status = schema.WorkflowStatusFailed
		report.Status = schema.WorkflowStatusFailed
		r.recordEvent(ctx, runID, wf.ID, "", index, schema.EventRunFailed, map[string]any{"error": report.Error})
		log.WarnContext(ctx, "run failed", "error", report.Error, "steps_executed", report.StepsExecuted)
	} else {
		doc.Status = schema.WorkflowStatusCompleted
		report.Status = schema.WorkflowStatusCompleted
		r.recordEvent(ctx, runID, wf.ID, "", index, schema.EventRunCompleted, map[string]any{"steps_executed": report.StepsExecuted})
		log.InfoContext(ctx, "run completed", "steps_executed", report.StepsExecuted)
	}

	report.Workflow = &doc
	report.CompletedAt = time.Now().UTC()
	r.persistSnapshot(ctx, runID, &doc, report)
	return report, nil
}

// recordEvent appends a run event to the store. Persistence failures are
// logged, never propagated into the run.
func (r *Runner) recordEvent(ctx context.Context, runID, workflowID, stepID string, index int, eventType string, payload any) {
	if r.store == nil {
		return
	}
	var raw json.RawMessage
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			raw = b
		}
	}
	event := &store.RunEvent{
		RunID:      runID,
		WorkflowID: workflowID,
		StepID:     stepID,
		StepIndex:  index,
		Type:       eventType,
		Payload:    raw,
	}
	if err := r.store.AppendEvent(ctx, event); err != nil {
		logging.LogWith(ctx, r.logger).WarnContext(ctx, "append run event failed",
			"event_type", eventType, "error", err)
	}
}

// persistSnapshot writes the final document back to the store, creating the
// row if this workflow was never stored.
func (r *Runner) persistSnapshot(ctx context.Context, runID string, doc *schema.Workflow, report *RunReport) {
	if r.store == nil {
		return
	}
	log := logging.LogWith(ctx, r.logger)

	var errRaw json.RawMessage
	if report.Error != "" {
		if b, err := json.Marshal(map[string]any{"error": report.Error}); err == nil {
			errRaw = b
		}
	}

	update := store.WorkflowUpdate{
		Document:  doc,
		Status:    &report.Status,
		LastRunID: runID,
		Error:     errRaw,
	}
	err := r.store.UpdateWorkflow(ctx, doc.ID, update)
	if err == nil {
		return
	}
	if ferr, ok := err.(*schema.FlowError); ok && ferr.Code == schema.ErrCodeNotFound {
		createErr := r.store.CreateWorkflow(ctx, &store.Workflow{
			ID:        doc.ID,
			Name:      doc.Name,
			Document:  doc,
			Status:    report.Status,
			LastRunID: runID,
			Error:     errRaw,
		})
		if createErr != nil {
			log.WarnContext(ctx, "persist workflow snapshot failed", "error", createErr)
		}
		return
	}
	log.WarnContext(ctx, "persist workflow snapshot failed", "error", err)
}
