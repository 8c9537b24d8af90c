package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varflow/varflow/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})
	return s
}

func sampleDocument() *schema.Workflow {
	return &schema.Workflow{
		ID:     uuid.New().String(),
		Name:   "demo",
		Status: schema.WorkflowStatusDraft,
		State: []schema.Variable{
			{ID: "v1", Name: "topic", Schema: schema.ValueSchema{Type: schema.TypeString}, IOType: schema.IOInput, Value: "go"},
		},
		Steps: []schema.Step{
			{ID: "s1", SequenceNumber: 0, Type: schema.StepTypeAction, Tool: &schema.ToolRef{ID: "tool-1"}},
		},
	}
}

func seedWorkflow(t *testing.T, s *LibSQLStore) *Workflow {
	t.Helper()
	doc := sampleDocument()
	wf := &Workflow{ID: doc.ID, Name: doc.Name, Document: doc}
	require.NoError(t, s.CreateWorkflow(context.Background(), wf))
	return wf
}

// --- Workflow Tests ---

func TestCreateAndGetWorkflow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s)

	got, err := s.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.ID, got.ID)
	assert.Equal(t, "demo", got.Name)
	assert.Equal(t, schema.WorkflowStatusDraft, got.Status)
	require.NotNil(t, got.Document)
	assert.Equal(t, "topic", got.Document.State[0].Name)
	assert.Equal(t, "go", got.Document.State[0].Value)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGetWorkflow_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetWorkflow(context.Background(), "nonexistent")
	require.Error(t, err)
	ferr, ok := err.(*schema.FlowError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeNotFound, ferr.Code)
}

func TestCreateWorkflow_NilDocument(t *testing.T) {
	s := newTestStore(t)
	err := s.CreateWorkflow(context.Background(), &Workflow{ID: "wf-x"})
	require.Error(t, err)
}

func TestUpdateWorkflow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s)

	completed := schema.WorkflowStatusCompleted
	doc := *wf.Document
	doc.Status = completed
	doc.Jumps = map[string]int{"s1": 1}

	require.NoError(t, s.UpdateWorkflow(ctx, wf.ID, WorkflowUpdate{
		Document:  &doc,
		Status:    &completed,
		LastRunID: "run-1",
	}))

	got, err := s.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, completed, got.Status)
	assert.Equal(t, "run-1", got.LastRunID)
	assert.Equal(t, 1, got.Document.Jumps["s1"])
}

func TestUpdateWorkflow_NotFound(t *testing.T) {
	s := newTestStore(t)
	status := schema.WorkflowStatusFailed
	err := s.UpdateWorkflow(context.Background(), "nope", WorkflowUpdate{Status: &status})
	require.Error(t, err)
}

func TestUpdateWorkflow_EmptyUpdateIsNoop(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpdateWorkflow(context.Background(), "even-missing", WorkflowUpdate{}))
}

func TestListWorkflows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedWorkflow(t, s)
	wf2 := seedWorkflow(t, s)

	failed := schema.WorkflowStatusFailed
	require.NoError(t, s.UpdateWorkflow(ctx, wf2.ID, WorkflowUpdate{Status: &failed}))

	all, err := s.ListWorkflows(ctx, WorkflowFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyFailed, err := s.ListWorkflows(ctx, WorkflowFilter{Status: &failed})
	require.NoError(t, err)
	require.Len(t, onlyFailed, 1)
	assert.Equal(t, wf2.ID, onlyFailed[0].ID)

	limited, err := s.ListWorkflows(ctx, WorkflowFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestDeleteWorkflow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s)

	require.NoError(t, s.DeleteWorkflow(ctx, wf.ID))
	_, err := s.GetWorkflow(ctx, wf.ID)
	require.Error(t, err)

	require.Error(t, s.DeleteWorkflow(ctx, wf.ID))
}

// --- Run Event Tests ---

func TestAppendAndGetEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	runID := uuid.New().String()

	for i, et := range []string{schema.EventRunStarted, schema.EventStepCompleted, schema.EventRunCompleted} {
		require.NoError(t, s.AppendEvent(ctx, &RunEvent{
			RunID:      runID,
			WorkflowID: "wf-1",
			StepIndex:  i,
			Type:       et,
			Payload:    json.RawMessage(`{"n":1}`),
		}))
	}

	events, err := s.GetEvents(ctx, EventFilter{RunID: runID})
	require.NoError(t, err)
	require.Len(t, events, 3)

	// Sequence numbers are per-run and monotonic.
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.Sequence)
		assert.Equal(t, runID, e.RunID)
	}
	assert.Equal(t, schema.EventRunStarted, events[0].Type)
	assert.JSONEq(t, `{"n":1}`, string(events[0].Payload))
}

func TestGetEventsByType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	runID := uuid.New().String()

	require.NoError(t, s.AppendEvent(ctx, &RunEvent{RunID: runID, WorkflowID: "wf-1", Type: schema.EventStepCompleted}))
	require.NoError(t, s.AppendEvent(ctx, &RunEvent{RunID: runID, WorkflowID: "wf-1", Type: schema.EventStepFailed, StepID: "s2"}))

	failed, err := s.GetEvents(ctx, EventFilter{WorkflowID: "wf-1", EventType: schema.EventStepFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "s2", failed[0].StepID)
}

func TestEventSequencesAreIndependentPerRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	runA, runB := uuid.New().String(), uuid.New().String()
	require.NoError(t, s.AppendEvent(ctx, &RunEvent{RunID: runA, WorkflowID: "wf-1", Type: schema.EventRunStarted}))
	require.NoError(t, s.AppendEvent(ctx, &RunEvent{RunID: runB, WorkflowID: "wf-1", Type: schema.EventRunStarted}))

	eventsB, err := s.GetEvents(ctx, EventFilter{RunID: runB})
	require.NoError(t, err)
	require.Len(t, eventsB, 1)
	assert.Equal(t, int64(1), eventsB[0].Sequence)
}

// --- Scheduled Job Tests ---

func TestScheduledJobLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	wf := seedWorkflow(t, s)

	job := &ScheduledJob{
		ID:             uuid.New().String(),
		WorkflowID:     wf.ID,
		CronExpression: "*/5 * * * *",
		Enabled:        true,
	}
	require.NoError(t, s.CreateScheduledJob(ctx, job))

	got, err := s.GetScheduledJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "*/5 * * * *", got.CronExpression)
	assert.True(t, got.Enabled)
	assert.Nil(t, got.LastRunAt)

	disabled := false
	require.NoError(t, s.UpdateScheduledJob(ctx, job.ID, ScheduledJobUpdate{
		Enabled:       &disabled,
		LastRunStatus: "success",
	}))

	got, err = s.GetScheduledJob(ctx, job.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Equal(t, "success", got.LastRunStatus)

	enabled := true
	onlyEnabled, err := s.ListScheduledJobs(ctx, ScheduledJobFilter{Enabled: &enabled})
	require.NoError(t, err)
	assert.Empty(t, onlyEnabled)

	require.NoError(t, s.DeleteScheduledJob(ctx, job.ID))
	_, err = s.GetScheduledJob(ctx, job.ID)
	require.Error(t, err)
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Migrate(context.Background()))
}

func TestVacuum(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Vacuum(context.Background()))
}
