package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionClaim_ConditionalTransition(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence()

	execution := &models.Execution{
		ID:          "exec-1",
		WorkspaceID: "ws-1",
		Status:      models.ExecutionStatusPending,
	}
	require.NoError(t, store.Executions().Save(ctx, execution))

	claimed, err := store.Executions().Claim(ctx, "exec-1",
		models.ExecutionStatusPending, models.ExecutionStatusRunning)
	require.NoError(t, err)
	assert.True(t, claimed)

	// Second claim from the same state loses.
	claimed, err = store.Executions().Claim(ctx, "exec-1",
		models.ExecutionStatusPending, models.ExecutionStatusRunning)
	require.NoError(t, err)
	assert.False(t, claimed)

	stored, err := store.Executions().ByID(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, stored.Status)
}

func TestExecutionClaim_OnlyOneWorkerWins(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence()

	require.NoError(t, store.Executions().Save(ctx, &models.Execution{
		ID:     "exec-1",
		Status: models.ExecutionStatusPaused,
	}))

	const workers = 16

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)

	for range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			won, err := store.Executions().Claim(ctx, "exec-1",
				models.ExecutionStatusPaused, models.ExecutionStatusRunning)
			if err == nil && won {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestExecutionClaim_NotFound(t *testing.T) {
	store := NewPersistence()

	_, err := store.Executions().Claim(context.Background(), "missing",
		models.ExecutionStatusPending, models.ExecutionStatusRunning)
	assert.ErrorIs(t, err, persistence.ErrExecutionNotFound)
}

func TestExecutionSaveIfStatus_GuardsOnCurrentStatus(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence()

	execution := &models.Execution{
		ID:          "exec-1",
		WorkspaceID: "ws-1",
		Status:      models.ExecutionStatusPaused,
	}
	require.NoError(t, store.Executions().Save(ctx, execution))

	nextNode := "after"
	execution.NextNodeID = &nextNode

	saved, err := store.Executions().SaveIfStatus(ctx, execution, models.ExecutionStatusPaused)
	require.NoError(t, err)
	assert.True(t, saved)

	// The row moves on, then a stale writer retries the same update.
	claimed, err := store.Executions().Claim(ctx, "exec-1",
		models.ExecutionStatusPaused, models.ExecutionStatusCancelled)
	require.NoError(t, err)
	require.True(t, claimed)

	saved, err = store.Executions().SaveIfStatus(ctx, execution, models.ExecutionStatusPaused)
	require.NoError(t, err)
	assert.False(t, saved)

	stored, err := store.Executions().ByID(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, stored.Status)
}

func TestExecutionSaveIfStatus_NotFound(t *testing.T) {
	store := NewPersistence()

	_, err := store.Executions().SaveIfStatus(context.Background(),
		&models.Execution{ID: "missing", Status: models.ExecutionStatusPaused},
		models.ExecutionStatusPaused)
	assert.ErrorIs(t, err, persistence.ErrExecutionNotFound)
}

func TestExecutionSave_IsolatesCallerMutation(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence()

	execution := &models.Execution{
		ID:      "exec-1",
		Context: models.NewExecutionContext("exec-1", "ws-1", map[string]any{"key": "original"}),
	}
	require.NoError(t, store.Executions().Save(ctx, execution))

	execution.Context.TriggerData["key"] = "mutated"

	stored, err := store.Executions().ByID(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "original", stored.Context.TriggerData["key"])

	stored.Context.TriggerData["key"] = "mutated again"

	reread, err := store.Executions().ByID(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "original", reread.Context.TriggerData["key"])
}

func TestListDueResumes(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence()
	now := time.Now().UTC()

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	require.NoError(t, store.Executions().Save(ctx, &models.Execution{
		ID: "due", Status: models.ExecutionStatusPaused, ResumeAt: &past,
	}))
	require.NoError(t, store.Executions().Save(ctx, &models.Execution{
		ID: "not-yet", Status: models.ExecutionStatusPaused, ResumeAt: &future,
	}))
	require.NoError(t, store.Executions().Save(ctx, &models.Execution{
		ID: "running", Status: models.ExecutionStatusRunning, ResumeAt: &past,
	}))
	require.NoError(t, store.Executions().Save(ctx, &models.Execution{
		ID: "no-timer", Status: models.ExecutionStatusPaused,
	}))

	due, err := store.Executions().ListDueResumes(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "due", due[0].ID)
}

func TestListEventTimeouts(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence()
	now := time.Now().UTC()

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	eventType := "ticket.closed"

	require.NoError(t, store.Executions().Save(ctx, &models.Execution{
		ID: "expired", Status: models.ExecutionStatusPaused,
		WaitEventType: &eventType, WaitTimeoutAt: &past,
	}))
	require.NoError(t, store.Executions().Save(ctx, &models.Execution{
		ID: "still-waiting", Status: models.ExecutionStatusPaused,
		WaitEventType: &eventType, WaitTimeoutAt: &future,
	}))
	require.NoError(t, store.Executions().Save(ctx, &models.Execution{
		ID: "no-deadline", Status: models.ExecutionStatusPaused,
		WaitEventType: &eventType,
	}))

	timedOut, err := store.Executions().ListEventTimeouts(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, timedOut, 1)
	assert.Equal(t, "expired", timedOut[0].ID)
}

func TestSubscriptionDeactivate_FirstCallerWins(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence()

	require.NoError(t, store.Subscriptions().Save(ctx, &models.EventSubscription{
		ID:          "sub-1",
		WorkspaceID: "ws-1",
		ExecutionID: "exec-1",
		NodeID:      "wait",
		EventType:   "ticket.closed",
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
	}))

	won, err := store.Subscriptions().Deactivate(ctx, "sub-1", map[string]any{"ticket_id": "t-1"})
	require.NoError(t, err)
	assert.True(t, won)

	won, err = store.Subscriptions().Deactivate(ctx, "sub-1", map[string]any{"timed_out": true})
	require.NoError(t, err)
	assert.False(t, won)

	// The loser must not overwrite the matched data.
	_, err = store.Subscriptions().ActiveByExecution(ctx, "exec-1")
	assert.ErrorIs(t, err, persistence.ErrSubscriptionNotFound)
}

func TestSubscriptionActiveByExecution(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence()

	require.NoError(t, store.Subscriptions().Save(ctx, &models.EventSubscription{
		ID:          "sub-1",
		ExecutionID: "exec-1",
		EventType:   "ticket.closed",
		IsActive:    true,
	}))

	sub, err := store.Subscriptions().ActiveByExecution(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "sub-1", sub.ID)

	_, err = store.Subscriptions().ActiveByExecution(ctx, "other-exec")
	assert.ErrorIs(t, err, persistence.ErrSubscriptionNotFound)
}

func TestStepsAppend_OrderedByExecutedAt(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence()
	base := time.Now().UTC()

	for i, nodeID := range []string{"first", "second", "third"} {
		require.NoError(t, store.Steps().Append(ctx, &models.ExecutionStep{
			ID:          nodeID,
			ExecutionID: "exec-1",
			NodeID:      nodeID,
			NodeType:    "log",
			Status:      models.StepStatusCompleted,
			ExecutedAt:  base.Add(time.Duration(i) * time.Second),
		}))
	}

	steps, err := store.Steps().ListByExecution(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, "first", steps[0].NodeID)
	assert.Equal(t, "second", steps[1].NodeID)
	assert.Equal(t, "third", steps[2].NodeID)
}

func TestAutomationCounters(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence()

	require.NoError(t, store.Automations().Save(ctx, &models.Automation{
		ID:          "auto-1",
		WorkspaceID: "ws-1",
		Name:        "Counter test",
	}))

	require.NoError(t, store.Automations().IncrementRuns(ctx, "auto-1"))
	require.NoError(t, store.Automations().IncrementRuns(ctx, "auto-1"))
	require.NoError(t, store.Automations().RecordResult(ctx, "auto-1", true))
	require.NoError(t, store.Automations().RecordResult(ctx, "auto-1", false))

	automation, err := store.Automations().ByID(ctx, "auto-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), automation.TotalRuns)
	assert.Equal(t, int64(2), automation.RunsThisMonth)
	assert.Equal(t, int64(1), automation.SuccessfulRuns)
	assert.Equal(t, int64(1), automation.FailedRuns)
}

func TestDefinitionDelete_SoftDeletes(t *testing.T) {
	ctx := context.Background()
	store := NewPersistence()

	require.NoError(t, store.Definitions().Save(ctx, &models.WorkflowDefinition{
		ID:          "def-1",
		WorkspaceID: "ws-1",
		Name:        "To delete",
		Status:      models.DefinitionStatusDraft,
	}))

	require.NoError(t, store.Definitions().Delete(ctx, "def-1"))

	_, err := store.Definitions().ByID(ctx, "def-1")
	assert.ErrorIs(t, err, persistence.ErrDefinitionNotFound)

	listed, err := store.Definitions().ByWorkspace(ctx, "ws-1")
	require.NoError(t, err)
	assert.Empty(t, listed)
}
