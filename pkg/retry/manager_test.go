package retry

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/flowlinehq/flowline/pkg/mocks"
	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *memory.Persistence, *mocks.MockEventBus, *mocks.MockNotifier) {
	t.Helper()

	store := memory.NewPersistence()

	eventBus := &mocks.MockEventBus{}
	eventBus.On("GenerateID").Return("test-event-id")
	eventBus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	notifier := &mocks.MockNotifier{}
	notifier.On("NotifyFailure", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	manager := NewManager(store, eventBus, notifier, logger)

	return manager, store, eventBus, notifier
}

func seedRunningExecution(t *testing.T, store *memory.Persistence) (*models.Execution, *models.Automation, *models.Node) {
	t.Helper()

	ctx := context.Background()

	automation := &models.Automation{
		ID:           "auto-1",
		WorkspaceID:  "ws-1",
		Name:         "Order sync",
		DefinitionID: "def-1",
		TriggerType:  "record.created",
		RetryConfig:  models.DefaultRetryConfig(),
		Enabled:      true,
	}
	require.NoError(t, store.Automations().Save(ctx, automation))

	execution := &models.Execution{
		ID:                "exec-1",
		WorkspaceID:       "ws-1",
		AutomationID:      automation.ID,
		DefinitionID:      "def-1",
		DefinitionVersion: 1,
		Status:            models.ExecutionStatusRunning,
		Context:           models.NewExecutionContext("exec-1", "ws-1", map[string]any{"order_id": "o-42"}),
		StartedAt:         time.Now().UTC(),
	}
	require.NoError(t, store.Executions().Save(ctx, execution))

	node := &models.Node{
		ID:      "sync-node",
		Type:    "http_request",
		Name:    "Sync order",
		Config:  map[string]any{"url": "https://api.example.com/orders"},
		Enabled: true,
	}

	return execution, automation, node
}

func TestHandleFailure_SchedulesRetryWithBackoff(t *testing.T) {
	manager, store, _, _ := newTestManager(t)
	execution, automation, node := seedRunningExecution(t, store)

	ctx := context.Background()
	cause := models.NewNodeError(models.ErrorTypeConnectionError, errors.New("connection refused"))

	before := time.Now().UTC()

	err := manager.HandleFailure(ctx, Failure{
		Execution:  execution,
		Automation: automation,
		Node:       node,
		Input:      node.Config,
		Err:        cause,
	})
	require.NoError(t, err)

	stored, err := store.Executions().ByID(ctx, execution.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusPaused, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	require.NotNil(t, stored.ResumeAt)
	require.NotNil(t, stored.NextNodeID)
	assert.Equal(t, node.ID, *stored.NextNodeID)

	// First retry waits the initial delay.
	delay := stored.ResumeAt.Sub(before)
	assert.InDelta(t, float64(60*time.Second), float64(delay), float64(5*time.Second))

	steps, err := store.Steps().ListByExecution(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, models.StepStatusRetrying, steps[0].Status)
	assert.Equal(t, models.ErrorTypeConnectionError, steps[0].ErrorType)
	assert.Equal(t, 1, steps[0].RetryCount)
}

func TestHandleFailure_DeadLettersAfterMaxRetries(t *testing.T) {
	manager, store, _, notifier := newTestManager(t)
	execution, automation, node := seedRunningExecution(t, store)

	ctx := context.Background()
	cause := models.NewNodeError(models.ErrorTypeConnectionError, errors.New("connection refused"))

	// Exhaust the retry budget: three scheduled retries, then the terminal
	// failure on the fourth attempt.
	current := execution

	for attempt := 1; attempt <= 4; attempt++ {
		err := manager.HandleFailure(ctx, Failure{
			Execution:  current,
			Automation: automation,
			Node:       node,
			Input:      node.Config,
			Err:        cause,
		})
		require.NoError(t, err)

		current, err = store.Executions().ByID(ctx, execution.ID)
		require.NoError(t, err)

		if attempt < 4 {
			assert.Equal(t, models.ExecutionStatusPaused, current.Status)
			assert.Equal(t, attempt, current.RetryCount)

			// Simulate the worker picking the retry back up.
			claimed, err := store.Executions().Claim(ctx, execution.ID,
				models.ExecutionStatusPaused, models.ExecutionStatusRunning)
			require.NoError(t, err)
			require.True(t, claimed)

			current.Status = models.ExecutionStatusRunning
		}
	}

	assert.Equal(t, models.ExecutionStatusFailed, current.Status)
	assert.NotNil(t, current.CompletedAt)
	require.NotNil(t, current.ErrorNodeID)
	assert.Equal(t, node.ID, *current.ErrorNodeID)

	steps, err := store.Steps().ListByExecution(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, steps, 4)

	retrying := 0
	failed := 0

	for _, step := range steps {
		switch step.Status {
		case models.StepStatusRetrying:
			retrying++
		case models.StepStatusFailed:
			failed++
		}
	}

	assert.Equal(t, 3, retrying)
	assert.Equal(t, 1, failed)

	pending := models.DeadLetterStatusPending

	entries, err := store.DeadLetters().ListByWorkspace(ctx, "ws-1", &pending)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, node.ID, entries[0].NodeID)
	assert.Equal(t, 3, entries[0].RetryCount)
	assert.Equal(t, models.ErrorTypeConnectionError, entries[0].ErrorType)
	require.NotNil(t, entries[0].ExecutionContext)
	assert.Equal(t, "o-42", entries[0].ExecutionContext.TriggerData["order_id"])

	notifier.AssertNumberOfCalls(t, "NotifyFailure", 1)
}

func TestHandleFailure_NonRetryableGoesStraightToDeadLetter(t *testing.T) {
	manager, store, _, _ := newTestManager(t)
	execution, automation, node := seedRunningExecution(t, store)

	ctx := context.Background()

	err := manager.HandleFailure(ctx, Failure{
		Execution:  execution,
		Automation: automation,
		Node:       node,
		Input:      node.Config,
		Err:        models.NewValidationError("missing required field 'url'"),
	})
	require.NoError(t, err)

	stored, err := store.Executions().ByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)

	steps, err := store.Steps().ListByExecution(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, models.StepStatusFailed, steps[0].Status)

	entries, err := store.DeadLetters().ListByWorkspace(ctx, "ws-1", nil)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, models.ErrorTypeValidation, entries[0].ErrorType)
}

func TestHandleFailure_UnknownErrorsAreNotRetried(t *testing.T) {
	manager, store, _, _ := newTestManager(t)
	execution, automation, node := seedRunningExecution(t, store)

	ctx := context.Background()

	err := manager.HandleFailure(ctx, Failure{
		Execution:  execution,
		Automation: automation,
		Node:       node,
		Err:        errors.New("something odd happened"),
	})
	require.NoError(t, err)

	stored, err := store.Executions().ByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)

	entries, err := store.DeadLetters().ListByWorkspace(ctx, "ws-1", nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ErrorTypeUnknown, entries[0].ErrorType)
}
