package services

import (
	"context"
	"testing"
	"time"

	"github.com/flowlinehq/flowline/pkg/events"
	"github.com/flowlinehq/flowline/pkg/mocks"
	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/persistence"
	"github.com/flowlinehq/flowline/pkg/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newExecutionService(t *testing.T) (*Executions, *memory.Persistence, *mocks.MockEventBus) {
	t.Helper()

	store := memory.NewPersistence()

	eventBus := &mocks.MockEventBus{}
	eventBus.On("GenerateID").Return("test-event-id")
	eventBus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	return NewExecutions(store, eventBus), store, eventBus
}

func saveExecution(t *testing.T, store *memory.Persistence, id string, status models.ExecutionStatus) *models.Execution {
	t.Helper()

	execution := &models.Execution{
		ID:           id,
		WorkspaceID:  "ws-1",
		AutomationID: "auto-1",
		DefinitionID: "def-1",
		Status:       status,
		Context:      models.NewExecutionContext(id, "ws-1", nil),
		StartedAt:    time.Now().UTC(),
	}
	require.NoError(t, store.Executions().Save(context.Background(), execution))

	return execution
}

func TestExecutions_Cancel_PausedExecution(t *testing.T) {
	service, store, eventBus := newExecutionService(t)
	ctx := context.Background()

	saveExecution(t, store, "exec-1", models.ExecutionStatusPaused)

	cancelled, err := service.Cancel(ctx, "exec-1", "operator request")
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CompletedAt)
	assert.Nil(t, cancelled.ResumeAt)
	assert.Nil(t, cancelled.NextNodeID)

	eventBus.AssertCalled(t, "Publish", mock.Anything, "exec-1",
		mock.MatchedBy(func(event events.ExecutionCancelled) bool {
			return event.ExecutionID == "exec-1" && event.Reason == "operator request"
		}))
}

func TestExecutions_Cancel_RetiresEventSubscription(t *testing.T) {
	service, store, _ := newExecutionService(t)
	ctx := context.Background()

	execution := saveExecution(t, store, "exec-1", models.ExecutionStatusPaused)

	require.NoError(t, store.Subscriptions().Save(ctx, &models.EventSubscription{
		ID:          "sub-1",
		WorkspaceID: "ws-1",
		ExecutionID: execution.ID,
		NodeID:      "wait",
		EventType:   "ticket.closed",
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
	}))

	_, err := service.Cancel(ctx, execution.ID, "")
	require.NoError(t, err)

	// A late matching event can no longer resume the execution.
	_, err = store.Subscriptions().ActiveByExecution(ctx, execution.ID)
	assert.ErrorIs(t, err, persistence.ErrSubscriptionNotFound)
}

func TestExecutions_Cancel_TerminalIsConflict(t *testing.T) {
	service, store, _ := newExecutionService(t)
	ctx := context.Background()

	for _, status := range []models.ExecutionStatus{
		models.ExecutionStatusCompleted,
		models.ExecutionStatusFailed,
		models.ExecutionStatusCancelled,
	} {
		saveExecution(t, store, "exec-"+string(status), status)

		_, err := service.Cancel(ctx, "exec-"+string(status), "")
		require.Error(t, err, string(status))
		assert.ErrorIs(t, err, ErrExecutionFinished)
		assert.True(t, IsConflictError(err))
	}
}

func TestExecutions_Cancel_NotFound(t *testing.T) {
	service, _, _ := newExecutionService(t)

	_, err := service.Cancel(context.Background(), "missing", "")
	assert.ErrorIs(t, err, ErrExecutionNotFound)
}

func TestExecutions_List_Pagination(t *testing.T) {
	service, store, _ := newExecutionService(t)
	ctx := context.Background()

	for i := range 5 {
		execution := saveExecution(t, store, "exec-"+string(rune('a'+i)), models.ExecutionStatusCompleted)
		execution.StartedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		require.NoError(t, store.Executions().Save(ctx, execution))
	}

	page, err := service.List(ctx, ListExecutionsRequest{WorkspaceID: "ws-1", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)

	rest, err := service.List(ctx, ListExecutionsRequest{WorkspaceID: "ws-1", Limit: 10, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, rest, 3)
}

func TestExecutions_List_ValidatesStatus(t *testing.T) {
	service, _, _ := newExecutionService(t)

	bogus := models.ExecutionStatus("sideways")

	_, err := service.List(context.Background(), ListExecutionsRequest{
		WorkspaceID: "ws-1",
		Status:      &bogus,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestExecutions_Get_IncludesSteps(t *testing.T) {
	service, store, _ := newExecutionService(t)
	ctx := context.Background()

	saveExecution(t, store, "exec-1", models.ExecutionStatusCompleted)

	require.NoError(t, store.Steps().Append(ctx, &models.ExecutionStep{
		ID:          "step-1",
		ExecutionID: "exec-1",
		NodeID:      "start",
		NodeType:    "log",
		Status:      models.StepStatusCompleted,
		ExecutedAt:  time.Now().UTC(),
	}))

	detail, err := service.Get(ctx, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "exec-1", detail.Execution.ID)
	require.Len(t, detail.Steps, 1)
	assert.Equal(t, "start", detail.Steps[0].NodeID)
}
