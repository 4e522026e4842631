package scheduler

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/flowlinehq/flowline/pkg/events"
	"github.com/flowlinehq/flowline/pkg/mocks"
	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/notify"
	"github.com/flowlinehq/flowline/pkg/persistence"
	"github.com/flowlinehq/flowline/pkg/persistence/memory"
	"github.com/flowlinehq/flowline/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestPoller(t *testing.T) (*Poller, *memory.Persistence, *mocks.MockEventBus) {
	t.Helper()

	store := memory.NewPersistence()

	eventBus := &mocks.MockEventBus{}
	eventBus.On("GenerateID").Return("test-event-id")
	eventBus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	retryManager := retry.NewManager(store, eventBus, notify.NewLogNotifier(logger), logger)

	return NewPoller(store, eventBus, retryManager, logger), store, eventBus
}

func TestSweep_RequestsResumeForDueTimers(t *testing.T) {
	poller, store, eventBus := newTestPoller(t)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Minute)
	future := time.Now().UTC().Add(time.Hour)

	require.NoError(t, store.Executions().Save(ctx, &models.Execution{
		ID: "due", WorkspaceID: "ws-1", Status: models.ExecutionStatusPaused, ResumeAt: &past,
	}))
	require.NoError(t, store.Executions().Save(ctx, &models.Execution{
		ID: "later", WorkspaceID: "ws-1", Status: models.ExecutionStatusPaused, ResumeAt: &future,
	}))

	poller.Sweep(ctx)

	eventBus.AssertCalled(t, "Publish", mock.Anything, "due",
		mock.MatchedBy(func(event events.ExecutionResumeRequested) bool {
			return event.ExecutionID == "due" && event.Reason == "timer_elapsed"
		}))

	for _, call := range eventBus.Calls {
		if call.Method == "Publish" {
			assert.NotEqual(t, "later", call.Arguments.String(1))
		}
	}
}

// seedTimedOutWait parks an execution on an event wait whose deadline has
// passed. withTimeoutEdge controls whether the wait node models a timeout
// branch.
func seedTimedOutWait(t *testing.T, store *memory.Persistence, withTimeoutEdge bool) *models.Execution {
	t.Helper()

	ctx := context.Background()

	edges := []*models.Edge{
		{ID: "e1", SourceNodeID: "wait", SourcePort: models.PortMain, TargetNodeID: "happy"},
	}
	if withTimeoutEdge {
		edges = append(edges, &models.Edge{
			ID: "e2", SourceNodeID: "wait", SourcePort: models.PortTimeout, TargetNodeID: "escalate",
		})
	}

	require.NoError(t, store.Versions().Save(ctx, &models.WorkflowVersion{
		ID:           "ver-1",
		DefinitionID: "def-1",
		Version:      1,
		Graph: &models.Graph{
			Nodes: []*models.Node{
				{ID: "wait", Type: "wait_event", Name: "Wait", Enabled: true,
					Config: map[string]any{"event_type": "approval.granted"}},
				{ID: "happy", Type: "log", Name: "Happy", Enabled: true,
					Config: map[string]any{"message": "approved"}},
				{ID: "escalate", Type: "log", Name: "Escalate", Enabled: true,
					Config: map[string]any{"message": "escalating"}},
			},
			Edges: edges,
		},
		CreatedAt: time.Now().UTC(),
	}))

	require.NoError(t, store.Automations().Save(ctx, &models.Automation{
		ID:           "auto-1",
		WorkspaceID:  "ws-1",
		Name:         "Approval chase",
		DefinitionID: "def-1",
		TriggerType:  "form.submitted",
		RetryConfig:  models.DefaultRetryConfig(),
		Enabled:      true,
	}))

	eventType := "approval.granted"
	deadline := time.Now().UTC().Add(-time.Minute)
	execution := &models.Execution{
		ID:                "exec-1",
		WorkspaceID:       "ws-1",
		AutomationID:      "auto-1",
		DefinitionID:      "def-1",
		DefinitionVersion: 1,
		Status:            models.ExecutionStatusPaused,
		WaitEventType:     &eventType,
		WaitTimeoutAt:     &deadline,
		Context:           models.NewExecutionContext("exec-1", "ws-1", nil),
		StartedAt:         time.Now().UTC().Add(-time.Hour),
	}
	require.NoError(t, store.Executions().Save(ctx, execution))

	require.NoError(t, store.Subscriptions().Save(ctx, &models.EventSubscription{
		ID:          "sub-1",
		WorkspaceID: "ws-1",
		ExecutionID: "exec-1",
		NodeID:      "wait",
		EventType:   eventType,
		IsActive:    true,
		TimeoutAt:   &deadline,
		CreatedAt:   time.Now().UTC().Add(-time.Hour),
	}))

	return execution
}

func TestSweep_TimeoutTakesTimeoutBranch(t *testing.T) {
	poller, store, eventBus := newTestPoller(t)
	execution := seedTimedOutWait(t, store, true)

	ctx := context.Background()
	poller.Sweep(ctx)

	// The subscription is retired.
	_, err := store.Subscriptions().ActiveByExecution(ctx, execution.ID)
	assert.ErrorIs(t, err, persistence.ErrSubscriptionNotFound)

	stored, err := store.Executions().ByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPaused, stored.Status)
	assert.Nil(t, stored.WaitEventType)
	require.NotNil(t, stored.NextNodeID)
	assert.Equal(t, "escalate", *stored.NextNodeID)

	output := stored.Context.NodeOutput("wait")
	require.NotNil(t, output)
	assert.Equal(t, true, output["timed_out"])

	eventBus.AssertCalled(t, "Publish", mock.Anything, execution.ID,
		mock.MatchedBy(func(event events.ExecutionResumeRequested) bool {
			return event.Reason == "wait_timeout"
		}))
}

func TestSweep_TimeoutWithoutBranchFailsWait(t *testing.T) {
	poller, store, _ := newTestPoller(t)
	execution := seedTimedOutWait(t, store, false)

	ctx := context.Background()
	poller.Sweep(ctx)

	stored, err := store.Executions().ByID(ctx, execution.ID)
	require.NoError(t, err)

	// wait_timeout is not retryable under the default policy, so the wait
	// node dead-letters.
	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)

	entries, err := store.DeadLetters().ListByWorkspace(ctx, "ws-1", nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "wait", entries[0].NodeID)
	assert.Equal(t, models.ErrorTypeWaitTimeout, entries[0].ErrorType)

	steps, err := store.Steps().ListByExecution(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, models.StepStatusFailed, steps[0].Status)
}

// cancelDuringTimeout wraps the store so the execution gets cancelled while
// the poller is between its sweep and its timeout-branch write.
type cancelDuringTimeout struct {
	*memory.Persistence
	executionID string
}

func (s *cancelDuringTimeout) Versions() persistence.VersionRepository {
	return &cancellingVersionRepo{
		VersionRepository: s.Persistence.Versions(),
		store:             s.Persistence,
		executionID:       s.executionID,
	}
}

type cancellingVersionRepo struct {
	persistence.VersionRepository
	store       *memory.Persistence
	executionID string
}

func (r *cancellingVersionRepo) ByDefinitionAndVersion(ctx context.Context, definitionID string, version int) (*models.WorkflowVersion, error) {
	_, err := r.store.Executions().Claim(ctx, r.executionID,
		models.ExecutionStatusPaused, models.ExecutionStatusCancelled)
	if err != nil {
		return nil, err
	}

	return r.VersionRepository.ByDefinitionAndVersion(ctx, definitionID, version)
}

func TestSweep_CancelDuringTimeoutIsNotOverwritten(t *testing.T) {
	store := memory.NewPersistence()

	eventBus := &mocks.MockEventBus{}
	eventBus.On("GenerateID").Return("test-event-id")
	eventBus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	retryManager := retry.NewManager(store, eventBus, notify.NewLogNotifier(logger), logger)
	poller := NewPoller(&cancelDuringTimeout{Persistence: store, executionID: "exec-1"}, eventBus, retryManager, logger)

	execution := seedTimedOutWait(t, store, true)
	ctx := context.Background()

	poller.Sweep(ctx)

	// The cancel that landed mid-sweep sticks; no resume goes out.
	stored, err := store.Executions().ByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, stored.Status)
	assert.Nil(t, stored.NextNodeID)

	eventBus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestSweep_TimeoutSkippedWhenMatcherWon(t *testing.T) {
	poller, store, eventBus := newTestPoller(t)
	execution := seedTimedOutWait(t, store, true)

	ctx := context.Background()

	// A matcher consumed the subscription just before the sweep.
	won, err := store.Subscriptions().Deactivate(ctx, "sub-1", map[string]any{"ticket_id": "t-1"})
	require.NoError(t, err)
	require.True(t, won)

	poller.Sweep(ctx)

	stored, err := store.Executions().ByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPaused, stored.Status)

	eventBus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestWithInterval(t *testing.T) {
	poller, _, _ := newTestPoller(t)

	assert.Equal(t, defaultInterval, poller.interval)

	poller.WithInterval(3 * time.Second)
	assert.Equal(t, 3*time.Second, poller.interval)
}
