package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/flowlinehq/flowline/pkg/mocks"
	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/nodes/condition"
	lognode "github.com/flowlinehq/flowline/pkg/nodes/log"
	"github.com/flowlinehq/flowline/pkg/nodes/waitduration"
	"github.com/flowlinehq/flowline/pkg/nodes/waitevent"
	"github.com/flowlinehq/flowline/pkg/notify"
	"github.com/flowlinehq/flowline/pkg/persistence/memory"
	"github.com/flowlinehq/flowline/pkg/protocol"
	"github.com/flowlinehq/flowline/pkg/registry"
	"github.com/flowlinehq/flowline/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
)

// stubFactory registers an arbitrary handler under a node type for tests.
type stubFactory struct {
	id      string
	handler protocol.NodeHandler
}

func (f *stubFactory) Create(_ context.Context, _ string, _ map[string]any) (protocol.NodeHandler, error) {
	return f.handler, nil
}

func (f *stubFactory) ID() string             { return f.id }
func (f *stubFactory) Name() string           { return f.id }
func (f *stubFactory) Description() string    { return "test node" }
func (f *stubFactory) Schema() map[string]any { return nil }

// handlerFunc adapts a function to protocol.NodeHandler.
type handlerFunc func(ctx context.Context, execCtx *models.ExecutionContext, input map[string]any) (*protocol.Outcome, error)

func (f handlerFunc) Execute(ctx context.Context, execCtx *models.ExecutionContext, input map[string]any) (*protocol.Outcome, error) {
	return f(ctx, execCtx, input)
}

type testHarness struct {
	store    *memory.Persistence
	eventBus *mocks.MockEventBus
	registry *registry.Registry
	executor *Executor
}

func newTestHarness(t *testing.T, extras ...protocol.NodeFactory) *testHarness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	store := memory.NewPersistence()

	eventBus := &mocks.MockEventBus{}
	eventBus.On("GenerateID").Return("test-event-id")
	eventBus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	reg := registry.NewRegistry(logger)
	reg.RegisterNode(lognode.NewNodeFactory(logger))
	reg.RegisterNode(condition.NewNodeFactory())
	reg.RegisterNode(waitduration.NewNodeFactory())
	reg.RegisterNode(waitevent.NewNodeFactory())

	for _, factory := range extras {
		reg.RegisterNode(factory)
	}

	retryManager := retry.NewManager(store, eventBus, notify.NewLogNotifier(logger), logger)
	tracer := noop.NewTracerProvider().Tracer("test")

	executor := NewExecutor("worker-test", store, reg, eventBus, retryManager, tracer, logger)

	return &testHarness{
		store:    store,
		eventBus: eventBus,
		registry: reg,
		executor: executor,
	}
}

// seed stores a version 1 graph, its automation, and a pending execution.
func (h *testHarness) seed(t *testing.T, graph *models.Graph) *models.Execution {
	t.Helper()

	ctx := context.Background()

	require.NoError(t, h.store.Versions().Save(ctx, &models.WorkflowVersion{
		ID:           "ver-1",
		DefinitionID: "def-1",
		Version:      1,
		Graph:        graph,
		CreatedAt:    time.Now().UTC(),
	}))

	require.NoError(t, h.store.Automations().Save(ctx, &models.Automation{
		ID:           "auto-1",
		WorkspaceID:  "ws-1",
		Name:         "Test automation",
		DefinitionID: "def-1",
		TriggerType:  "record.created",
		RetryConfig:  models.DefaultRetryConfig(),
		Enabled:      true,
	}))

	execution := &models.Execution{
		ID:                "exec-1",
		WorkspaceID:       "ws-1",
		AutomationID:      "auto-1",
		DefinitionID:      "def-1",
		DefinitionVersion: 1,
		Status:            models.ExecutionStatusPending,
		Context: models.NewExecutionContext("exec-1", "ws-1", map[string]any{
			"order_id": "o-42",
			"amount":   float64(1500),
		}),
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, h.store.Executions().Save(ctx, execution))

	return execution
}

func logNode(id string) *models.Node {
	return &models.Node{
		ID:      id,
		Type:    "log",
		Name:    id,
		Config:  map[string]any{"message": "visited " + id},
		Enabled: true,
	}
}

func mainEdge(id, from, to string) *models.Edge {
	return &models.Edge{ID: id, SourceNodeID: from, SourcePort: models.PortMain, TargetNodeID: to}
}

func TestExecutor_Start_RunsLinearGraphToCompletion(t *testing.T) {
	h := newTestHarness(t)
	execution := h.seed(t, &models.Graph{
		Nodes: []*models.Node{logNode("first"), logNode("second")},
		Edges: []*models.Edge{mainEdge("e1", "first", "second")},
	})

	ctx := context.Background()
	require.NoError(t, h.executor.Start(ctx, execution.ID))

	stored, err := h.store.Executions().ByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
	assert.NotNil(t, stored.CompletedAt)
	assert.NotNil(t, stored.Context.NodeOutput("first"))
	assert.NotNil(t, stored.Context.NodeOutput("second"))

	steps, err := h.store.Steps().ListByExecution(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "first", steps[0].NodeID)
	assert.Equal(t, models.StepStatusCompleted, steps[0].Status)
	assert.Equal(t, "second", steps[1].NodeID)

	automation, err := h.store.Automations().ByID(ctx, "auto-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), automation.SuccessfulRuns)
}

func TestExecutor_Start_AlreadyClaimed(t *testing.T) {
	h := newTestHarness(t)
	execution := h.seed(t, &models.Graph{Nodes: []*models.Node{logNode("only")}})

	ctx := context.Background()

	claimed, err := h.store.Executions().Claim(ctx, execution.ID,
		models.ExecutionStatusPending, models.ExecutionStatusRunning)
	require.NoError(t, err)
	require.True(t, claimed)

	err = h.executor.Start(ctx, execution.ID)
	assert.ErrorIs(t, err, ErrNotClaimed)
}

func TestExecutor_ConditionRoutesFalseBranch(t *testing.T) {
	h := newTestHarness(t)
	execution := h.seed(t, &models.Graph{
		Nodes: []*models.Node{
			{
				ID: "check", Type: "condition", Name: "Check", Enabled: true,
				Config: map[string]any{"expression": "trigger.amount > 10000"},
			},
			logNode("big"),
			logNode("small"),
		},
		Edges: []*models.Edge{
			{ID: "e1", SourceNodeID: "check", SourcePort: models.PortTrue, TargetNodeID: "big"},
			{ID: "e2", SourceNodeID: "check", SourcePort: models.PortFalse, TargetNodeID: "small"},
		},
	})

	ctx := context.Background()
	require.NoError(t, h.executor.Start(ctx, execution.ID))

	steps, err := h.store.Steps().ListByExecution(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "check", steps[0].NodeID)
	require.NotNil(t, steps[0].ConditionResult)
	assert.False(t, *steps[0].ConditionResult)
	assert.Equal(t, "small", steps[1].NodeID)
}

func TestExecutor_SkipsDisabledNodes(t *testing.T) {
	h := newTestHarness(t)

	disabled := logNode("middle")
	disabled.Enabled = false

	execution := h.seed(t, &models.Graph{
		Nodes: []*models.Node{logNode("first"), disabled, logNode("last")},
		Edges: []*models.Edge{
			mainEdge("e1", "first", "middle"),
			mainEdge("e2", "middle", "last"),
		},
	})

	ctx := context.Background()
	require.NoError(t, h.executor.Start(ctx, execution.ID))

	steps, err := h.store.Steps().ListByExecution(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, models.StepStatusSkipped, steps[1].Status)

	stored, err := h.store.Executions().ByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
	assert.Nil(t, stored.Context.NodeOutput("middle"))
}

func TestExecutor_WaitDuration_ParksAndResumes(t *testing.T) {
	h := newTestHarness(t)
	execution := h.seed(t, &models.Graph{
		Nodes: []*models.Node{
			logNode("first"),
			{
				ID: "pause", Type: "wait_duration", Name: "Pause", Enabled: true,
				Config: map[string]any{"duration": "1m"},
			},
			logNode("last"),
		},
		Edges: []*models.Edge{
			mainEdge("e1", "first", "pause"),
			mainEdge("e2", "pause", "last"),
		},
	})

	ctx := context.Background()
	require.NoError(t, h.executor.Start(ctx, execution.ID))

	parked, err := h.store.Executions().ByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPaused, parked.Status)
	require.NotNil(t, parked.ResumeAt)
	assert.WithinDuration(t, time.Now().UTC().Add(time.Minute), *parked.ResumeAt, 5*time.Second)

	// A timer wait continues unconditionally, so the continuation is pinned
	// at park time.
	require.NotNil(t, parked.NextNodeID)
	assert.Equal(t, "last", *parked.NextNodeID)

	require.NoError(t, h.executor.Resume(ctx, execution.ID))

	resumed, err := h.store.Executions().ByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, resumed.Status)
	assert.Nil(t, resumed.ResumeAt)
	assert.NotNil(t, resumed.Context.NodeOutput("last"))
}

func TestExecutor_WaitEvent_CreatesSubscription(t *testing.T) {
	h := newTestHarness(t)
	execution := h.seed(t, &models.Graph{
		Nodes: []*models.Node{
			{
				ID: "wait", Type: "wait_event", Name: "Wait", Enabled: true,
				Config: map[string]any{
					"event_type": "ticket.closed",
					"filter":     map[string]any{"ticket_id": "{{.trigger.order_id}}"},
					"timeout":    "24h",
				},
			},
			logNode("after"),
		},
		Edges: []*models.Edge{mainEdge("e1", "wait", "after")},
	})

	ctx := context.Background()
	require.NoError(t, h.executor.Start(ctx, execution.ID))

	parked, err := h.store.Executions().ByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPaused, parked.Status)
	require.NotNil(t, parked.WaitEventType)
	assert.Equal(t, "ticket.closed", *parked.WaitEventType)
	assert.NotNil(t, parked.WaitTimeoutAt)

	// Event waits leave the continuation open; the matcher decides it.
	assert.Nil(t, parked.NextNodeID)

	subscription, err := h.store.Subscriptions().ActiveByExecution(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, "wait", subscription.NodeID)
	assert.Equal(t, "ticket.closed", subscription.EventType)
	assert.Equal(t, "o-42", subscription.EventFilter["ticket_id"])
	require.NotNil(t, subscription.TimeoutAt)
}

func TestExecutor_Resume_WithoutNextNodeCompletes(t *testing.T) {
	h := newTestHarness(t)
	execution := h.seed(t, &models.Graph{Nodes: []*models.Node{logNode("only")}})

	ctx := context.Background()

	// Park the execution by hand as if the wait was the last node.
	execution.Status = models.ExecutionStatusPaused
	execution.NextNodeID = nil
	require.NoError(t, h.store.Executions().Save(ctx, execution))

	require.NoError(t, h.executor.Resume(ctx, execution.ID))

	stored, err := h.store.Executions().ByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCompleted, stored.Status)
}

func TestExecutor_Resume_CancelledIsNoOp(t *testing.T) {
	h := newTestHarness(t)
	execution := h.seed(t, &models.Graph{Nodes: []*models.Node{logNode("only")}})

	ctx := context.Background()

	execution.Status = models.ExecutionStatusCancelled
	require.NoError(t, h.store.Executions().Save(ctx, execution))

	err := h.executor.Resume(ctx, execution.ID)
	assert.ErrorIs(t, err, ErrNotClaimed)

	stored, err := h.store.Executions().ByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, stored.Status)
}

func TestExecutor_FailingNodeSchedulesRetry(t *testing.T) {
	failing := &stubFactory{
		id: "always_fails",
		handler: handlerFunc(func(_ context.Context, _ *models.ExecutionContext, _ map[string]any) (*protocol.Outcome, error) {
			return nil, models.NewNodeError(models.ErrorTypeServerError, errors.New("upstream 503"))
		}),
	}

	h := newTestHarness(t, failing)
	execution := h.seed(t, &models.Graph{
		Nodes: []*models.Node{
			{ID: "broken", Type: "always_fails", Name: "Broken", Enabled: true},
		},
	})

	ctx := context.Background()
	require.NoError(t, h.executor.Start(ctx, execution.ID))

	stored, err := h.store.Executions().ByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPaused, stored.Status)
	assert.Equal(t, 1, stored.RetryCount)
	require.NotNil(t, stored.NextNodeID)
	assert.Equal(t, "broken", *stored.NextNodeID)

	steps, err := h.store.Steps().ListByExecution(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, models.StepStatusRetrying, steps[0].Status)
	assert.Equal(t, models.ErrorTypeServerError, steps[0].ErrorType)
}

func TestExecutor_UnknownNodeTypeFailsWithoutRetry(t *testing.T) {
	h := newTestHarness(t)
	execution := h.seed(t, &models.Graph{
		Nodes: []*models.Node{
			{ID: "mystery", Type: "does_not_exist", Name: "Mystery", Enabled: true},
		},
	})

	ctx := context.Background()
	require.NoError(t, h.executor.Start(ctx, execution.ID))

	stored, err := h.store.Executions().ByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusFailed, stored.Status)

	entries, err := h.store.DeadLetters().ListByWorkspace(ctx, "ws-1", nil)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ErrorTypeValidation, entries[0].ErrorType)
}

func TestExecutor_CancellationWinsMidRun(t *testing.T) {
	var h *testHarness

	// The node cancels its own execution, standing in for a concurrent
	// cancel request landing while the worker walks the graph.
	selfCancel := &stubFactory{
		id: "cancel_self",
		handler: handlerFunc(func(ctx context.Context, _ *models.ExecutionContext, _ map[string]any) (*protocol.Outcome, error) {
			_, err := h.store.Executions().Claim(ctx, "exec-1",
				models.ExecutionStatusRunning, models.ExecutionStatusCancelled)

			return &protocol.Outcome{Output: map[string]any{}}, err
		}),
	}

	h = newTestHarness(t, selfCancel)
	execution := h.seed(t, &models.Graph{
		Nodes: []*models.Node{
			{ID: "trip", Type: "cancel_self", Name: "Trip", Enabled: true},
			logNode("never"),
		},
		Edges: []*models.Edge{mainEdge("e1", "trip", "never")},
	})

	ctx := context.Background()
	require.NoError(t, h.executor.Start(ctx, execution.ID))

	stored, err := h.store.Executions().ByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, stored.Status)

	steps, err := h.store.Steps().ListByExecution(ctx, execution.ID)
	require.NoError(t, err)

	for _, step := range steps {
		assert.NotEqual(t, "never", step.NodeID)
	}
}

func TestWorker_RegistersHandlers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	eventBus := &mocks.MockEventBus{}
	eventBus.On("Handle", mock.Anything, mock.Anything).Return(nil)
	eventBus.On("Subscribe", mock.Anything).Return(nil)

	worker := NewWorker(&Executor{}, eventBus, logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, worker.Run(ctx))

	eventBus.AssertNumberOfCalls(t, "Handle", 2)
	eventBus.AssertCalled(t, "Subscribe", mock.Anything)
}
