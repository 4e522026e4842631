// Package engine walks workflow graphs node by node, persisting every state
// transition so any worker can pick an execution up where another left off.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowlinehq/flowline/pkg/eventbus"
	"github.com/flowlinehq/flowline/pkg/events"
	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/otelhelper"
	"github.com/flowlinehq/flowline/pkg/persistence"
	"github.com/flowlinehq/flowline/pkg/protocol"
	"github.com/flowlinehq/flowline/pkg/registry"
	"github.com/flowlinehq/flowline/pkg/retry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrNotClaimed is returned when another worker already owns the execution
// or it reached a terminal state. Callers treat it as a no-op, not a failure.
var ErrNotClaimed = errors.New("execution not claimed")

// Executor runs one execution at a time against its pinned workflow version.
// All coordination happens through conditional status updates on the
// execution row; the executor holds no cross-invocation state.
type Executor struct {
	workerID     string
	persistence  persistence.Persistence
	registry     *registry.Registry
	eventBus     eventbus.EventBus
	retryManager *retry.Manager
	tracer       trace.Tracer
	logger       *slog.Logger
}

// NewExecutor creates a new executor.
func NewExecutor(
	workerID string,
	persistence persistence.Persistence,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
	retryManager *retry.Manager,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		workerID:     workerID,
		persistence:  persistence,
		registry:     registry,
		eventBus:     eventBus,
		retryManager: retryManager,
		tracer:       tracer,
		logger:       logger.With("module", "executor", "worker_id", workerID),
	}
}

// Start claims a pending execution and runs it from its entry node.
// If another worker already claimed it, Start returns ErrNotClaimed.
func (e *Executor) Start(ctx context.Context, executionID string) error {
	claimed, err := e.persistence.Executions().Claim(ctx, executionID, models.ExecutionStatusPending, models.ExecutionStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to claim execution %s: %w", executionID, err)
	}

	if !claimed {
		e.logger.InfoContext(ctx, "Execution already claimed or no longer pending", "execution_id", executionID)

		return ErrNotClaimed
	}

	execution, graph, automation, err := e.loadRun(ctx, executionID)
	if err != nil {
		return err
	}

	err = e.eventBus.Publish(ctx, execution.ID, events.ExecutionStarted{
		BaseEvent:   e.baseEvent(events.ExecutionStartedEvent, execution.WorkspaceID),
		ExecutionID: execution.ID,
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish execution started event", "error", err)
	}

	entry, err := graph.EntryNode()
	if err != nil {
		return e.failImmediately(ctx, execution, automation, nil, err)
	}

	return e.run(ctx, execution, graph, automation, entry)
}

// Resume claims a paused execution and continues it. Resuming a cancelled,
// completed, or concurrently claimed execution is a no-op by design: the
// conditional update is the only gate, so duplicate resume signals are safe.
func (e *Executor) Resume(ctx context.Context, executionID string) error {
	claimed, err := e.persistence.Executions().Claim(ctx, executionID, models.ExecutionStatusPaused, models.ExecutionStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to claim execution %s: %w", executionID, err)
	}

	if !claimed {
		e.logger.InfoContext(ctx, "Resume skipped, execution not paused", "execution_id", executionID)

		return ErrNotClaimed
	}

	execution, graph, automation, err := e.loadRun(ctx, executionID)
	if err != nil {
		return err
	}

	execution.ClearWaitState()

	if execution.NextNodeID == nil {
		// The parked node had no outgoing edge; the wait was the last node.
		return e.complete(ctx, execution)
	}

	next := graph.FindNode(*execution.NextNodeID)
	if next == nil {
		return e.failImmediately(ctx, execution, automation, nil,
			fmt.Errorf("next node %s not found in workflow version", *execution.NextNodeID))
	}

	err = e.eventBus.Publish(ctx, execution.ID, events.ExecutionResumed{
		BaseEvent:   e.baseEvent(events.ExecutionResumedEvent, execution.WorkspaceID),
		ExecutionID: execution.ID,
		NodeID:      next.ID,
	})
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish execution resumed event", "error", err)
	}

	return e.run(ctx, execution, graph, automation, next)
}

// run walks the graph from the given node until the execution completes,
// parks, or fails.
func (e *Executor) run(ctx context.Context, execution *models.Execution, graph *models.Graph, automation *models.Automation, node *models.Node) error {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.run",
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.WorkspaceIDKey, execution.WorkspaceID),
		attribute.String(otelhelper.WorkerIDKey, e.workerID),
	)
	defer span.End()

	for node != nil {
		// A concurrent cancel wins over the in-flight run: stop before the
		// next node and leave the row as the cancel left it.
		cancelled, err := e.cancelledMeanwhile(ctx, execution.ID)
		if err != nil {
			return err
		}

		if cancelled {
			e.logger.InfoContext(ctx, "Execution cancelled, stopping walk",
				"execution_id", execution.ID, "node_id", node.ID)

			return nil
		}

		if !node.Enabled {
			e.appendStep(ctx, &models.ExecutionStep{
				ExecutionID: execution.ID,
				NodeID:      node.ID,
				NodeType:    node.Type,
				Status:      models.StepStatusSkipped,
				ExecutedAt:  time.Now().UTC(),
			})

			node = e.nextNode(graph, node, models.PortMain)

			continue
		}

		outcome, duration, err := e.executeNode(ctx, execution, node)
		if err != nil {
			span.SetAttributes(attribute.String(otelhelper.NodeIDKey, node.ID))
			otelhelper.SetError(span, err)

			return e.retryManager.HandleFailure(ctx, retry.Failure{
				Execution:  execution,
				Automation: automation,
				Node:       node,
				Input:      node.Config,
				Err:        err,
				Duration:   duration,
			})
		}

		execution.Context.SetNodeOutput(node.ID, outcome.Output)
		execution.CurrentNodeID = &node.ID
		execution.RetryCount = 0

		port := outcome.Port
		if port == "" {
			port = models.PortMain
		}

		e.appendStep(ctx, &models.ExecutionStep{
			ExecutionID:     execution.ID,
			NodeID:          node.ID,
			NodeType:        node.Type,
			Status:          models.StepStatusCompleted,
			InputData:       node.Config,
			OutputData:      outcome.Output,
			ConditionResult: outcome.ConditionResult,
			ExecutedAt:      time.Now().UTC(),
			DurationMs:      duration.Milliseconds(),
		})

		if outcome.Park != nil {
			return e.park(ctx, execution, graph, node, outcome.Park)
		}

		edge := graph.EdgeFrom(node.ID, port)
		if edge == nil {
			return e.complete(ctx, execution)
		}

		next := graph.FindNode(edge.TargetNodeID)
		if next == nil {
			return e.failImmediately(ctx, execution, automation, node,
				fmt.Errorf("edge %s targets unknown node %s", edge.ID, edge.TargetNodeID))
		}

		node = next
	}

	return e.complete(ctx, execution)
}

// executeNode creates the handler and runs it, timing the attempt.
func (e *Executor) executeNode(ctx context.Context, execution *models.Execution, node *models.Node) (*protocol.Outcome, time.Duration, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.node",
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, node.Type),
	)
	defer span.End()

	started := time.Now()

	handler, err := e.registry.CreateNode(ctx, node.Type, node.ID, node.Config)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, time.Since(started), models.NewNodeError(models.ErrorTypeValidation, err)
	}

	e.logger.InfoContext(ctx, "Executing node",
		"execution_id", execution.ID,
		"node_id", node.ID,
		"node_type", node.Type)

	outcome, err := handler.Execute(ctx, execution.Context, node.Config)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, time.Since(started), err
	}

	if outcome == nil {
		outcome = &protocol.Outcome{Port: models.PortMain}
	}

	return outcome, time.Since(started), nil
}

// park persists the execution as paused, either on a timer or on an event
// subscription, and returns without holding the worker.
func (e *Executor) park(ctx context.Context, execution *models.Execution, graph *models.Graph, node *models.Node, directive *protocol.ParkDirective) error {
	now := time.Now().UTC()

	execution.Status = models.ExecutionStatusPaused
	execution.ClearWaitState()
	execution.CurrentNodeID = &node.ID
	execution.NextNodeID = nil

	pausedEvent := events.ExecutionPaused{
		BaseEvent:   e.baseEvent(events.ExecutionPausedEvent, execution.WorkspaceID),
		ExecutionID: execution.ID,
		NodeID:      node.ID,
	}

	if directive.EventType != "" {
		execution.WaitEventType = &directive.EventType
		execution.WaitEventFilter = directive.EventFilter

		subscription := &models.EventSubscription{
			ID:          uuid.New().String(),
			WorkspaceID: execution.WorkspaceID,
			ExecutionID: execution.ID,
			NodeID:      node.ID,
			EventType:   directive.EventType,
			EventFilter: directive.EventFilter,
			IsActive:    true,
			CreatedAt:   now,
		}

		if directive.Timeout > 0 {
			timeoutAt := now.Add(directive.Timeout)
			subscription.TimeoutAt = &timeoutAt
			execution.WaitTimeoutAt = &timeoutAt
		}

		err := e.persistence.Subscriptions().Save(ctx, subscription)
		if err != nil {
			return fmt.Errorf("failed to save event subscription: %w", err)
		}

		pausedEvent.WaitEventType = directive.EventType
	} else {
		resumeAt := now.Add(directive.Duration)
		execution.ResumeAt = &resumeAt

		// A pure timer wait continues unconditionally, so the continuation
		// is known now.
		if edge := graph.EdgeFrom(node.ID, models.PortMain); edge != nil {
			execution.NextNodeID = &edge.TargetNodeID
		}

		pausedEvent.ResumeAt = &resumeAt
	}

	err := e.persistence.Executions().Save(ctx, execution)
	if err != nil {
		return fmt.Errorf("failed to park execution: %w", err)
	}

	e.logger.InfoContext(ctx, "Execution parked",
		"execution_id", execution.ID,
		"node_id", node.ID,
		"wait_event_type", directive.EventType,
		"resume_at", execution.ResumeAt)

	return e.eventBus.Publish(ctx, execution.ID, pausedEvent)
}

// complete marks the execution finished and records the automation result.
func (e *Executor) complete(ctx context.Context, execution *models.Execution) error {
	now := time.Now().UTC()

	execution.Status = models.ExecutionStatusCompleted
	execution.ClearWaitState()
	execution.NextNodeID = nil
	execution.CompletedAt = &now

	err := e.persistence.Executions().Save(ctx, execution)
	if err != nil {
		return fmt.Errorf("failed to complete execution: %w", err)
	}

	err = e.persistence.Automations().RecordResult(ctx, execution.AutomationID, true)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to record automation success", "error", err)
	}

	e.logger.InfoContext(ctx, "Execution completed",
		"execution_id", execution.ID,
		"duration", now.Sub(execution.StartedAt).String())

	return e.eventBus.Publish(ctx, execution.ID, events.ExecutionCompleted{
		BaseEvent:   e.baseEvent(events.ExecutionCompletedEvent, execution.WorkspaceID),
		ExecutionID: execution.ID,
		Duration:    now.Sub(execution.StartedAt),
	})
}

// failImmediately fails an execution for structural problems that no retry
// can fix, e.g. a broken graph reference.
func (e *Executor) failImmediately(ctx context.Context, execution *models.Execution, automation *models.Automation, node *models.Node, cause error) error {
	if node != nil {
		return e.retryManager.HandleFailure(ctx, retry.Failure{
			Execution:  execution,
			Automation: automation,
			Node:       node,
			Input:      node.Config,
			Err:        models.NewNodeError(models.ErrorTypeValidation, cause),
			Duration:   0,
		})
	}

	now := time.Now().UTC()

	execution.Status = models.ExecutionStatusFailed
	execution.ClearWaitState()
	execution.Error = cause.Error()
	execution.CompletedAt = &now

	err := e.persistence.Executions().Save(ctx, execution)
	if err != nil {
		return fmt.Errorf("failed to mark execution failed: %w", err)
	}

	err = e.persistence.Automations().RecordResult(ctx, execution.AutomationID, false)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to record automation failure", "error", err)
	}

	e.logger.ErrorContext(ctx, "Execution failed",
		"execution_id", execution.ID,
		"error", cause)

	return e.eventBus.Publish(ctx, execution.ID, events.ExecutionFailed{
		BaseEvent:   e.baseEvent(events.ExecutionFailedEvent, execution.WorkspaceID),
		ExecutionID: execution.ID,
		Error:       cause.Error(),
	})
}

// loadRun loads the execution, its pinned graph version, and its automation.
func (e *Executor) loadRun(ctx context.Context, executionID string) (*models.Execution, *models.Graph, *models.Automation, error) {
	execution, err := e.persistence.Executions().ByID(ctx, executionID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load execution %s: %w", executionID, err)
	}

	if execution.Context == nil {
		execution.Context = models.NewExecutionContext(execution.ID, execution.WorkspaceID, nil)
	}

	version, err := e.persistence.Versions().ByDefinitionAndVersion(ctx, execution.DefinitionID, execution.DefinitionVersion)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load workflow version %s/%d: %w",
			execution.DefinitionID, execution.DefinitionVersion, err)
	}

	automation, err := e.persistence.Automations().ByID(ctx, execution.AutomationID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load automation %s: %w", execution.AutomationID, err)
	}

	return execution, version.Graph, automation, nil
}

func (e *Executor) cancelledMeanwhile(ctx context.Context, executionID string) (bool, error) {
	current, err := e.persistence.Executions().ByID(ctx, executionID)
	if err != nil {
		return false, fmt.Errorf("failed to check execution status: %w", err)
	}

	return current.Status != models.ExecutionStatusRunning, nil
}

func (e *Executor) nextNode(graph *models.Graph, node *models.Node, port string) *models.Node {
	edge := graph.EdgeFrom(node.ID, port)
	if edge == nil {
		return nil
	}

	return graph.FindNode(edge.TargetNodeID)
}

func (e *Executor) appendStep(ctx context.Context, step *models.ExecutionStep) {
	step.ID = uuid.New().String()

	err := e.persistence.Steps().Append(ctx, step)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to append execution step",
			"execution_id", step.ExecutionID,
			"node_id", step.NodeID,
			"error", err)
	}
}

func (e *Executor) baseEvent(eventType events.EventType, workspaceID string) events.BaseEvent {
	return events.BaseEvent{
		ID:          e.eventBus.GenerateID(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		WorkspaceID: workspaceID,
		WorkerID:    e.workerID,
	}
}
