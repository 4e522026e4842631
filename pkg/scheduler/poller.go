// Package scheduler wakes up parked executions: due timers, retry backoffs,
// and event waits past their deadline.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowlinehq/flowline/pkg/eventbus"
	"github.com/flowlinehq/flowline/pkg/events"
	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/persistence"
	"github.com/flowlinehq/flowline/pkg/retry"
)

const (
	defaultInterval  = 10 * time.Second
	defaultBatchSize = 100
)

// Poller periodically sweeps the execution table. It never executes nodes
// itself; it only publishes resume requests or fails timed-out waits, and
// the workers' conditional claims keep multiple poller instances safe.
type Poller struct {
	persistence  persistence.Persistence
	eventBus     eventbus.EventBus
	retryManager *retry.Manager
	logger       *slog.Logger
	interval     time.Duration
	batchSize    int
}

// NewPoller creates a new poller with default interval and batch size.
func NewPoller(
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	retryManager *retry.Manager,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		persistence:  persistence,
		eventBus:     eventBus,
		retryManager: retryManager,
		logger:       logger.With("module", "scheduler"),
		interval:     defaultInterval,
		batchSize:    defaultBatchSize,
	}
}

// WithInterval overrides the sweep interval.
func (p *Poller) WithInterval(interval time.Duration) *Poller {
	p.interval = interval

	return p
}

// Run sweeps until the context is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "Scheduler started", "interval", p.interval.String())

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over due resumes and event timeouts.
func (p *Poller) Sweep(ctx context.Context) {
	err := p.sweepDueResumes(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to sweep due resumes", "error", err)
	}

	err = p.sweepEventTimeouts(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to sweep event timeouts", "error", err)
	}
}

// sweepDueResumes requests a resume for every paused execution whose timer
// has elapsed. Workers race on the claim, so requesting the same execution
// twice is harmless.
func (p *Poller) sweepDueResumes(ctx context.Context) error {
	due, err := p.persistence.Executions().ListDueResumes(ctx, time.Now().UTC(), p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list due resumes: %w", err)
	}

	for _, execution := range due {
		err := p.requestResume(ctx, execution, "timer_elapsed")
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to request resume",
				"execution_id", execution.ID,
				"error", err)
		}
	}

	return nil
}

// sweepEventTimeouts handles event waits past their deadline. A wait node
// with a timeout edge continues down that branch; otherwise the wait itself
// becomes a failed step.
func (p *Poller) sweepEventTimeouts(ctx context.Context) error {
	timedOut, err := p.persistence.Executions().ListEventTimeouts(ctx, time.Now().UTC(), p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to list event timeouts: %w", err)
	}

	for _, execution := range timedOut {
		err := p.timeoutWait(ctx, execution)
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to time out event wait",
				"execution_id", execution.ID,
				"error", err)
		}
	}

	return nil
}

func (p *Poller) timeoutWait(ctx context.Context, execution *models.Execution) error {
	subscription, err := p.persistence.Subscriptions().ActiveByExecution(ctx, execution.ID)
	if err != nil {
		if persistence.IsSubscriptionNotFound(err) {
			// A matcher already consumed the subscription; the resume is on
			// its way.
			return nil
		}

		return fmt.Errorf("failed to load subscription: %w", err)
	}

	won, err := p.persistence.Subscriptions().Deactivate(ctx, subscription.ID, map[string]any{"timed_out": true})
	if err != nil {
		return fmt.Errorf("failed to deactivate subscription: %w", err)
	}

	if !won {
		return nil
	}

	version, err := p.persistence.Versions().ByDefinitionAndVersion(ctx, execution.DefinitionID, execution.DefinitionVersion)
	if err != nil {
		return fmt.Errorf("failed to load workflow version: %w", err)
	}

	if edge := version.Graph.EdgeFrom(subscription.NodeID, models.PortTimeout); edge != nil {
		if execution.Context == nil {
			execution.Context = models.NewExecutionContext(execution.ID, execution.WorkspaceID, nil)
		}

		output := execution.Context.NodeOutput(subscription.NodeID)
		if output == nil {
			output = make(map[string]any)
		}

		output["timed_out"] = true
		execution.Context.SetNodeOutput(subscription.NodeID, output)

		execution.ClearWaitState()
		execution.NextNodeID = &edge.TargetNodeID

		// Guarded on status so a cancel between the sweep and this write
		// cannot be overwritten back to paused.
		saved, err := p.persistence.Executions().SaveIfStatus(ctx, execution, models.ExecutionStatusPaused)
		if err != nil {
			return fmt.Errorf("failed to route timeout branch: %w", err)
		}

		if !saved {
			return nil
		}

		p.logger.InfoContext(ctx, "Event wait timed out, taking timeout branch",
			"execution_id", execution.ID,
			"node_id", subscription.NodeID)

		return p.requestResume(ctx, execution, "wait_timeout")
	}

	// No timeout branch modeled: the wait node fails. Claim the row first so
	// the failure path owns it like a worker would.
	claimed, err := p.persistence.Executions().Claim(ctx, execution.ID, models.ExecutionStatusPaused, models.ExecutionStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to claim timed-out execution: %w", err)
	}

	if !claimed {
		return nil
	}

	automation, err := p.persistence.Automations().ByID(ctx, execution.AutomationID)
	if err != nil {
		return fmt.Errorf("failed to load automation: %w", err)
	}

	node := version.Graph.FindNode(subscription.NodeID)
	if node == nil {
		node = &models.Node{ID: subscription.NodeID, Type: "wait_event"}
	}

	execution.Status = models.ExecutionStatusRunning

	return p.retryManager.HandleFailure(ctx, retry.Failure{
		Execution:  execution,
		Automation: automation,
		Node:       node,
		Input:      node.Config,
		Err: models.NewNodeError(models.ErrorTypeWaitTimeout,
			fmt.Errorf("no %q event matching the filter arrived before the deadline", subscription.EventType)),
	})
}

func (p *Poller) requestResume(ctx context.Context, execution *models.Execution, reason string) error {
	return p.eventBus.Publish(ctx, execution.ID, events.ExecutionResumeRequested{
		BaseEvent: events.BaseEvent{
			ID:          p.eventBus.GenerateID(),
			Type:        events.ExecutionResumeRequestedEvent,
			Timestamp:   time.Now().UTC(),
			WorkspaceID: execution.WorkspaceID,
		},
		ExecutionID: execution.ID,
		Reason:      reason,
	})
}
