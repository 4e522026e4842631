// Package subscription resumes executions parked on event waits when a
// matching platform event arrives.
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowlinehq/flowline/pkg/eventbus"
	"github.com/flowlinehq/flowline/pkg/events"
	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/persistence"
)

// Matcher consumes the platform event feed and matches events against active
// subscriptions. The atomic deactivate on the subscription row guarantees
// each wait is satisfied by at most one event, even with concurrent matchers.
type Matcher struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	logger      *slog.Logger
}

// NewMatcher creates a new matcher.
func NewMatcher(persistence persistence.Persistence, eventBus eventbus.EventBus, logger *slog.Logger) *Matcher {
	return &Matcher{
		persistence: persistence,
		eventBus:    eventBus,
		logger:      logger.With("module", "subscription_matcher"),
	}
}

// Run registers the bus handler and blocks until the context is cancelled.
func (m *Matcher) Run(ctx context.Context) error {
	err := m.eventBus.Handle(events.DomainEventEvent, func(ctx context.Context, event any) error {
		domainEvent, ok := event.(*events.DomainEvent)
		if !ok {
			return fmt.Errorf("unexpected event payload %T", event)
		}

		return m.HandleEvent(ctx, domainEvent)
	})
	if err != nil {
		return fmt.Errorf("failed to register domain event handler: %w", err)
	}

	err = m.eventBus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	m.logger.InfoContext(ctx, "Subscription matcher started")

	<-ctx.Done()

	return nil
}

// HandleEvent checks one platform event against every active subscription of
// its type and resumes the executions whose filters match.
func (m *Matcher) HandleEvent(ctx context.Context, event *events.DomainEvent) error {
	subscriptions, err := m.persistence.Subscriptions().ListActiveByEventType(ctx, event.EventType)
	if err != nil {
		return fmt.Errorf("failed to list subscriptions for %s: %w", event.EventType, err)
	}

	for _, sub := range subscriptions {
		if sub.WorkspaceID != event.WorkspaceID {
			continue
		}

		if !sub.MatchesPayload(event.Payload) {
			continue
		}

		err := m.satisfy(ctx, sub, event)
		if err != nil {
			m.logger.ErrorContext(ctx, "Failed to satisfy subscription",
				"subscription_id", sub.ID,
				"execution_id", sub.ExecutionID,
				"error", err)
		}
	}

	return nil
}

// satisfy consumes one subscription and hands the execution back to the
// workers with the event payload recorded under the wait node's output.
func (m *Matcher) satisfy(ctx context.Context, sub *models.EventSubscription, event *events.DomainEvent) error {
	won, err := m.persistence.Subscriptions().Deactivate(ctx, sub.ID, event.Payload)
	if err != nil {
		return fmt.Errorf("failed to deactivate subscription: %w", err)
	}

	if !won {
		// Another matcher or the timeout sweep got there first.
		return nil
	}

	execution, err := m.persistence.Executions().ByID(ctx, sub.ExecutionID)
	if err != nil {
		return fmt.Errorf("failed to load execution: %w", err)
	}

	if execution.Status != models.ExecutionStatusPaused {
		m.logger.InfoContext(ctx, "Matched event for non-paused execution, dropping",
			"execution_id", execution.ID,
			"status", execution.Status)

		return nil
	}

	if execution.Context == nil {
		execution.Context = models.NewExecutionContext(execution.ID, execution.WorkspaceID, nil)
	}

	output := execution.Context.NodeOutput(sub.NodeID)
	if output == nil {
		output = make(map[string]any)
	}

	output["event"] = event.Payload
	output["matched"] = true
	output["matched_at"] = time.Now().UTC().Format(time.RFC3339)
	execution.Context.SetNodeOutput(sub.NodeID, output)

	version, err := m.persistence.Versions().ByDefinitionAndVersion(ctx, execution.DefinitionID, execution.DefinitionVersion)
	if err != nil {
		return fmt.Errorf("failed to load workflow version: %w", err)
	}

	execution.ClearWaitState()
	execution.NextNodeID = nil

	if edge := version.Graph.EdgeFrom(sub.NodeID, models.PortMain); edge != nil {
		execution.NextNodeID = &edge.TargetNodeID
	}

	// Guarded on status: a cancel that landed after the ByID above must not
	// be overwritten back to paused.
	saved, err := m.persistence.Executions().SaveIfStatus(ctx, execution, models.ExecutionStatusPaused)
	if err != nil {
		return fmt.Errorf("failed to save resumed context: %w", err)
	}

	if !saved {
		m.logger.InfoContext(ctx, "Execution left paused state before the match was applied, dropping",
			"execution_id", execution.ID)

		return nil
	}

	m.logger.InfoContext(ctx, "Event matched, resuming execution",
		"execution_id", execution.ID,
		"node_id", sub.NodeID,
		"event_type", event.EventType)

	return m.eventBus.Publish(ctx, execution.ID, events.ExecutionResumeRequested{
		BaseEvent: events.BaseEvent{
			ID:          m.eventBus.GenerateID(),
			Type:        events.ExecutionResumeRequestedEvent,
			Timestamp:   time.Now().UTC(),
			WorkspaceID: execution.WorkspaceID,
		},
		ExecutionID: execution.ID,
		Reason:      "event_matched",
	})
}
