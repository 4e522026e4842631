// Package notify delivers failure notifications to automation owners.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flowlinehq/flowline/pkg/eventbus"
	"github.com/flowlinehq/flowline/pkg/events"
	"github.com/flowlinehq/flowline/pkg/models"
)

// Notifier informs automation owners about failed executions. Automations
// opt in via notify_on_failure.
type Notifier interface {
	NotifyFailure(ctx context.Context, automation *models.Automation, execution *models.Execution, entry *models.DeadLetterEntry) error
}

// BusNotifier publishes a notification request on the event bus for the
// platform notification module to deliver.
type BusNotifier struct {
	eventBus eventbus.EventBus
	logger   *slog.Logger
}

// NewBusNotifier creates a new bus-backed notifier.
func NewBusNotifier(eventBus eventbus.EventBus, logger *slog.Logger) *BusNotifier {
	return &BusNotifier{
		eventBus: eventBus,
		logger:   logger.With("module", "notifier"),
	}
}

// NotifyFailure publishes a notification.requested event for the automation's
// configured recipients.
func (n *BusNotifier) NotifyFailure(ctx context.Context, automation *models.Automation, execution *models.Execution, entry *models.DeadLetterEntry) error {
	if !automation.NotifyOnFailure || len(automation.NotifyRecipients) == 0 {
		return nil
	}

	event := events.NotificationRequested{
		BaseEvent: events.BaseEvent{
			ID:          n.eventBus.GenerateID(),
			Type:        events.NotificationRequestedEvent,
			WorkspaceID: automation.WorkspaceID,
		},
		AutomationID: automation.ID,
		ExecutionID:  execution.ID,
		Recipients:   automation.NotifyRecipients,
		Subject:      fmt.Sprintf("Automation %q failed", automation.Name),
		Body: fmt.Sprintf(
			"Execution %s failed at node %s (%s): %s",
			execution.ID, entry.NodeID, entry.ErrorType, entry.ErrorMessage,
		),
	}

	err := n.eventBus.Publish(ctx, automation.WorkspaceID, event)
	if err != nil {
		return fmt.Errorf("failed to publish notification request: %w", err)
	}

	n.logger.InfoContext(ctx, "Failure notification requested",
		"automation_id", automation.ID,
		"execution_id", execution.ID,
		"recipients", len(automation.NotifyRecipients))

	return nil
}

// LogNotifier writes notifications to the structured log. Used when no
// notification module is wired, e.g. in local development.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a new log-backed notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("module", "notifier")}
}

// NotifyFailure logs the failure instead of delivering it.
func (n *LogNotifier) NotifyFailure(ctx context.Context, automation *models.Automation, execution *models.Execution, entry *models.DeadLetterEntry) error {
	if !automation.NotifyOnFailure {
		return nil
	}

	n.logger.WarnContext(ctx, "Automation failed",
		"automation_id", automation.ID,
		"execution_id", execution.ID,
		"node_id", entry.NodeID,
		"error_type", entry.ErrorType,
		"error", entry.ErrorMessage,
		"recipients", automation.NotifyRecipients)

	return nil
}
