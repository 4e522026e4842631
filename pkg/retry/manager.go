package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowlinehq/flowline/pkg/eventbus"
	"github.com/flowlinehq/flowline/pkg/events"
	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/notify"
	"github.com/flowlinehq/flowline/pkg/persistence"
	"github.com/google/uuid"
)

// Failure describes one failed node execution.
type Failure struct {
	Execution  *models.Execution
	Automation *models.Automation
	Node       *models.Node
	Input      map[string]any
	Err        error
	Duration   time.Duration
}

// Manager decides what happens after a node fails: schedule a retry with
// exponential backoff, or fail the execution and capture a dead-letter entry.
type Manager struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	notifier    notify.Notifier
	logger      *slog.Logger
}

// NewManager creates a new retry manager.
func NewManager(
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	notifier notify.Notifier,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		persistence: persistence,
		eventBus:    eventBus,
		notifier:    notifier,
		logger:      logger.With("module", "retry_manager"),
	}
}

// HandleFailure records the failed attempt and either parks the execution
// for a retry or fails it terminally. The execution row must be in running
// state, owned by the caller.
func (m *Manager) HandleFailure(ctx context.Context, failure Failure) error {
	execution := failure.Execution
	errorType := models.ClassifyError(failure.Err)
	policy := FromConfig(failure.Automation.RetryConfig)

	attempt := execution.RetryCount + 1
	retryable := failure.Automation.RetryConfig.IsRetryable(errorType)

	if retryable && attempt <= policy.MaxRetries {
		return m.scheduleRetry(ctx, failure, errorType, attempt, policy)
	}

	return m.deadLetter(ctx, failure, errorType)
}

func (m *Manager) scheduleRetry(ctx context.Context, failure Failure, errorType models.ErrorType, attempt int, policy Policy) error {
	execution := failure.Execution
	delay := policy.NextDelay(attempt)
	resumeAt := time.Now().UTC().Add(delay)

	step := &models.ExecutionStep{
		ID:          uuid.New().String(),
		ExecutionID: execution.ID,
		NodeID:      failure.Node.ID,
		NodeType:    failure.Node.Type,
		Status:      models.StepStatusRetrying,
		InputData:   failure.Input,
		Error:       failure.Err.Error(),
		ErrorType:   errorType,
		RetryCount:  attempt,
		ExecutedAt:  time.Now().UTC(),
		DurationMs:  failure.Duration.Milliseconds(),
	}

	err := m.persistence.Steps().Append(ctx, step)
	if err != nil {
		return fmt.Errorf("failed to append retrying step: %w", err)
	}

	execution.RetryCount = attempt
	execution.Status = models.ExecutionStatusPaused
	execution.ClearWaitState()
	execution.ResumeAt = &resumeAt
	execution.CurrentNodeID = &failure.Node.ID
	execution.NextNodeID = &failure.Node.ID

	err = m.persistence.Executions().Save(ctx, execution)
	if err != nil {
		return fmt.Errorf("failed to park execution for retry: %w", err)
	}

	m.logger.InfoContext(ctx, "Scheduled retry",
		"execution_id", execution.ID,
		"node_id", failure.Node.ID,
		"error_type", errorType,
		"attempt", attempt,
		"delay", delay.String())

	return m.eventBus.Publish(ctx, execution.ID, events.ExecutionPaused{
		BaseEvent: events.BaseEvent{
			ID:          m.eventBus.GenerateID(),
			Type:        events.ExecutionPausedEvent,
			Timestamp:   time.Now().UTC(),
			WorkspaceID: execution.WorkspaceID,
		},
		ExecutionID: execution.ID,
		NodeID:      failure.Node.ID,
		ResumeAt:    &resumeAt,
	})
}

func (m *Manager) deadLetter(ctx context.Context, failure Failure, errorType models.ErrorType) error {
	execution := failure.Execution
	now := time.Now().UTC()

	step := &models.ExecutionStep{
		ID:          uuid.New().String(),
		ExecutionID: execution.ID,
		NodeID:      failure.Node.ID,
		NodeType:    failure.Node.Type,
		Status:      models.StepStatusFailed,
		InputData:   failure.Input,
		Error:       failure.Err.Error(),
		ErrorType:   errorType,
		RetryCount:  execution.RetryCount,
		ExecutedAt:  now,
		DurationMs:  failure.Duration.Milliseconds(),
	}

	err := m.persistence.Steps().Append(ctx, step)
	if err != nil {
		return fmt.Errorf("failed to append failed step: %w", err)
	}

	// Snapshot the context so later triage sees the state at failure time.
	snapshot, err := execution.Context.Clone()
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to snapshot execution context", "error", err)

		snapshot = execution.Context
	}

	entry := &models.DeadLetterEntry{
		ID:               uuid.New().String(),
		WorkspaceID:      execution.WorkspaceID,
		AutomationID:     execution.AutomationID,
		ExecutionID:      execution.ID,
		NodeID:           failure.Node.ID,
		NodeType:         failure.Node.Type,
		ErrorType:        errorType,
		ErrorMessage:     failure.Err.Error(),
		RetryCount:       execution.RetryCount,
		InputData:        failure.Input,
		ExecutionContext: snapshot,
		Status:           models.DeadLetterStatusPending,
		CreatedAt:        now,
	}

	err = m.persistence.DeadLetters().Save(ctx, entry)
	if err != nil {
		return fmt.Errorf("failed to save dead letter entry: %w", err)
	}

	execution.Status = models.ExecutionStatusFailed
	execution.ClearWaitState()
	execution.Error = failure.Err.Error()
	execution.ErrorNodeID = &failure.Node.ID
	execution.CurrentNodeID = &failure.Node.ID
	execution.NextNodeID = nil
	execution.CompletedAt = &now

	err = m.persistence.Executions().Save(ctx, execution)
	if err != nil {
		return fmt.Errorf("failed to mark execution failed: %w", err)
	}

	err = m.persistence.Automations().RecordResult(ctx, execution.AutomationID, false)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to record automation failure", "error", err)
	}

	m.logger.ErrorContext(ctx, "Execution dead-lettered",
		"execution_id", execution.ID,
		"node_id", failure.Node.ID,
		"error_type", errorType,
		"retry_count", execution.RetryCount)

	err = m.eventBus.Publish(ctx, execution.ID, events.ExecutionFailed{
		BaseEvent: events.BaseEvent{
			ID:          m.eventBus.GenerateID(),
			Type:        events.ExecutionFailedEvent,
			Timestamp:   now,
			WorkspaceID: execution.WorkspaceID,
		},
		ExecutionID: execution.ID,
		NodeID:      failure.Node.ID,
		ErrorType:   errorType,
		Error:       failure.Err.Error(),
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to publish execution failed event", "error", err)
	}

	err = m.eventBus.Publish(ctx, execution.ID, events.DeadLetterCreated{
		BaseEvent: events.BaseEvent{
			ID:          m.eventBus.GenerateID(),
			Type:        events.DeadLetterCreatedEvent,
			Timestamp:   now,
			WorkspaceID: execution.WorkspaceID,
		},
		DeadLetterID: entry.ID,
		ExecutionID:  execution.ID,
		NodeID:       failure.Node.ID,
		ErrorType:    errorType,
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to publish dead letter event", "error", err)
	}

	err = m.notifier.NotifyFailure(ctx, failure.Automation, execution, entry)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to notify automation owner", "error", err)
	}

	return nil
}
