package services

import (
	"context"
	"fmt"
	"time"

	"github.com/flowlinehq/flowline/pkg/eventbus"
	"github.com/flowlinehq/flowline/pkg/events"
	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/persistence"
)

// ErrExecutionNotFound is returned when an execution is not found.
var ErrExecutionNotFound = persistence.ErrExecutionNotFound

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Executions provides read access to execution history and cancellation.
type Executions struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
}

// NewExecutions creates a new execution service.
func NewExecutions(persistence persistence.Persistence, eventBus eventbus.EventBus) *Executions {
	return &Executions{
		persistence: persistence,
		eventBus:    eventBus,
	}
}

// ListExecutionsRequest filters the execution listing.
type ListExecutionsRequest struct {
	WorkspaceID string `validate:"required"`
	Status      *models.ExecutionStatus
	Limit       int
	Offset      int
}

// List returns executions in a workspace, newest first.
func (s *Executions) List(ctx context.Context, req ListExecutionsRequest) ([]*models.Execution, error) {
	if req.WorkspaceID == "" {
		return nil, ErrEmptyWorkspaceID
	}

	if req.Limit <= 0 {
		req.Limit = defaultPageSize
	}

	if req.Limit > maxPageSize {
		req.Limit = maxPageSize
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.Status != nil {
		switch *req.Status {
		case models.ExecutionStatusPending, models.ExecutionStatusRunning, models.ExecutionStatusPaused,
			models.ExecutionStatusCompleted, models.ExecutionStatusFailed, models.ExecutionStatusCancelled:
		default:
			return nil, NewValidationError("List", "INVALID_STATUS",
				fmt.Sprintf("unknown status %q", *req.Status), ErrInvalidStatus)
		}
	}

	return s.persistence.Executions().ListByWorkspace(ctx, req.WorkspaceID, req.Status, req.Limit, req.Offset)
}

// ExecutionDetail bundles an execution with its step history.
type ExecutionDetail struct {
	Execution *models.Execution      `json:"execution"`
	Steps     []*models.ExecutionStep `json:"steps"`
}

// Get returns an execution with its full step history.
func (s *Executions) Get(ctx context.Context, id string) (*ExecutionDetail, error) {
	execution, err := s.persistence.Executions().ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	steps, err := s.persistence.Steps().ListByExecution(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load execution steps: %w", err)
	}

	return &ExecutionDetail{Execution: execution, Steps: steps}, nil
}

// Cancel moves an execution to cancelled. Cancellation wins over concurrent
// resume attempts: the conditional update takes the row out from under any
// worker racing to claim it, and a running worker stops at the next node
// boundary.
func (s *Executions) Cancel(ctx context.Context, id, reason string) (*models.Execution, error) {
	execution, err := s.persistence.Executions().ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if execution.IsTerminal() {
		return nil, ErrExecutionFinished
	}

	cancelled := false

	for _, from := range []models.ExecutionStatus{
		models.ExecutionStatusPending,
		models.ExecutionStatusPaused,
		models.ExecutionStatusRunning,
	} {
		won, err := s.persistence.Executions().Claim(ctx, id, from, models.ExecutionStatusCancelled)
		if err != nil {
			return nil, fmt.Errorf("failed to cancel execution: %w", err)
		}

		if won {
			cancelled = true

			break
		}
	}

	if !cancelled {
		// The execution reached a terminal state between the read and the
		// conditional updates.
		return nil, ErrExecutionFinished
	}

	// Retire any active event subscription so a late event cannot match.
	subscription, err := s.persistence.Subscriptions().ActiveByExecution(ctx, id)
	if err == nil {
		_, err = s.persistence.Subscriptions().Deactivate(ctx, subscription.ID, map[string]any{"cancelled": true})
		if err != nil {
			return nil, fmt.Errorf("failed to deactivate subscription: %w", err)
		}
	} else if !persistence.IsSubscriptionNotFound(err) {
		return nil, fmt.Errorf("failed to check subscription: %w", err)
	}

	execution, err = s.persistence.Executions().ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	execution.ClearWaitState()
	execution.NextNodeID = nil
	execution.CompletedAt = &now

	err = s.persistence.Executions().Save(ctx, execution)
	if err != nil {
		return nil, fmt.Errorf("failed to finalize cancellation: %w", err)
	}

	err = s.eventBus.Publish(ctx, execution.ID, events.ExecutionCancelled{
		BaseEvent: events.BaseEvent{
			ID:          s.eventBus.GenerateID(),
			Type:        events.ExecutionCancelledEvent,
			Timestamp:   now,
			WorkspaceID: execution.WorkspaceID,
		},
		ExecutionID: execution.ID,
		Reason:      reason,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to publish cancellation event: %w", err)
	}

	return execution, nil
}
