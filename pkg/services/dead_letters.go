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

// ErrDeadLetterNotFound is returned when a dead-letter entry is not found.
var ErrDeadLetterNotFound = persistence.ErrDeadLetterNotFound

// DeadLetters handles manual triage of terminally failed steps.
type DeadLetters struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
}

// NewDeadLetters creates a new dead-letter service.
func NewDeadLetters(persistence persistence.Persistence, eventBus eventbus.EventBus) *DeadLetters {
	return &DeadLetters{
		persistence: persistence,
		eventBus:    eventBus,
	}
}

// List returns dead-letter entries in a workspace, optionally filtered by
// triage status.
func (s *DeadLetters) List(ctx context.Context, workspaceID string, status *models.DeadLetterStatus) ([]*models.DeadLetterEntry, error) {
	if workspaceID == "" {
		return nil, ErrEmptyWorkspaceID
	}

	return s.persistence.DeadLetters().ListByWorkspace(ctx, workspaceID, status)
}

// Get returns a dead-letter entry by id.
func (s *DeadLetters) Get(ctx context.Context, id string) (*models.DeadLetterEntry, error) {
	return s.persistence.DeadLetters().ByID(ctx, id)
}

// Resolve marks an entry as handled.
func (s *DeadLetters) Resolve(ctx context.Context, id, resolvedBy, notes string) (*models.DeadLetterEntry, error) {
	return s.close(ctx, id, models.DeadLetterStatusResolved, resolvedBy, notes)
}

// Ignore marks an entry as not worth fixing.
func (s *DeadLetters) Ignore(ctx context.Context, id, resolvedBy, notes string) (*models.DeadLetterEntry, error) {
	return s.close(ctx, id, models.DeadLetterStatusIgnored, resolvedBy, notes)
}

// Replay re-runs a dead-lettered execution from its failed node. The failed
// execution is moved back to paused with an immediate resume, so it flows
// through the ordinary scheduler and worker path with a fresh retry budget.
func (s *DeadLetters) Replay(ctx context.Context, id, requestedBy string) (*models.DeadLetterEntry, error) {
	entry, err := s.persistence.DeadLetters().ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if entry.Status != models.DeadLetterStatusPending {
		return nil, ErrDeadLetterClosed
	}

	won, err := s.persistence.Executions().Claim(ctx, entry.ExecutionID,
		models.ExecutionStatusFailed, models.ExecutionStatusPaused)
	if err != nil {
		return nil, fmt.Errorf("failed to reopen execution: %w", err)
	}

	if !won {
		return nil, ErrExecutionFinished
	}

	execution, err := s.persistence.Executions().ByID(ctx, entry.ExecutionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load execution: %w", err)
	}

	now := time.Now().UTC()

	execution.ClearWaitState()
	execution.ResumeAt = &now
	execution.NextNodeID = &entry.NodeID
	execution.RetryCount = 0
	execution.Error = ""
	execution.ErrorNodeID = nil
	execution.CompletedAt = nil

	if entry.ExecutionContext != nil {
		execution.Context = entry.ExecutionContext
	}

	err = s.persistence.Executions().Save(ctx, execution)
	if err != nil {
		return nil, fmt.Errorf("failed to stage replay: %w", err)
	}

	err = s.eventBus.Publish(ctx, execution.ID, events.ExecutionResumeRequested{
		BaseEvent: events.BaseEvent{
			ID:          s.eventBus.GenerateID(),
			Type:        events.ExecutionResumeRequestedEvent,
			Timestamp:   now,
			WorkspaceID: execution.WorkspaceID,
		},
		ExecutionID: execution.ID,
		Reason:      "dead_letter_replay",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to publish replay request: %w", err)
	}

	return s.close(ctx, id, models.DeadLetterStatusResolved, requestedBy, "replayed")
}

func (s *DeadLetters) close(ctx context.Context, id string, status models.DeadLetterStatus, resolvedBy, notes string) (*models.DeadLetterEntry, error) {
	entry, err := s.persistence.DeadLetters().ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if entry.Status != models.DeadLetterStatusPending && entry.Status != status {
		return nil, ErrDeadLetterClosed
	}

	now := time.Now().UTC()

	entry.Status = status
	entry.ResolvedBy = resolvedBy
	entry.Notes = notes
	entry.ResolvedAt = &now

	err = s.persistence.DeadLetters().Save(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to update dead letter entry: %w", err)
	}

	return entry, nil
}
