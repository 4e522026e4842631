// Package persistence provides the data storage abstraction for the
// workflow automation engine.
package persistence

import (
	"context"
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
)

// Persistence groups the entity repositories behind a single connection.
type Persistence interface {
	Definitions() DefinitionRepository
	Versions() VersionRepository
	Automations() AutomationRepository
	Executions() ExecutionRepository
	Steps() StepRepository
	Subscriptions() SubscriptionRepository
	DeadLetters() DeadLetterRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// DefinitionRepository stores workflow definitions.
type DefinitionRepository interface {
	Save(ctx context.Context, definition *models.WorkflowDefinition) error
	ByID(ctx context.Context, id string) (*models.WorkflowDefinition, error)
	ByWorkspace(ctx context.Context, workspaceID string) ([]*models.WorkflowDefinition, error)
	Delete(ctx context.Context, id string) error
}

// VersionRepository stores immutable definition snapshots.
type VersionRepository interface {
	Save(ctx context.Context, version *models.WorkflowVersion) error
	ByDefinitionAndVersion(ctx context.Context, definitionID string, version int) (*models.WorkflowVersion, error)
	ListByDefinition(ctx context.Context, definitionID string) ([]*models.WorkflowVersion, error)
}

// AutomationRepository stores trigger bindings and their run counters.
type AutomationRepository interface {
	Save(ctx context.Context, automation *models.Automation) error
	ByID(ctx context.Context, id string) (*models.Automation, error)
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*models.Automation, error)
	ListEnabledByTrigger(ctx context.Context, workspaceID, triggerType string) ([]*models.Automation, error)
	ListEnabledByTriggerType(ctx context.Context, triggerType string) ([]*models.Automation, error)

	// IncrementRuns bumps total_runs and runs_this_month when an execution
	// is created for this automation.
	IncrementRuns(ctx context.Context, id string) error

	// RecordResult bumps the success or failure counter on completion.
	RecordResult(ctx context.Context, id string, success bool) error
}

// ExecutionRepository stores execution rows. The execution row is the unit
// of mutual exclusion between workers; Claim is the only way to move a row
// out of pending or paused.
type ExecutionRepository interface {
	Save(ctx context.Context, execution *models.Execution) error
	ByID(ctx context.Context, id string) (*models.Execution, error)
	ListByWorkspace(ctx context.Context, workspaceID string, status *models.ExecutionStatus, limit, offset int) ([]*models.Execution, error)

	// Claim atomically transitions status from one state to another and
	// reports whether this caller won the transition. Concurrent claimers
	// of the same row see exactly one true.
	Claim(ctx context.Context, id string, from, to models.ExecutionStatus) (bool, error)

	// SaveIfStatus persists the row only while its stored status still
	// equals expected and reports whether the write happened. A row that
	// was cancelled or claimed in between is left untouched.
	SaveIfStatus(ctx context.Context, execution *models.Execution, expected models.ExecutionStatus) (bool, error)

	// ListDueResumes returns paused executions whose resume_at has passed.
	ListDueResumes(ctx context.Context, now time.Time, limit int) ([]*models.Execution, error)

	// ListEventTimeouts returns paused event-waits past their deadline.
	ListEventTimeouts(ctx context.Context, now time.Time, limit int) ([]*models.Execution, error)
}

// StepRepository stores append-only execution step records.
type StepRepository interface {
	Append(ctx context.Context, step *models.ExecutionStep) error
	ListByExecution(ctx context.Context, executionID string) ([]*models.ExecutionStep, error)
}

// SubscriptionRepository stores event-wait subscriptions.
type SubscriptionRepository interface {
	Save(ctx context.Context, subscription *models.EventSubscription) error
	ListActiveByEventType(ctx context.Context, eventType string) ([]*models.EventSubscription, error)
	ActiveByExecution(ctx context.Context, executionID string) (*models.EventSubscription, error)

	// Deactivate atomically flips is_active to false, storing the matched
	// event data, and reports whether this caller performed the flip. An
	// already-matched subscription returns false.
	Deactivate(ctx context.Context, id string, matchedData map[string]any) (bool, error)
}

// DeadLetterRepository stores terminally failed steps for manual triage.
type DeadLetterRepository interface {
	Save(ctx context.Context, entry *models.DeadLetterEntry) error
	ByID(ctx context.Context, id string) (*models.DeadLetterEntry, error)
	ListByWorkspace(ctx context.Context, workspaceID string, status *models.DeadLetterStatus) ([]*models.DeadLetterEntry, error)
}
