package models

import "time"

// ExecutionStatus represents the lifecycle state of one workflow run.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// Execution is one run of a workflow for one trigger event. All pause and
// resume state lives on this row; the engine holds nothing in memory between
// invocations, so any worker can pick an execution up.
type Execution struct {
	ID                string          `json:"id"`
	WorkspaceID       string          `json:"workspace_id"  validate:"required"`
	AutomationID      string          `json:"automation_id" validate:"required"`
	DefinitionID      string          `json:"definition_id" validate:"required"`
	DefinitionVersion int             `json:"definition_version"`
	Status            ExecutionStatus `json:"status"`

	CurrentNodeID *string `json:"current_node_id,omitempty"`
	NextNodeID    *string `json:"next_node_id,omitempty"`

	Context *ExecutionContext `json:"context"`

	// Time-based wait: the scheduler resumes the execution once ResumeAt
	// has passed. Also reused for retry backoff.
	ResumeAt *time.Time `json:"resume_at,omitempty"`

	// Event-based wait: the subscription matcher resumes the execution when
	// a matching domain event arrives, or the scheduler times it out.
	WaitEventType   *string        `json:"wait_event_type,omitempty"`
	WaitEventFilter map[string]any `json:"wait_event_filter,omitempty"`
	WaitTimeoutAt   *time.Time     `json:"wait_timeout_at,omitempty"`

	RetryCount  int     `json:"retry_count"`
	Error       string  `json:"error,omitempty"`
	ErrorNodeID *string `json:"error_node_id,omitempty"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsTerminal reports whether the execution reached a final state.
func (e *Execution) IsTerminal() bool {
	switch e.Status {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// IsWaitingForEvent reports whether the execution is parked on an event wait.
func (e *Execution) IsWaitingForEvent() bool {
	return e.Status == ExecutionStatusPaused && e.WaitEventType != nil
}

// ClearWaitState resets pause bookkeeping before the execution moves on.
func (e *Execution) ClearWaitState() {
	e.ResumeAt = nil
	e.WaitEventType = nil
	e.WaitEventFilter = nil
	e.WaitTimeoutAt = nil
}
