package models

import "time"

// DeadLetterStatus tracks manual triage of a dead-letter entry.
type DeadLetterStatus string

const (
	DeadLetterStatusPending  DeadLetterStatus = "pending"
	DeadLetterStatusResolved DeadLetterStatus = "resolved"
	DeadLetterStatusIgnored  DeadLetterStatus = "ignored"
)

// DeadLetterEntry preserves a terminally failed step for manual inspection.
// It captures the failing node's input and the execution context at the time
// of failure, enough to replay the step by hand.
type DeadLetterEntry struct {
	ID           string `json:"id"`
	WorkspaceID  string `json:"workspace_id"  validate:"required"`
	AutomationID string `json:"automation_id" validate:"required"`
	ExecutionID  string `json:"execution_id"  validate:"required"`

	NodeID       string    `json:"node_id"   validate:"required"`
	NodeType     string    `json:"node_type" validate:"required"`
	ErrorType    ErrorType `json:"error_type"`
	ErrorMessage string    `json:"error_message"`
	RetryCount   int       `json:"retry_count"`

	InputData        map[string]any    `json:"input_data,omitempty"`
	ExecutionContext *ExecutionContext `json:"execution_context,omitempty"`

	Status     DeadLetterStatus `json:"status"`
	Notes      string           `json:"notes,omitempty"`
	ResolvedBy string           `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time       `json:"resolved_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
