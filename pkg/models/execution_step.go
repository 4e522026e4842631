package models

import "time"

// StepStatus is the outcome recorded for one visited node.
type StepStatus string

const (
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
	StepStatusRetrying  StepStatus = "retrying"
)

// ExecutionStep is an immutable audit record for one node visit. Steps are
// append-only; the sequence ordered by ExecutedAt reconstructs the full
// execution history.
type ExecutionStep struct {
	ID          string     `json:"id"`
	ExecutionID string     `json:"execution_id" validate:"required"`
	NodeID      string     `json:"node_id"      validate:"required"`
	NodeType    string     `json:"node_type"    validate:"required"`
	Status      StepStatus `json:"status"`

	InputData  map[string]any `json:"input_data,omitempty"`
	OutputData map[string]any `json:"output_data,omitempty"`

	// ConditionResult is set only for branch nodes.
	ConditionResult *bool `json:"condition_result,omitempty"`

	Error      string    `json:"error,omitempty"`
	ErrorType  ErrorType `json:"error_type,omitempty"`
	RetryCount int       `json:"retry_count"`

	ExecutedAt time.Time `json:"executed_at"`
	DurationMs int64     `json:"duration_ms"`
}
