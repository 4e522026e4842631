// Package web provides the HTTP handlers and REST endpoints for the workflow
// automation API.
package web

import "github.com/flowlinehq/flowline/pkg/models"

// SaveDefinitionRequest is the request body for creating or updating a
// workflow definition. The payload always carries the full graph; partial
// graph edits are an editor concern.
type SaveDefinitionRequest struct {
	Name        string                  `json:"name"        validate:"required,min=3"`
	Description string                  `json:"description"`
	Status      models.DefinitionStatus `json:"status,omitempty"`
	Nodes       []*models.Node          `json:"nodes"`
	Edges       []*models.Edge          `json:"edges"`
	SavedBy     string                  `json:"saved_by"`
}

// RollbackRequest is the request body for restoring an old definition version.
type RollbackRequest struct {
	Version int    `json:"version"  validate:"required,min=1"`
	SavedBy string `json:"saved_by"`
}

// SaveAutomationRequest is the request body for creating or updating an
// automation.
type SaveAutomationRequest struct {
	Name          string                        `json:"name"          validate:"required,min=3"`
	DefinitionID  string                        `json:"definition_id" validate:"required"`
	TriggerType   string                        `json:"trigger_type"  validate:"required"`
	TriggerConfig map[string]any                `json:"trigger_config,omitempty"`
	Conditions    []*models.AutomationCondition `json:"conditions,omitempty"`
	RetryConfig   *models.RetryConfig           `json:"retry_config,omitempty"`
	Enabled       bool                          `json:"enabled"`

	NotifyOnFailure  bool     `json:"notify_on_failure"`
	NotifyRecipients []string `json:"notify_recipients,omitempty"`
	MonthlyRunLimit  int64    `json:"monthly_run_limit" validate:"min=0"`
}

// CancelExecutionRequest is the request body for cancelling an execution.
type CancelExecutionRequest struct {
	Reason string `json:"reason,omitempty"`
}

// TriageRequest is the request body for resolving or ignoring a dead-letter
// entry.
type TriageRequest struct {
	ResolvedBy string `json:"resolved_by" validate:"required"`
	Notes      string `json:"notes,omitempty"`
}

// ReplayRequest is the request body for replaying a dead-lettered execution.
type ReplayRequest struct {
	RequestedBy string `json:"requested_by" validate:"required"`
}

// NodeTypeResponse describes one registered node type for the editor palette.
type NodeTypeResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema"`
}
