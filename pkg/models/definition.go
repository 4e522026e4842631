// Package models defines the core domain models for the workflow automation engine.
package models

import "time"

// DefinitionStatus represents the lifecycle state of a workflow definition.
type DefinitionStatus string

const (
	DefinitionStatusDraft    DefinitionStatus = "draft"    // Editable, not executable
	DefinitionStatusActive   DefinitionStatus = "active"   // Executable by automations
	DefinitionStatusArchived DefinitionStatus = "archived" // Historical, not executable
)

// Standard edge ports. Branch nodes may emit additional labels.
const (
	PortMain    = "main"
	PortTrue    = "true"
	PortFalse   = "false"
	PortTimeout = "timeout"
)

// Node is a single unit of work in a workflow graph.
type Node struct {
	ID        string         `json:"id"      validate:"required"`
	Type      string         `json:"type"    validate:"required"`
	Name      string         `json:"name"    validate:"required,min=1"`
	Config    map[string]any `json:"config"`
	Enabled   bool           `json:"enabled"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
}

// Edge connects an output port of one node to another node. Branch nodes
// select among their outgoing edges by port label at runtime.
type Edge struct {
	ID           string `json:"id"             validate:"required"`
	SourceNodeID string `json:"source_node_id" validate:"required"`
	SourcePort   string `json:"source_port"    validate:"required"`
	TargetNodeID string `json:"target_node_id" validate:"required"`
}

// WorkflowDefinition is a workspace-owned node graph. Each save recomputes
// ExecutionOrder and snapshots a new WorkflowVersion; in-flight executions
// keep running against the version they started with.
type WorkflowDefinition struct {
	ID             string           `json:"id"`
	WorkspaceID    string           `json:"workspace_id" validate:"required"`
	Name           string           `json:"name"         validate:"required,min=3"`
	Description    string           `json:"description"`
	Status         DefinitionStatus `json:"status"       validate:"required"`
	Nodes          []*Node          `json:"nodes"`
	Edges          []*Edge          `json:"edges"`
	ExecutionOrder []string         `json:"execution_order"` // Topological hint, recomputed on save
	Version        int              `json:"version"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	DeletedAt      *time.Time       `json:"deleted_at,omitempty"`
}

// WorkflowVersion is an immutable snapshot of a definition's graph, created
// on every save. Executions pin a version number so that editor saves never
// change a graph underneath a running execution.
type WorkflowVersion struct {
	ID           string    `json:"id"`
	DefinitionID string    `json:"definition_id" validate:"required"`
	Version      int       `json:"version"       validate:"required,min=1"`
	Graph        *Graph    `json:"graph"         validate:"required"`
	CreatedAt    time.Time `json:"created_at"`
	CreatedBy    string    `json:"created_by"`
}

// Graph is the serializable node/edge snapshot stored inside a version.
type Graph struct {
	Nodes          []*Node  `json:"nodes"`
	Edges          []*Edge  `json:"edges"`
	ExecutionOrder []string `json:"execution_order"`
}

// Snapshot captures the definition's current graph as a version payload.
func (d *WorkflowDefinition) Snapshot() *Graph {
	return &Graph{
		Nodes:          d.Nodes,
		Edges:          d.Edges,
		ExecutionOrder: d.ExecutionOrder,
	}
}
