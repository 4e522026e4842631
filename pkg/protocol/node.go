// Package protocol defines the interfaces and contracts for pluggable node
// handlers.
package protocol

import (
	"context"
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
)

// ParkDirective tells the executor to pause the execution at this node.
// Exactly one of Duration or EventType is set for a pure wait; an event wait
// may additionally carry a Timeout.
type ParkDirective struct {
	// Duration parks the execution until now + Duration (wait_duration).
	Duration time.Duration

	// EventType parks the execution until a matching domain event arrives
	// (wait_event). EventFilter is an equality/subset match on the event
	// payload; Timeout optionally bounds the wait.
	EventType   string
	EventFilter map[string]any
	Timeout     time.Duration
}

// Outcome is the result of executing one node.
type Outcome struct {
	// Output is merged into the execution context under the node's id.
	Output map[string]any

	// Port selects the outgoing edge to follow. Defaults to "main".
	Port string

	// ConditionResult is recorded on the step for branch nodes.
	ConditionResult *bool

	// Park, when non-nil, pauses the execution instead of advancing.
	Park *ParkDirective
}

// NodeHandler executes one node of a workflow graph. Handlers return
// classified errors (models.NodeError) so the retry manager can decide
// whether to retry.
type NodeHandler interface {
	Execute(ctx context.Context, execCtx *models.ExecutionContext, input map[string]any) (*Outcome, error)
}

// NodeFactory creates node handler instances and provides metadata about
// the node type.
type NodeFactory interface {
	// Create creates a new handler with the given configuration.
	Create(ctx context.Context, id string, config map[string]any) (NodeHandler, error)

	// ID returns the unique identifier for this node type.
	ID() string

	// Name returns the human-readable name for this node type.
	Name() string

	// Description returns a description of what this node does.
	Description() string

	// Schema returns the JSON schema for configuring this node.
	Schema() map[string]any
}
