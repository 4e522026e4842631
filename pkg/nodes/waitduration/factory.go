package waitduration

import (
	"context"

	"github.com/flowlinehq/flowline/pkg/protocol"
)

// NodeFactory creates WaitDurationNode instances.
type NodeFactory struct{}

// NewNodeFactory creates a new wait duration node factory.
func NewNodeFactory() *NodeFactory {
	return &NodeFactory{}
}

// Create creates a new WaitDurationNode from the given configuration.
func (f *NodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.NodeHandler, error) {
	return NewWaitDurationNode(id, config)
}

// ID returns the unique identifier for the node type.
func (f *NodeFactory) ID() string {
	return "wait_duration"
}

// Name returns the name of the node type.
func (f *NodeFactory) Name() string {
	return "Wait Duration"
}

// Description returns a brief description of the node type.
func (f *NodeFactory) Description() string {
	return "Pauses the execution for a fixed amount of time without holding a worker."
}

// Schema returns the JSON schema for configuring this node.
func (f *NodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"duration": map[string]any{
				"description": "How long to wait. A Go duration string or a number of seconds.",
				"oneOf": []map[string]any{
					{"type": "string", "examples": []string{"30s", "15m", "2h"}},
					{"type": "number", "minimum": 1},
				},
			},
		},
		"required":             []string{"duration"},
		"additionalProperties": false,
	}
}
