package condition

import (
	"context"

	"github.com/flowlinehq/flowline/pkg/protocol"
)

// NodeFactory creates ConditionNode instances.
type NodeFactory struct{}

// NewNodeFactory creates a new condition node factory.
func NewNodeFactory() *NodeFactory {
	return &NodeFactory{}
}

// Create creates a new ConditionNode from the given configuration.
func (f *NodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.NodeHandler, error) {
	return NewConditionNode(id, config)
}

// ID returns the unique identifier for the node type.
func (f *NodeFactory) ID() string {
	return "condition"
}

// Name returns the name of the node type.
func (f *NodeFactory) Name() string {
	return "Condition"
}

// Description returns a brief description of the node type.
func (f *NodeFactory) Description() string {
	return "Evaluates an expression against the execution context and branches on the result."
}

// Schema returns the JSON schema for configuring this node.
func (f *NodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"description": "Boolean expression evaluated against trigger data, variables, and node outputs.",
				"examples": []string{
					`trigger.amount > 1000`,
					`nodes.fetch_user.output.plan == "enterprise"`,
					`vars.region in ["us", "eu"]`,
				},
			},
			"strict": map[string]any{
				"type":        "boolean",
				"description": "Fail the node on evaluation errors instead of taking the false branch.",
				"default":     false,
			},
		},
		"required":             []string{"expression"},
		"additionalProperties": false,
	}
}
