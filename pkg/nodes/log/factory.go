package log

import (
	"context"
	"log/slog"

	"github.com/flowlinehq/flowline/pkg/protocol"
)

// NodeFactory creates LogNode instances.
type NodeFactory struct {
	logger *slog.Logger
}

// NewNodeFactory creates a new log node factory.
func NewNodeFactory(logger *slog.Logger) *NodeFactory {
	return &NodeFactory{logger: logger}
}

// Create creates a new LogNode from the given configuration.
func (f *NodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.NodeHandler, error) {
	return NewLogNode(id, config, f.logger)
}

// ID returns the unique identifier for the node type.
func (f *NodeFactory) ID() string {
	return "log"
}

// Name returns the name of the node type.
func (f *NodeFactory) Name() string {
	return "Log"
}

// Description returns a brief description of the node type.
func (f *NodeFactory) Description() string {
	return "Writes a templated message to the engine log."
}

// Schema returns the JSON schema for configuring this node.
func (f *NodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Message to log. Supports templating.",
				"examples":    []string{"Processed order {{.trigger.order_id}}"},
			},
			"level": map[string]any{
				"type":        "string",
				"description": "Log level for the message.",
				"default":     "info",
				"enum":        []string{"debug", "info", "warn", "error"},
			},
		},
		"required":             []string{"message"},
		"additionalProperties": false,
	}
}
