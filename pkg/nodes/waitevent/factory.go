package waitevent

import (
	"context"

	"github.com/flowlinehq/flowline/pkg/protocol"
)

// NodeFactory creates WaitEventNode instances.
type NodeFactory struct{}

// NewNodeFactory creates a new wait event node factory.
func NewNodeFactory() *NodeFactory {
	return &NodeFactory{}
}

// Create creates a new WaitEventNode from the given configuration.
func (f *NodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.NodeHandler, error) {
	return NewWaitEventNode(id, config)
}

// ID returns the unique identifier for the node type.
func (f *NodeFactory) ID() string {
	return "wait_event"
}

// Name returns the name of the node type.
func (f *NodeFactory) Name() string {
	return "Wait Event"
}

// Description returns a brief description of the node type.
func (f *NodeFactory) Description() string {
	return "Pauses the execution until a matching platform event arrives."
}

// Schema returns the JSON schema for configuring this node.
func (f *NodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"event_type": map[string]any{
				"type":        "string",
				"description": "Event type to wait for.",
				"examples":    []string{"ticket.replied", "record.updated", "payment.settled"},
			},
			"filter": map[string]any{
				"type":        "object",
				"description": "Key/value pairs the event payload must contain. Values support templating.",
				"examples": []map[string]any{
					{"ticket_id": "{{.trigger.ticket_id}}"},
				},
			},
			"timeout": map[string]any{
				"type":        "string",
				"description": "Optional maximum wait as a Go duration string.",
				"examples":    []string{"24h", "72h"},
			},
		},
		"required":             []string{"event_type"},
		"additionalProperties": false,
	}
}
