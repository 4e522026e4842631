package createticket

import (
	"context"
	"log/slog"

	"github.com/flowlinehq/flowline/pkg/protocol"
)

// NodeFactory creates CreateTicketNode instances bound to the ticketing
// module.
type NodeFactory struct {
	ticketer protocol.Ticketer
	logger   *slog.Logger
}

// NewNodeFactory creates a new ticket node factory.
func NewNodeFactory(ticketer protocol.Ticketer, logger *slog.Logger) *NodeFactory {
	return &NodeFactory{ticketer: ticketer, logger: logger}
}

// Create creates a new CreateTicketNode from the given configuration.
func (f *NodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.NodeHandler, error) {
	return NewCreateTicketNode(id, config, f.ticketer, f.logger)
}

// ID returns the unique identifier for the node type.
func (f *NodeFactory) ID() string {
	return "create_ticket"
}

// Name returns the name of the node type.
func (f *NodeFactory) Name() string {
	return "Create Ticket"
}

// Description returns a brief description of the node type.
func (f *NodeFactory) Description() string {
	return "Creates a ticket in the workspace ticketing module."
}

// Schema returns the JSON schema for configuring this node.
func (f *NodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"fields": map[string]any{
				"type":        "object",
				"description": "Ticket fields. String values support templating.",
				"examples": []map[string]any{
					{
						"title":    "Follow up with {{.trigger.customer_name}}",
						"priority": "high",
					},
				},
			},
		},
		"required":             []string{"fields"},
		"additionalProperties": false,
	}
}
