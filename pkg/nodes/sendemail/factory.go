package sendemail

import (
	"context"
	"log/slog"

	"github.com/flowlinehq/flowline/pkg/protocol"
)

// NodeFactory creates SendEmailNode instances bound to the platform mailer.
type NodeFactory struct {
	mailer protocol.Mailer
	logger *slog.Logger
}

// NewNodeFactory creates a new email node factory.
func NewNodeFactory(mailer protocol.Mailer, logger *slog.Logger) *NodeFactory {
	return &NodeFactory{mailer: mailer, logger: logger}
}

// Create creates a new SendEmailNode from the given configuration.
func (f *NodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.NodeHandler, error) {
	return NewSendEmailNode(id, config, f.mailer, f.logger)
}

// ID returns the unique identifier for the node type.
func (f *NodeFactory) ID() string {
	return "send_email"
}

// Name returns the name of the node type.
func (f *NodeFactory) Name() string {
	return "Send Email"
}

// Description returns a brief description of the node type.
func (f *NodeFactory) Description() string {
	return "Sends an email through the workspace mail module."
}

// Schema returns the JSON schema for configuring this node.
func (f *NodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to": map[string]any{
				"description": "Recipient addresses. A comma-separated string or an array. Supports templating.",
				"oneOf": []map[string]any{
					{"type": "string"},
					{"type": "array", "items": map[string]any{"type": "string"}},
				},
				"examples": []any{
					"ops@example.com",
					[]string{"{{.trigger.owner_email}}"},
				},
			},
			"subject": map[string]any{
				"type":        "string",
				"description": "Message subject. Supports templating.",
			},
			"body": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Message body. Supports templating.",
			},
		},
		"required":             []string{"to", "subject"},
		"additionalProperties": false,
	}
}
