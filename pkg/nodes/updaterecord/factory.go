package updaterecord

import (
	"context"
	"log/slog"

	"github.com/flowlinehq/flowline/pkg/protocol"
)

// NodeFactory creates UpdateRecordNode instances bound to the record module.
type NodeFactory struct {
	records protocol.RecordStore
	logger  *slog.Logger
}

// NewNodeFactory creates a new record update node factory.
func NewNodeFactory(records protocol.RecordStore, logger *slog.Logger) *NodeFactory {
	return &NodeFactory{records: records, logger: logger}
}

// Create creates a new UpdateRecordNode from the given configuration.
func (f *NodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.NodeHandler, error) {
	return NewUpdateRecordNode(id, config, f.records, f.logger)
}

// ID returns the unique identifier for the node type.
func (f *NodeFactory) ID() string {
	return "update_record"
}

// Name returns the name of the node type.
func (f *NodeFactory) Name() string {
	return "Update Record"
}

// Description returns a brief description of the node type.
func (f *NodeFactory) Description() string {
	return "Applies field changes to a CRM record."
}

// Schema returns the JSON schema for configuring this node.
func (f *NodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"record_id": map[string]any{
				"type":        "string",
				"description": "Identifier of the record to update. Supports templating.",
				"examples":    []string{"{{.trigger.record_id}}"},
			},
			"fields": map[string]any{
				"type":        "object",
				"description": "Fields to set on the record. String values support templating.",
			},
		},
		"required":             []string{"record_id", "fields"},
		"additionalProperties": false,
	}
}
