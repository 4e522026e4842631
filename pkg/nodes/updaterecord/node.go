// Package updaterecord provides the CRM record update action node.
package updaterecord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/protocol"
	"github.com/flowlinehq/flowline/pkg/template"
)

// UpdateRecordNode applies field changes to a CRM record. The record id and
// field values are templated against the execution context.
type UpdateRecordNode struct {
	id       string
	recordID string
	fields   map[string]any
	records  protocol.RecordStore
	logger   *slog.Logger
}

// NewUpdateRecordNode creates a new record update node from configuration.
func NewUpdateRecordNode(id string, config map[string]any, records protocol.RecordStore, logger *slog.Logger) (*UpdateRecordNode, error) {
	if records == nil {
		return nil, models.NewValidationError("record module is not available")
	}

	recordID, ok := config["record_id"].(string)
	if !ok || recordID == "" {
		return nil, models.NewValidationError("missing required field 'record_id'")
	}

	fields, ok := config["fields"].(map[string]any)
	if !ok || len(fields) == 0 {
		return nil, models.NewValidationError("missing required field 'fields'")
	}

	return &UpdateRecordNode{
		id:       id,
		recordID: recordID,
		fields:   fields,
		records:  records,
		logger:   logger.With("module", "update_record_node"),
	}, nil
}

// Execute renders the changes and applies them to the record.
func (n *UpdateRecordNode) Execute(ctx context.Context, execCtx *models.ExecutionContext, _ map[string]any) (*protocol.Outcome, error) {
	recordID, err := template.RenderString(n.recordID, execCtx)
	if err != nil {
		return nil, models.NewValidationError("failed to render record_id: %v", err)
	}

	if recordID == "" {
		return nil, models.NewValidationError("record_id rendered empty")
	}

	fields := make(map[string]any, len(n.fields))

	for key, value := range n.fields {
		templateStr, ok := value.(string)
		if !ok {
			fields[key] = value

			continue
		}

		result, err := template.RenderWithContext(templateStr, execCtx)
		if err != nil {
			return nil, models.NewValidationError("failed to render field '%s': %v", key, err)
		}

		fields[key] = result
	}

	n.logger.InfoContext(ctx, "Updating record",
		"execution_id", execCtx.ExecutionID,
		"record_id", recordID)

	result, err := n.records.UpdateRecord(ctx, execCtx.WorkspaceID, recordID, fields)
	if err != nil {
		return nil, models.NewNodeError(models.ClassifyError(err), fmt.Errorf("update record failed: %w", err))
	}

	output := map[string]any{"record_id": recordID}
	for key, value := range result {
		output[key] = value
	}

	return &protocol.Outcome{Output: output, Port: models.PortMain}, nil
}
