// Package createticket provides the ticket creation action node.
package createticket

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/protocol"
	"github.com/flowlinehq/flowline/pkg/template"
)

// CreateTicketNode opens a ticket in the workspace ticketing module. Field
// values are templated against the execution context.
type CreateTicketNode struct {
	id       string
	fields   map[string]any
	ticketer protocol.Ticketer
	logger   *slog.Logger
}

// NewCreateTicketNode creates a new ticket node from configuration.
func NewCreateTicketNode(id string, config map[string]any, ticketer protocol.Ticketer, logger *slog.Logger) (*CreateTicketNode, error) {
	if ticketer == nil {
		return nil, models.NewValidationError("ticketing module is not available")
	}

	fields, ok := config["fields"].(map[string]any)
	if !ok || len(fields) == 0 {
		return nil, models.NewValidationError("missing required field 'fields'")
	}

	return &CreateTicketNode{
		id:       id,
		fields:   fields,
		ticketer: ticketer,
		logger:   logger.With("module", "create_ticket_node"),
	}, nil
}

// Execute renders the ticket fields and creates the ticket.
func (n *CreateTicketNode) Execute(ctx context.Context, execCtx *models.ExecutionContext, _ map[string]any) (*protocol.Outcome, error) {
	fields, err := renderFields(n.fields, execCtx)
	if err != nil {
		return nil, err
	}

	n.logger.InfoContext(ctx, "Creating ticket",
		"execution_id", execCtx.ExecutionID,
		"workspace_id", execCtx.WorkspaceID)

	result, err := n.ticketer.CreateTicket(ctx, execCtx.WorkspaceID, fields)
	if err != nil {
		return nil, models.NewNodeError(models.ClassifyError(err), fmt.Errorf("create ticket failed: %w", err))
	}

	return &protocol.Outcome{Output: result, Port: models.PortMain}, nil
}

// renderFields templates every string value in a field map.
func renderFields(fields map[string]any, execCtx *models.ExecutionContext) (map[string]any, error) {
	rendered := make(map[string]any, len(fields))

	for key, value := range fields {
		templateStr, ok := value.(string)
		if !ok {
			rendered[key] = value

			continue
		}

		result, err := template.RenderWithContext(templateStr, execCtx)
		if err != nil {
			return nil, models.NewValidationError("failed to render field '%s': %v", key, err)
		}

		rendered[key] = result
	}

	return rendered, nil
}
