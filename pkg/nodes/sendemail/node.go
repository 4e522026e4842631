// Package sendemail provides the email action node backed by the platform
// mail module.
package sendemail

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/protocol"
	"github.com/flowlinehq/flowline/pkg/template"
)

// SendEmailNode sends an email through the workspace mail module. Recipients,
// subject, and body are all templated.
type SendEmailNode struct {
	id      string
	to      []string
	subject string
	body    string
	mailer  protocol.Mailer
	logger  *slog.Logger
}

// NewSendEmailNode creates a new email node from configuration.
func NewSendEmailNode(id string, config map[string]any, mailer protocol.Mailer, logger *slog.Logger) (*SendEmailNode, error) {
	if mailer == nil {
		return nil, models.NewValidationError("mail module is not available")
	}

	to, err := parseRecipients(config["to"])
	if err != nil {
		return nil, err
	}

	subject, _ := config["subject"].(string)
	if subject == "" {
		return nil, models.NewValidationError("missing required field 'subject'")
	}

	body, _ := config["body"].(string)

	return &SendEmailNode{
		id:      id,
		to:      to,
		subject: subject,
		body:    body,
		mailer:  mailer,
		logger:  logger.With("module", "send_email_node"),
	}, nil
}

// Execute renders the message and hands it to the mail module.
func (n *SendEmailNode) Execute(ctx context.Context, execCtx *models.ExecutionContext, _ map[string]any) (*protocol.Outcome, error) {
	recipients := make([]string, 0, len(n.to))

	for _, recipient := range n.to {
		rendered, err := template.RenderString(recipient, execCtx)
		if err != nil {
			return nil, models.NewValidationError("failed to render recipient '%s': %v", recipient, err)
		}

		if rendered != "" {
			recipients = append(recipients, rendered)
		}
	}

	if len(recipients) == 0 {
		return nil, models.NewValidationError("no recipients after rendering")
	}

	subject, err := template.RenderString(n.subject, execCtx)
	if err != nil {
		return nil, models.NewValidationError("failed to render subject: %v", err)
	}

	body, err := template.RenderString(n.body, execCtx)
	if err != nil {
		return nil, models.NewValidationError("failed to render body: %v", err)
	}

	n.logger.InfoContext(ctx, "Sending email",
		"execution_id", execCtx.ExecutionID,
		"recipients", len(recipients))

	result, err := n.mailer.Send(ctx, execCtx.WorkspaceID, recipients, subject, body)
	if err != nil {
		return nil, models.NewNodeError(models.ClassifyError(err), fmt.Errorf("send email failed: %w", err))
	}

	output := map[string]any{
		"recipients": recipients,
		"subject":    subject,
	}
	for key, value := range result {
		output[key] = value
	}

	return &protocol.Outcome{Output: output, Port: models.PortMain}, nil
}

func parseRecipients(raw any) ([]string, error) {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return nil, models.NewValidationError("missing required field 'to'")
		}

		parts := strings.Split(v, ",")
		recipients := make([]string, 0, len(parts))

		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				recipients = append(recipients, trimmed)
			}
		}

		return recipients, nil
	case []any:
		recipients := make([]string, 0, len(v))

		for _, entry := range v {
			str, ok := entry.(string)
			if !ok {
				return nil, models.NewValidationError("'to' entries must be strings")
			}

			recipients = append(recipients, str)
		}

		if len(recipients) == 0 {
			return nil, models.NewValidationError("missing required field 'to'")
		}

		return recipients, nil
	default:
		return nil, models.NewValidationError("missing required field 'to'")
	}
}
