// Package log provides a diagnostic node that writes a templated message to
// the structured log.
package log

import (
	"context"
	"log/slog"
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/protocol"
	"github.com/flowlinehq/flowline/pkg/template"
)

// LogNode writes a message to the engine log. Useful while authoring a
// workflow; it has no side effects outside the log stream.
type LogNode struct {
	id      string
	message string
	level   string
	logger  *slog.Logger
}

// NewLogNode creates a new log node from configuration.
func NewLogNode(id string, config map[string]any, logger *slog.Logger) (*LogNode, error) {
	message, ok := config["message"].(string)
	if !ok || message == "" {
		return nil, models.NewValidationError("missing required field 'message'")
	}

	level, _ := config["level"].(string)
	if level == "" {
		level = "info"
	}

	return &LogNode{
		id:      id,
		message: message,
		level:   level,
		logger:  logger.With("module", "log_node"),
	}, nil
}

// Execute renders and logs the message.
func (n *LogNode) Execute(ctx context.Context, execCtx *models.ExecutionContext, _ map[string]any) (*protocol.Outcome, error) {
	message, err := template.RenderString(n.message, execCtx)
	if err != nil {
		return nil, models.NewValidationError("failed to render message: %v", err)
	}

	logger := n.logger.With("execution_id", execCtx.ExecutionID, "node_id", n.id)

	switch n.level {
	case "debug":
		logger.DebugContext(ctx, message)
	case "warn":
		logger.WarnContext(ctx, message)
	case "error":
		logger.ErrorContext(ctx, message)
	default:
		logger.InfoContext(ctx, message)
	}

	return &protocol.Outcome{
		Output: map[string]any{
			"message":   message,
			"level":     n.level,
			"logged_at": time.Now().UTC().Format(time.RFC3339),
		},
		Port: models.PortMain,
	}, nil
}
