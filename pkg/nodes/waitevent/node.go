// Package waitevent provides the event wait node.
package waitevent

import (
	"context"
	"fmt"
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/protocol"
	"github.com/flowlinehq/flowline/pkg/template"
)

// WaitEventNode parks the execution until a domain event of the configured
// type arrives with a payload matching the filter. Filter values are
// templated so a workflow can wait for an event about a specific entity,
// e.g. {"ticket_id": "{{.trigger.ticket_id}}"}.
type WaitEventNode struct {
	id        string
	eventType string
	filter    map[string]any
	timeout   time.Duration
}

// NewWaitEventNode creates a new event wait node from configuration.
func NewWaitEventNode(id string, config map[string]any) (*WaitEventNode, error) {
	eventType, ok := config["event_type"].(string)
	if !ok || eventType == "" {
		return nil, models.NewValidationError("missing required field 'event_type'")
	}

	filter := make(map[string]any)

	if rawFilter, exists := config["filter"]; exists {
		filterMap, ok := rawFilter.(map[string]any)
		if !ok {
			return nil, models.NewValidationError("'filter' must be an object")
		}

		filter = filterMap
	}

	var timeout time.Duration

	if rawTimeout, exists := config["timeout"]; exists {
		timeoutStr, ok := rawTimeout.(string)
		if !ok {
			return nil, models.NewValidationError("'timeout' must be a duration string")
		}

		parsed, err := time.ParseDuration(timeoutStr)
		if err != nil {
			return nil, models.NewValidationError("invalid 'timeout': %v", err)
		}

		timeout = parsed
	}

	return &WaitEventNode{
		id:        id,
		eventType: eventType,
		filter:    filter,
		timeout:   timeout,
	}, nil
}

// Execute renders the filter and asks the executor to park the execution
// until a matching event arrives.
func (n *WaitEventNode) Execute(_ context.Context, execCtx *models.ExecutionContext, _ map[string]any) (*protocol.Outcome, error) {
	rendered := make(map[string]any, len(n.filter))

	for key, value := range n.filter {
		templateStr, ok := value.(string)
		if !ok {
			rendered[key] = value

			continue
		}

		result, err := template.RenderWithContext(templateStr, execCtx)
		if err != nil {
			return nil, models.NewValidationError("failed to render filter '%s': %v", key, err)
		}

		rendered[key] = result
	}

	return &protocol.Outcome{
		Output: map[string]any{
			"event_type": n.eventType,
			"filter":     rendered,
		},
		Port: models.PortMain,
		Park: &protocol.ParkDirective{
			EventType:   n.eventType,
			EventFilter: rendered,
			Timeout:     n.timeout,
		},
	}, nil
}

// String describes the wait for logs.
func (n *WaitEventNode) String() string {
	return fmt.Sprintf("wait_event(%s)", n.eventType)
}
