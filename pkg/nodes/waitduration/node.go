// Package waitduration provides the timer wait node.
package waitduration

import (
	"context"
	"fmt"
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/protocol"
)

// WaitDurationNode parks the execution for a fixed duration. The executor
// persists the wake-up time; no goroutine sleeps while the execution waits.
type WaitDurationNode struct {
	id       string
	duration time.Duration
}

// NewWaitDurationNode creates a new wait node from configuration. The
// duration is given either as a Go duration string ("30s", "2h") or as a
// number of seconds.
func NewWaitDurationNode(id string, config map[string]any) (*WaitDurationNode, error) {
	duration, err := parseDuration(config["duration"])
	if err != nil {
		return nil, models.NewValidationError("invalid 'duration': %v", err)
	}

	if duration <= 0 {
		return nil, models.NewValidationError("'duration' must be positive")
	}

	return &WaitDurationNode{id: id, duration: duration}, nil
}

// Execute asks the executor to park the execution until the duration elapses.
func (n *WaitDurationNode) Execute(_ context.Context, _ *models.ExecutionContext, _ map[string]any) (*protocol.Outcome, error) {
	return &protocol.Outcome{
		Output: map[string]any{
			"duration_seconds": n.duration.Seconds(),
		},
		Port: models.PortMain,
		Park: &protocol.ParkDirective{Duration: n.duration},
	}, nil
}

func parseDuration(raw any) (time.Duration, error) {
	switch v := raw.(type) {
	case string:
		return time.ParseDuration(v)
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case int:
		return time.Duration(v) * time.Second, nil
	default:
		return 0, fmt.Errorf("expected duration string or seconds, got %T", raw)
	}
}
