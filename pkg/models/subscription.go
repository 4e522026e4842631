package models

import (
	"fmt"
	"time"
)

// EventSubscription parks an execution on an external event. While an
// execution waits, exactly one active subscription row exists for it; the
// row is deactivated once matched or timed out and never reactivated.
type EventSubscription struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id" validate:"required"`
	ExecutionID string `json:"execution_id" validate:"required"`
	NodeID      string `json:"node_id"      validate:"required"`

	EventType   string         `json:"event_type" validate:"required"`
	EventFilter map[string]any `json:"event_filter,omitempty"`
	TimeoutAt   *time.Time     `json:"timeout_at,omitempty"`

	IsActive         bool           `json:"is_active"`
	MatchedEventData map[string]any `json:"matched_event_data,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	MatchedAt *time.Time `json:"matched_at,omitempty"`
}

// MatchesPayload reports whether an event payload satisfies the filter.
// The filter is a flat equality/subset match against payload fields; there
// is deliberately no expression language here.
func (s *EventSubscription) MatchesPayload(payload map[string]any) bool {
	for key, want := range s.EventFilter {
		got, ok := payload[key]
		if !ok {
			return false
		}

		if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}

	return true
}
