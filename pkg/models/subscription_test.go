package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventSubscription_MatchesPayload(t *testing.T) {
	tests := []struct {
		name    string
		filter  map[string]any
		payload map[string]any
		matches bool
	}{
		{
			name:    "empty filter matches anything",
			filter:  nil,
			payload: map[string]any{"ticket_id": "t-1"},
			matches: true,
		},
		{
			name:    "exact match",
			filter:  map[string]any{"ticket_id": "t-1"},
			payload: map[string]any{"ticket_id": "t-1"},
			matches: true,
		},
		{
			name:    "subset match ignores extra payload fields",
			filter:  map[string]any{"ticket_id": "t-1"},
			payload: map[string]any{"ticket_id": "t-1", "status": "closed", "agent": "sam"},
			matches: true,
		},
		{
			name:    "value mismatch",
			filter:  map[string]any{"ticket_id": "t-1"},
			payload: map[string]any{"ticket_id": "t-2"},
			matches: false,
		},
		{
			name:    "missing key",
			filter:  map[string]any{"ticket_id": "t-1"},
			payload: map[string]any{"status": "closed"},
			matches: false,
		},
		{
			name:    "numeric values compared by representation",
			filter:  map[string]any{"attempt": 2},
			payload: map[string]any{"attempt": 2},
			matches: true,
		},
		{
			name:    "all filter keys must match",
			filter:  map[string]any{"ticket_id": "t-1", "status": "closed"},
			payload: map[string]any{"ticket_id": "t-1", "status": "open"},
			matches: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &EventSubscription{EventFilter: tt.filter}

			assert.Equal(t, tt.matches, sub.MatchesPayload(tt.payload))
		})
	}
}
