package protocol

import "context"

// The interfaces below are implemented by platform modules. The engine only
// calls them from node handlers; it never implements them itself.

// Mailer sends an email on behalf of a workspace.
type Mailer interface {
	Send(ctx context.Context, workspaceID string, to []string, subject, body string) (map[string]any, error)
}

// Ticketer creates tickets in the platform ticketing module.
type Ticketer interface {
	CreateTicket(ctx context.Context, workspaceID string, fields map[string]any) (map[string]any, error)
}

// RecordStore updates CRM records.
type RecordStore interface {
	UpdateRecord(ctx context.Context, workspaceID, recordID string, fields map[string]any) (map[string]any, error)
}

// AgentRunner invokes an AI agent. Run blocks until the agent completes;
// Enqueue submits the call and returns a task reference immediately.
type AgentRunner interface {
	Run(ctx context.Context, workspaceID, agentID string, input map[string]any) (map[string]any, error)
	Enqueue(ctx context.Context, workspaceID, agentID string, input map[string]any) (string, error)
}
