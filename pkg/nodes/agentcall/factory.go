package agentcall

import (
	"context"
	"log/slog"

	"github.com/flowlinehq/flowline/pkg/protocol"
)

// NodeFactory creates AgentCallNode instances bound to the agent module.
type NodeFactory struct {
	runner protocol.AgentRunner
	logger *slog.Logger
}

// NewNodeFactory creates a new agent call node factory.
func NewNodeFactory(runner protocol.AgentRunner, logger *slog.Logger) *NodeFactory {
	return &NodeFactory{runner: runner, logger: logger}
}

// Create creates a new AgentCallNode from the given configuration.
func (f *NodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.NodeHandler, error) {
	return NewAgentCallNode(id, config, f.runner, f.logger)
}

// ID returns the unique identifier for the node type.
func (f *NodeFactory) ID() string {
	return "agent_call"
}

// Name returns the name of the node type.
func (f *NodeFactory) Name() string {
	return "Agent Call"
}

// Description returns a brief description of the node type.
func (f *NodeFactory) Description() string {
	return "Invokes an AI agent and records its result as node output."
}

// Schema returns the JSON schema for configuring this node.
func (f *NodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agent_id": map[string]any{
				"type":        "string",
				"description": "Identifier of the agent to invoke.",
			},
			"input": map[string]any{
				"type":        "object",
				"description": "Input payload for the agent. String values support templating.",
				"examples": []map[string]any{
					{"prompt": "Summarize: {{.nodes.fetch.output.body}}"},
				},
			},
			"wait_for_completion": map[string]any{
				"type":        "boolean",
				"description": "Block until the agent finishes. When false, only a task reference is recorded.",
				"default":     true,
			},
		},
		"required":             []string{"agent_id"},
		"additionalProperties": false,
	}
}
