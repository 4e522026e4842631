// Package agentcall provides the AI agent invocation node.
package agentcall

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/protocol"
	"github.com/flowlinehq/flowline/pkg/template"
)

// AgentCallNode invokes an AI agent with a templated input payload. With
// wait_for_completion (the default) the node blocks until the agent returns
// and its result becomes the node output. Without it the call is enqueued
// and only a task reference is recorded.
type AgentCallNode struct {
	id      string
	agentID string
	input   map[string]any
	wait    bool
	runner  protocol.AgentRunner
	logger  *slog.Logger
}

// NewAgentCallNode creates a new agent call node from configuration.
func NewAgentCallNode(id string, config map[string]any, runner protocol.AgentRunner, logger *slog.Logger) (*AgentCallNode, error) {
	if runner == nil {
		return nil, models.NewValidationError("agent module is not available")
	}

	agentID, ok := config["agent_id"].(string)
	if !ok || agentID == "" {
		return nil, models.NewValidationError("missing required field 'agent_id'")
	}

	input := make(map[string]any)

	if rawInput, exists := config["input"]; exists {
		inputMap, ok := rawInput.(map[string]any)
		if !ok {
			return nil, models.NewValidationError("'input' must be an object")
		}

		input = inputMap
	}

	wait := true
	if rawWait, ok := config["wait_for_completion"].(bool); ok {
		wait = rawWait
	}

	return &AgentCallNode{
		id:      id,
		agentID: agentID,
		input:   input,
		wait:    wait,
		runner:  runner,
		logger:  logger.With("module", "agent_call_node"),
	}, nil
}

// Execute renders the input and invokes the agent.
func (n *AgentCallNode) Execute(ctx context.Context, execCtx *models.ExecutionContext, _ map[string]any) (*protocol.Outcome, error) {
	input := make(map[string]any, len(n.input))

	for key, value := range n.input {
		templateStr, ok := value.(string)
		if !ok {
			input[key] = value

			continue
		}

		result, err := template.RenderWithContext(templateStr, execCtx)
		if err != nil {
			return nil, models.NewValidationError("failed to render input '%s': %v", key, err)
		}

		input[key] = result
	}

	n.logger.InfoContext(ctx, "Invoking agent",
		"execution_id", execCtx.ExecutionID,
		"agent_id", n.agentID,
		"wait_for_completion", n.wait)

	if !n.wait {
		taskID, err := n.runner.Enqueue(ctx, execCtx.WorkspaceID, n.agentID, input)
		if err != nil {
			return nil, models.NewNodeError(models.ClassifyError(err), fmt.Errorf("agent enqueue failed: %w", err))
		}

		return &protocol.Outcome{
			Output: map[string]any{
				"agent_id": n.agentID,
				"task_id":  taskID,
				"queued":   true,
			},
			Port: models.PortMain,
		}, nil
	}

	result, err := n.runner.Run(ctx, execCtx.WorkspaceID, n.agentID, input)
	if err != nil {
		return nil, models.NewNodeError(models.ClassifyError(err), fmt.Errorf("agent call failed: %w", err))
	}

	output := map[string]any{"agent_id": n.agentID}
	for key, value := range result {
		output[key] = value
	}

	return &protocol.Outcome{Output: output, Port: models.PortMain}, nil
}
