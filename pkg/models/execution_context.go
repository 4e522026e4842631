package models

import "encoding/json"

// ExecutionContext is the serializable state bag carried through an
// execution. It is a plain value: pausing is persisting it, resuming is
// loading it back. Node outputs are written under the node's id to avoid
// key collisions between nodes.
type ExecutionContext struct {
	ExecutionID string                    `json:"execution_id"`
	WorkspaceID string                    `json:"workspace_id"`
	TriggerData map[string]any            `json:"trigger_data,omitempty"`
	Variables   map[string]any            `json:"variables,omitempty"`
	NodeOutputs map[string]map[string]any `json:"node_outputs,omitempty"`
	Metadata    map[string]any            `json:"metadata,omitempty"`
}

// NewExecutionContext seeds a context from a trigger payload.
func NewExecutionContext(executionID, workspaceID string, triggerData map[string]any) *ExecutionContext {
	return &ExecutionContext{
		ExecutionID: executionID,
		WorkspaceID: workspaceID,
		TriggerData: triggerData,
		Variables:   make(map[string]any),
		NodeOutputs: make(map[string]map[string]any),
		Metadata:    make(map[string]any),
	}
}

// SetNodeOutput records a node's output under its namespace.
func (c *ExecutionContext) SetNodeOutput(nodeID string, output map[string]any) {
	if c.NodeOutputs == nil {
		c.NodeOutputs = make(map[string]map[string]any)
	}

	c.NodeOutputs[nodeID] = output
}

// NodeOutput returns a node's recorded output, or nil.
func (c *ExecutionContext) NodeOutput(nodeID string) map[string]any {
	return c.NodeOutputs[nodeID]
}

// Clone returns a deep copy via JSON round-trip. Used when capturing a
// dead-letter snapshot so later mutation cannot corrupt the captured state.
func (c *ExecutionContext) Clone() (*ExecutionContext, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}

	clone := &ExecutionContext{}

	err = json.Unmarshal(raw, clone)
	if err != nil {
		return nil, err
	}

	return clone, nil
}
