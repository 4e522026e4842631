package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionContext_JSONRoundTrip(t *testing.T) {
	original := NewExecutionContext("exec-1", "ws-1", map[string]any{
		"order_id": "o-42",
		"amount":   199.99,
		"items":    []any{"a", "b"},
	})
	original.Variables["region"] = "eu"
	original.SetNodeOutput("fetch", map[string]any{
		"status_code": float64(200),
		"body":        map[string]any{"plan": "enterprise"},
	})

	raw, err := json.Marshal(original)
	require.NoError(t, err)

	restored := &ExecutionContext{}
	require.NoError(t, json.Unmarshal(raw, restored))

	assert.Equal(t, original.ExecutionID, restored.ExecutionID)
	assert.Equal(t, original.WorkspaceID, restored.WorkspaceID)
	assert.Equal(t, original.TriggerData, restored.TriggerData)
	assert.Equal(t, original.Variables, restored.Variables)
	assert.Equal(t, original.NodeOutputs, restored.NodeOutputs)
}

func TestExecutionContext_Clone_IsIndependent(t *testing.T) {
	original := NewExecutionContext("exec-1", "ws-1", map[string]any{"key": "value"})
	original.SetNodeOutput("step", map[string]any{"result": "first"})

	clone, err := original.Clone()
	require.NoError(t, err)

	original.SetNodeOutput("step", map[string]any{"result": "mutated"})
	original.TriggerData["key"] = "changed"

	assert.Equal(t, "first", clone.NodeOutput("step")["result"])
	assert.Equal(t, "value", clone.TriggerData["key"])
}

func TestExecutionContext_SetNodeOutput_NilMap(t *testing.T) {
	execCtx := &ExecutionContext{ExecutionID: "exec-1"}

	execCtx.SetNodeOutput("node", map[string]any{"ok": true})

	output := execCtx.NodeOutput("node")
	require.NotNil(t, output)
	assert.Equal(t, true, output["ok"])
}

func TestExecutionContext_NodeOutput_Missing(t *testing.T) {
	execCtx := NewExecutionContext("exec-1", "ws-1", nil)

	assert.Nil(t, execCtx.NodeOutput("never-ran"))
}
