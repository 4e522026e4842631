package template

import (
	"testing"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderContext() *models.ExecutionContext {
	execCtx := models.NewExecutionContext("exec-1", "ws-1", map[string]any{
		"order_id": "o-42",
		"customer": map[string]any{"email": "jo@example.com"},
	})
	execCtx.Variables["region"] = "eu"
	execCtx.SetNodeOutput("fetch", map[string]any{"status_code": float64(200)})

	return execCtx
}

func TestRenderWithContext_TriggerData(t *testing.T) {
	result, err := RenderWithContext("order {{.trigger.order_id}}", renderContext())
	require.NoError(t, err)
	assert.Equal(t, "order o-42", result)
}

func TestRenderWithContext_NestedFields(t *testing.T) {
	result, err := RenderWithContext("{{.trigger.customer.email}}", renderContext())
	require.NoError(t, err)
	assert.Equal(t, "jo@example.com", result)
}

func TestRenderWithContext_NodeOutputs(t *testing.T) {
	result, err := RenderWithContext("{{.nodes.fetch.status_code}}", renderContext())
	require.NoError(t, err)
	assert.Equal(t, "200", result)
}

func TestRenderWithContext_ExecutionMetadata(t *testing.T) {
	result, err := RenderWithContext("{{.execution.id}}/{{.execution.workspace_id}}", renderContext())
	require.NoError(t, err)
	assert.Equal(t, "exec-1/ws-1", result)
}

func TestRender_JSONResultIsDecoded(t *testing.T) {
	result, err := Render(`{"region": "{{.region}}"}`, map[string]any{"region": "eu"})
	require.NoError(t, err)

	decoded, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "eu", decoded["region"])
}

func TestRender_InvalidTemplate(t *testing.T) {
	_, err := Render("{{.broken", nil)
	assert.Error(t, err)
}

func TestRenderString_CoercesNonStrings(t *testing.T) {
	result, err := RenderString(`["a", "b"]`, renderContext())
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b"]`, result)
}
