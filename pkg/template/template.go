// Package template provides templating for dynamic node configuration.
package template

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/google/uuid"
)

// RenderWithContext renders a template string against an execution context.
// Node outputs are addressed as {{.nodes.<node_id>.<key>}}.
func RenderWithContext(input string, executionCtx *models.ExecutionContext) (any, error) {
	data := map[string]any{
		"trigger":  executionCtx.TriggerData,
		"vars":     executionCtx.Variables,
		"nodes":    executionCtx.NodeOutputs,
		"metadata": executionCtx.Metadata,
		"env":      envVars(),
		"execution": map[string]any{
			"id":           executionCtx.ExecutionID,
			"workspace_id": executionCtx.WorkspaceID,
		},
	}

	return Render(input, data)
}

// Render executes a template against arbitrary data. Results that look like
// JSON are decoded so templated configs can produce structured values.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("node_config").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"uuid": func() string {
				return uuid.New().String()
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}
	}

	return result, nil
}

// RenderString renders a template and coerces the result to a string.
func RenderString(input string, executionCtx *models.ExecutionContext) (string, error) {
	result, err := RenderWithContext(input, executionCtx)
	if err != nil {
		return "", err
	}

	if s, ok := result.(string); ok {
		return s, nil
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return "", err
	}

	return string(raw), nil
}

func envVars() map[string]string {
	vars := make(map[string]string)

	for _, entry := range os.Environ() {
		if key, value, found := strings.Cut(entry, "="); found {
			vars[key] = value
		}
	}

	return vars
}
