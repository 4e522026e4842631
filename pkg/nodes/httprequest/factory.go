package httprequest

import (
	"context"

	"github.com/flowlinehq/flowline/pkg/protocol"
)

// NodeFactory creates HTTPRequestNode instances.
type NodeFactory struct{}

// NewNodeFactory creates a new HTTP request node factory.
func NewNodeFactory() *NodeFactory {
	return &NodeFactory{}
}

// Create creates a new HTTPRequestNode from the given configuration.
func (f *NodeFactory) Create(_ context.Context, id string, config map[string]any) (protocol.NodeHandler, error) {
	return NewHTTPRequestNode(id, config)
}

// ID returns the unique identifier for the node type.
func (f *NodeFactory) ID() string {
	return "http_request"
}

// Name returns the name of the node type.
func (f *NodeFactory) Name() string {
	return "HTTP Request"
}

// Description returns a brief description of the node type.
func (f *NodeFactory) Description() string {
	return "Performs an HTTP request with templated URL, headers, and body."
}

// Schema returns the JSON schema for configuring this node.
func (f *NodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to request. Supports templating with node outputs.",
				"examples": []string{
					"https://api.example.com/users",
					"https://api.example.com/users/{{.nodes.lookup.output.user_id}}",
				},
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method to use.",
				"default":     "GET",
				"enum":        []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "HTTP headers to include. Values support templating.",
				"additionalProperties": map[string]any{
					"type": "string",
				},
			},
			"body": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Request body. Supports templating for dynamic JSON or text content.",
				"examples": []string{
					`{"name": "{{.trigger.name}}", "created_at": "{{now}}"}`,
				},
			},
			"timeout_seconds": map[string]any{
				"type":        "number",
				"description": "Per-request timeout in seconds.",
				"default":     30,
				"minimum":     1,
			},
		},
		"required":             []string{"url"},
		"additionalProperties": false,
	}
}
