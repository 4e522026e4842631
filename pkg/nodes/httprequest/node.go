// Package httprequest provides the HTTP request action node.
package httprequest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/protocol"
	"github.com/flowlinehq/flowline/pkg/template"
)

const defaultTimeoutSeconds = 30

// HTTPRequestNode performs an HTTP request with templated URL, headers, and
// body. Response status codes map to error classes so the retry manager can
// distinguish transient failures from permanent ones.
type HTTPRequestNode struct {
	id      string
	method  string
	url     string
	headers map[string]string
	body    string
	client  *http.Client
}

// NewHTTPRequestNode creates a new HTTP request node from configuration.
func NewHTTPRequestNode(id string, config map[string]any) (*HTTPRequestNode, error) {
	url, ok := config["url"].(string)
	if !ok || url == "" {
		return nil, models.NewValidationError("missing required field 'url'")
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	body, _ := config["body"].(string)

	headers := make(map[string]string)

	if rawHeaders, exists := config["headers"]; exists {
		headersMap, ok := rawHeaders.(map[string]any)
		if !ok {
			return nil, models.NewValidationError("'headers' must be an object")
		}

		for key, value := range headersMap {
			strVal, ok := value.(string)
			if !ok {
				return nil, models.NewValidationError("header '%s' must be a string", key)
			}

			headers[key] = strVal
		}
	}

	timeout := defaultTimeoutSeconds * time.Second
	if seconds, ok := config["timeout_seconds"].(float64); ok && seconds > 0 {
		timeout = time.Duration(seconds * float64(time.Second))
	}

	return &HTTPRequestNode{
		id:      id,
		method:  strings.ToUpper(method),
		url:     url,
		headers: headers,
		body:    body,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// Execute performs the request and returns the response as node output.
func (n *HTTPRequestNode) Execute(ctx context.Context, execCtx *models.ExecutionContext, _ map[string]any) (*protocol.Outcome, error) {
	req, err := n.buildRequest(ctx, execCtx)
	if err != nil {
		return nil, err
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, models.NewNodeError(models.ClassifyError(err), fmt.Errorf("http request failed: %w", err))
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.NewNodeError(models.ErrorTypeConnectionError, fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, models.NewNodeError(
			models.ClassifyHTTPStatus(resp.StatusCode),
			fmt.Errorf("request to %s returned status %d", n.url, resp.StatusCode),
		)
	}

	var body any

	err = json.Unmarshal(bodyBytes, &body)
	if err != nil {
		body = string(bodyBytes)
	}

	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	return &protocol.Outcome{
		Output: map[string]any{
			"status_code": resp.StatusCode,
			"body":        body,
			"headers":     headers,
		},
		Port: models.PortMain,
	}, nil
}

func (n *HTTPRequestNode) buildRequest(ctx context.Context, execCtx *models.ExecutionContext) (*http.Request, error) {
	url, err := template.RenderString(n.url, execCtx)
	if err != nil {
		return nil, models.NewValidationError("failed to render url template: %v", err)
	}

	var bodyReader io.Reader = strings.NewReader("")

	if n.body != "" {
		rendered, err := template.RenderWithContext(n.body, execCtx)
		if err != nil {
			return nil, models.NewValidationError("failed to render body template: %v", err)
		}

		var bodyBytes []byte
		if str, ok := rendered.(string); ok {
			bodyBytes = []byte(str)
		} else {
			bodyBytes, err = json.Marshal(rendered)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal body: %w", err)
			}
		}

		bodyReader = strings.NewReader(string(bodyBytes))
	}

	req, err := http.NewRequestWithContext(ctx, n.method, url, bodyReader)
	if err != nil {
		return nil, models.NewValidationError("failed to create request: %v", err)
	}

	for key, value := range n.headers {
		rendered, err := template.RenderString(value, execCtx)
		if err != nil {
			return nil, models.NewValidationError("failed to render header '%s': %v", key, err)
		}

		req.Header.Set(key, rendered)
	}

	return req, nil
}
