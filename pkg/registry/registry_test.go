package registry

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/flowlinehq/flowline/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoFactory struct{}

func (f *echoFactory) Create(_ context.Context, _ string, _ map[string]any) (protocol.NodeHandler, error) {
	return nil, nil
}

func (f *echoFactory) ID() string          { return "echo" }
func (f *echoFactory) Name() string        { return "Echo" }
func (f *echoFactory) Description() string { return "Echoes its config." }

func (f *echoFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{"type": "string"},
			"count":   map[string]any{"type": "integer", "minimum": 1},
		},
		"required":             []string{"message"},
		"additionalProperties": false,
	}
}

func newTestRegistry() *Registry {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	registry := NewRegistry(logger)
	registry.RegisterNode(&echoFactory{})

	return registry
}

func TestRegistry_NodeTypes(t *testing.T) {
	registry := newTestRegistry()

	assert.Equal(t, []string{"echo"}, registry.NodeTypes())
	require.Len(t, registry.Factories(), 1)
}

func TestRegistry_CreateNode_UnknownType(t *testing.T) {
	registry := newTestRegistry()

	_, err := registry.CreateNode(context.Background(), "missing", "node-1", nil)
	assert.Error(t, err)
}

func TestRegistry_CreateNode_ValidatesConfig(t *testing.T) {
	registry := newTestRegistry()
	ctx := context.Background()

	_, err := registry.CreateNode(ctx, "echo", "node-1", map[string]any{"message": "hi"})
	assert.NoError(t, err)

	// Missing required field.
	_, err = registry.CreateNode(ctx, "echo", "node-1", map[string]any{})
	assert.Error(t, err)

	// Wrong type.
	_, err = registry.CreateNode(ctx, "echo", "node-1", map[string]any{"message": 42})
	assert.Error(t, err)

	// Constraint violation.
	_, err = registry.CreateNode(ctx, "echo", "node-1", map[string]any{"message": "hi", "count": 0})
	assert.Error(t, err)

	// Unknown key rejected.
	_, err = registry.CreateNode(ctx, "echo", "node-1", map[string]any{"message": "hi", "extra": true})
	assert.Error(t, err)
}
