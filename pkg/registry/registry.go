// Package registry resolves node type strings to their handler factories.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/flowlinehq/flowline/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

type Registry struct {
	logger        *slog.Logger
	nodeFactories map[string]protocol.NodeFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:        logger,
		nodeFactories: make(map[string]protocol.NodeFactory),
	}
}

// RegisterNode registers a node factory under its type id.
func (r *Registry) RegisterNode(factory protocol.NodeFactory) {
	r.nodeFactories[factory.ID()] = factory
}

// NodeTypes returns the registered node type ids.
func (r *Registry) NodeTypes() []string {
	types := make([]string, 0, len(r.nodeFactories))
	for nodeType := range r.nodeFactories {
		types = append(types, nodeType)
	}

	return types
}

// Factories returns the registered node factories, for editor metadata.
func (r *Registry) Factories() []protocol.NodeFactory {
	factories := make([]protocol.NodeFactory, 0, len(r.nodeFactories))
	for _, factory := range r.nodeFactories {
		factories = append(factories, factory)
	}

	return factories
}

// CreateNode validates the configuration against the factory schema and
// instantiates a handler.
func (r *Registry) CreateNode(ctx context.Context, nodeType, id string, config map[string]any) (protocol.NodeHandler, error) {
	factory, ok := r.nodeFactories[nodeType]
	if !ok {
		return nil, fmt.Errorf("node type '%s' not registered", nodeType)
	}

	err := r.validateConfig(factory.Schema(), config)
	if err != nil {
		return nil, fmt.Errorf("invalid config for node type '%s': %w", nodeType, err)
	}

	return factory.Create(ctx, id, config)
}

// validateConfig checks a node config against its JSON schema.
func (r *Registry) validateConfig(schema, config map[string]any) error {
	if schema == nil {
		return nil
	}

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	configJSON, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(configJSON),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		for _, validationErr := range result.Errors() {
			return fmt.Errorf("config validation: %s", validationErr.String())
		}
	}

	return nil
}
