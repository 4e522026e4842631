package cmd

import (
	"log/slog"

	"github.com/flowlinehq/flowline/pkg/registry"
)

// NewRegistry builds the node registry with the built-in node types. The
// platform module collaborators come from the hosting process; nil members
// disable the corresponding node types.
func NewRegistry(logger *slog.Logger, collaborators registry.Collaborators) *registry.Registry {
	reg := registry.NewRegistry(logger)
	registry.RegisterDefaultNodes(reg, logger, collaborators)

	return reg
}
