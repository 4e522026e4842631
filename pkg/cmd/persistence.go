// Package cmd provides common initialization functions for the command-line
// binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flowlinehq/flowline/pkg/persistence"
	"github.com/flowlinehq/flowline/pkg/persistence/memory"
	"github.com/flowlinehq/flowline/pkg/persistence/postgres"
)

// NewPersistence selects the store from the database URL scheme. Postgres is
// the production store; "memory://" serves local development and tests.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return postgres.NewPersistence(ctx, logger, databaseURL)
	case strings.HasPrefix(databaseURL, "memory://"), databaseURL == "":
		return memory.NewPersistence(), nil
	default:
		return nil, fmt.Errorf("unsupported database URL %q", databaseURL)
	}
}
