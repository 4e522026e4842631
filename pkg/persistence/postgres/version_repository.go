package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/persistence"
)

// VersionRepository handles workflow version snapshot operations. Versions
// are written once and never updated.
type VersionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewVersionRepository creates a new version repository.
func NewVersionRepository(db *sql.DB, logger *slog.Logger) *VersionRepository {
	return &VersionRepository{db: db, logger: logger}
}

// Save inserts a version snapshot.
func (r *VersionRepository) Save(ctx context.Context, version *models.WorkflowVersion) error {
	graphJSON, err := json.Marshal(version.Graph)
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}

	query := `
		INSERT INTO workflow_versions (id, definition_id, version, graph, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = r.db.ExecContext(ctx, query,
		version.ID,
		version.DefinitionID,
		version.Version,
		graphJSON,
		version.CreatedAt,
		version.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow version: %w", err)
	}

	return nil
}

// ByDefinitionAndVersion returns the snapshot an execution is pinned to.
func (r *VersionRepository) ByDefinitionAndVersion(ctx context.Context, definitionID string, version int) (*models.WorkflowVersion, error) {
	query := `
		SELECT id, definition_id, version, graph, created_at, created_by
		FROM workflow_versions
		WHERE definition_id = $1 AND version = $2
	`

	snapshot, err := scanVersion(r.db.QueryRowContext(ctx, query, definitionID, version))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrVersionNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow version: %w", err)
	}

	return snapshot, nil
}

// ListByDefinition returns all snapshots for a definition, newest first.
func (r *VersionRepository) ListByDefinition(ctx context.Context, definitionID string) ([]*models.WorkflowVersion, error) {
	query := `
		SELECT id, definition_id, version, graph, created_at, created_by
		FROM workflow_versions
		WHERE definition_id = $1
		ORDER BY version DESC
	`

	rows, err := r.db.QueryContext(ctx, query, definitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow versions: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var versions []*models.WorkflowVersion

	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow version: %w", err)
		}

		versions = append(versions, version)
	}

	return versions, rows.Err()
}

func scanVersion(row rowScanner) (*models.WorkflowVersion, error) {
	var (
		version   models.WorkflowVersion
		graphJSON []byte
		createdBy sql.NullString
	)

	err := row.Scan(
		&version.ID,
		&version.DefinitionID,
		&version.Version,
		&graphJSON,
		&version.CreatedAt,
		&createdBy,
	)
	if err != nil {
		return nil, err
	}

	version.CreatedBy = createdBy.String

	err = json.Unmarshal(graphJSON, &version.Graph)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal graph: %w", err)
	}

	return &version, nil
}
