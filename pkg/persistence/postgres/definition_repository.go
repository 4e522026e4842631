package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/persistence"
)

// DefinitionRepository handles workflow definition database operations.
type DefinitionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDefinitionRepository creates a new definition repository.
func NewDefinitionRepository(db *sql.DB, logger *slog.Logger) *DefinitionRepository {
	return &DefinitionRepository{db: db, logger: logger}
}

// Save upserts a workflow definition.
func (r *DefinitionRepository) Save(ctx context.Context, definition *models.WorkflowDefinition) error {
	nodesJSON, err := json.Marshal(definition.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal nodes: %w", err)
	}

	edgesJSON, err := json.Marshal(definition.Edges)
	if err != nil {
		return fmt.Errorf("failed to marshal edges: %w", err)
	}

	orderJSON, err := json.Marshal(definition.ExecutionOrder)
	if err != nil {
		return fmt.Errorf("failed to marshal execution order: %w", err)
	}

	query := `
		INSERT INTO workflow_definitions (
			id, workspace_id, name, description, status, nodes, edges,
			execution_order, version, created_at, updated_at, deleted_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			execution_order = EXCLUDED.execution_order,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`

	_, err = r.db.ExecContext(ctx, query,
		definition.ID,
		definition.WorkspaceID,
		definition.Name,
		definition.Description,
		definition.Status,
		nodesJSON,
		edgesJSON,
		orderJSON,
		definition.Version,
		definition.CreatedAt,
		definition.UpdatedAt,
		definition.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save workflow definition: %w", err)
	}

	return nil
}

// ByID returns a definition by id, excluding soft-deleted rows.
func (r *DefinitionRepository) ByID(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	query := selectDefinition + ` WHERE id = $1 AND deleted_at IS NULL`

	definition, err := scanDefinition(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrDefinitionNotFound
		}

		return nil, fmt.Errorf("failed to scan workflow definition: %w", err)
	}

	return definition, nil
}

// ByWorkspace returns all live definitions in a workspace.
func (r *DefinitionRepository) ByWorkspace(ctx context.Context, workspaceID string) ([]*models.WorkflowDefinition, error) {
	query := selectDefinition + ` WHERE workspace_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow definitions: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var definitions []*models.WorkflowDefinition

	for rows.Next() {
		definition, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow definition: %w", err)
		}

		definitions = append(definitions, definition)
	}

	return definitions, rows.Err()
}

// Delete soft deletes a definition.
func (r *DefinitionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE workflow_definitions SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL`,
		time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow definition: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}

	if affected == 0 {
		return persistence.ErrDefinitionNotFound
	}

	return nil
}

const selectDefinition = `
	SELECT id, workspace_id, name, description, status, nodes, edges,
		   execution_order, version, created_at, updated_at, deleted_at
	FROM workflow_definitions
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (*models.WorkflowDefinition, error) {
	var (
		definition  models.WorkflowDefinition
		description sql.NullString
		nodesJSON   []byte
		edgesJSON   []byte
		orderJSON   []byte
	)

	err := row.Scan(
		&definition.ID,
		&definition.WorkspaceID,
		&definition.Name,
		&description,
		&definition.Status,
		&nodesJSON,
		&edgesJSON,
		&orderJSON,
		&definition.Version,
		&definition.CreatedAt,
		&definition.UpdatedAt,
		&definition.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	definition.Description = description.String

	err = json.Unmarshal(nodesJSON, &definition.Nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}

	err = json.Unmarshal(edgesJSON, &definition.Edges)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal edges: %w", err)
	}

	err = json.Unmarshal(orderJSON, &definition.ExecutionOrder)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution order: %w", err)
	}

	return &definition, nil
}
