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

// DeadLetterRepository handles dead-letter entry database operations.
type DeadLetterRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDeadLetterRepository creates a new dead-letter repository.
func NewDeadLetterRepository(db *sql.DB, logger *slog.Logger) *DeadLetterRepository {
	return &DeadLetterRepository{db: db, logger: logger}
}

// Save upserts a dead-letter entry. Updates only touch triage fields; the
// captured failure state is immutable.
func (r *DeadLetterRepository) Save(ctx context.Context, entry *models.DeadLetterEntry) error {
	inputJSON, err := json.Marshal(entry.InputData)
	if err != nil {
		return fmt.Errorf("failed to marshal input data: %w", err)
	}

	contextJSON, err := json.Marshal(entry.ExecutionContext)
	if err != nil {
		return fmt.Errorf("failed to marshal execution context: %w", err)
	}

	query := `
		INSERT INTO dead_letter_entries (
			id, workspace_id, automation_id, execution_id, node_id, node_type,
			error_type, error_message, retry_count, input_data, execution_context,
			status, notes, resolved_by, resolved_at, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			notes = EXCLUDED.notes,
			resolved_by = EXCLUDED.resolved_by,
			resolved_at = EXCLUDED.resolved_at
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		entry.WorkspaceID,
		entry.AutomationID,
		entry.ExecutionID,
		entry.NodeID,
		entry.NodeType,
		entry.ErrorType,
		entry.ErrorMessage,
		entry.RetryCount,
		inputJSON,
		contextJSON,
		entry.Status,
		nullIfEmpty(entry.Notes),
		nullIfEmpty(entry.ResolvedBy),
		entry.ResolvedAt,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save dead letter entry: %w", err)
	}

	return nil
}

// ByID returns a dead-letter entry by id.
func (r *DeadLetterRepository) ByID(ctx context.Context, id string) (*models.DeadLetterEntry, error) {
	query := selectDeadLetter + ` WHERE id = $1`

	entry, err := scanDeadLetter(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrDeadLetterNotFound
		}

		return nil, fmt.Errorf("failed to scan dead letter entry: %w", err)
	}

	return entry, nil
}

// ListByWorkspace returns dead-letter entries for a workspace, optionally
// filtered by triage status, newest first.
func (r *DeadLetterRepository) ListByWorkspace(ctx context.Context, workspaceID string, status *models.DeadLetterStatus) ([]*models.DeadLetterEntry, error) {
	query := selectDeadLetter + ` WHERE workspace_id = $1`
	args := []any{workspaceID}

	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}

	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letter entries: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var entries []*models.DeadLetterEntry

	for rows.Next() {
		entry, err := scanDeadLetter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dead letter entry: %w", err)
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

const selectDeadLetter = `
	SELECT id, workspace_id, automation_id, execution_id, node_id, node_type,
		   error_type, error_message, retry_count, input_data, execution_context,
		   status, notes, resolved_by, resolved_at, created_at
	FROM dead_letter_entries
`

func scanDeadLetter(row rowScanner) (*models.DeadLetterEntry, error) {
	var (
		entry       models.DeadLetterEntry
		inputJSON   []byte
		contextJSON []byte
		message     sql.NullString
		notes       sql.NullString
		resolvedBy  sql.NullString
	)

	err := row.Scan(
		&entry.ID,
		&entry.WorkspaceID,
		&entry.AutomationID,
		&entry.ExecutionID,
		&entry.NodeID,
		&entry.NodeType,
		&entry.ErrorType,
		&message,
		&entry.RetryCount,
		&inputJSON,
		&contextJSON,
		&entry.Status,
		&notes,
		&resolvedBy,
		&entry.ResolvedAt,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.ErrorMessage = message.String
	entry.Notes = notes.String
	entry.ResolvedBy = resolvedBy.String

	err = json.Unmarshal(inputJSON, &entry.InputData)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal input data: %w", err)
	}

	err = json.Unmarshal(contextJSON, &entry.ExecutionContext)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution context: %w", err)
	}

	return &entry, nil
}
