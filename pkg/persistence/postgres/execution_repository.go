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

// ExecutionRepository handles execution database operations. The execution
// row is the unit of mutual exclusion between workers: Claim is a single
// conditional UPDATE, so concurrent workers never both process a row.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

// Save upserts an execution row.
func (r *ExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	contextJSON, err := json.Marshal(execution.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal execution context: %w", err)
	}

	filterJSON, err := json.Marshal(execution.WaitEventFilter)
	if err != nil {
		return fmt.Errorf("failed to marshal wait event filter: %w", err)
	}

	query := `
		INSERT INTO executions (
			id, workspace_id, automation_id, definition_id, definition_version,
			status, current_node_id, next_node_id, context, resume_at,
			wait_event_type, wait_event_filter, wait_timeout_at, retry_count,
			error, error_node_id, started_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			current_node_id = EXCLUDED.current_node_id,
			next_node_id = EXCLUDED.next_node_id,
			context = EXCLUDED.context,
			resume_at = EXCLUDED.resume_at,
			wait_event_type = EXCLUDED.wait_event_type,
			wait_event_filter = EXCLUDED.wait_event_filter,
			wait_timeout_at = EXCLUDED.wait_timeout_at,
			retry_count = EXCLUDED.retry_count,
			error = EXCLUDED.error,
			error_node_id = EXCLUDED.error_node_id,
			completed_at = EXCLUDED.completed_at
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkspaceID,
		execution.AutomationID,
		execution.DefinitionID,
		execution.DefinitionVersion,
		execution.Status,
		execution.CurrentNodeID,
		execution.NextNodeID,
		contextJSON,
		execution.ResumeAt,
		execution.WaitEventType,
		filterJSON,
		execution.WaitTimeoutAt,
		execution.RetryCount,
		nullIfEmpty(execution.Error),
		execution.ErrorNodeID,
		execution.StartedAt,
		execution.CompletedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	return nil
}

// ByID returns an execution by id.
func (r *ExecutionRepository) ByID(ctx context.Context, id string) (*models.Execution, error) {
	query := selectExecution + ` WHERE id = $1`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrExecutionNotFound
		}

		return nil, persistence.NewExecutionError("ByID", id, err)
	}

	return execution, nil
}

// ListByWorkspace returns executions for a workspace, optionally filtered by
// status, newest first.
func (r *ExecutionRepository) ListByWorkspace(ctx context.Context, workspaceID string, status *models.ExecutionStatus, limit, offset int) ([]*models.Execution, error) {
	query := selectExecution + ` WHERE workspace_id = $1`
	args := []any{workspaceID}

	if status != nil {
		query += ` AND status = $2`
		args = append(args, *status)
	}

	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT %d OFFSET %d`, limit, offset)

	return r.queryExecutions(ctx, query, args...)
}

// Claim atomically transitions an execution between statuses. Exactly one of
// any number of concurrent claimers observes true.
func (r *ExecutionRepository) Claim(ctx context.Context, id string, from, to models.ExecutionStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE executions SET status = $1 WHERE id = $2 AND status = $3`,
		to, id, from)
	if err != nil {
		return false, persistence.NewExecutionError("Claim", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, persistence.NewExecutionError("Claim", id, err)
	}

	return affected == 1, nil
}

// SaveIfStatus updates an execution row only while its status still equals
// expected. A row that was cancelled or claimed in between is left untouched.
func (r *ExecutionRepository) SaveIfStatus(ctx context.Context, execution *models.Execution, expected models.ExecutionStatus) (bool, error) {
	contextJSON, err := json.Marshal(execution.Context)
	if err != nil {
		return false, fmt.Errorf("failed to marshal execution context: %w", err)
	}

	filterJSON, err := json.Marshal(execution.WaitEventFilter)
	if err != nil {
		return false, fmt.Errorf("failed to marshal wait event filter: %w", err)
	}

	query := `
		UPDATE executions SET
			status = $1,
			current_node_id = $2,
			next_node_id = $3,
			context = $4,
			resume_at = $5,
			wait_event_type = $6,
			wait_event_filter = $7,
			wait_timeout_at = $8,
			retry_count = $9,
			error = $10,
			error_node_id = $11,
			completed_at = $12
		WHERE id = $13 AND status = $14
	`

	result, err := r.db.ExecContext(ctx, query,
		execution.Status,
		execution.CurrentNodeID,
		execution.NextNodeID,
		contextJSON,
		execution.ResumeAt,
		execution.WaitEventType,
		filterJSON,
		execution.WaitTimeoutAt,
		execution.RetryCount,
		nullIfEmpty(execution.Error),
		execution.ErrorNodeID,
		execution.CompletedAt,
		execution.ID,
		expected,
	)
	if err != nil {
		return false, persistence.NewExecutionError("SaveIfStatus", execution.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, persistence.NewExecutionError("SaveIfStatus", execution.ID, err)
	}

	return affected == 1, nil
}

// ListDueResumes returns paused executions whose resume time has passed.
func (r *ExecutionRepository) ListDueResumes(ctx context.Context, now time.Time, limit int) ([]*models.Execution, error) {
	query := selectExecution + `
		WHERE status = 'paused' AND resume_at IS NOT NULL AND resume_at <= $1
		ORDER BY resume_at
		LIMIT $2
	`

	return r.queryExecutions(ctx, query, now, limit)
}

// ListEventTimeouts returns paused event-waits past their deadline.
func (r *ExecutionRepository) ListEventTimeouts(ctx context.Context, now time.Time, limit int) ([]*models.Execution, error) {
	query := selectExecution + `
		WHERE status = 'paused' AND wait_event_type IS NOT NULL
		  AND wait_timeout_at IS NOT NULL AND wait_timeout_at <= $1
		ORDER BY wait_timeout_at
		LIMIT $2
	`

	return r.queryExecutions(ctx, query, now, limit)
}

func (r *ExecutionRepository) queryExecutions(ctx context.Context, query string, args ...any) ([]*models.Execution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var executions []*models.Execution

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	return executions, rows.Err()
}

const selectExecution = `
	SELECT id, workspace_id, automation_id, definition_id, definition_version,
		   status, current_node_id, next_node_id, context, resume_at,
		   wait_event_type, wait_event_filter, wait_timeout_at, retry_count,
		   error, error_node_id, started_at, completed_at
	FROM executions
`

func scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		execution   models.Execution
		contextJSON []byte
		filterJSON  []byte
		errMessage  sql.NullString
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkspaceID,
		&execution.AutomationID,
		&execution.DefinitionID,
		&execution.DefinitionVersion,
		&execution.Status,
		&execution.CurrentNodeID,
		&execution.NextNodeID,
		&contextJSON,
		&execution.ResumeAt,
		&execution.WaitEventType,
		&filterJSON,
		&execution.WaitTimeoutAt,
		&execution.RetryCount,
		&errMessage,
		&execution.ErrorNodeID,
		&execution.StartedAt,
		&execution.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.Error = errMessage.String

	err = json.Unmarshal(contextJSON, &execution.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution context: %w", err)
	}

	if filterJSON != nil {
		err = json.Unmarshal(filterJSON, &execution.WaitEventFilter)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal wait event filter: %w", err)
		}
	}

	return &execution, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}

	return s
}
