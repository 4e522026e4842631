package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/flowlinehq/flowline/pkg/models"
)

// StepRepository handles execution step records. Steps are append-only;
// there is deliberately no update path.
type StepRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStepRepository creates a new step repository.
func NewStepRepository(db *sql.DB, logger *slog.Logger) *StepRepository {
	return &StepRepository{db: db, logger: logger}
}

// Append inserts a step record.
func (r *StepRepository) Append(ctx context.Context, step *models.ExecutionStep) error {
	inputJSON, err := json.Marshal(step.InputData)
	if err != nil {
		return fmt.Errorf("failed to marshal step input: %w", err)
	}

	outputJSON, err := json.Marshal(step.OutputData)
	if err != nil {
		return fmt.Errorf("failed to marshal step output: %w", err)
	}

	query := `
		INSERT INTO execution_steps (
			id, execution_id, node_id, node_type, status, input_data,
			output_data, condition_result, error, error_type, retry_count,
			executed_at, duration_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.db.ExecContext(ctx, query,
		step.ID,
		step.ExecutionID,
		step.NodeID,
		step.NodeType,
		step.Status,
		inputJSON,
		outputJSON,
		step.ConditionResult,
		nullIfEmpty(step.Error),
		nullIfEmpty(string(step.ErrorType)),
		step.RetryCount,
		step.ExecutedAt,
		step.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to append execution step: %w", err)
	}

	return nil
}

// ListByExecution returns the full step history for an execution, ordered by
// execution time.
func (r *StepRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.ExecutionStep, error) {
	query := `
		SELECT id, execution_id, node_id, node_type, status, input_data,
			   output_data, condition_result, error, error_type, retry_count,
			   executed_at, duration_ms
		FROM execution_steps
		WHERE execution_id = $1
		ORDER BY executed_at
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution steps: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var steps []*models.ExecutionStep

	for rows.Next() {
		var (
			step       models.ExecutionStep
			inputJSON  []byte
			outputJSON []byte
			errMessage sql.NullString
			errType    sql.NullString
		)

		err := rows.Scan(
			&step.ID,
			&step.ExecutionID,
			&step.NodeID,
			&step.NodeType,
			&step.Status,
			&inputJSON,
			&outputJSON,
			&step.ConditionResult,
			&errMessage,
			&errType,
			&step.RetryCount,
			&step.ExecutedAt,
			&step.DurationMs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution step: %w", err)
		}

		step.Error = errMessage.String
		step.ErrorType = models.ErrorType(errType.String)

		err = json.Unmarshal(inputJSON, &step.InputData)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal step input: %w", err)
		}

		err = json.Unmarshal(outputJSON, &step.OutputData)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal step output: %w", err)
		}

		steps = append(steps, &step)
	}

	return steps, rows.Err()
}
