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

// AutomationRepository handles automation database operations.
type AutomationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAutomationRepository creates a new automation repository.
func NewAutomationRepository(db *sql.DB, logger *slog.Logger) *AutomationRepository {
	return &AutomationRepository{db: db, logger: logger}
}

// Save upserts an automation.
func (r *AutomationRepository) Save(ctx context.Context, automation *models.Automation) error {
	triggerConfigJSON, err := json.Marshal(automation.TriggerConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger config: %w", err)
	}

	conditionsJSON, err := json.Marshal(automation.Conditions)
	if err != nil {
		return fmt.Errorf("failed to marshal conditions: %w", err)
	}

	retryConfigJSON, err := json.Marshal(automation.RetryConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal retry config: %w", err)
	}

	recipientsJSON, err := json.Marshal(automation.NotifyRecipients)
	if err != nil {
		return fmt.Errorf("failed to marshal notify recipients: %w", err)
	}

	query := `
		INSERT INTO automations (
			id, workspace_id, name, definition_id, trigger_type, trigger_config,
			conditions, retry_config, enabled, notify_on_failure, notify_recipients,
			total_runs, successful_runs, failed_runs, runs_this_month, monthly_run_limit,
			created_at, updated_at, deleted_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			definition_id = EXCLUDED.definition_id,
			trigger_type = EXCLUDED.trigger_type,
			trigger_config = EXCLUDED.trigger_config,
			conditions = EXCLUDED.conditions,
			retry_config = EXCLUDED.retry_config,
			enabled = EXCLUDED.enabled,
			notify_on_failure = EXCLUDED.notify_on_failure,
			notify_recipients = EXCLUDED.notify_recipients,
			monthly_run_limit = EXCLUDED.monthly_run_limit,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`

	_, err = r.db.ExecContext(ctx, query,
		automation.ID,
		automation.WorkspaceID,
		automation.Name,
		automation.DefinitionID,
		automation.TriggerType,
		triggerConfigJSON,
		conditionsJSON,
		retryConfigJSON,
		automation.Enabled,
		automation.NotifyOnFailure,
		recipientsJSON,
		automation.TotalRuns,
		automation.SuccessfulRuns,
		automation.FailedRuns,
		automation.RunsThisMonth,
		automation.MonthlyRunLimit,
		automation.CreatedAt,
		automation.UpdatedAt,
		automation.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save automation: %w", err)
	}

	return nil
}

// ByID returns an automation by id.
func (r *AutomationRepository) ByID(ctx context.Context, id string) (*models.Automation, error) {
	query := selectAutomation + ` WHERE id = $1 AND deleted_at IS NULL`

	automation, err := scanAutomation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrAutomationNotFound
		}

		return nil, fmt.Errorf("failed to scan automation: %w", err)
	}

	return automation, nil
}

// ListByWorkspace returns all automations in a workspace.
func (r *AutomationRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]*models.Automation, error) {
	query := selectAutomation + `
		WHERE workspace_id = $1 AND deleted_at IS NULL
		ORDER BY created_at
	`

	return r.queryAutomations(ctx, query, workspaceID)
}

// ListEnabledByTrigger returns enabled automations in a workspace for a
// trigger type. The trigger adapter filters on trigger_config afterwards.
func (r *AutomationRepository) ListEnabledByTrigger(ctx context.Context, workspaceID, triggerType string) ([]*models.Automation, error) {
	query := selectAutomation + `
		WHERE workspace_id = $1 AND trigger_type = $2 AND enabled AND deleted_at IS NULL
		ORDER BY created_at
	`

	return r.queryAutomations(ctx, query, workspaceID, triggerType)
}

// ListEnabledByTriggerType returns enabled automations across workspaces,
// used by the scheduler to fire cron-based automations.
func (r *AutomationRepository) ListEnabledByTriggerType(ctx context.Context, triggerType string) ([]*models.Automation, error) {
	query := selectAutomation + `
		WHERE trigger_type = $1 AND enabled AND deleted_at IS NULL
		ORDER BY created_at
	`

	return r.queryAutomations(ctx, query, triggerType)
}

// IncrementRuns bumps run counters when an execution is created.
func (r *AutomationRepository) IncrementRuns(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE automations SET total_runs = total_runs + 1, runs_this_month = runs_this_month + 1 WHERE id = $1`,
		id)
	if err != nil {
		return fmt.Errorf("failed to increment automation runs: %w", err)
	}

	return nil
}

// RecordResult bumps the success or failure counter on completion.
func (r *AutomationRepository) RecordResult(ctx context.Context, id string, success bool) error {
	column := "failed_runs"
	if success {
		column = "successful_runs"
	}

	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE automations SET %s = %s + 1 WHERE id = $1`, column, column),
		id)
	if err != nil {
		return fmt.Errorf("failed to record automation result: %w", err)
	}

	return nil
}

func (r *AutomationRepository) queryAutomations(ctx context.Context, query string, args ...any) ([]*models.Automation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query automations: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var automations []*models.Automation

	for rows.Next() {
		automation, err := scanAutomation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan automation: %w", err)
		}

		automations = append(automations, automation)
	}

	return automations, rows.Err()
}

const selectAutomation = `
	SELECT id, workspace_id, name, definition_id, trigger_type, trigger_config,
		   conditions, retry_config, enabled, notify_on_failure, notify_recipients,
		   total_runs, successful_runs, failed_runs, runs_this_month, monthly_run_limit,
		   created_at, updated_at, deleted_at
	FROM automations
`

func scanAutomation(row rowScanner) (*models.Automation, error) {
	var (
		automation        models.Automation
		triggerConfigJSON []byte
		conditionsJSON    []byte
		retryConfigJSON   []byte
		recipientsJSON    []byte
	)

	err := row.Scan(
		&automation.ID,
		&automation.WorkspaceID,
		&automation.Name,
		&automation.DefinitionID,
		&automation.TriggerType,
		&triggerConfigJSON,
		&conditionsJSON,
		&retryConfigJSON,
		&automation.Enabled,
		&automation.NotifyOnFailure,
		&recipientsJSON,
		&automation.TotalRuns,
		&automation.SuccessfulRuns,
		&automation.FailedRuns,
		&automation.RunsThisMonth,
		&automation.MonthlyRunLimit,
		&automation.CreatedAt,
		&automation.UpdatedAt,
		&automation.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(triggerConfigJSON, &automation.TriggerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger config: %w", err)
	}

	err = json.Unmarshal(conditionsJSON, &automation.Conditions)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal conditions: %w", err)
	}

	err = json.Unmarshal(retryConfigJSON, &automation.RetryConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal retry config: %w", err)
	}

	err = json.Unmarshal(recipientsJSON, &automation.NotifyRecipients)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal notify recipients: %w", err)
	}

	return &automation, nil
}
