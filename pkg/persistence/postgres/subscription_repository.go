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

// SubscriptionRepository handles event subscription database operations.
type SubscriptionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSubscriptionRepository creates a new subscription repository.
func NewSubscriptionRepository(db *sql.DB, logger *slog.Logger) *SubscriptionRepository {
	return &SubscriptionRepository{db: db, logger: logger}
}

// Save inserts an event subscription. The partial unique index on
// (execution_id) WHERE is_active enforces at most one active subscription
// per execution.
func (r *SubscriptionRepository) Save(ctx context.Context, subscription *models.EventSubscription) error {
	filterJSON, err := json.Marshal(subscription.EventFilter)
	if err != nil {
		return fmt.Errorf("failed to marshal event filter: %w", err)
	}

	matchedJSON, err := json.Marshal(subscription.MatchedEventData)
	if err != nil {
		return fmt.Errorf("failed to marshal matched event data: %w", err)
	}

	query := `
		INSERT INTO event_subscriptions (
			id, workspace_id, execution_id, node_id, event_type, event_filter,
			timeout_at, is_active, matched_event_data, created_at, matched_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		subscription.ID,
		subscription.WorkspaceID,
		subscription.ExecutionID,
		subscription.NodeID,
		subscription.EventType,
		filterJSON,
		subscription.TimeoutAt,
		subscription.IsActive,
		matchedJSON,
		subscription.CreatedAt,
		subscription.MatchedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save event subscription: %w", err)
	}

	return nil
}

// ListActiveByEventType returns active subscriptions for an event type.
func (r *SubscriptionRepository) ListActiveByEventType(ctx context.Context, eventType string) ([]*models.EventSubscription, error) {
	query := selectSubscription + ` WHERE event_type = $1 AND is_active ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, eventType)
	if err != nil {
		return nil, fmt.Errorf("failed to query event subscriptions: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var subscriptions []*models.EventSubscription

	for rows.Next() {
		subscription, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event subscription: %w", err)
		}

		subscriptions = append(subscriptions, subscription)
	}

	return subscriptions, rows.Err()
}

// ActiveByExecution returns the single active subscription for an execution.
func (r *SubscriptionRepository) ActiveByExecution(ctx context.Context, executionID string) (*models.EventSubscription, error) {
	query := selectSubscription + ` WHERE execution_id = $1 AND is_active`

	subscription, err := scanSubscription(r.db.QueryRowContext(ctx, query, executionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrSubscriptionNotFound
		}

		return nil, fmt.Errorf("failed to scan event subscription: %w", err)
	}

	return subscription, nil
}

// Deactivate flips is_active off exactly once, recording the matched event.
func (r *SubscriptionRepository) Deactivate(ctx context.Context, id string, matchedData map[string]any) (bool, error) {
	matchedJSON, err := json.Marshal(matchedData)
	if err != nil {
		return false, fmt.Errorf("failed to marshal matched event data: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE event_subscriptions SET is_active = false, matched_event_data = $1, matched_at = $2 WHERE id = $3 AND is_active`,
		matchedJSON, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate event subscription: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check deactivate result: %w", err)
	}

	return affected == 1, nil
}

const selectSubscription = `
	SELECT id, workspace_id, execution_id, node_id, event_type, event_filter,
		   timeout_at, is_active, matched_event_data, created_at, matched_at
	FROM event_subscriptions
`

func scanSubscription(row rowScanner) (*models.EventSubscription, error) {
	var (
		subscription models.EventSubscription
		filterJSON   []byte
		matchedJSON  []byte
	)

	err := row.Scan(
		&subscription.ID,
		&subscription.WorkspaceID,
		&subscription.ExecutionID,
		&subscription.NodeID,
		&subscription.EventType,
		&filterJSON,
		&subscription.TimeoutAt,
		&subscription.IsActive,
		&matchedJSON,
		&subscription.CreatedAt,
		&subscription.MatchedAt,
	)
	if err != nil {
		return nil, err
	}

	if filterJSON != nil {
		err = json.Unmarshal(filterJSON, &subscription.EventFilter)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal event filter: %w", err)
		}
	}

	if matchedJSON != nil {
		err = json.Unmarshal(matchedJSON, &subscription.MatchedEventData)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal matched event data: %w", err)
		}
	}

	return &subscription, nil
}
