package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowlinehq/flowline/pkg/eventbus"
	"github.com/flowlinehq/flowline/pkg/events"
	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/persistence"
	"github.com/robfig/cron/v3"
)

// ScheduleTriggerType is the trigger type for time-based automations. Their
// trigger_config carries a standard five-field cron expression.
const ScheduleTriggerType = "schedule"

// refreshInterval is how often the source reloads schedule automations so
// edits take effect without a restart.
const refreshInterval = time.Minute

// CronSource fires schedule triggers. It reloads the enabled schedule
// automations periodically and emits a trigger.fired event per tick; the
// trigger adapter applies conditions and caps like for any other trigger.
type CronSource struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	logger      *slog.Logger
}

// NewCronSource creates a new schedule trigger source.
func NewCronSource(persistence persistence.Persistence, eventBus eventbus.EventBus, logger *slog.Logger) *CronSource {
	return &CronSource{
		persistence: persistence,
		eventBus:    eventBus,
		logger:      logger.With("module", "cron_source"),
	}
}

// ValidateExpression checks a cron expression at automation save time.
func ValidateExpression(expression string) error {
	_, err := cron.ParseStandard(expression)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expression, err)
	}

	return nil
}

// Run schedules ticks for every enabled schedule automation and blocks until
// the context is cancelled.
func (s *CronSource) Run(ctx context.Context) error {
	runner := cron.New()
	runner.Start()

	defer func() {
		<-runner.Stop().Done()
	}()

	entries := make(map[string]cron.EntryID)

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		err := s.refresh(ctx, runner, entries)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to refresh schedules", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// refresh reconciles the cron entries with the current automation set.
func (s *CronSource) refresh(ctx context.Context, runner *cron.Cron, entries map[string]cron.EntryID) error {
	automations, err := s.persistence.Automations().ListEnabledByTriggerType(ctx, ScheduleTriggerType)
	if err != nil {
		return fmt.Errorf("failed to list schedule automations: %w", err)
	}

	seen := make(map[string]bool, len(automations))

	for _, automation := range automations {
		seen[automation.ID] = true

		if _, exists := entries[automation.ID]; exists {
			continue
		}

		expression, _ := automation.TriggerConfig["cron"].(string)
		if expression == "" {
			s.logger.WarnContext(ctx, "Schedule automation without cron expression",
				"automation_id", automation.ID)

			continue
		}

		entryID, err := runner.AddFunc(expression, s.fire(ctx, automation))
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to schedule automation",
				"automation_id", automation.ID,
				"cron", expression,
				"error", err)

			continue
		}

		entries[automation.ID] = entryID

		s.logger.InfoContext(ctx, "Schedule registered",
			"automation_id", automation.ID,
			"cron", expression)
	}

	for automationID, entryID := range entries {
		if !seen[automationID] {
			runner.Remove(entryID)
			delete(entries, automationID)

			s.logger.InfoContext(ctx, "Schedule removed", "automation_id", automationID)
		}
	}

	return nil
}

func (s *CronSource) fire(ctx context.Context, automation *models.Automation) func() {
	return func() {
		event := events.TriggerFired{
			BaseEvent: events.BaseEvent{
				ID:          s.eventBus.GenerateID(),
				Type:        events.TriggerFiredEvent,
				Timestamp:   time.Now().UTC(),
				WorkspaceID: automation.WorkspaceID,
			},
			TriggerType: ScheduleTriggerType,
			Payload: map[string]any{
				"automation_id": automation.ID,
				"fired_at":      time.Now().UTC().Format(time.RFC3339),
			},
		}

		err := s.eventBus.Publish(ctx, automation.ID, event)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish schedule trigger",
				"automation_id", automation.ID,
				"error", err)
		}
	}
}
