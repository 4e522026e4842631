// Package trigger turns platform trigger events into workflow executions.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/expr-lang/expr"
	"github.com/flowlinehq/flowline/pkg/eventbus"
	"github.com/flowlinehq/flowline/pkg/events"
	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/persistence"
	"github.com/google/uuid"
)

// Adapter matches incoming trigger events against enabled automations and
// creates pending executions for the ones that qualify. Skips are silent for
// the end user; the reasons land in the log.
type Adapter struct {
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	caps        *CapCounter
	logger      *slog.Logger
}

// NewAdapter creates a new trigger adapter. caps may be nil; the monthly run
// limit then relies on the persisted counters alone.
func NewAdapter(persistence persistence.Persistence, eventBus eventbus.EventBus, caps *CapCounter, logger *slog.Logger) *Adapter {
	return &Adapter{
		persistence: persistence,
		eventBus:    eventBus,
		caps:        caps,
		logger:      logger.With("module", "trigger_adapter"),
	}
}

// Run registers the bus handler and blocks until the context is cancelled.
func (a *Adapter) Run(ctx context.Context) error {
	err := a.eventBus.Handle(events.TriggerFiredEvent, func(ctx context.Context, event any) error {
		fired, ok := event.(*events.TriggerFired)
		if !ok {
			return fmt.Errorf("unexpected event payload %T", event)
		}

		return a.HandleTrigger(ctx, fired)
	})
	if err != nil {
		return fmt.Errorf("failed to register trigger handler: %w", err)
	}

	err = a.eventBus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	a.logger.InfoContext(ctx, "Trigger adapter started")

	<-ctx.Done()

	return nil
}

// HandleTrigger fans one trigger event out to every qualifying automation in
// the workspace.
func (a *Adapter) HandleTrigger(ctx context.Context, fired *events.TriggerFired) error {
	automations, err := a.persistence.Automations().ListEnabledByTrigger(ctx, fired.WorkspaceID, fired.TriggerType)
	if err != nil {
		return fmt.Errorf("failed to list automations for trigger %s: %w", fired.TriggerType, err)
	}

	for _, automation := range automations {
		err := a.dispatch(ctx, automation, fired)
		if err != nil {
			a.logger.ErrorContext(ctx, "Failed to dispatch trigger to automation",
				"automation_id", automation.ID,
				"trigger_type", fired.TriggerType,
				"error", err)
		}
	}

	return nil
}

// dispatch creates one pending execution for one automation, unless a
// condition or the monthly cap rules it out.
func (a *Adapter) dispatch(ctx context.Context, automation *models.Automation, fired *events.TriggerFired) error {
	if !a.matchesTrigger(automation, fired) {
		return nil
	}

	if !a.conditionsPass(ctx, automation, fired.Payload) {
		a.logger.InfoContext(ctx, "Trigger skipped, conditions not met",
			"automation_id", automation.ID,
			"trigger_type", fired.TriggerType)

		return nil
	}

	capped, err := a.capReached(ctx, automation)
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to check monthly run cap, falling back to stored counter",
			"automation_id", automation.ID,
			"error", err)

		capped = automation.CapReached()
	}

	if capped {
		a.logger.WarnContext(ctx, "Trigger skipped, monthly run limit reached",
			"automation_id", automation.ID,
			"monthly_run_limit", automation.MonthlyRunLimit)

		return nil
	}

	definition, err := a.persistence.Definitions().ByID(ctx, automation.DefinitionID)
	if err != nil {
		return fmt.Errorf("failed to load definition %s: %w", automation.DefinitionID, err)
	}

	if definition.Status != models.DefinitionStatusActive {
		a.logger.WarnContext(ctx, "Trigger skipped, definition not active",
			"automation_id", automation.ID,
			"definition_id", definition.ID,
			"status", definition.Status)

		return nil
	}

	executionID := uuid.New().String()
	execution := &models.Execution{
		ID:                executionID,
		WorkspaceID:       automation.WorkspaceID,
		AutomationID:      automation.ID,
		DefinitionID:      definition.ID,
		DefinitionVersion: definition.Version,
		Status:            models.ExecutionStatusPending,
		Context:           models.NewExecutionContext(executionID, automation.WorkspaceID, fired.Payload),
		StartedAt:         time.Now().UTC(),
	}

	err = a.persistence.Executions().Save(ctx, execution)
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}

	err = a.persistence.Automations().IncrementRuns(ctx, automation.ID)
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to increment run counters",
			"automation_id", automation.ID,
			"error", err)
	}

	if a.caps != nil {
		err = a.caps.Increment(ctx, automation.ID)
		if err != nil {
			a.logger.ErrorContext(ctx, "Failed to increment cap counter",
				"automation_id", automation.ID,
				"error", err)
		}
	}

	a.logger.InfoContext(ctx, "Execution created",
		"execution_id", execution.ID,
		"automation_id", automation.ID,
		"definition_id", definition.ID,
		"definition_version", definition.Version)

	return a.eventBus.Publish(ctx, execution.ID, events.ExecutionRequested{
		BaseEvent: events.BaseEvent{
			ID:          a.eventBus.GenerateID(),
			Type:        events.ExecutionRequestedEvent,
			Timestamp:   time.Now().UTC(),
			WorkspaceID: automation.WorkspaceID,
		},
		ExecutionID:  execution.ID,
		AutomationID: automation.ID,
	})
}

// matchesTrigger checks the fired event against the automation's trigger
// binding. A schedule tick carries the automation it fired for; every other
// trigger type subset-matches the configured filter keys against the event
// payload.
func (a *Adapter) matchesTrigger(automation *models.Automation, fired *events.TriggerFired) bool {
	if fired.TriggerType == ScheduleTriggerType {
		id, _ := fired.Payload["automation_id"].(string)

		return id == automation.ID
	}

	for key, want := range automation.TriggerConfig {
		got, ok := fired.Payload[key]
		if !ok {
			return false
		}

		if fmt.Sprintf("%v", got) != fmt.Sprintf("%v", want) {
			return false
		}
	}

	return true
}

// conditionsPass evaluates the automation's top-level conditions against the
// trigger payload. All must hold; evaluation errors fail closed.
func (a *Adapter) conditionsPass(ctx context.Context, automation *models.Automation, payload map[string]any) bool {
	if len(automation.Conditions) == 0 {
		return true
	}

	env := map[string]any{"trigger": payload}

	for _, condition := range automation.Conditions {
		program, err := expr.Compile(condition.Expression, expr.Env(env), expr.AllowUndefinedVariables())
		if err != nil {
			a.logger.WarnContext(ctx, "Automation condition failed to compile, skipping trigger",
				"automation_id", automation.ID,
				"expression", condition.Expression,
				"error", err)

			return false
		}

		output, err := expr.Run(program, env)
		if err != nil {
			a.logger.WarnContext(ctx, "Automation condition failed to evaluate, skipping trigger",
				"automation_id", automation.ID,
				"expression", condition.Expression,
				"error", err)

			return false
		}

		pass, ok := output.(bool)
		if !ok || !pass {
			return false
		}
	}

	return true
}

func (a *Adapter) capReached(ctx context.Context, automation *models.Automation) (bool, error) {
	if automation.MonthlyRunLimit <= 0 {
		return false, nil
	}

	if a.caps == nil {
		return automation.CapReached(), nil
	}

	count, err := a.caps.Count(ctx, automation.ID)
	if err != nil {
		return false, err
	}

	return count >= automation.MonthlyRunLimit, nil
}
