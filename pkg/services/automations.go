package services

import (
	"context"
	"fmt"
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/persistence"
	"github.com/flowlinehq/flowline/pkg/trigger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ErrAutomationNotFound is returned when an automation is not found.
var ErrAutomationNotFound = persistence.ErrAutomationNotFound

const maxConfigurableRetries = 10

// Automations manages trigger bindings.
type Automations struct {
	persistence persistence.Persistence
	validator   *validator.Validate
}

// NewAutomations creates a new automation service.
func NewAutomations(persistence persistence.Persistence) *Automations {
	return &Automations{
		persistence: persistence,
		validator:   validator.New(),
	}
}

// SaveAutomationRequest carries an automation payload.
type SaveAutomationRequest struct {
	ID            string
	WorkspaceID   string `validate:"required"`
	Name          string `validate:"required,min=3"`
	DefinitionID  string `validate:"required"`
	TriggerType   string `validate:"required"`
	TriggerConfig map[string]any
	Conditions    []*models.AutomationCondition
	RetryConfig   *models.RetryConfig
	Enabled       bool

	NotifyOnFailure  bool
	NotifyRecipients []string
	MonthlyRunLimit  int64 `validate:"min=0"`
}

// Save creates or updates an automation.
func (s *Automations) Save(ctx context.Context, req SaveAutomationRequest) (*models.Automation, error) {
	err := s.validator.Struct(req)
	if err != nil {
		return nil, NewValidationError("Save", "INVALID_AUTOMATION", err.Error(), ErrInvalidRequest)
	}

	if req.TriggerType == trigger.ScheduleTriggerType {
		expression, _ := req.TriggerConfig["cron"].(string)

		err := trigger.ValidateExpression(expression)
		if err != nil {
			return nil, NewValidationError("Save", "INVALID_CRON", err.Error(), ErrInvalidCron)
		}
	}

	retryConfig := models.DefaultRetryConfig()
	if req.RetryConfig != nil {
		retryConfig = *req.RetryConfig

		if retryConfig.MaxRetries < 0 || retryConfig.MaxRetries > maxConfigurableRetries {
			return nil, NewValidationError("Save", "INVALID_RETRY_LIMIT",
				fmt.Sprintf("max_retries must be between 0 and %d", maxConfigurableRetries), ErrInvalidRetryLimit)
		}

		if retryConfig.RetryableErrors == nil {
			retryConfig.RetryableErrors = models.DefaultRetryConfig().RetryableErrors
		}
	}

	// The referenced definition must exist before the automation can bind it.
	_, err = s.persistence.Definitions().ByID(ctx, req.DefinitionID)
	if err != nil {
		if persistence.IsDefinitionNotFound(err) {
			return nil, NewValidationError("Save", "DEFINITION_NOT_FOUND",
				fmt.Sprintf("definition %s does not exist", req.DefinitionID), ErrInvalidRequest)
		}

		return nil, fmt.Errorf("failed to load definition: %w", err)
	}

	now := time.Now().UTC()

	var automation *models.Automation

	if req.ID != "" {
		existing, err := s.persistence.Automations().ByID(ctx, req.ID)
		if err != nil && !persistence.IsAutomationNotFound(err) {
			return nil, fmt.Errorf("failed to load automation: %w", err)
		}

		automation = existing
	}

	if automation == nil {
		automation = &models.Automation{
			ID:        req.ID,
			CreatedAt: now,
		}
		if automation.ID == "" {
			automation.ID = uuid.New().String()
		}
	}

	automation.WorkspaceID = req.WorkspaceID
	automation.Name = req.Name
	automation.DefinitionID = req.DefinitionID
	automation.TriggerType = req.TriggerType
	automation.TriggerConfig = req.TriggerConfig
	automation.Conditions = req.Conditions
	automation.RetryConfig = retryConfig
	automation.Enabled = req.Enabled
	automation.NotifyOnFailure = req.NotifyOnFailure
	automation.NotifyRecipients = req.NotifyRecipients
	automation.MonthlyRunLimit = req.MonthlyRunLimit
	automation.UpdatedAt = now

	err = s.persistence.Automations().Save(ctx, automation)
	if err != nil {
		return nil, fmt.Errorf("failed to save automation: %w", err)
	}

	return automation, nil
}

// Get returns an automation by id.
func (s *Automations) Get(ctx context.Context, id string) (*models.Automation, error) {
	return s.persistence.Automations().ByID(ctx, id)
}

// List returns all automations in a workspace.
func (s *Automations) List(ctx context.Context, workspaceID string) ([]*models.Automation, error) {
	if workspaceID == "" {
		return nil, ErrEmptyWorkspaceID
	}

	return s.persistence.Automations().ListByWorkspace(ctx, workspaceID)
}
