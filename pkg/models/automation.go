package models

import (
	"time"
)

// RetryConfig is the per-automation retry policy applied to retryable node
// failures. Delays grow exponentially and are capped at MaxDelaySeconds.
type RetryConfig struct {
	MaxRetries          int         `json:"max_retries"           validate:"min=0"`
	InitialDelaySeconds int         `json:"initial_delay_seconds" validate:"min=0"`
	BackoffMultiplier   float64     `json:"backoff_multiplier"    validate:"min=1"`
	MaxDelaySeconds     int         `json:"max_delay_seconds"     validate:"min=0"`
	RetryableErrors     []ErrorType `json:"retryable_errors"`
}

// DefaultRetryConfig mirrors the platform default: three attempts, one
// minute initial delay doubling up to an hour.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:          3,
		InitialDelaySeconds: 60,
		BackoffMultiplier:   2.0,
		MaxDelaySeconds:     3600,
		RetryableErrors: []ErrorType{
			ErrorTypeTimeout,
			ErrorTypeRateLimit,
			ErrorTypeServerError,
			ErrorTypeConnectionError,
		},
	}
}

// IsRetryable reports whether the given error type is in the automation's
// retryable list. Unknown errors are never retried unless explicitly listed.
func (rc RetryConfig) IsRetryable(errorType ErrorType) bool {
	for _, retryable := range rc.RetryableErrors {
		if retryable == errorType {
			return true
		}
	}

	return false
}

// AutomationCondition is a top-level predicate evaluated against the trigger
// payload before an execution is created.
type AutomationCondition struct {
	Expression string `json:"expression" validate:"required"`
}

// Automation binds a workflow definition to a trigger within a workspace.
type Automation struct {
	ID            string                 `json:"id"`
	WorkspaceID   string                 `json:"workspace_id"  validate:"required"`
	Name          string                 `json:"name"          validate:"required,min=3"`
	DefinitionID  string                 `json:"definition_id" validate:"required"`
	TriggerType   string                 `json:"trigger_type"  validate:"required"`
	TriggerConfig map[string]any         `json:"trigger_config"`
	Conditions    []*AutomationCondition `json:"conditions,omitempty"`
	RetryConfig   RetryConfig            `json:"retry_config"`
	Enabled       bool                   `json:"enabled"`

	NotifyOnFailure  bool     `json:"notify_on_failure"`
	NotifyRecipients []string `json:"notify_recipients,omitempty"`

	// Aggregate run counters maintained by the trigger adapter.
	TotalRuns       int64 `json:"total_runs"`
	SuccessfulRuns  int64 `json:"successful_runs"`
	FailedRuns      int64 `json:"failed_runs"`
	RunsThisMonth   int64 `json:"runs_this_month"`
	MonthlyRunLimit int64 `json:"monthly_run_limit"` // 0 means unlimited

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// CapReached reports whether this automation has exhausted its monthly run
// allowance. Triggers for capped automations are skipped, not queued.
func (a *Automation) CapReached() bool {
	return a.MonthlyRunLimit > 0 && a.RunsThisMonth >= a.MonthlyRunLimit
}
