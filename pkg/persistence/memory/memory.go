// Package memory provides an in-memory persistence implementation for unit
// tests and local development. It implements the same claim semantics as the
// PostgreSQL store so engine concurrency behavior can be exercised without a
// database.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
	"github.com/flowlinehq/flowline/pkg/persistence"
)

// Persistence is a mutex-guarded in-memory store.
type Persistence struct {
	mu sync.RWMutex

	definitions   map[string]*models.WorkflowDefinition
	versions      map[string]*models.WorkflowVersion
	automations   map[string]*models.Automation
	executions    map[string]*models.Execution
	steps         map[string][]*models.ExecutionStep
	subscriptions map[string]*models.EventSubscription
	deadLetters   map[string]*models.DeadLetterEntry
}

// NewPersistence creates an empty in-memory store.
func NewPersistence() *Persistence {
	return &Persistence{
		definitions:   make(map[string]*models.WorkflowDefinition),
		versions:      make(map[string]*models.WorkflowVersion),
		automations:   make(map[string]*models.Automation),
		executions:    make(map[string]*models.Execution),
		steps:         make(map[string][]*models.ExecutionStep),
		subscriptions: make(map[string]*models.EventSubscription),
		deadLetters:   make(map[string]*models.DeadLetterEntry),
	}
}

func (p *Persistence) Definitions() persistence.DefinitionRepository { return &definitionRepo{p} }

func (p *Persistence) Versions() persistence.VersionRepository { return &versionRepo{p} }

func (p *Persistence) Automations() persistence.AutomationRepository { return &automationRepo{p} }

func (p *Persistence) Executions() persistence.ExecutionRepository { return &executionRepo{p} }

func (p *Persistence) Steps() persistence.StepRepository { return &stepRepo{p} }

func (p *Persistence) Subscriptions() persistence.SubscriptionRepository { return &subscriptionRepo{p} }

func (p *Persistence) DeadLetters() persistence.DeadLetterRepository { return &deadLetterRepo{p} }

func (p *Persistence) HealthCheck(_ context.Context) error { return nil }

func (p *Persistence) Close(_ context.Context) error { return nil }

// deepCopy isolates stored values from caller mutation, mirroring the JSON
// round-trip a real database performs.
func deepCopy[T any](value *T) *T {
	raw, err := json.Marshal(value)
	if err != nil {
		panic(err)
	}

	copied := new(T)

	err = json.Unmarshal(raw, copied)
	if err != nil {
		panic(err)
	}

	return copied
}

type definitionRepo struct{ p *Persistence }

func (r *definitionRepo) Save(_ context.Context, definition *models.WorkflowDefinition) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.definitions[definition.ID] = deepCopy(definition)

	return nil
}

func (r *definitionRepo) ByID(_ context.Context, id string) (*models.WorkflowDefinition, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	definition, ok := r.p.definitions[id]
	if !ok || definition.DeletedAt != nil {
		return nil, persistence.ErrDefinitionNotFound
	}

	return deepCopy(definition), nil
}

func (r *definitionRepo) ByWorkspace(_ context.Context, workspaceID string) ([]*models.WorkflowDefinition, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var definitions []*models.WorkflowDefinition

	for _, definition := range r.p.definitions {
		if definition.WorkspaceID == workspaceID && definition.DeletedAt == nil {
			definitions = append(definitions, deepCopy(definition))
		}
	}

	sort.Slice(definitions, func(i, j int) bool {
		return definitions[i].CreatedAt.After(definitions[j].CreatedAt)
	})

	return definitions, nil
}

func (r *definitionRepo) Delete(_ context.Context, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	definition, ok := r.p.definitions[id]
	if !ok || definition.DeletedAt != nil {
		return persistence.ErrDefinitionNotFound
	}

	now := time.Now().UTC()
	definition.DeletedAt = &now

	return nil
}

type versionRepo struct{ p *Persistence }

func (r *versionRepo) Save(_ context.Context, version *models.WorkflowVersion) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.versions[version.ID] = deepCopy(version)

	return nil
}

func (r *versionRepo) ByDefinitionAndVersion(_ context.Context, definitionID string, version int) (*models.WorkflowVersion, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	for _, snapshot := range r.p.versions {
		if snapshot.DefinitionID == definitionID && snapshot.Version == version {
			return deepCopy(snapshot), nil
		}
	}

	return nil, persistence.ErrVersionNotFound
}

func (r *versionRepo) ListByDefinition(_ context.Context, definitionID string) ([]*models.WorkflowVersion, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var versions []*models.WorkflowVersion

	for _, snapshot := range r.p.versions {
		if snapshot.DefinitionID == definitionID {
			versions = append(versions, deepCopy(snapshot))
		}
	}

	sort.Slice(versions, func(i, j int) bool {
		return versions[i].Version > versions[j].Version
	})

	return versions, nil
}

type automationRepo struct{ p *Persistence }

func (r *automationRepo) Save(_ context.Context, automation *models.Automation) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.automations[automation.ID] = deepCopy(automation)

	return nil
}

func (r *automationRepo) ByID(_ context.Context, id string) (*models.Automation, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	automation, ok := r.p.automations[id]
	if !ok || automation.DeletedAt != nil {
		return nil, persistence.ErrAutomationNotFound
	}

	return deepCopy(automation), nil
}

func (r *automationRepo) ListByWorkspace(_ context.Context, workspaceID string) ([]*models.Automation, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var automations []*models.Automation

	for _, automation := range r.p.automations {
		if automation.WorkspaceID == workspaceID && automation.DeletedAt == nil {
			automations = append(automations, deepCopy(automation))
		}
	}

	return automations, nil
}

func (r *automationRepo) ListEnabledByTrigger(_ context.Context, workspaceID, triggerType string) ([]*models.Automation, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var automations []*models.Automation

	for _, automation := range r.p.automations {
		if automation.WorkspaceID == workspaceID && automation.TriggerType == triggerType &&
			automation.Enabled && automation.DeletedAt == nil {
			automations = append(automations, deepCopy(automation))
		}
	}

	sort.Slice(automations, func(i, j int) bool {
		return automations[i].CreatedAt.Before(automations[j].CreatedAt)
	})

	return automations, nil
}

func (r *automationRepo) ListEnabledByTriggerType(_ context.Context, triggerType string) ([]*models.Automation, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var automations []*models.Automation

	for _, automation := range r.p.automations {
		if automation.TriggerType == triggerType && automation.Enabled && automation.DeletedAt == nil {
			automations = append(automations, deepCopy(automation))
		}
	}

	sort.Slice(automations, func(i, j int) bool {
		return automations[i].CreatedAt.Before(automations[j].CreatedAt)
	})

	return automations, nil
}

func (r *automationRepo) IncrementRuns(_ context.Context, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	automation, ok := r.p.automations[id]
	if !ok {
		return persistence.ErrAutomationNotFound
	}

	automation.TotalRuns++
	automation.RunsThisMonth++

	return nil
}

func (r *automationRepo) RecordResult(_ context.Context, id string, success bool) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	automation, ok := r.p.automations[id]
	if !ok {
		return persistence.ErrAutomationNotFound
	}

	if success {
		automation.SuccessfulRuns++
	} else {
		automation.FailedRuns++
	}

	return nil
}

type executionRepo struct{ p *Persistence }

func (r *executionRepo) Save(_ context.Context, execution *models.Execution) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.executions[execution.ID] = deepCopy(execution)

	return nil
}

func (r *executionRepo) ByID(_ context.Context, id string) (*models.Execution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	execution, ok := r.p.executions[id]
	if !ok {
		return nil, persistence.ErrExecutionNotFound
	}

	return deepCopy(execution), nil
}

func (r *executionRepo) ListByWorkspace(_ context.Context, workspaceID string, status *models.ExecutionStatus, limit, offset int) ([]*models.Execution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var executions []*models.Execution

	for _, execution := range r.p.executions {
		if execution.WorkspaceID != workspaceID {
			continue
		}

		if status != nil && execution.Status != *status {
			continue
		}

		executions = append(executions, deepCopy(execution))
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	if offset >= len(executions) {
		return nil, nil
	}

	executions = executions[offset:]
	if limit > 0 && len(executions) > limit {
		executions = executions[:limit]
	}

	return executions, nil
}

func (r *executionRepo) Claim(_ context.Context, id string, from, to models.ExecutionStatus) (bool, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	execution, ok := r.p.executions[id]
	if !ok {
		return false, persistence.ErrExecutionNotFound
	}

	if execution.Status != from {
		return false, nil
	}

	execution.Status = to

	return true, nil
}

func (r *executionRepo) SaveIfStatus(_ context.Context, execution *models.Execution, expected models.ExecutionStatus) (bool, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	current, ok := r.p.executions[execution.ID]
	if !ok {
		return false, persistence.ErrExecutionNotFound
	}

	if current.Status != expected {
		return false, nil
	}

	r.p.executions[execution.ID] = deepCopy(execution)

	return true, nil
}

func (r *executionRepo) ListDueResumes(_ context.Context, now time.Time, limit int) ([]*models.Execution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var executions []*models.Execution

	for _, execution := range r.p.executions {
		if execution.Status == models.ExecutionStatusPaused && execution.ResumeAt != nil &&
			!execution.ResumeAt.After(now) {
			executions = append(executions, deepCopy(execution))
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].ResumeAt.Before(*executions[j].ResumeAt)
	})

	if limit > 0 && len(executions) > limit {
		executions = executions[:limit]
	}

	return executions, nil
}

func (r *executionRepo) ListEventTimeouts(_ context.Context, now time.Time, limit int) ([]*models.Execution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var executions []*models.Execution

	for _, execution := range r.p.executions {
		if execution.Status == models.ExecutionStatusPaused && execution.WaitEventType != nil &&
			execution.WaitTimeoutAt != nil && !execution.WaitTimeoutAt.After(now) {
			executions = append(executions, deepCopy(execution))
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].WaitTimeoutAt.Before(*executions[j].WaitTimeoutAt)
	})

	if limit > 0 && len(executions) > limit {
		executions = executions[:limit]
	}

	return executions, nil
}

type stepRepo struct{ p *Persistence }

func (r *stepRepo) Append(_ context.Context, step *models.ExecutionStep) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.steps[step.ExecutionID] = append(r.p.steps[step.ExecutionID], deepCopy(step))

	return nil
}

func (r *stepRepo) ListByExecution(_ context.Context, executionID string) ([]*models.ExecutionStep, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	steps := make([]*models.ExecutionStep, 0, len(r.p.steps[executionID]))
	for _, step := range r.p.steps[executionID] {
		steps = append(steps, deepCopy(step))
	}

	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].ExecutedAt.Before(steps[j].ExecutedAt)
	})

	return steps, nil
}

type subscriptionRepo struct{ p *Persistence }

func (r *subscriptionRepo) Save(_ context.Context, subscription *models.EventSubscription) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.subscriptions[subscription.ID] = deepCopy(subscription)

	return nil
}

func (r *subscriptionRepo) ListActiveByEventType(_ context.Context, eventType string) ([]*models.EventSubscription, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var subscriptions []*models.EventSubscription

	for _, subscription := range r.p.subscriptions {
		if subscription.EventType == eventType && subscription.IsActive {
			subscriptions = append(subscriptions, deepCopy(subscription))
		}
	}

	sort.Slice(subscriptions, func(i, j int) bool {
		return subscriptions[i].CreatedAt.Before(subscriptions[j].CreatedAt)
	})

	return subscriptions, nil
}

func (r *subscriptionRepo) ActiveByExecution(_ context.Context, executionID string) (*models.EventSubscription, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	for _, subscription := range r.p.subscriptions {
		if subscription.ExecutionID == executionID && subscription.IsActive {
			return deepCopy(subscription), nil
		}
	}

	return nil, persistence.ErrSubscriptionNotFound
}

func (r *subscriptionRepo) Deactivate(_ context.Context, id string, matchedData map[string]any) (bool, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	subscription, ok := r.p.subscriptions[id]
	if !ok {
		return false, persistence.ErrSubscriptionNotFound
	}

	if !subscription.IsActive {
		return false, nil
	}

	now := time.Now().UTC()
	subscription.IsActive = false
	subscription.MatchedEventData = matchedData
	subscription.MatchedAt = &now

	return true, nil
}

type deadLetterRepo struct{ p *Persistence }

func (r *deadLetterRepo) Save(_ context.Context, entry *models.DeadLetterEntry) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.deadLetters[entry.ID] = deepCopy(entry)

	return nil
}

func (r *deadLetterRepo) ByID(_ context.Context, id string) (*models.DeadLetterEntry, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	entry, ok := r.p.deadLetters[id]
	if !ok {
		return nil, persistence.ErrDeadLetterNotFound
	}

	return deepCopy(entry), nil
}

func (r *deadLetterRepo) ListByWorkspace(_ context.Context, workspaceID string, status *models.DeadLetterStatus) ([]*models.DeadLetterEntry, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var entries []*models.DeadLetterEntry

	for _, entry := range r.p.deadLetters {
		if entry.WorkspaceID != workspaceID {
			continue
		}

		if status != nil && entry.Status != *status {
			continue
		}

		entries = append(entries, deepCopy(entry))
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})

	return entries, nil
}
