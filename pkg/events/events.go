// Package events defines event types and structures exchanged between the
// platform modules and the workflow engine.
package events

import (
	"time"

	"github.com/flowlinehq/flowline/pkg/models"
)

type EventType string

// Topic carries all engine events on the bus.
const Topic = "flowline.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Inbound events from platform modules.
	TriggerFiredEvent EventType = "trigger.fired"
	DomainEventEvent  EventType = "domain.event"

	// Execution lifecycle events.
	ExecutionRequestedEvent       EventType = "execution.requested"
	ExecutionResumeRequestedEvent EventType = "execution.resume_requested"
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionPausedEvent    EventType = "execution.paused"
	ExecutionResumedEvent   EventType = "execution.resumed"
	ExecutionCancelledEvent EventType = "execution.cancelled"

	// Failure handling events.
	DeadLetterCreatedEvent     EventType = "deadletter.created"
	NotificationRequestedEvent EventType = "notification.requested"
)

type BaseEvent struct {
	ID          string         `json:"id"`
	Type        EventType      `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	WorkspaceID string         `json:"workspace_id"`
	WorkerID    string         `json:"worker_id,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// TriggerFired is emitted by platform modules (CRM, forms, ticketing, cron)
// when something automations may react to happens.
type TriggerFired struct {
	BaseEvent

	TriggerType string         `json:"trigger_type"`
	RecordID    string         `json:"record_id,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
}

func (e TriggerFired) GetType() EventType {
	return TriggerFiredEvent
}

// DomainEvent is the inbound bus feed for the subscription matcher. Any
// module may emit these (email.opened, form.submitted, ticket.updated, ...).
type DomainEvent struct {
	BaseEvent

	EventType string         `json:"event_type"`
	RecordID  string         `json:"record_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

func (e DomainEvent) GetType() EventType {
	return DomainEventEvent
}

// ExecutionRequested asks a worker to start a pending execution.
type ExecutionRequested struct {
	BaseEvent

	ExecutionID  string `json:"execution_id"`
	AutomationID string `json:"automation_id"`
}

func (e ExecutionRequested) GetType() EventType {
	return ExecutionRequestedEvent
}

// ExecutionResumeRequested asks a worker to resume a paused execution. The
// scheduler emits it for due timers and timeouts, the subscription matcher
// for matched events. Duplicate requests are harmless; the claim on the
// execution row deduplicates them.
type ExecutionResumeRequested struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	Reason      string `json:"reason,omitempty"`
}

func (e ExecutionResumeRequested) GetType() EventType {
	return ExecutionResumeRequestedEvent
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID string        `json:"execution_id"`
	Duration    time.Duration `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string           `json:"execution_id"`
	NodeID      string           `json:"node_id,omitempty"`
	ErrorType   models.ErrorType `json:"error_type,omitempty"`
	Error       string           `json:"error"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionPaused struct {
	BaseEvent

	ExecutionID   string     `json:"execution_id"`
	NodeID        string     `json:"node_id"`
	ResumeAt      *time.Time `json:"resume_at,omitempty"`
	WaitEventType string     `json:"wait_event_type,omitempty"`
}

func (e ExecutionPaused) GetType() EventType {
	return ExecutionPausedEvent
}

type ExecutionResumed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
}

func (e ExecutionResumed) GetType() EventType {
	return ExecutionResumedEvent
}

type ExecutionCancelled struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	Reason      string `json:"reason,omitempty"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

type DeadLetterCreated struct {
	BaseEvent

	DeadLetterID string           `json:"dead_letter_id"`
	ExecutionID  string           `json:"execution_id"`
	NodeID       string           `json:"node_id"`
	ErrorType    models.ErrorType `json:"error_type"`
}

func (e DeadLetterCreated) GetType() EventType {
	return DeadLetterCreatedEvent
}

// NotificationRequested asks the platform notification module to inform the
// configured recipients about an automation failure.
type NotificationRequested struct {
	BaseEvent

	AutomationID string   `json:"automation_id"`
	ExecutionID  string   `json:"execution_id"`
	Recipients   []string `json:"recipients"`
	Subject      string   `json:"subject"`
	Body         string   `json:"body"`
}

func (e NotificationRequested) GetType() EventType {
	return NotificationRequestedEvent
}
