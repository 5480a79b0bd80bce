// Package events defines the messages exchanged over the event bus: incoming domain events
// and run lifecycle notifications.
package events

import (
	"time"

	"github.com/dukex/fanflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every fanflow message; consumers dispatch on the event_type metadata.
const Topic = "fanflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// DomainEventReceived wraps an artist domain event (follow, sale, tip...) to route.
	DomainEventReceived EventType = "domain.event"

	// Run lifecycle events.
	RunStartedEvent   EventType = "run.started"
	RunWaitingEvent   EventType = "run.waiting"
	RunResumedEvent   EventType = "run.resumed"
	RunCompletedEvent EventType = "run.completed"
	RunFailedEvent    EventType = "run.failed"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

// DomainEvent is the bus envelope of a models.Event.
type DomainEvent struct {
	BaseEvent

	Event models.Event `json:"event"`
}

func NewDomainEvent(event models.Event) DomainEvent {
	return DomainEvent{
		BaseEvent: NewBaseEvent(DomainEventReceived, ""),
		Event:     event,
	}
}

func (d DomainEvent) GetType() EventType {
	return DomainEventReceived
}

// RunLifecycle reports a status transition of a workflow run. Type is one of the run.*
// event types.
type RunLifecycle struct {
	BaseEvent

	RunID             string           `json:"run_id"`
	OwnerID           string           `json:"owner_id"`
	Status            models.RunStatus `json:"status"`
	CurrentNodeID     string           `json:"current_node_id,omitempty"`
	ScheduledResumeAt *time.Time       `json:"scheduled_resume_at,omitempty"`
	Error             string           `json:"error,omitempty"`
}

func NewRunLifecycle(eventType EventType, run *models.WorkflowRun) RunLifecycle {
	return RunLifecycle{
		BaseEvent:         NewBaseEvent(eventType, run.WorkflowID),
		RunID:             run.ID,
		OwnerID:           run.OwnerID,
		Status:            run.Status,
		CurrentNodeID:     run.CurrentNodeID,
		ScheduledResumeAt: run.ScheduledResumeAt,
		Error:             run.Error,
	}
}

func (r RunLifecycle) GetType() EventType {
	return r.Type
}

// IsRunEvent reports whether eventType is one of the run lifecycle types.
func IsRunEvent(eventType EventType) bool {
	switch eventType {
	case RunStartedEvent, RunWaitingEvent, RunResumedEvent, RunCompletedEvent, RunFailedEvent:
		return true
	default:
		return false
	}
}
