package events

import (
	"testing"
	"time"

	"github.com/dukex/fanflow/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestNewRunLifecycle(t *testing.T) {
	resumeAt := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	run := &models.WorkflowRun{
		ID:                "run-1",
		WorkflowID:        "wf-1",
		OwnerID:           "artist-1",
		Status:            models.RunStatusWaiting,
		CurrentNodeID:     "wait",
		ScheduledResumeAt: &resumeAt,
	}

	event := NewRunLifecycle(RunWaitingEvent, run)

	assert.Equal(t, RunWaitingEvent, event.GetType())
	assert.Equal(t, "wf-1", event.WorkflowID)
	assert.Equal(t, "run-1", event.RunID)
	assert.Equal(t, &resumeAt, event.ScheduledResumeAt)
	assert.NotEmpty(t, event.ID)
}

func TestIsRunEvent(t *testing.T) {
	assert.True(t, IsRunEvent(RunCompletedEvent))
	assert.False(t, IsRunEvent(DomainEventReceived))
	assert.Equal(t, DomainEventReceived, NewDomainEvent(models.Event{EventType: "tip_received"}).GetType())
}
