package eventbus_test

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/dukex/fanflow/pkg/eventbus"
	"github.com/dukex/fanflow/pkg/events"
	"github.com/dukex/fanflow/pkg/mocks"
	"github.com/dukex/fanflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestRunObserver_PublishesKeyedByWorkflow(t *testing.T) {
	bus := &mocks.MockEventBus{}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	bus.On("Publish", mock.Anything, "wf-1", mock.MatchedBy(func(event eventbus.Event) bool {
		lifecycle, ok := event.(events.RunLifecycle)

		return ok && lifecycle.RunID == "run-1" && lifecycle.Status == models.RunStatusCompleted
	})).Return(nil).Once()

	observer := eventbus.NewRunObserver(bus, logger)
	observer.Notify(context.Background(), events.NewRunLifecycle(events.RunCompletedEvent, &models.WorkflowRun{
		ID:         "run-1",
		WorkflowID: "wf-1",
		Status:     models.RunStatusCompleted,
	}))

	bus.AssertExpectations(t)
	assert.Len(t, bus.Calls, 1)
}
