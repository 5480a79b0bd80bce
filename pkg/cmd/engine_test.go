package cmd

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dukex/fanflow/pkg/eventbus"
	"github.com/dukex/fanflow/pkg/events"
	"github.com/dukex/fanflow/pkg/models"
	"github.com/dukex/fanflow/pkg/persistence/memory"
	"github.com/dukex/fanflow/pkg/providers/logging"
	"github.com/dukex/fanflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu    sync.Mutex
	types []events.EventType
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.types = append(p.types, event.GetType())

	return nil
}

func (p *recordingPublisher) published() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]events.EventType(nil), p.types...)
}

func TestNewEngine_RoutesAndPublishes(t *testing.T) {
	ctx := t.Context()

	store, err := memory.NewPersistence()
	require.NoError(t, err)

	workflow := testutil.CreateTestWorkflow(testutil.WithOwner("7"))
	require.NoError(t, store.WorkflowRepository().Save(ctx, workflow))

	publisher := &recordingPublisher{}
	e := NewEngine(store, logging.New(testLogger()).Set(), EngineConfig{
		Publisher:        publisher,
		ResumeInterval:   time.Hour,
		ScheduleInterval: time.Hour,
	}, testLogger())

	e.StartPollers(ctx)

	runIDs, err := e.Router.FireWorkflowEvent(ctx, testutil.FollowerEvent("7"))
	require.NoError(t, err)
	require.Len(t, runIDs, 1)

	e.Stop(ctx)

	run, err := store.RunRepository().GetByID(ctx, runIDs[0])
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, []events.EventType{events.RunStartedEvent, events.RunCompletedEvent}, publisher.published())
}

func TestEngine_StopFinishesDueResumes(t *testing.T) {
	ctx := t.Context()

	store, err := memory.NewPersistence()
	require.NoError(t, err)

	workflow := testutil.CreateTestWorkflow(testutil.WithOwner("7"))
	require.NoError(t, store.WorkflowRepository().Save(ctx, workflow))

	run := testutil.CreateTestRun(workflow, testutil.WithWaitingUntil("trigger", time.Now().UTC().Add(-time.Minute)))
	require.NoError(t, store.RunRepository().Save(ctx, run))

	e := NewEngine(store, logging.New(testLogger()).Set(), EngineConfig{
		RunLease:         time.Minute,
		ResumeInterval:   time.Hour,
		ResumeParallel:   1,
		ScheduleInterval: time.Hour,
	}, testLogger())

	e.StartPollers(ctx)
	e.Stop(ctx)

	stored, err := store.RunRepository().GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, stored.Status)
	assert.Empty(t, stored.ClaimToken)
	assert.Equal(t, "email", stored.Steps[len(stored.Steps)-1].NodeID)
}
