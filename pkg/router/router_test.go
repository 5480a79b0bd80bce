package router

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/dukex/fanflow/pkg/actions"
	"github.com/dukex/fanflow/pkg/engine"
	"github.com/dukex/fanflow/pkg/mocks"
	"github.com/dukex/fanflow/pkg/models"
	"github.com/dukex/fanflow/pkg/persistence"
	"github.com/dukex/fanflow/pkg/persistence/memory"
	"github.com/dukex/fanflow/pkg/providers"
	"github.com/dukex/fanflow/pkg/testutil"
	"github.com/dukex/fanflow/pkg/triggers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type recordingStarter struct {
	mu      sync.Mutex
	started []*models.WorkflowRun
}

func (s *recordingStarter) Start(_ context.Context, _ *models.Workflow, run *models.WorkflowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.started = append(s.started, run)

	return nil
}

func (s *recordingStarter) runs() []*models.WorkflowRun {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]*models.WorkflowRun(nil), s.started...)
}

func newStore(t *testing.T, workflows ...*models.Workflow) *memory.Persistence {
	t.Helper()

	store, err := memory.NewPersistence()
	require.NoError(t, err)

	for _, workflow := range workflows {
		require.NoError(t, store.WorkflowRepository().Save(context.Background(), workflow))
	}

	return store
}

func TestFireWorkflowEvent_NewFollowerSendsEmail(t *testing.T) {
	ctx := context.Background()

	email := &mocks.MockEmailSender{}
	email.On("Send", mock.Anything, "x@y.com", "Thanks for following", "Hi Robin").
		Return(providers.Delivery{Delivered: true}, nil).Once()

	workflow := testutil.CreateTestWorkflow(testutil.WithOwner("7"))
	store := newStore(t, workflow)

	dispatcher := actions.NewDispatcher(providers.Set{Email: email}, testLogger(), actions.WithRetry(0, 0))
	runner := engine.NewRunner(store.WorkflowRepository(), store.RunRepository(), dispatcher, testLogger())
	r := NewRouter(store.WorkflowRepository(), store.RunRepository(), triggers.NewMatcher(testLogger()), runner, testLogger())

	runIDs, err := r.FireWorkflowEvent(ctx, models.Event{
		EventType:   models.SubtypeNewFollower,
		OccurredFor: "7",
		Data: map[string]any{
			"followerId": 42,
			"fan":        map[string]any{"email": "x@y.com", "name": "Robin"},
		},
	})
	require.NoError(t, err)
	require.Len(t, runIDs, 1)

	r.Wait()

	run, err := store.RunRepository().GetByID(ctx, runIDs[0])
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, workflow.ID, run.WorkflowID)
	assert.Equal(t, "trigger", run.TriggerNodeID)
	assert.Equal(t, "x@y.com", run.Steps[1].Outcome["to"])
	assert.Empty(t, run.ClaimToken)
	assert.Nil(t, run.LeaseUntil)

	email.AssertExpectations(t)
}

func TestFireWorkflowEvent_OnlyActiveWorkflowsOfOwner(t *testing.T) {
	ctx := context.Background()

	active := testutil.CreateTestWorkflow(testutil.WithOwner("7"))
	paused := testutil.CreateTestWorkflow(testutil.WithOwner("7"), testutil.WithStatus(models.WorkflowStatusPaused))
	draft := testutil.CreateTestWorkflow(testutil.WithOwner("7"), testutil.WithStatus(models.WorkflowStatusDraft))
	otherOwner := testutil.CreateTestWorkflow(testutil.WithOwner("8"))

	store := newStore(t, active, paused, draft, otherOwner)
	starter := &recordingStarter{}
	r := NewRouter(store.WorkflowRepository(), store.RunRepository(), triggers.NewMatcher(testLogger()), starter, testLogger())

	runIDs, err := r.FireWorkflowEvent(ctx, testutil.FollowerEvent("7"))
	require.NoError(t, err)
	require.Len(t, runIDs, 1)

	r.Wait()

	started := starter.runs()
	require.Len(t, started, 1)
	assert.Equal(t, active.ID, started[0].WorkflowID)
	assert.Equal(t, models.RunStatusRunning, started[0].Status)
	assert.Equal(t, "trigger", started[0].CurrentNodeID)
	assert.Equal(t, "x@y.com", started[0].Context["fan"].(map[string]any)["email"])

	stored, err := store.RunRepository().GetByID(ctx, runIDs[0])
	require.NoError(t, err)
	assert.Equal(t, testutil.FollowerEvent("7"), stored.TriggeringEvent)
	assert.NotEmpty(t, stored.ClaimToken)
	assert.Equal(t, stored.ClaimToken, started[0].ClaimToken)
}

func TestFireWorkflowEvent_RunCancelledBeforeStart(t *testing.T) {
	ctx := context.Background()

	email := &mocks.MockEmailSender{}

	workflow := testutil.CreateTestWorkflow(testutil.WithOwner("7"))
	store := newStore(t, workflow)

	dispatcher := actions.NewDispatcher(providers.Set{Email: email}, testLogger(), actions.WithRetry(0, 0))
	runner := engine.NewRunner(store.WorkflowRepository(), store.RunRepository(), dispatcher, testLogger())

	// the run is cancelled between being created and its runner taking hold of it
	gate := &cancellingStarter{runner: runner}
	r := NewRouter(store.WorkflowRepository(), store.RunRepository(), triggers.NewMatcher(testLogger()), gate, testLogger())

	runIDs, err := r.FireWorkflowEvent(ctx, testutil.FollowerEvent("7"))
	require.NoError(t, err)
	require.Len(t, runIDs, 1)

	r.Wait()

	run, err := store.RunRepository().GetByID(ctx, runIDs[0])
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, engine.CancelledMessage, run.Error)
	assert.Len(t, run.Steps, 0)

	email.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

type cancellingStarter struct {
	runner *engine.Runner
}

func (s *cancellingStarter) Start(ctx context.Context, workflow *models.Workflow, run *models.WorkflowRun) error {
	if err := s.runner.CancelRun(ctx, run.ID); err != nil {
		return err
	}

	return s.runner.Start(ctx, workflow, run)
}

func TestFireWorkflowEvent_EveryMatchingWorkflowGetsARun(t *testing.T) {
	first := testutil.CreateTestWorkflow(testutil.WithOwner("7"))
	second := testutil.CreateTestWorkflow(testutil.WithOwner("7"))

	store := newStore(t, first, second)
	starter := &recordingStarter{}
	r := NewRouter(store.WorkflowRepository(), store.RunRepository(), triggers.NewMatcher(testLogger()), starter, testLogger())

	runIDs, err := r.FireWorkflowEvent(context.Background(), testutil.FollowerEvent("7"))
	require.NoError(t, err)
	assert.Len(t, runIDs, 2)
	assert.NotEqual(t, runIDs[0], runIDs[1])

	r.Wait()

	workflowIDs := []string{}
	for _, run := range starter.runs() {
		workflowIDs = append(workflowIDs, run.WorkflowID)
	}

	assert.ElementsMatch(t, []string{first.ID, second.ID}, workflowIDs)
}

func TestFireWorkflowEvent_NoMatch(t *testing.T) {
	store := newStore(t, testutil.CreateTestWorkflow(testutil.WithOwner("7")))
	starter := &recordingStarter{}
	r := NewRouter(store.WorkflowRepository(), store.RunRepository(), triggers.NewMatcher(testLogger()), starter, testLogger())

	runIDs, err := r.FireWorkflowEvent(context.Background(), models.Event{
		EventType:   models.SubtypeTipReceived,
		OccurredFor: "7",
		Data:        map[string]any{"amount": 10},
	})
	require.NoError(t, err)
	assert.NotNil(t, runIDs)
	assert.Empty(t, runIDs)

	r.Wait()
	assert.Empty(t, starter.runs())
}

func TestFireWorkflowEvent_TargetedWorkflow(t *testing.T) {
	scheduled := func(id string) *models.Workflow {
		return testutil.CreateTestWorkflow(testutil.WithOwner("7"), func(w *models.Workflow) {
			w.ID = id
			w.Nodes[0] = testutil.CreateTestNode(testutil.WithID("trigger"), testutil.WithTrigger(models.SubtypeSchedule))
		})
	}

	store := newStore(t, scheduled("daily"), scheduled("weekly"))
	starter := &recordingStarter{}
	r := NewRouter(store.WorkflowRepository(), store.RunRepository(), triggers.NewMatcher(testLogger()), starter, testLogger())

	runIDs, err := r.FireWorkflowEvent(context.Background(), models.Event{
		EventType:   models.SubtypeSchedule,
		OccurredFor: "7",
		Data:        map[string]any{WorkflowIDKey: "weekly", "cron": "0 9 * * 1"},
	})
	require.NoError(t, err)
	require.Len(t, runIDs, 1)

	r.Wait()
	assert.Equal(t, "weekly", starter.runs()[0].WorkflowID)
}

func TestFireWorkflowEvent_InvalidEvent(t *testing.T) {
	store := newStore(t)
	r := NewRouter(store.WorkflowRepository(), store.RunRepository(), triggers.NewMatcher(testLogger()), &recordingStarter{}, testLogger())

	_, err := r.FireWorkflowEvent(context.Background(), models.Event{EventType: models.SubtypeNewFollower})
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

type failingWorkflows struct {
	persistence.WorkflowRepository
}

func (failingWorkflows) ListByOwner(context.Context, string, models.WorkflowStatus) ([]*models.Workflow, error) {
	return nil, errors.New("connection refused")
}

func TestFireWorkflowEvent_ListFailure(t *testing.T) {
	store := newStore(t)
	r := NewRouter(failingWorkflows{store.WorkflowRepository()}, store.RunRepository(),
		triggers.NewMatcher(testLogger()), &recordingStarter{}, testLogger())

	_, err := r.FireWorkflowEvent(context.Background(), testutil.FollowerEvent("7"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
