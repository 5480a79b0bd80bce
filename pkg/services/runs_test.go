package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukex/fanflow/pkg/actions"
	"github.com/dukex/fanflow/pkg/engine"
	"github.com/dukex/fanflow/pkg/models"
	"github.com/dukex/fanflow/pkg/persistence/memory"
	"github.com/dukex/fanflow/pkg/providers"
	"github.com/dukex/fanflow/pkg/providers/logging"
	"github.com/dukex/fanflow/pkg/router"
	"github.com/dukex/fanflow/pkg/testutil"
	"github.com/dukex/fanflow/pkg/triggers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runsFixture struct {
	store  *memory.Persistence
	router *router.Router
	runs   *Runs
}

func newRunsFixture(t *testing.T, set providers.Set) *runsFixture {
	t.Helper()

	store, err := memory.NewPersistence()
	require.NoError(t, err)

	dispatcher := actions.NewDispatcher(set, testLogger(), actions.WithRetry(0, 0))
	runner := engine.NewRunner(store.WorkflowRepository(), store.RunRepository(), dispatcher, testLogger())
	r := router.NewRouter(store.WorkflowRepository(), store.RunRepository(), triggers.NewMatcher(testLogger()), runner, testLogger())

	return &runsFixture{
		store:  store,
		router: r,
		runs:   NewRuns(store.RunRepository(), r, runner, testLogger()),
	}
}

func TestRuns_FireAndGetStatus(t *testing.T) {
	ctx := t.Context()
	f := newRunsFixture(t, logging.New(testLogger()).Set())

	workflow := testutil.CreateTestWorkflow(testutil.WithOwner("7"))
	require.NoError(t, f.store.WorkflowRepository().Save(ctx, workflow))

	runIDs, err := f.runs.FireWorkflowEvent(ctx, testutil.FollowerEvent("7"))
	require.NoError(t, err)
	require.Len(t, runIDs, 1)

	f.router.Wait()

	run, err := f.runs.GetRunStatus(ctx, runIDs[0])
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)

	listed, err := f.runs.ListByWorkflow(ctx, workflow.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, run.ID, listed[0].ID)
}

func TestRuns_FireInvalidEvent(t *testing.T) {
	f := newRunsFixture(t, providers.Set{})

	_, err := f.runs.FireWorkflowEvent(t.Context(), models.Event{OccurredFor: "7"})
	assert.ErrorIs(t, err, ErrInvalidEvent)
	assert.True(t, IsValidationError(err))
}

func TestRuns_CancelRun(t *testing.T) {
	ctx := t.Context()
	f := newRunsFixture(t, providers.Set{})

	workflow := testutil.CreateTestWorkflow()
	waiting := testutil.CreateTestRun(workflow, testutil.WithWaitingUntil("email", time.Now().Add(time.Hour)))
	require.NoError(t, f.store.RunRepository().Save(ctx, waiting))

	cancelled, err := f.runs.CancelRun(ctx, waiting.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, cancelled.Status)
	assert.Equal(t, engine.CancelledMessage, cancelled.Error)

	_, err = f.runs.CancelRun(ctx, waiting.ID)
	assert.ErrorIs(t, err, ErrRunNotCancellable)
	assert.True(t, IsConflictError(err))

	_, err = f.runs.CancelRun(ctx, "missing")
	assert.Error(t, err)
	assert.False(t, IsConflictError(err))
}

type failingFirer struct{}

func (failingFirer) FireWorkflowEvent(_ context.Context, _ models.Event) ([]string, error) {
	return nil, errors.New("connection refused")
}

func TestRuns_FireStorageFailure(t *testing.T) {
	f := newRunsFixture(t, providers.Set{})
	runs := NewRuns(f.store.RunRepository(), failingFirer{}, nil, testLogger())

	_, err := runs.FireWorkflowEvent(t.Context(), testutil.FollowerEvent("7"))
	require.Error(t, err)
	assert.False(t, IsValidationError(err))
}
