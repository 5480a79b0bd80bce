// Package persistencetest holds the behaviour every persistence backend must share. Backend
// test files call RunSuite with a constructor for a fresh, empty store.
package persistencetest

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/fanflow/pkg/models"
	"github.com/dukex/fanflow/pkg/persistence"
	"github.com/dukex/fanflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. It registers its own cleanup on t.
type Factory func(t *testing.T) persistence.Persistence

func RunSuite(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("workflows", func(t *testing.T) { testWorkflows(t, newStore(t)) })
	t.Run("workflow not found", func(t *testing.T) { testWorkflowNotFound(t, newStore(t)) })
	t.Run("list by owner", func(t *testing.T) { testListByOwner(t, newStore(t)) })
	t.Run("runs", func(t *testing.T) { testRuns(t, newStore(t)) })
	t.Run("due runs", func(t *testing.T) { testDueRuns(t, newStore(t)) })
	t.Run("claim run", func(t *testing.T) { testClaimRun(t, newStore(t)) })
	t.Run("claim due", func(t *testing.T) { testClaimDue(t, newStore(t)) })
	t.Run("save claimed", func(t *testing.T) { testSaveClaimed(t, newStore(t)) })
	t.Run("schedules", func(t *testing.T) { testSchedules(t, newStore(t)) })
}

func testWorkflows(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	repo := store.WorkflowRepository()

	require.NoError(t, store.HealthCheck(ctx))

	workflow := testutil.CreateTestWorkflow()
	workflow.CreatedAt = time.Time{}

	require.NoError(t, repo.Save(ctx, workflow))
	assert.False(t, workflow.CreatedAt.IsZero())

	loaded, err := repo.GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.Name, loaded.Name)
	assert.Equal(t, workflow.OwnerID, loaded.OwnerID)
	assert.Equal(t, models.WorkflowStatusActive, loaded.Status)
	require.Len(t, loaded.Nodes, 2)
	assert.Equal(t, "{{fan.email}}", loaded.NodeByID("email").Config["to"])
	assert.Equal(t, workflow.Edges, loaded.Edges)

	loaded.Status = models.WorkflowStatusPaused
	require.NoError(t, repo.Save(ctx, loaded))

	reloaded, err := repo.GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusPaused, reloaded.Status)
	assert.WithinDuration(t, workflow.CreatedAt, reloaded.CreatedAt, time.Millisecond)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, repo.Delete(ctx, workflow.ID))

	_, err = repo.GetByID(ctx, workflow.ID)
	assert.True(t, persistence.IsWorkflowNotFound(err))

	all, err = repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func testWorkflowNotFound(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()

	_, err := store.WorkflowRepository().GetByID(ctx, "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrWorkflowNotFound)

	assert.NoError(t, store.WorkflowRepository().Delete(ctx, "missing"))
}

func testListByOwner(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	repo := store.WorkflowRepository()

	active := testutil.CreateTestWorkflow(testutil.WithOwner("artist-1"))
	draft := testutil.CreateTestWorkflow(testutil.WithOwner("artist-1"), testutil.WithStatus(models.WorkflowStatusDraft))
	other := testutil.CreateTestWorkflow(testutil.WithOwner("artist-2"))

	for _, workflow := range []*models.Workflow{active, draft, other} {
		require.NoError(t, repo.Save(ctx, workflow))
	}

	owned, err := repo.ListByOwner(ctx, "artist-1", "")
	require.NoError(t, err)
	assert.Len(t, owned, 2)

	activeOnly, err := repo.ListByOwner(ctx, "artist-1", models.WorkflowStatusActive)
	require.NoError(t, err)
	require.Len(t, activeOnly, 1)
	assert.Equal(t, active.ID, activeOnly[0].ID)

	none, err := repo.ListByOwner(ctx, "artist-3", models.WorkflowStatusActive)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testRuns(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	repo := store.RunRepository()
	workflow := testutil.CreateTestWorkflow()

	older := testutil.CreateTestRun(workflow)
	older.CreatedAt = older.CreatedAt.Add(-time.Minute)
	newer := testutil.CreateTestRun(workflow)
	unrelated := testutil.CreateTestRun(testutil.CreateTestWorkflow())

	for _, run := range []*models.WorkflowRun{older, newer, unrelated} {
		require.NoError(t, repo.Save(ctx, run))
	}

	loaded, err := repo.GetByID(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, loaded.Status)
	assert.Equal(t, "trigger", loaded.CurrentNodeID)
	assert.Equal(t, models.SubtypeNewFollower, loaded.TriggeringEvent.EventType)
	assert.Equal(t, "x@y.com", loaded.Context["fan"].(map[string]any)["email"])

	runs, err := repo.ListByWorkflow(ctx, workflow.ID)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, newer.ID, runs[0].ID)
	assert.Equal(t, older.ID, runs[1].ID)

	completedAt := time.Now().UTC()
	passed := true
	loaded.Status = models.RunStatusCompleted
	loaded.CompletedAt = &completedAt
	loaded.Steps = append(loaded.Steps, models.StepRecord{NodeID: "email", Subtype: models.SubtypeSendEmail, Outcome: models.Outcome{"sent": true}, Passed: &passed, Timestamp: completedAt})
	require.NoError(t, repo.Save(ctx, loaded))

	reloaded, err := repo.GetByID(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, reloaded.Status)
	require.NotNil(t, reloaded.CompletedAt)
	require.Len(t, reloaded.Steps, 1)
	assert.Equal(t, true, reloaded.Steps[0].Outcome["sent"])

	_, err = repo.GetByID(ctx, "missing")
	assert.True(t, persistence.IsRunNotFound(err))
}

func testDueRuns(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	repo := store.RunRepository()
	workflow := testutil.CreateTestWorkflow()
	now := time.Now().UTC().Truncate(time.Second)

	dueLater := testutil.CreateTestRun(workflow, testutil.WithWaitingUntil("wait", now.Add(-time.Minute)))
	dueFirst := testutil.CreateTestRun(workflow, testutil.WithWaitingUntil("wait", now.Add(-time.Hour)))
	notDue := testutil.CreateTestRun(workflow, testutil.WithWaitingUntil("wait", now.Add(time.Hour)))
	running := testutil.CreateTestRun(workflow)

	leased := testutil.CreateTestRun(workflow, testutil.WithWaitingUntil("wait", now.Add(-2*time.Hour)))
	leased.Status = models.RunStatusRunning
	leased.ClaimToken = "live"
	leased.LeaseUntil = ptr(now.Add(time.Minute))

	abandoned := testutil.CreateTestRun(workflow, testutil.WithWaitingUntil("wait", now.Add(-30*time.Minute)))
	abandoned.Status = models.RunStatusRunning
	abandoned.ClaimToken = "gone"
	abandoned.LeaseUntil = ptr(now.Add(-time.Minute))

	for _, run := range []*models.WorkflowRun{dueLater, dueFirst, notDue, running, leased, abandoned} {
		require.NoError(t, repo.Save(ctx, run))
	}

	due, err := repo.DueRuns(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 3)
	assert.Equal(t, dueFirst.ID, due[0].ID)
	assert.Equal(t, abandoned.ID, due[1].ID)
	assert.Equal(t, dueLater.ID, due[2].ID)

	limited, err := repo.DueRuns(ctx, now, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, dueFirst.ID, limited[0].ID)
}

func testClaimRun(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	repo := store.RunRepository()
	workflow := testutil.CreateTestWorkflow()

	run := testutil.CreateTestRun(workflow, testutil.WithWaitingUntil("wait", time.Now().UTC().Add(-time.Second)))
	require.NoError(t, repo.Save(ctx, run))

	claimed, err := repo.ClaimRun(ctx, run.ID, models.RunStatusWaiting, models.RunStatusRunning)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, claimed.Status)
	assert.Len(t, claimed.Suspensions, 1)

	_, err = repo.ClaimRun(ctx, run.ID, models.RunStatusWaiting, models.RunStatusRunning)
	assert.True(t, persistence.IsRunAlreadyClaimed(err))

	_, err = repo.ClaimRun(ctx, "missing", models.RunStatusWaiting, models.RunStatusRunning)
	assert.True(t, persistence.IsRunNotFound(err))

	stored, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, stored.Status)
}

func testClaimDue(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	repo := store.RunRepository()
	workflow := testutil.CreateTestWorkflow()
	now := time.Now().UTC().Truncate(time.Second)

	run := testutil.CreateTestRun(workflow, testutil.WithWaitingUntil("wait", now.Add(-time.Second)))
	require.NoError(t, repo.Save(ctx, run))

	claimed, err := repo.ClaimDue(ctx, run.ID, "first", now, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, claimed.Status)
	assert.Equal(t, "first", claimed.ClaimToken)
	require.NotNil(t, claimed.LeaseUntil)
	assert.True(t, claimed.LeaseUntil.Equal(now.Add(time.Minute)))
	assert.Len(t, claimed.Suspensions, 1)

	_, err = repo.ClaimDue(ctx, run.ID, "second", now, now.Add(time.Minute))
	assert.True(t, persistence.IsRunAlreadyClaimed(err))

	require.NoError(t, repo.RenewLease(ctx, run.ID, "first", now.Add(2*time.Minute)))
	assert.True(t, persistence.IsRunAlreadyClaimed(repo.RenewLease(ctx, run.ID, "second", now.Add(time.Hour))))

	_, err = repo.ClaimDue(ctx, run.ID, "second", now.Add(time.Minute), now.Add(3*time.Minute))
	assert.True(t, persistence.IsRunAlreadyClaimed(err), "renewed lease still holds")

	reclaimed, err := repo.ClaimDue(ctx, run.ID, "second", now.Add(2*time.Minute), now.Add(3*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "second", reclaimed.ClaimToken)

	assert.True(t, persistence.IsRunAlreadyClaimed(repo.RenewLease(ctx, run.ID, "first", now.Add(time.Hour))))

	_, err = repo.ClaimDue(ctx, "missing", "first", now, now.Add(time.Minute))
	assert.True(t, persistence.IsRunNotFound(err))
}

func testSaveClaimed(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	repo := store.RunRepository()
	workflow := testutil.CreateTestWorkflow()

	run := testutil.CreateTestRun(workflow)
	run.ClaimToken = "owner"
	require.NoError(t, repo.Save(ctx, run))

	run.Status = models.RunStatusCompleted
	run.Release()
	require.NoError(t, repo.SaveClaimed(ctx, run, "owner"))

	stored, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, stored.Status)
	assert.Empty(t, stored.ClaimToken)

	cancelled := testutil.CreateTestRun(workflow)
	cancelled.ClaimToken = "owner"
	require.NoError(t, repo.Save(ctx, cancelled))

	_, err = repo.ClaimRun(ctx, cancelled.ID, models.RunStatusRunning, models.RunStatusFailed)
	require.NoError(t, err)

	cancelled.Status = models.RunStatusCompleted
	err = repo.SaveClaimed(ctx, cancelled, "owner")
	assert.True(t, persistence.IsRunAlreadyClaimed(err))

	stored, err = repo.GetByID(ctx, cancelled.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, stored.Status)

	other := testutil.CreateTestRun(workflow)
	other.ClaimToken = "owner"
	require.NoError(t, repo.Save(ctx, other))
	assert.True(t, persistence.IsRunAlreadyClaimed(repo.SaveClaimed(ctx, other, "intruder")))

	missing := testutil.CreateTestRun(workflow)
	missing.ID = "missing"
	assert.True(t, persistence.IsRunNotFound(repo.SaveClaimed(ctx, missing, "owner")))
}

func ptr[T any](value T) *T {
	return &value
}

func testSchedules(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	repo := store.ScheduleRepository()
	now := time.Date(2026, 5, 1, 12, 0, 30, 0, time.UTC)

	due, err := models.NewSchedule("s-1", "wf-1", "trigger", "artist-1", "*/5 * * * *", now.Add(-10*time.Minute))
	require.NoError(t, err)

	later, err := models.NewSchedule("s-2", "wf-1", "trigger-2", "artist-1", "0 9 * * *", now)
	require.NoError(t, err)

	inactive, err := models.NewSchedule("s-3", "wf-2", "trigger", "artist-2", "* * * * *", now.Add(-time.Hour))
	require.NoError(t, err)

	inactive.Active = false

	for _, schedule := range []*models.Schedule{due, later, inactive} {
		require.NoError(t, repo.Save(ctx, schedule))
	}

	dueNow, err := repo.Due(ctx, now)
	require.NoError(t, err)
	require.Len(t, dueNow, 1)
	assert.Equal(t, "s-1", dueNow[0].ID)

	require.NoError(t, dueNow[0].Advance(now))
	require.NoError(t, repo.Save(ctx, dueNow[0]))

	dueNow, err = repo.Due(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, dueNow)

	byWorkflow, err := repo.ListByWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Len(t, byWorkflow, 2)

	require.NoError(t, repo.DeleteByWorkflow(ctx, "wf-1"))

	byWorkflow, err = repo.ListByWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Empty(t, byWorkflow)

	remaining, err := repo.ListByWorkflow(ctx, "wf-2")
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}
