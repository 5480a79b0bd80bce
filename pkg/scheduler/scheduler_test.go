package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/fanflow/pkg/actions"
	"github.com/dukex/fanflow/pkg/engine"
	"github.com/dukex/fanflow/pkg/models"
	"github.com/dukex/fanflow/pkg/persistence"
	"github.com/dukex/fanflow/pkg/persistence/memory"
	"github.com/dukex/fanflow/pkg/providers"
	"github.com/dukex/fanflow/pkg/router"
	"github.com/dukex/fanflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newStore(t *testing.T) *memory.Persistence {
	t.Helper()

	store, err := memory.NewPersistence()
	require.NoError(t, err)

	return store
}

type fakeResumer struct {
	mu      sync.Mutex
	resumed []string
	done    []string
	errs    map[string]error
	block   map[string]chan struct{}
	during  func()
}

func (f *fakeResumer) Resume(_ context.Context, run *models.WorkflowRun, _ time.Time) error {
	f.mu.Lock()
	f.resumed = append(f.resumed, run.ID)
	wait := f.block[run.ID]
	f.mu.Unlock()

	if wait != nil {
		<-wait
	}

	if f.during != nil {
		f.during()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.done = append(f.done, run.ID)

	return f.errs[run.ID]
}

func (f *fakeResumer) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.resumed...)
}

func (f *fakeResumer) finished() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.done...)
}

func saveWaiting(t *testing.T, store *memory.Persistence, id string, resumeAt time.Time) {
	t.Helper()

	workflow := testutil.CreateTestWorkflow()
	run := testutil.CreateTestRun(workflow, testutil.WithWaitingUntil("email", resumeAt), func(r *models.WorkflowRun) {
		r.ID = id
	})

	require.NoError(t, store.RunRepository().Save(context.Background(), run))
}

func TestResumer_SweepResumesDueRuns(t *testing.T) {
	store := newStore(t)
	saveWaiting(t, store, "due-early", fixedNow.Add(-time.Hour))
	saveWaiting(t, store, "due-now", fixedNow)
	saveWaiting(t, store, "later", fixedNow.Add(time.Hour))

	runner := &fakeResumer{errs: map[string]error{}}
	resumer := NewResumer(store.RunRepository(), runner, testLogger(), WithResumerClock(func() time.Time { return fixedNow }))

	started, err := resumer.Sweep(context.Background())
	require.NoError(t, err)
	resumer.Wait()

	assert.Equal(t, 2, started)
	assert.ElementsMatch(t, []string{"due-early", "due-now"}, runner.ids())
}

func TestResumer_SweepSkipsFailures(t *testing.T) {
	store := newStore(t)
	saveWaiting(t, store, "claimed", fixedNow.Add(-2*time.Minute))
	saveWaiting(t, store, "broken", fixedNow.Add(-time.Minute))
	saveWaiting(t, store, "ok", fixedNow)

	runner := &fakeResumer{errs: map[string]error{
		"claimed": persistence.NewRunError("ClaimRun", "claimed", persistence.ErrRunAlreadyClaimed),
		"broken":  errors.New("disk full"),
	}}
	resumer := NewResumer(store.RunRepository(), runner, testLogger(), WithResumerClock(func() time.Time { return fixedNow }))

	started, err := resumer.Sweep(context.Background())
	require.NoError(t, err)
	resumer.Wait()

	assert.Equal(t, 3, started)
	assert.Len(t, runner.ids(), 3)

	// a failed resume leaves the run due for the next sweep
	started, err = resumer.Sweep(context.Background())
	require.NoError(t, err)
	resumer.Wait()

	assert.Equal(t, 3, started)
	assert.Len(t, runner.ids(), 6)
}

func TestResumer_SweepBatch(t *testing.T) {
	store := newStore(t)
	for i := range 5 {
		saveWaiting(t, store, fmt.Sprintf("run-%d", i), fixedNow.Add(-time.Duration(5-i)*time.Minute))
	}

	runner := &fakeResumer{}
	resumer := NewResumer(store.RunRepository(), runner, testLogger(),
		WithResumeBatch(2), WithResumerClock(func() time.Time { return fixedNow }))

	started, err := resumer.Sweep(context.Background())
	require.NoError(t, err)
	resumer.Wait()

	assert.Equal(t, 2, started)
	assert.ElementsMatch(t, []string{"run-0", "run-1"}, runner.ids())
}

func TestResumer_SweepResumesConcurrently(t *testing.T) {
	store := newStore(t)
	saveWaiting(t, store, "slow", fixedNow.Add(-time.Hour))
	saveWaiting(t, store, "fast", fixedNow.Add(-time.Minute))

	release := make(chan struct{})
	runner := &fakeResumer{block: map[string]chan struct{}{"slow": release}}
	resumer := NewResumer(store.RunRepository(), runner, testLogger(), WithResumerClock(func() time.Time { return fixedNow }))

	started, err := resumer.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, started)

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"fast"}, runner.finished())
	}, time.Second, 5*time.Millisecond)

	// the slow run is still resuming, so the next sweep leaves it alone
	started, err = resumer.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, started)

	close(release)
	resumer.Wait()

	assert.ElementsMatch(t, []string{"fast", "fast", "slow"}, runner.finished())
}

func TestResumer_ConcurrencyLimit(t *testing.T) {
	store := newStore(t)
	for i := range 4 {
		saveWaiting(t, store, fmt.Sprintf("run-%d", i), fixedNow.Add(-time.Duration(4-i)*time.Minute))
	}

	var running, peak atomic.Int32

	runner := &fakeResumer{during: func() {
		current := running.Add(1)
		defer running.Add(-1)

		for {
			seen := peak.Load()
			if current <= seen || peak.CompareAndSwap(seen, current) {
				break
			}
		}

		time.Sleep(10 * time.Millisecond)
	}}
	resumer := NewResumer(store.RunRepository(), runner, testLogger(),
		WithResumeConcurrency(2), WithResumerClock(func() time.Time { return fixedNow }))

	started, err := resumer.Sweep(context.Background())
	require.NoError(t, err)
	resumer.Wait()

	assert.Equal(t, 4, started)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Len(t, runner.finished(), 4)
}

func TestResumer_StopWaitsForResumes(t *testing.T) {
	store := newStore(t)
	saveWaiting(t, store, "slow", fixedNow.Add(-time.Minute))

	release := make(chan struct{})
	runner := &fakeResumer{block: map[string]chan struct{}{"slow": release}}
	resumer := NewResumer(store.RunRepository(), runner, testLogger(),
		WithResumeInterval(time.Hour), WithResumerClock(func() time.Time { return fixedNow }))

	ctx := context.Background()
	resumer.Start(ctx)

	assert.Eventually(t, func() bool {
		return len(runner.ids()) == 1
	}, time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})

	go func() {
		resumer.Stop(ctx)
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a resume was still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-stopped

	assert.Equal(t, []string{"slow"}, runner.finished())
}

func TestResumer_SweepWithRunner(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	workflow := testutil.CreateTestWorkflow()
	require.NoError(t, store.WorkflowRepository().Save(ctx, workflow))

	run := testutil.CreateTestRun(workflow, testutil.WithWaitingUntil("trigger", fixedNow.Add(-time.Minute)))
	require.NoError(t, store.RunRepository().Save(ctx, run))

	dispatcher := actions.NewDispatcher(providers.Set{}, testLogger(), actions.WithRetry(0, 0))
	runner := engine.NewRunner(store.WorkflowRepository(), store.RunRepository(), dispatcher, testLogger(),
		engine.WithClock(func() time.Time { return fixedNow }))

	clock := func() time.Time { return fixedNow }
	first := NewResumer(store.RunRepository(), runner, testLogger(), WithResumerClock(clock))
	second := NewResumer(store.RunRepository(), runner, testLogger(), WithResumerClock(clock))

	started, err := first.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, started)
	first.Wait()

	started, err = second.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, started)
	second.Wait()

	stored, err := store.RunRepository().GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, stored.Status)
	assert.Equal(t, "email", stored.Steps[len(stored.Steps)-1].NodeID)
}

func TestResumer_StartStop(t *testing.T) {
	store := newStore(t)
	saveWaiting(t, store, "due", fixedNow.Add(-time.Minute))

	runner := &fakeResumer{}
	resumer := NewResumer(store.RunRepository(), runner, testLogger(),
		WithResumeInterval(5*time.Millisecond), WithResumerClock(func() time.Time { return fixedNow }))

	ctx := context.Background()
	resumer.Start(ctx)
	resumer.Start(ctx)

	assert.Eventually(t, func() bool {
		return len(runner.ids()) >= 2
	}, time.Second, 5*time.Millisecond)

	resumer.Stop(ctx)
	resumer.Stop(ctx)
}

type fakeFirer struct {
	mu     sync.Mutex
	events []models.Event
	err    error
}

func (f *fakeFirer) FireWorkflowEvent(_ context.Context, event models.Event) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = append(f.events, event)
	if f.err != nil {
		return nil, f.err
	}

	return []string{"run-1"}, nil
}

func TestSource_PollFiresDueSchedules(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	due, err := models.NewSchedule("s1", "wf-1", "trigger", "7", "*/5 * * * *", fixedNow.Add(-10*time.Minute))
	require.NoError(t, err)
	notDue, err := models.NewSchedule("s2", "wf-2", "trigger", "7", "0 9 * * *", fixedNow)
	require.NoError(t, err)

	require.NoError(t, store.ScheduleRepository().Save(ctx, due))
	require.NoError(t, store.ScheduleRepository().Save(ctx, notDue))

	firer := &fakeFirer{}
	source := NewSource(store.ScheduleRepository(), firer, testLogger(), WithSourceClock(func() time.Time { return fixedNow }))

	fired, err := source.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fired)

	require.Len(t, firer.events, 1)
	event := firer.events[0]
	assert.Equal(t, models.SubtypeSchedule, event.EventType)
	assert.Equal(t, "7", event.OccurredFor)
	assert.Equal(t, "wf-1", event.Data[router.WorkflowIDKey])
	assert.Equal(t, "*/5 * * * *", event.Data["cron"])

	schedules, err := store.ScheduleRepository().ListByWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, fixedNow.Add(5*time.Minute), schedules[0].NextDueAt)

	fired, err = source.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, fired)
}

func TestSource_PollRetriesFailedFire(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	schedule, err := models.NewSchedule("s1", "wf-1", "trigger", "7", "*/5 * * * *", fixedNow.Add(-10*time.Minute))
	require.NoError(t, err)
	require.NoError(t, store.ScheduleRepository().Save(ctx, schedule))

	firer := &fakeFirer{err: errors.New("store down")}
	source := NewSource(store.ScheduleRepository(), firer, testLogger(), WithSourceClock(func() time.Time { return fixedNow }))

	fired, err := source.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, fired)

	stillDue, err := store.ScheduleRepository().Due(ctx, fixedNow)
	require.NoError(t, err)
	assert.Len(t, stillDue, 1)
}

func TestSource_StartStop(t *testing.T) {
	var polls atomic.Int32

	source := NewSource(newStore(t).ScheduleRepository(), &fakeFirer{}, testLogger(), WithScheduleInterval(5*time.Millisecond))
	source.poller.tick = func(context.Context) { polls.Add(1) }

	ctx, cancel := context.WithCancel(context.Background())
	source.Start(ctx)

	assert.Eventually(t, func() bool { return polls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	cancel()
	source.Stop(context.Background())
}

func scheduledWorkflow(status models.WorkflowStatus) *models.Workflow {
	return testutil.CreateTestWorkflow(testutil.WithOwner("7"), testutil.WithStatus(status), func(w *models.Workflow) {
		w.ID = "wf-1"
		w.Nodes[0] = testutil.CreateTestNode(testutil.WithID("trigger"), testutil.WithTrigger(models.SubtypeSchedule),
			testutil.WithConfig(map[string]string{"eventType": models.SubtypeSchedule, "cron": "0 9 * * *"}))
	})
}

func TestSyncWorkflow(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	created, err := SyncWorkflow(ctx, store.ScheduleRepository(), scheduledWorkflow(models.WorkflowStatusActive), fixedNow)
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "wf-1:trigger", created[0].ID)
	assert.Equal(t, "7", created[0].OwnerID)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), created[0].NextDueAt)

	_, err = SyncWorkflow(ctx, store.ScheduleRepository(), scheduledWorkflow(models.WorkflowStatusActive), fixedNow)
	require.NoError(t, err)

	schedules, err := store.ScheduleRepository().ListByWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Len(t, schedules, 1)

	created, err = SyncWorkflow(ctx, store.ScheduleRepository(), scheduledWorkflow(models.WorkflowStatusPaused), fixedNow)
	require.NoError(t, err)
	assert.Empty(t, created)

	schedules, err = store.ScheduleRepository().ListByWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Empty(t, schedules)
}

func TestSyncWorkflow_InvalidCron(t *testing.T) {
	workflow := scheduledWorkflow(models.WorkflowStatusActive)
	workflow.Nodes[0].Config["cron"] = "every day"

	_, err := SyncWorkflow(context.Background(), newStore(t).ScheduleRepository(), workflow, fixedNow)
	assert.ErrorIs(t, err, models.ErrInvalidSchedule)
}
