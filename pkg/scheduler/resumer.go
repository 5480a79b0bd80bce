package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/fanflow/pkg/models"
	"github.com/dukex/fanflow/pkg/persistence"
)

const (
	DefaultResumeInterval    = 15 * time.Second
	DefaultResumeBatch       = 100
	DefaultResumeConcurrency = 16
)

// RunResumer continues a run whose earliest suspension is due.
type RunResumer interface {
	Resume(ctx context.Context, run *models.WorkflowRun, now time.Time) error
}

// Resumer sweeps the run store for due runs and resumes them concurrently.
type Resumer struct {
	logger    *slog.Logger
	runs      persistence.RunRepository
	runner    RunResumer
	batchSize int
	now       func() time.Time
	poller    *poller

	slots    chan struct{}
	mu       sync.Mutex
	inFlight map[string]struct{}
	active   sync.WaitGroup
}

type ResumerOption func(*Resumer)

// WithResumeInterval sets the time between sweeps.
func WithResumeInterval(interval time.Duration) ResumerOption {
	return func(r *Resumer) {
		if interval > 0 {
			r.poller.interval = interval
		}
	}
}

// WithResumeBatch caps the runs resumed by one sweep; the rest wait for the next.
func WithResumeBatch(size int) ResumerOption {
	return func(r *Resumer) {
		r.batchSize = size
	}
}

// WithResumeConcurrency caps the runs resumed at the same time.
func WithResumeConcurrency(limit int) ResumerOption {
	return func(r *Resumer) {
		if limit > 0 {
			r.slots = make(chan struct{}, limit)
		}
	}
}

func WithResumerClock(now func() time.Time) ResumerOption {
	return func(r *Resumer) {
		r.now = now
	}
}

func NewResumer(runs persistence.RunRepository, runner RunResumer, logger *slog.Logger, opts ...ResumerOption) *Resumer {
	r := &Resumer{
		logger:    logger.With("module", "run_resumer"),
		runs:      runs,
		runner:    runner,
		batchSize: DefaultResumeBatch,
		now:       func() time.Time { return time.Now().UTC() },
		slots:     make(chan struct{}, DefaultResumeConcurrency),
		inFlight:  make(map[string]struct{}),
	}

	r.poller = &poller{logger: r.logger, interval: DefaultResumeInterval, tick: func(ctx context.Context) {
		_, _ = r.Sweep(ctx)
	}}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *Resumer) Start(ctx context.Context) {
	r.poller.start(ctx)
}

// Stop stops sweeping and waits for the resumes already started.
func (r *Resumer) Stop(ctx context.Context) {
	r.poller.stop(ctx)
	r.Wait()
}

// Wait blocks until every resume started by Sweep has returned.
func (r *Resumer) Wait() {
	r.active.Wait()
}

// Sweep starts resuming every due run in the background and returns how many it started.
// At most the configured concurrency resume at once, so Sweep blocks while every slot
// is taken. A run still resuming from an earlier sweep is skipped. A run another
// sweeper claimed first is skipped; any other failure is logged and the run stays due
// for the next sweep.
func (r *Resumer) Sweep(ctx context.Context) (int, error) {
	now := r.now()

	due, err := r.runs.DueRuns(ctx, now, r.batchSize)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to get due runs", "error", err)

		return 0, err
	}

	if len(due) > 0 {
		r.logger.InfoContext(ctx, "Resuming due runs", "count", len(due))
	}

	started := 0

	for _, run := range due {
		if !r.track(run.ID) {
			continue
		}

		select {
		case r.slots <- struct{}{}:
		case <-ctx.Done():
			r.untrack(run.ID)

			return started, ctx.Err()
		}

		started++

		r.active.Add(1)

		go r.resume(ctx, run, now)
	}

	return started, nil
}

func (r *Resumer) resume(ctx context.Context, run *models.WorkflowRun, now time.Time) {
	defer r.active.Done()
	defer r.untrack(run.ID)
	defer func() { <-r.slots }()

	logger := r.logger.With("run_id", run.ID, "workflow_id", run.WorkflowID)

	err := r.runner.Resume(ctx, run, now)
	if err == nil {
		return
	}

	if persistence.IsRunAlreadyClaimed(err) {
		logger.DebugContext(ctx, "Run already claimed")

		return
	}

	logger.ErrorContext(ctx, "Failed to resume run", "error", err)
}

func (r *Resumer) track(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.inFlight[runID]; ok {
		return false
	}

	r.inFlight[runID] = struct{}{}

	return true
}

func (r *Resumer) untrack(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.inFlight, runID)
}
