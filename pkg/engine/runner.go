// Package engine advances workflow runs through their graph, from the matched trigger
// node to completion, suspending at wait nodes and resuming when they are due.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/fanflow/pkg/actions"
	"github.com/dukex/fanflow/pkg/events"
	"github.com/dukex/fanflow/pkg/models"
	"github.com/dukex/fanflow/pkg/otelhelper"
	"github.com/dukex/fanflow/pkg/persistence"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxNodeVisits bounds the nodes one start or resume may visit, so a cyclic graph
// fails instead of looping forever.
const DefaultMaxNodeVisits = 1000

// DefaultLease is how long a runner holds a resumed run before another runner may
// reclaim it. The holder renews the lease every third of it.
const DefaultLease = 2 * time.Minute

// CancelledMessage is the error recorded on a run cancelled by id.
const CancelledMessage = "cancelled"

var (
	// ErrRunCancelled is the cancellation cause of a run cancelled by id.
	ErrRunCancelled = errors.New("run cancelled")
	// ErrNodeVisitLimit fails a run that visited more nodes than allowed.
	ErrNodeVisitLimit = errors.New("node visit limit exceeded")

	errLeaseLost = errors.New("run lease lost")
)

// ActionDispatcher runs one action node.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, node *models.Node, runContext map[string]any) actions.Result
}

// Observer is told about every run status change.
type Observer interface {
	Notify(ctx context.Context, event events.RunLifecycle)
}

type Runner struct {
	logger        *slog.Logger
	workflows     persistence.WorkflowRepository
	runs          persistence.RunRepository
	dispatcher    ActionDispatcher
	observer      Observer
	tracer        trace.Tracer
	maxNodeVisits int
	lease         time.Duration
	now           func() time.Time

	mu       sync.Mutex
	inFlight map[string]context.CancelCauseFunc
}

type Option func(*Runner)

func WithObserver(observer Observer) Option {
	return func(r *Runner) {
		r.observer = observer
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) {
		r.tracer = tracer
	}
}

func WithMaxNodeVisits(limit int) Option {
	return func(r *Runner) {
		if limit > 0 {
			r.maxNodeVisits = limit
		}
	}
}

func WithLease(lease time.Duration) Option {
	return func(r *Runner) {
		if lease > 0 {
			r.lease = lease
		}
	}
}

// WithClock replaces time.Now, used for step timestamps and wait deadlines.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

func NewRunner(
	workflows persistence.WorkflowRepository,
	runs persistence.RunRepository,
	dispatcher ActionDispatcher,
	logger *slog.Logger,
	opts ...Option,
) *Runner {
	r := &Runner{
		logger:        logger.With("module", "workflow_runner"),
		workflows:     workflows,
		runs:          runs,
		dispatcher:    dispatcher,
		tracer:        otelhelper.NoopTracer(),
		maxNodeVisits: DefaultMaxNodeVisits,
		lease:         DefaultLease,
		now:           func() time.Time { return time.Now().UTC() },
		inFlight:      make(map[string]context.CancelCauseFunc),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Start traverses a freshly created and saved run from its trigger node until every
// branch ends or suspends, then saves it. Failures while traversing are recorded on the
// run; only storage errors and illegal states are returned. A run cancelled before Start
// took hold of it is left alone.
func (r *Runner) Start(ctx context.Context, workflow *models.Workflow, run *models.WorkflowRun) error {
	if run.Status != models.RunStatusRunning {
		return fmt.Errorf("%w: cannot start a %s run", ErrInvalidTransition, run.Status)
	}

	leaseUntil := r.now().Add(r.lease)

	if err := r.runs.RenewLease(ctx, run.ID, run.ClaimToken, leaseUntil); err != nil {
		if persistence.IsRunAlreadyClaimed(err) {
			r.logger.InfoContext(ctx, "Run no longer startable", "run_id", run.ID)

			return nil
		}

		return err
	}

	run.LeaseUntil = &leaseUntil

	r.notify(ctx, events.RunStartedEvent, run)

	exec := r.newExecution(workflow, run)

	trigger := workflow.NodeByID(run.TriggerNodeID)
	if trigger == nil {
		return r.execute(ctx, exec, "workflow.start", func(context.Context) error {
			return fmt.Errorf("trigger node %q not found", run.TriggerNodeID)
		})
	}

	exec.record(models.StepRecord{
		NodeID:  trigger.ID,
		Subtype: trigger.Subtype,
		Outcome: models.Outcome{"eventType": run.TriggeringEvent.EventType},
	})

	return r.execute(ctx, exec, "workflow.start", func(ctx context.Context) error {
		return exec.walk(ctx, exec.next(trigger, true))
	})
}

// Resume continues a waiting run from the outgoing edges of each suspension due at now.
// Suspensions not yet due are kept. The run is claimed in storage first, so a run can
// only be resumed by one caller; the loser gets persistence.ErrRunAlreadyClaimed. A
// running run whose lease ran out is resumed again from the same suspensions.
//
// The traversal is detached from ctx: cancelling ctx stops claiming, not a claimed run.
func (r *Runner) Resume(ctx context.Context, run *models.WorkflowRun, now time.Time) error {
	if !run.LeaseExpired(now) {
		if err := transition(&models.WorkflowRun{Status: run.Status}, triggerResume); err != nil {
			return err
		}
	}

	if !run.IsDue(now) {
		return nil
	}

	token := uuid.NewString()

	claimed, err := r.runs.ClaimDue(ctx, run.ID, token, now, r.now().Add(r.lease))
	if err != nil {
		return err
	}

	logger := r.logger.With("run_id", claimed.ID, "workflow_id", claimed.WorkflowID)

	workflow, err := r.workflows.GetByID(ctx, claimed.WorkflowID)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			exec := r.newExecution(&models.Workflow{ID: claimed.WorkflowID}, claimed)

			return r.execute(ctx, exec, "workflow.resume", func(context.Context) error {
				return errors.New("workflow not found")
			})
		}

		// hand the run back to the next sweep
		claimed.Status = models.RunStatusWaiting
		claimed.Release()

		if saveErr := r.runs.SaveClaimed(context.WithoutCancel(ctx), claimed, token); saveErr != nil {
			logger.ErrorContext(ctx, "Failed to release claimed run", "error", saveErr)
		}

		return err
	}

	due, pending := claimed.SplitSuspensions(now)

	r.notify(ctx, events.RunResumedEvent, claimed)

	exec := r.newExecution(workflow, claimed)
	exec.suspensions = pending

	return r.execute(ctx, exec, "workflow.resume", func(ctx context.Context) error {
		var targets []*models.Node

		for _, suspension := range due {
			node := workflow.NodeByID(suspension.NodeID)
			if node == nil {
				logger.WarnContext(ctx, "Suspended node no longer exists", "node_id", suspension.NodeID)

				continue
			}

			targets = append(targets, exec.next(node, true)...)
		}

		return exec.walk(ctx, targets)
	})
}

// CancelRun stops a run. A run executing in this process has its context cancelled and is
// failed by its own traversal; any other non terminal run is failed in storage directly.
func (r *Runner) CancelRun(ctx context.Context, runID string) error {
	r.mu.Lock()
	cancel, ok := r.inFlight[runID]
	r.mu.Unlock()

	if ok {
		cancel(ErrRunCancelled)

		return nil
	}

	run, err := r.runs.GetByID(ctx, runID)
	if err != nil {
		return err
	}

	from := run.Status
	if err := transition(run, triggerFail); err != nil {
		return err
	}

	claimed, err := r.runs.ClaimRun(ctx, runID, from, models.RunStatusFailed)
	if err != nil {
		return err
	}

	now := r.now()
	claimed.Error = CancelledMessage
	claimed.Release()
	claimed.SetSuspensions(nil)
	claimed.UpdatedAt = now
	claimed.CompletedAt = &now

	if err := r.runs.Save(ctx, claimed); err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "Run cancelled", "run_id", runID)
	r.notify(ctx, events.RunFailedEvent, claimed)

	return nil
}

// InFlight reports how many runs this runner is executing right now.
func (r *Runner) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.inFlight)
}

// execute walks a run held under its claim token and saves the outcome while the claim
// still holds. The walk only stops early through CancelRun or a lost lease, never
// through ctx.
func (r *Runner) execute(ctx context.Context, exec *execution, spanName string, walk func(ctx context.Context) error) error {
	run := exec.run
	token := run.ClaimToken

	runCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	defer cancel(nil)

	r.track(run.ID, cancel)
	defer r.untrack(run.ID)

	stopLease := r.keepLease(runCtx, cancel, exec.logger, run.ID, token)

	spanCtx, span := otelhelper.StartSpan(runCtx, r.tracer, spanName,
		attribute.String(otelhelper.WorkflowIDKey, run.WorkflowID),
		attribute.String(otelhelper.RunIDKey, run.ID),
		attribute.String(otelhelper.OwnerIDKey, run.OwnerID),
		attribute.String(otelhelper.EventTypeKey, run.TriggeringEvent.EventType),
	)
	defer span.End()

	walkErr := walk(spanCtx)

	stopLease()

	switch cause := context.Cause(runCtx); {
	case errors.Is(cause, ErrRunCancelled):
		walkErr = ErrRunCancelled
	case errors.Is(cause, errLeaseLost):
		exec.logger.WarnContext(ctx, "Run lease lost, leaving the run to its new holder")

		return nil
	}

	if err := r.finish(exec, walkErr); err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	run.Release()

	span.SetAttributes(attribute.String(otelhelper.RunStatusKey, string(run.Status)))

	if walkErr != nil {
		otelhelper.SetError(span, walkErr)
	}

	// the run outcome is saved even when the caller gave up on ctx
	saveCtx := context.WithoutCancel(ctx)

	if err := r.runs.SaveClaimed(saveCtx, run, token); err != nil {
		if persistence.IsRunAlreadyClaimed(err) {
			exec.logger.WarnContext(saveCtx, "Run was cancelled or reclaimed, dropping its outcome", "status", run.Status)

			return nil
		}

		exec.logger.ErrorContext(saveCtx, "Failed to save run", "error", err)
		otelhelper.SetError(span, err)

		return err
	}

	r.notify(saveCtx, lifecycleEvent(run.Status), run)

	return nil
}

// finish decides the status a traversal leaves the run in. A halting failure wins over
// suspensions, suspensions win over completion.
func (r *Runner) finish(exec *execution, walkErr error) error {
	run := exec.run
	now := r.now()

	run.Context = exec.context.snapshot()
	run.Steps = append(run.Steps, exec.steps...)
	run.UpdatedAt = now

	switch {
	case walkErr != nil:
		if err := transition(run, triggerFail); err != nil {
			return err
		}

		run.Error = walkErr.Error()
		if errors.Is(walkErr, ErrRunCancelled) {
			run.Error = CancelledMessage
		}

		run.SetSuspensions(nil)
		run.CompletedAt = &now

		exec.logger.Warn("Run failed", "error", run.Error)
	case len(exec.suspensions) > 0:
		if err := transition(run, triggerSuspend); err != nil {
			return err
		}

		run.SetSuspensions(exec.suspensions)

		exec.logger.Info("Run waiting", "current_node_id", run.CurrentNodeID, "resume_at", run.ScheduledResumeAt)
	default:
		if err := transition(run, triggerComplete); err != nil {
			return err
		}

		run.SetSuspensions(nil)
		run.CompletedAt = &now

		exec.logger.Info("Run completed", "steps", len(run.Steps))
	}

	return nil
}

// keepLease renews the lease on a run every third of the lease until the returned stop
// func is called. Losing the claim cancels ctx with errLeaseLost.
func (r *Runner) keepLease(ctx context.Context, cancel context.CancelCauseFunc, logger *slog.Logger, runID, token string) func() {
	interval := max(r.lease/3, time.Millisecond)
	done := make(chan struct{})

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := r.runs.RenewLease(ctx, runID, token, r.now().Add(r.lease))
				if persistence.IsRunAlreadyClaimed(err) || persistence.IsRunNotFound(err) {
					cancel(errLeaseLost)

					return
				}

				if err != nil {
					logger.ErrorContext(ctx, "Failed to renew run lease", "error", err)
				}
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

func (r *Runner) track(runID string, cancel context.CancelCauseFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.inFlight[runID] = cancel
}

func (r *Runner) untrack(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.inFlight, runID)
}

func (r *Runner) notify(ctx context.Context, eventType events.EventType, run *models.WorkflowRun) {
	if r.observer == nil {
		return
	}

	r.observer.Notify(ctx, events.NewRunLifecycle(eventType, run))
}

func lifecycleEvent(status models.RunStatus) events.EventType {
	switch status {
	case models.RunStatusWaiting:
		return events.RunWaitingEvent
	case models.RunStatusCompleted:
		return events.RunCompletedEvent
	case models.RunStatusFailed:
		return events.RunFailedEvent
	default:
		return events.RunStartedEvent
	}
}
