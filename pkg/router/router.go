// Package router turns domain events into workflow runs.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/fanflow/pkg/models"
	"github.com/dukex/fanflow/pkg/persistence"
	"github.com/dukex/fanflow/pkg/template"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// WorkflowIDKey in event data restricts routing to a single workflow. Schedule and
// manual events carry it.
const WorkflowIDKey = "workflowId"

var ErrInvalidEvent = errors.New("invalid event")

// TriggerMatcher decides whether an event satisfies a trigger node.
type TriggerMatcher interface {
	Match(node *models.Node, event models.Event) bool
}

// RunStarter traverses a newly created run.
type RunStarter interface {
	Start(ctx context.Context, workflow *models.Workflow, run *models.WorkflowRun) error
}

type Router struct {
	logger    *slog.Logger
	workflows persistence.WorkflowRepository
	runs      persistence.RunRepository
	matcher   TriggerMatcher
	runner    RunStarter
	validate  *validator.Validate
	now       func() time.Time
	wg        sync.WaitGroup
}

func NewRouter(
	workflows persistence.WorkflowRepository,
	runs persistence.RunRepository,
	matcher TriggerMatcher,
	runner RunStarter,
	logger *slog.Logger,
) *Router {
	return &Router{
		logger:    logger.With("module", "event_router"),
		workflows: workflows,
		runs:      runs,
		matcher:   matcher,
		runner:    runner,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// FireWorkflowEvent creates one run per trigger node of an active workflow of
// event.OccurredFor that matches the event, and starts each run in the background. It
// returns the created run ids. Only an invalid event or a failure listing workflows is
// returned as an error; everything after that is logged or recorded on the run.
func (r *Router) FireWorkflowEvent(ctx context.Context, event models.Event) ([]string, error) {
	if err := r.validate.Struct(event); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	logger := r.logger.With("event_type", event.EventType, "owner_id", event.OccurredFor)

	workflows, err := r.workflows.ListByOwner(ctx, event.OccurredFor, models.WorkflowStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	target := targetWorkflow(event)
	runIDs := make([]string, 0)

	for _, workflow := range workflows {
		if target != "" && workflow.ID != target {
			continue
		}

		for _, trigger := range workflow.TriggerNodes() {
			if !r.matcher.Match(trigger, event) {
				continue
			}

			run := r.newRun(workflow, trigger, event)

			if err := r.runs.Save(ctx, run); err != nil {
				logger.ErrorContext(ctx, "Failed to create run",
					"workflow_id", workflow.ID, "trigger_node_id", trigger.ID, "error", err)

				continue
			}

			logger.InfoContext(ctx, "Run created",
				"workflow_id", workflow.ID, "run_id", run.ID, "trigger_node_id", trigger.ID)

			runIDs = append(runIDs, run.ID)
			r.start(ctx, workflow, run)
		}
	}

	if len(runIDs) == 0 {
		logger.DebugContext(ctx, "No workflow matched event", "active_workflows", len(workflows))
	}

	return runIDs, nil
}

// Wait blocks until every run started by the router has returned.
func (r *Router) Wait() {
	r.wg.Wait()
}

// start hands the run to the runner. The run outlives the request that fired the event.
func (r *Router) start(ctx context.Context, workflow *models.Workflow, run *models.WorkflowRun) {
	runCtx := context.WithoutCancel(ctx)

	r.wg.Add(1)

	go func() {
		defer r.wg.Done()

		if err := r.runner.Start(runCtx, workflow, run); err != nil {
			r.logger.ErrorContext(runCtx, "Run failed to start",
				"workflow_id", workflow.ID, "run_id", run.ID, "error", err)
		}
	}()
}

func (r *Router) newRun(workflow *models.Workflow, trigger *models.Node, event models.Event) *models.WorkflowRun {
	now := r.now()

	return &models.WorkflowRun{
		ID:              uuid.NewString(),
		WorkflowID:      workflow.ID,
		OwnerID:         workflow.OwnerID,
		TriggerNodeID:   trigger.ID,
		TriggeringEvent: event,
		Context:         models.NewRunContext(event),
		Status:          models.RunStatusRunning,
		CurrentNodeID:   trigger.ID,
		ClaimToken:      uuid.NewString(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func targetWorkflow(event models.Event) string {
	value, ok := event.Data[WorkflowIDKey]
	if !ok || value == nil {
		return ""
	}

	return template.String(value)
}
