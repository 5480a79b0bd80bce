package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/fanflow/pkg/engine"
	"github.com/dukex/fanflow/pkg/models"
	"github.com/dukex/fanflow/pkg/persistence"
	"github.com/dukex/fanflow/pkg/router"
)

// EventFirer starts the runs a domain event triggers.
type EventFirer interface {
	FireWorkflowEvent(ctx context.Context, event models.Event) ([]string, error)
}

// RunCanceller stops a run by id.
type RunCanceller interface {
	CancelRun(ctx context.Context, runID string) error
}

// Runs fires events and exposes the runs they produce.
type Runs struct {
	runs      persistence.RunRepository
	firer     EventFirer
	canceller RunCanceller
	logger    *slog.Logger
}

func NewRuns(runs persistence.RunRepository, firer EventFirer, canceller RunCanceller, logger *slog.Logger) *Runs {
	return &Runs{
		runs:      runs,
		firer:     firer,
		canceller: canceller,
		logger:    logger.With("module", "run_service"),
	}
}

// FireWorkflowEvent routes event to the active workflows of its owner and returns the
// ids of the runs it started.
func (r *Runs) FireWorkflowEvent(ctx context.Context, event models.Event) ([]string, error) {
	runIDs, err := r.firer.FireWorkflowEvent(ctx, event)
	if err != nil {
		if errors.Is(err, router.ErrInvalidEvent) {
			return nil, NewValidationError("FireWorkflowEvent", "INVALID_EVENT", err.Error(), ErrInvalidEvent)
		}

		return nil, fmt.Errorf("failed to fire event: %w", err)
	}

	return runIDs, nil
}

// GetRunStatus returns the current state of a run.
func (r *Runs) GetRunStatus(ctx context.Context, runID string) (*models.WorkflowRun, error) {
	return r.runs.GetByID(ctx, runID)
}

// ListByWorkflow returns the runs of a workflow, newest first.
func (r *Runs) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowRun, error) {
	return r.runs.ListByWorkflow(ctx, workflowID)
}

// CancelRun stops a running or waiting run and returns its final state.
func (r *Runs) CancelRun(ctx context.Context, runID string) (*models.WorkflowRun, error) {
	err := r.canceller.CancelRun(ctx, runID)
	if err != nil {
		if errors.Is(err, engine.ErrInvalidTransition) || persistence.IsRunAlreadyClaimed(err) {
			return nil, &ServiceError{
				Op:      "CancelRun",
				Code:    "NOT_CANCELLABLE",
				Message: err.Error(),
				Err:     ErrRunNotCancellable,
			}
		}

		return nil, err
	}

	r.logger.InfoContext(ctx, "Run cancellation requested", "run_id", runID)

	return r.runs.GetByID(ctx, runID)
}
