package file

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dukex/fanflow/pkg/models"
	"github.com/dukex/fanflow/pkg/persistence"
	"github.com/google/uuid"
)

// RunRepository handles workflow run file operations.
type RunRepository struct {
	store *store
}

func (rr *RunRepository) Save(_ context.Context, run *models.WorkflowRun) error {
	now := time.Now().UTC()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}

	run.UpdatedAt = now

	rr.store.mu.Lock()
	defer rr.store.mu.Unlock()

	if err := rr.store.write(dirRuns, run.ID, run); err != nil {
		return persistence.NewRunError("Save", run.ID, err)
	}

	return nil
}

func (rr *RunRepository) GetByID(_ context.Context, id string) (*models.WorkflowRun, error) {
	var run models.WorkflowRun

	found, err := rr.store.read(dirRuns, id, &run)
	if err != nil {
		return nil, persistence.NewRunError("GetByID", id, err)
	}

	if !found {
		return nil, persistence.NewRunError("GetByID", id, persistence.ErrRunNotFound)
	}

	return &run, nil
}

func (rr *RunRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*models.WorkflowRun, error) {
	runs, err := all(rr.store, dirRuns, func(run *models.WorkflowRun) bool {
		return run.WorkflowID == workflowID
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load runs of workflow %s: %w", workflowID, err)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	return runs, nil
}

func (rr *RunRepository) DueRuns(_ context.Context, now time.Time, limit int) ([]*models.WorkflowRun, error) {
	runs, err := all(rr.store, dirRuns, func(run *models.WorkflowRun) bool {
		return run.IsDue(now)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load due runs: %w", err)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].ScheduledResumeAt.Before(*runs[j].ScheduledResumeAt)
	})

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	return runs, nil
}

func (rr *RunRepository) ClaimRun(_ context.Context, id string, from, to models.RunStatus) (*models.WorkflowRun, error) {
	rr.store.mu.Lock()
	defer rr.store.mu.Unlock()

	run, err := rr.load("ClaimRun", id)
	if err != nil {
		return nil, err
	}

	if run.Status != from {
		return nil, persistence.NewRunError("ClaimRun", id, persistence.ErrRunAlreadyClaimed)
	}

	run.Status = to
	run.UpdatedAt = time.Now().UTC()

	if err := rr.store.write(dirRuns, id, run); err != nil {
		return nil, persistence.NewRunError("ClaimRun", id, err)
	}

	return run, nil
}

func (rr *RunRepository) ClaimDue(_ context.Context, id, token string, now, leaseUntil time.Time) (*models.WorkflowRun, error) {
	rr.store.mu.Lock()
	defer rr.store.mu.Unlock()

	run, err := rr.load("ClaimDue", id)
	if err != nil {
		return nil, err
	}

	if !run.IsDue(now) {
		return nil, persistence.NewRunError("ClaimDue", id, persistence.ErrRunAlreadyClaimed)
	}

	run.Status = models.RunStatusRunning
	run.ClaimToken = token
	run.LeaseUntil = &leaseUntil
	run.UpdatedAt = time.Now().UTC()

	if err := rr.store.write(dirRuns, id, run); err != nil {
		return nil, persistence.NewRunError("ClaimDue", id, err)
	}

	return run, nil
}

func (rr *RunRepository) RenewLease(_ context.Context, id, token string, leaseUntil time.Time) error {
	rr.store.mu.Lock()
	defer rr.store.mu.Unlock()

	run, err := rr.load("RenewLease", id)
	if err != nil {
		return err
	}

	if !heldBy(run, token) {
		return persistence.NewRunError("RenewLease", id, persistence.ErrRunAlreadyClaimed)
	}

	run.LeaseUntil = &leaseUntil

	if err := rr.store.write(dirRuns, id, run); err != nil {
		return persistence.NewRunError("RenewLease", id, err)
	}

	return nil
}

func (rr *RunRepository) SaveClaimed(_ context.Context, run *models.WorkflowRun, token string) error {
	rr.store.mu.Lock()
	defer rr.store.mu.Unlock()

	stored, err := rr.load("SaveClaimed", run.ID)
	if err != nil {
		return err
	}

	if !heldBy(stored, token) {
		return persistence.NewRunError("SaveClaimed", run.ID, persistence.ErrRunAlreadyClaimed)
	}

	run.UpdatedAt = time.Now().UTC()

	if err := rr.store.write(dirRuns, run.ID, run); err != nil {
		return persistence.NewRunError("SaveClaimed", run.ID, err)
	}

	return nil
}

// load reads a run for a read-modify-write; the caller holds the store mutex.
func (rr *RunRepository) load(op, id string) (*models.WorkflowRun, error) {
	var run models.WorkflowRun

	found, err := rr.store.read(dirRuns, id, &run)
	if err != nil {
		return nil, persistence.NewRunError(op, id, err)
	}

	if !found {
		return nil, persistence.NewRunError(op, id, persistence.ErrRunNotFound)
	}

	return &run, nil
}

func heldBy(run *models.WorkflowRun, token string) bool {
	return run.Status == models.RunStatusRunning && run.ClaimToken == token
}
