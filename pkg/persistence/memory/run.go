package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dukex/fanflow/pkg/models"
	"github.com/dukex/fanflow/pkg/persistence"
	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
)

// RunRepository handles workflow run storage in memory.
type RunRepository struct {
	db *memdb.MemDB
}

func (r *RunRepository) Save(_ context.Context, run *models.WorkflowRun) error {
	now := time.Now().UTC()

	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}

	run.UpdatedAt = now

	stored, err := clone(run)
	if err != nil {
		return persistence.NewRunError("Save", run.ID, err)
	}

	txn := r.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(tableRuns, stored); err != nil {
		return persistence.NewRunError("Save", run.ID, err)
	}

	txn.Commit()

	return nil
}

func (r *RunRepository) GetByID(_ context.Context, id string) (*models.WorkflowRun, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tableRuns, indexID, id)
	if err != nil {
		return nil, persistence.NewRunError("GetByID", id, err)
	}

	if raw == nil {
		return nil, persistence.NewRunError("GetByID", id, persistence.ErrRunNotFound)
	}

	return clone(raw.(*models.WorkflowRun))
}

func (r *RunRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*models.WorkflowRun, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableRuns, indexWorkflow, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs of workflow %s: %w", workflowID, err)
	}

	runs, err := collect[models.WorkflowRun](it, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to copy runs: %w", err)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	return runs, nil
}

func (r *RunRepository) DueRuns(_ context.Context, now time.Time, limit int) ([]*models.WorkflowRun, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()

	var runs []*models.WorkflowRun

	// running runs show up here once their runner stopped renewing the lease
	for _, status := range []models.RunStatus{models.RunStatusWaiting, models.RunStatusRunning} {
		it, err := txn.Get(tableRuns, indexStatus, string(status))
		if err != nil {
			return nil, fmt.Errorf("failed to query %s runs: %w", status, err)
		}

		due, err := collect(it, func(run *models.WorkflowRun) bool {
			return run.IsDue(now)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to copy runs: %w", err)
		}

		runs = append(runs, due...)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].ScheduledResumeAt.Before(*runs[j].ScheduledResumeAt)
	})

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	return runs, nil
}

// ClaimRun compares and sets the run status inside one write transaction; memdb
// serialises writers, so only one claimer can observe status from.
func (r *RunRepository) ClaimRun(_ context.Context, id string, from, to models.RunStatus) (*models.WorkflowRun, error) {
	return r.update("ClaimRun", id, func(run *models.WorkflowRun) error {
		if run.Status != from {
			return persistence.ErrRunAlreadyClaimed
		}

		run.Status = to

		return nil
	})
}

func (r *RunRepository) ClaimDue(_ context.Context, id, token string, now, leaseUntil time.Time) (*models.WorkflowRun, error) {
	return r.update("ClaimDue", id, func(run *models.WorkflowRun) error {
		if !run.IsDue(now) {
			return persistence.ErrRunAlreadyClaimed
		}

		run.Status = models.RunStatusRunning
		run.ClaimToken = token
		run.LeaseUntil = &leaseUntil

		return nil
	})
}

func (r *RunRepository) RenewLease(_ context.Context, id, token string, leaseUntil time.Time) error {
	_, err := r.update("RenewLease", id, func(run *models.WorkflowRun) error {
		if run.Status != models.RunStatusRunning || run.ClaimToken != token {
			return persistence.ErrRunAlreadyClaimed
		}

		run.LeaseUntil = &leaseUntil

		return nil
	})

	return err
}

func (r *RunRepository) SaveClaimed(_ context.Context, run *models.WorkflowRun, token string) error {
	saved, err := r.update("SaveClaimed", run.ID, func(stored *models.WorkflowRun) error {
		if stored.Status != models.RunStatusRunning || stored.ClaimToken != token {
			return persistence.ErrRunAlreadyClaimed
		}

		replacement, err := clone(run)
		if err != nil {
			return err
		}

		*stored = *replacement

		return nil
	})
	if err != nil {
		return err
	}

	run.UpdatedAt = saved.UpdatedAt

	return nil
}

// update applies change to a copy of the stored run inside one write transaction and
// stores the result unless change fails.
func (r *RunRepository) update(op, id string, change func(*models.WorkflowRun) error) (*models.WorkflowRun, error) {
	txn := r.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tableRuns, indexID, id)
	if err != nil {
		return nil, persistence.NewRunError(op, id, err)
	}

	if raw == nil {
		return nil, persistence.NewRunError(op, id, persistence.ErrRunNotFound)
	}

	updated, err := clone(raw.(*models.WorkflowRun))
	if err != nil {
		return nil, persistence.NewRunError(op, id, err)
	}

	if err := change(updated); err != nil {
		return nil, persistence.NewRunError(op, id, err)
	}

	updated.UpdatedAt = time.Now().UTC()

	if err := txn.Insert(tableRuns, updated); err != nil {
		return nil, persistence.NewRunError(op, id, err)
	}

	txn.Commit()

	return clone(updated)
}
