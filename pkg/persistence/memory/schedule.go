package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/fanflow/pkg/models"
	"github.com/hashicorp/go-memdb"
)

// ScheduleRepository handles schedule storage in memory.
type ScheduleRepository struct {
	db *memdb.MemDB
}

func (r *ScheduleRepository) Save(_ context.Context, schedule *models.Schedule) error {
	if err := schedule.Validate(); err != nil {
		return err
	}

	stored, err := clone(schedule)
	if err != nil {
		return fmt.Errorf("failed to copy schedule %s: %w", schedule.ID, err)
	}

	txn := r.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(tableSchedules, stored); err != nil {
		return fmt.Errorf("failed to save schedule %s: %w", schedule.ID, err)
	}

	txn.Commit()

	return nil
}

func (r *ScheduleRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*models.Schedule, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableSchedules, indexWorkflow, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules of workflow %s: %w", workflowID, err)
	}

	return collect[models.Schedule](it, nil)
}

func (r *ScheduleRepository) Due(_ context.Context, now time.Time) ([]*models.Schedule, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableSchedules, indexID)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}

	return collect(it, func(schedule *models.Schedule) bool {
		return schedule.IsDue(now)
	})
}

func (r *ScheduleRepository) DeleteByWorkflow(_ context.Context, workflowID string) error {
	txn := r.db.Txn(true)
	defer txn.Abort()

	if _, err := txn.DeleteAll(tableSchedules, indexWorkflow, workflowID); err != nil {
		return fmt.Errorf("failed to delete schedules of workflow %s: %w", workflowID, err)
	}

	txn.Commit()

	return nil
}
