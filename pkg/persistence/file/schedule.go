package file

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/fanflow/pkg/models"
)

// ScheduleRepository handles schedule file operations.
type ScheduleRepository struct {
	store *store
}

func (sr *ScheduleRepository) Save(_ context.Context, schedule *models.Schedule) error {
	if err := schedule.Validate(); err != nil {
		return err
	}

	return sr.store.write(dirSchedules, schedule.ID, schedule)
}

func (sr *ScheduleRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*models.Schedule, error) {
	return all(sr.store, dirSchedules, func(schedule *models.Schedule) bool {
		return schedule.WorkflowID == workflowID
	})
}

func (sr *ScheduleRepository) Due(_ context.Context, now time.Time) ([]*models.Schedule, error) {
	return all(sr.store, dirSchedules, func(schedule *models.Schedule) bool {
		return schedule.IsDue(now)
	})
}

func (sr *ScheduleRepository) DeleteByWorkflow(ctx context.Context, workflowID string) error {
	schedules, err := sr.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return err
	}

	for _, schedule := range schedules {
		if err := sr.store.remove(dirSchedules, schedule.ID); err != nil {
			return fmt.Errorf("failed to delete schedule of workflow %s: %w", workflowID, err)
		}
	}

	return nil
}
