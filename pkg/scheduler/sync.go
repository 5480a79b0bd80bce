package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/fanflow/pkg/models"
	"github.com/dukex/fanflow/pkg/persistence"
)

// SyncWorkflow replaces the schedules of a workflow with one per schedule trigger node
// when the workflow is active, and with none otherwise. Schedule ids are derived from the
// workflow and node, so syncing twice yields the same rows.
func SyncWorkflow(ctx context.Context, schedules persistence.ScheduleRepository, workflow *models.Workflow, now time.Time) ([]*models.Schedule, error) {
	if err := schedules.DeleteByWorkflow(ctx, workflow.ID); err != nil {
		return nil, fmt.Errorf("failed to clear schedules: %w", err)
	}

	if !workflow.IsActive() {
		return nil, nil
	}

	var created []*models.Schedule

	for _, node := range workflow.TriggerNodes() {
		if node.Subtype != models.SubtypeSchedule {
			continue
		}

		schedule, err := models.NewSchedule(
			workflow.ID+":"+node.ID, workflow.ID, node.ID, workflow.OwnerID, node.ConfigValue("cron"), now,
		)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", node.ID, err)
		}

		if err := schedules.Save(ctx, schedule); err != nil {
			return nil, fmt.Errorf("failed to save schedule: %w", err)
		}

		created = append(created, schedule)
	}

	return created, nil
}
