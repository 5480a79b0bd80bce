// Package persistence provides the data storage abstraction for workflows, runs and schedules.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/fanflow/pkg/models"
)

// Persistence groups the repositories of one storage backend.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	RunRepository() RunRepository
	ScheduleRepository() ScheduleRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow definitions. GetByID returns an error matching
// ErrWorkflowNotFound for unknown or deleted workflows.
type WorkflowRepository interface {
	GetAll(ctx context.Context) ([]*models.Workflow, error)
	// ListByOwner returns the owner's workflows, restricted to status unless it is empty.
	ListByOwner(ctx context.Context, ownerID string, status models.WorkflowStatus) ([]*models.Workflow, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
}

// RunRepository stores workflow runs. Runs outlive the workflow that started them.
type RunRepository interface {
	Save(ctx context.Context, run *models.WorkflowRun) error
	GetByID(ctx context.Context, id string) (*models.WorkflowRun, error)
	// ListByWorkflow returns the runs of a workflow, newest first.
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowRun, error)
	// DueRuns returns the runs for which WorkflowRun.IsDue(now) holds, oldest due first.
	DueRuns(ctx context.Context, now time.Time, limit int) ([]*models.WorkflowRun, error)
	// ClaimRun moves a run from status from to status to, failing with
	// ErrRunAlreadyClaimed when the stored status is not from.
	ClaimRun(ctx context.Context, id string, from, to models.RunStatus) (*models.WorkflowRun, error)
	// ClaimDue moves a run that is due at now to running, held by token until leaseUntil.
	// It fails with ErrRunAlreadyClaimed when the stored run is not due.
	ClaimDue(ctx context.Context, id, token string, now, leaseUntil time.Time) (*models.WorkflowRun, error)
	// RenewLease extends the lease of a running run still held by token.
	RenewLease(ctx context.Context, id, token string, leaseUntil time.Time) error
	// SaveClaimed saves run only while the stored run is running and held by token. It
	// fails with ErrRunAlreadyClaimed when the run was cancelled or claimed by another
	// runner in the meantime.
	SaveClaimed(ctx context.Context, run *models.WorkflowRun, token string) error
}

// ScheduleRepository stores the cron schedules of active "schedule" trigger nodes.
type ScheduleRepository interface {
	Save(ctx context.Context, schedule *models.Schedule) error
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Schedule, error)
	// Due returns the active schedules whose NextDueAt is not after now.
	Due(ctx context.Context, now time.Time) ([]*models.Schedule, error)
	DeleteByWorkflow(ctx context.Context, workflowID string) error
}
