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

// WorkflowRepository handles workflow storage in memory.
type WorkflowRepository struct {
	db *memdb.MemDB
}

func (r *WorkflowRepository) GetAll(_ context.Context) ([]*models.Workflow, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableWorkflows, indexID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	workflows, err := collect[models.Workflow](it, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to copy workflows: %w", err)
	}

	sortNewestFirst(workflows)

	return workflows, nil
}

func (r *WorkflowRepository) ListByOwner(_ context.Context, ownerID string, status models.WorkflowStatus) ([]*models.Workflow, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(tableWorkflows, indexOwner, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows of owner %s: %w", ownerID, err)
	}

	workflows, err := collect(it, func(w *models.Workflow) bool {
		return status == "" || w.Status == status
	})
	if err != nil {
		return nil, fmt.Errorf("failed to copy workflows: %w", err)
	}

	sortNewestFirst(workflows)

	return workflows, nil
}

func (r *WorkflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	txn := r.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tableWorkflows, indexID, id)
	if err != nil {
		return nil, persistence.NewWorkflowError("GetByID", id, err)
	}

	if raw == nil {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	return clone(raw.(*models.Workflow))
}

func (r *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.ID == "" {
		workflow.ID = uuid.NewString()
	}

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	stored, err := clone(workflow)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	txn := r.db.Txn(true)
	defer txn.Abort()

	if err := txn.Insert(tableWorkflows, stored); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	txn.Commit()

	return nil
}

func (r *WorkflowRepository) Delete(_ context.Context, id string) error {
	txn := r.db.Txn(true)
	defer txn.Abort()

	if _, err := txn.DeleteAll(tableWorkflows, indexID, id); err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	txn.Commit()

	return nil
}

func sortNewestFirst(workflows []*models.Workflow) {
	sort.SliceStable(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})
}
