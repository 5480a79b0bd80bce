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

// WorkflowRepository handles workflow-related file operations.
type WorkflowRepository struct {
	store *store
}

// GetAll returns every stored workflow, newest first.
func (wr *WorkflowRepository) GetAll(_ context.Context) ([]*models.Workflow, error) {
	workflows, err := all[models.Workflow](wr.store, dirWorkflows, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflows: %w", err)
	}

	sortWorkflows(workflows)

	return workflows, nil
}

func (wr *WorkflowRepository) ListByOwner(_ context.Context, ownerID string, status models.WorkflowStatus) ([]*models.Workflow, error) {
	workflows, err := all(wr.store, dirWorkflows, func(w *models.Workflow) bool {
		return w.OwnerID == ownerID && (status == "" || w.Status == status)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load workflows of owner %s: %w", ownerID, err)
	}

	sortWorkflows(workflows)

	return workflows, nil
}

// GetByID retrieves a workflow by its ID from the file system.
func (wr *WorkflowRepository) GetByID(_ context.Context, workflowID string) (*models.Workflow, error) {
	var workflow models.Workflow

	found, err := wr.store.read(dirWorkflows, workflowID, &workflow)
	if err != nil {
		return nil, persistence.NewWorkflowError("GetByID", workflowID, err)
	}

	if !found {
		return nil, persistence.NewWorkflowError("GetByID", workflowID, persistence.ErrWorkflowNotFound)
	}

	return &workflow, nil
}

// Save saves a workflow to the file system.
func (wr *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()

	if workflow.ID == "" {
		workflow.ID = uuid.NewString()
	}

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	if err := wr.store.write(dirWorkflows, workflow.ID, workflow); err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

// Delete removes a workflow by its ID. Deleting a missing workflow is not an error.
func (wr *WorkflowRepository) Delete(_ context.Context, id string) error {
	if err := wr.store.remove(dirWorkflows, id); err != nil {
		return persistence.NewWorkflowError("Delete", id, err)
	}

	return nil
}

func sortWorkflows(workflows []*models.Workflow) {
	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})
}
