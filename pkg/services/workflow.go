package services

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dukex/fanflow/pkg/models"
	"github.com/dukex/fanflow/pkg/persistence"
	"github.com/dukex/fanflow/pkg/scheduler"
	"github.com/dukex/fanflow/pkg/validation"
	"github.com/google/uuid"
)

var (
	// ErrWorkflowNotFound is returned when a workflow is not found.
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
)

type Workflow struct {
	persistence persistence.Persistence
	validator   *validation.Validator
	logger      *slog.Logger
	now         func() time.Time
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence, validator *validation.Validator, logger *slog.Logger) *Workflow {
	return &Workflow{
		persistence: persistence,
		validator:   validator,
		logger:      logger.With("module", "workflow_service"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflowsRequest contains options for listing workflows.
type ListWorkflowsRequest struct {
	// Pagination
	Limit  int `validate:"min=1,max=100"`
	Offset int `validate:"min=0"`

	// Filtering
	OwnerID string
	Status  *models.WorkflowStatus

	// Sorting
	SortBy    string `validate:"oneof=created_at updated_at name"`
	SortOrder string `validate:"oneof=asc desc"`
}

// ListWorkflowsResponse contains the result of listing workflows.
type ListWorkflowsResponse struct {
	Workflows   []*models.Workflow `json:"workflows"`
	TotalCount  int64              `json:"total_count"`
	HasNextPage bool               `json:"has_next_page"`
}

// ListWorkflows retrieves workflows with filtering, sorting, and pagination.
func (w *Workflow) ListWorkflows(ctx context.Context, req ListWorkflowsRequest) (*ListWorkflowsResponse, error) {
	if err := w.validateListWorkflowsRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	var status models.WorkflowStatus
	if req.Status != nil {
		status = *req.Status
	}

	var (
		workflows []*models.Workflow
		err       error
	)

	if req.OwnerID != "" {
		workflows, err = w.persistence.WorkflowRepository().ListByOwner(ctx, req.OwnerID, status)
	} else {
		workflows, err = w.persistence.WorkflowRepository().GetAll(ctx)
		workflows = slices.DeleteFunc(workflows, func(workflow *models.Workflow) bool {
			return status != "" && workflow.Status != status
		})
	}

	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	sortWorkflows(workflows, req.SortBy, req.SortOrder)

	total := len(workflows)
	start := min(req.Offset, total)
	end := min(start+req.Limit, total)

	return &ListWorkflowsResponse{
		Workflows:   workflows[start:end],
		TotalCount:  int64(total),
		HasNextPage: end < total,
	}, nil
}

func sortWorkflows(workflows []*models.Workflow, sortBy, sortOrder string) {
	slices.SortStableFunc(workflows, func(a, b *models.Workflow) int {
		var order int

		switch sortBy {
		case "name":
			order = cmp.Compare(a.Name, b.Name)
		case "updated_at":
			order = a.UpdatedAt.Compare(b.UpdatedAt)
		default:
			order = a.CreatedAt.Compare(b.CreatedAt)
		}

		if sortOrder == "desc" {
			return -order
		}

		return order
	})
}

// validateListWorkflowsRequest validates and sets defaults for the request.
func (w *Workflow) validateListWorkflowsRequest(req *ListWorkflowsRequest) error {
	// Set defaults
	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.SortBy == "" {
		req.SortBy = "created_at"
	}

	if req.SortOrder == "" {
		req.SortOrder = "desc"
	}

	// Validate sort parameters against allowlist
	allowedSorts := []string{"created_at", "updated_at", "name"}

	if !slices.Contains(allowedSorts, req.SortBy) {
		return NewValidationError(
			"validateListWorkflowsRequest",
			"INVALID_SORT_FIELD",
			fmt.Sprintf("invalid sort field '%s', allowed: %s", req.SortBy, strings.Join(allowedSorts, ", ")),
			ErrInvalidSortField,
		)
	}

	if req.SortOrder != "asc" && req.SortOrder != "desc" {
		return NewValidationError(
			"validateListWorkflowsRequest",
			"INVALID_SORT_ORDER",
			fmt.Sprintf("invalid sort order '%s', allowed: asc, desc", req.SortOrder),
			ErrInvalidSortOrder,
		)
	}

	if req.Status != nil && !req.Status.IsValid() {
		return NewValidationError(
			"validateListWorkflowsRequest",
			"INVALID_STATUS",
			fmt.Sprintf("invalid status '%s'", *req.Status),
			ErrInvalidStatus,
		)
	}

	if req.OwnerID != "" {
		req.OwnerID = strings.TrimSpace(req.OwnerID)
		if req.OwnerID == "" {
			return ErrEmptyOwnerID
		}
	}

	return nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	return w.persistence.WorkflowRepository().GetByID(ctx, id)
}

// Validate lists every issue of a workflow graph. An empty list means it can be activated.
func (w *Workflow) Validate(nodes []*models.Node, edges []*models.Edge) []string {
	return w.validator.Validate(nodes, edges)
}

// Create adds a new draft workflow. Workflows become active only through Activate.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	if strings.TrimSpace(workflow.OwnerID) == "" {
		return nil, ErrEmptyOwnerID
	}

	if workflow.Status != "" && workflow.Status != models.WorkflowStatusDraft {
		return nil, NewValidationError("Create", "INVALID_STATUS",
			fmt.Sprintf("new workflows are drafts, got '%s'", workflow.Status), ErrInvalidStatus)
	}

	now := w.now()
	workflow.ID = uuid.New().String()
	workflow.Status = models.WorkflowStatusDraft
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Workflow created", "workflow_id", workflow.ID, "owner_id", workflow.OwnerID)

	return workflow, nil
}

// Update replaces the name and graph of a workflow. Status is kept; an active workflow
// must stay valid, and its schedules follow the new graph.
func (w *Workflow) Update(
	ctx context.Context,
	workflowID string,
	workflow *models.Workflow,
) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	existing, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if existing.Status == models.WorkflowStatusArchived {
		return nil, &ServiceError{Op: "Update", Code: "ARCHIVED", Err: ErrCannotModifyArchived}
	}

	workflow.ID = workflowID
	workflow.OwnerID = existing.OwnerID
	workflow.Status = existing.Status
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = w.now()

	if workflow.IsActive() {
		if issues := w.validator.ValidateWorkflow(workflow); len(issues) > 0 {
			return nil, NewInvalidWorkflowError("Update", issues)
		}
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	if err := w.syncSchedules(ctx, workflow); err != nil {
		return nil, err
	}

	return workflow, nil
}

// Delete removes a workflow and its schedules. Its runs are kept.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	if _, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID); err != nil {
		return err
	}

	if err := w.persistence.ScheduleRepository().DeleteByWorkflow(ctx, workflowID); err != nil {
		return fmt.Errorf("failed to delete schedules: %w", err)
	}

	if err := w.persistence.WorkflowRepository().Delete(ctx, workflowID); err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Workflow deleted", "workflow_id", workflowID)

	return nil
}

// Activate validates a workflow and, when it has no issues, makes matching events start
// runs of it.
func (w *Workflow) Activate(ctx context.Context, workflowID string) (*models.Workflow, error) {
	return w.transition(ctx, "Activate", workflowID, models.WorkflowStatusActive, func(workflow *models.Workflow) error {
		if issues := w.validator.ValidateWorkflow(workflow); len(issues) > 0 {
			return NewInvalidWorkflowError("Activate", issues)
		}

		return nil
	})
}

// Pause stops new runs of an active workflow. Runs in flight finish.
func (w *Workflow) Pause(ctx context.Context, workflowID string) (*models.Workflow, error) {
	return w.transition(ctx, "Pause", workflowID, models.WorkflowStatusPaused, func(workflow *models.Workflow) error {
		if workflow.Status != models.WorkflowStatusActive && workflow.Status != models.WorkflowStatusPaused {
			return &ServiceError{
				Op:      "Pause",
				Code:    "INVALID_TRANSITION",
				Message: fmt.Sprintf("cannot pause a %s workflow", workflow.Status),
				Err:     ErrInvalidStatusTransition,
			}
		}

		return nil
	})
}

// Archive retires a workflow for good. Its run history stays readable.
func (w *Workflow) Archive(ctx context.Context, workflowID string) (*models.Workflow, error) {
	return w.transition(ctx, "Archive", workflowID, models.WorkflowStatusArchived, nil)
}

func (w *Workflow) transition(
	ctx context.Context,
	op, workflowID string,
	to models.WorkflowStatus,
	check func(workflow *models.Workflow) error,
) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Status == to {
		return workflow, nil
	}

	if workflow.Status == models.WorkflowStatusArchived {
		return nil, &ServiceError{Op: op, Code: "ARCHIVED", Err: ErrCannotModifyArchived}
	}

	if check != nil {
		if err := check(workflow); err != nil {
			return nil, err
		}
	}

	from := workflow.Status
	workflow.Status = to
	workflow.UpdatedAt = w.now()

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	if err := w.syncSchedules(ctx, workflow); err != nil {
		return nil, err
	}

	w.logger.InfoContext(ctx, "Workflow status changed", "workflow_id", workflow.ID, "from", from, "to", to)

	return workflow, nil
}

func (w *Workflow) syncSchedules(ctx context.Context, workflow *models.Workflow) error {
	schedules, err := scheduler.SyncWorkflow(ctx, w.persistence.ScheduleRepository(), workflow, w.now())
	if err != nil {
		return fmt.Errorf("failed to sync schedules: %w", err)
	}

	if len(schedules) > 0 {
		w.logger.InfoContext(ctx, "Schedules synced", "workflow_id", workflow.ID, "count", len(schedules))
	}

	return nil
}
