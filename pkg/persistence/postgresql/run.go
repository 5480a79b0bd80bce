package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/fanflow/pkg/models"
	"github.com/dukex/fanflow/pkg/persistence"
	"github.com/google/uuid"
)

const runColumns = `
			id
		  , workflow_id
		  , owner_id
		  , trigger_node_id
		  , status
		  , current_node_id
		  , scheduled_resume_at
		  , triggering_event
		  , context
		  , suspensions
		  , steps
		  , error_message
		  , created_at
		  , updated_at
		  , completed_at
		  , claim_token
		  , lease_until
`

// RunRepository handles workflow run database operations.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

func (r *RunRepository) Save(ctx context.Context, run *models.WorkflowRun) error {
	now := time.Now().UTC()

	if run.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate run ID: %w", err)
		}

		run.ID = id.String()
	}

	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}

	run.UpdatedAt = now

	query := `
		INSERT INTO workflow_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			current_node_id = EXCLUDED.current_node_id,
			scheduled_resume_at = EXCLUDED.scheduled_resume_at,
			context = EXCLUDED.context,
			suspensions = EXCLUDED.suspensions,
			steps = EXCLUDED.steps,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at,
			completed_at = EXCLUDED.completed_at,
			claim_token = EXCLUDED.claim_token,
			lease_until = EXCLUDED.lease_until
	`

	documents, err := runDocuments(run)
	if err != nil {
		return persistence.NewRunError("Save", run.ID, err)
	}

	_, err = r.db.ExecContext(ctx, query,
		run.ID,
		run.WorkflowID,
		run.OwnerID,
		run.TriggerNodeID,
		run.Status,
		run.CurrentNodeID,
		run.ScheduledResumeAt,
		documents[0],
		documents[1],
		documents[2],
		documents[3],
		run.Error,
		run.CreatedAt,
		run.UpdatedAt,
		run.CompletedAt,
		run.ClaimToken,
		run.LeaseUntil,
	)
	if err != nil {
		return persistence.NewRunError("Save", run.ID, err)
	}

	return nil
}

func (r *RunRepository) GetByID(ctx context.Context, id string) (*models.WorkflowRun, error) {
	query := `SELECT ` + runColumns + ` FROM workflow_runs WHERE id = $1`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRunError("GetByID", id, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRunError("GetByID", id, err)
	}

	return run, nil
}

func (r *RunRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowRun, error) {
	query := `SELECT ` + runColumns + `
		FROM workflow_runs
		WHERE workflow_id = $1
		ORDER BY created_at DESC
	`

	return r.query(ctx, query, workflowID)
}

func (r *RunRepository) DueRuns(ctx context.Context, now time.Time, limit int) ([]*models.WorkflowRun, error) {
	// LIMIT NULL means no limit.
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}

	query := `SELECT ` + runColumns + `
		FROM workflow_runs
		WHERE scheduled_resume_at <= $1
		  AND (status = 'waiting' OR (status = 'running' AND lease_until <= $1))
		ORDER BY scheduled_resume_at ASC
		LIMIT $2
	`

	return r.query(ctx, query, now, limitArg)
}

// ClaimRun is a single conditional UPDATE, so concurrent sweepers race on the row lock
// and only one sees status from.
func (r *RunRepository) ClaimRun(ctx context.Context, id string, from, to models.RunStatus) (*models.WorkflowRun, error) {
	query := `
		UPDATE workflow_runs
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
		RETURNING ` + runColumns

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id, from, to, time.Now().UTC()))
	if err == nil {
		return run, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewRunError("ClaimRun", id, err)
	}

	return nil, r.missed(ctx, "ClaimRun", id)
}

func (r *RunRepository) ClaimDue(ctx context.Context, id, token string, now, leaseUntil time.Time) (*models.WorkflowRun, error) {
	query := `
		UPDATE workflow_runs
		SET status = 'running', claim_token = $2, lease_until = $4, updated_at = $5
		WHERE id = $1
		  AND scheduled_resume_at <= $3
		  AND (status = 'waiting' OR (status = 'running' AND lease_until <= $3))
		RETURNING ` + runColumns

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id, token, now, leaseUntil, time.Now().UTC()))
	if err == nil {
		return run, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewRunError("ClaimDue", id, err)
	}

	return nil, r.missed(ctx, "ClaimDue", id)
}

func (r *RunRepository) RenewLease(ctx context.Context, id, token string, leaseUntil time.Time) error {
	query := `
		UPDATE workflow_runs
		SET lease_until = $3
		WHERE id = $1 AND status = 'running' AND claim_token = $2
	`

	result, err := r.db.ExecContext(ctx, query, id, token, leaseUntil)
	if err != nil {
		return persistence.NewRunError("RenewLease", id, err)
	}

	return r.checkClaimed(ctx, "RenewLease", id, result)
}

func (r *RunRepository) SaveClaimed(ctx context.Context, run *models.WorkflowRun, token string) error {
	run.UpdatedAt = time.Now().UTC()

	documents, err := runDocuments(run)
	if err != nil {
		return persistence.NewRunError("SaveClaimed", run.ID, err)
	}

	query := `
		UPDATE workflow_runs SET
			status = $3,
			current_node_id = $4,
			scheduled_resume_at = $5,
			context = $6,
			suspensions = $7,
			steps = $8,
			error_message = $9,
			updated_at = $10,
			completed_at = $11,
			claim_token = $12,
			lease_until = $13
		WHERE id = $1 AND status = 'running' AND claim_token = $2
	`

	result, err := r.db.ExecContext(ctx, query,
		run.ID,
		token,
		run.Status,
		run.CurrentNodeID,
		run.ScheduledResumeAt,
		documents[1],
		documents[2],
		documents[3],
		run.Error,
		run.UpdatedAt,
		run.CompletedAt,
		run.ClaimToken,
		run.LeaseUntil,
	)
	if err != nil {
		return persistence.NewRunError("SaveClaimed", run.ID, err)
	}

	return r.checkClaimed(ctx, "SaveClaimed", run.ID, result)
}

func (r *RunRepository) checkClaimed(ctx context.Context, op, id string, result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewRunError(op, id, err)
	}

	if affected == 0 {
		return r.missed(ctx, op, id)
	}

	return nil
}

// missed tells a missing run apart from one whose status or claim did not match.
func (r *RunRepository) missed(ctx context.Context, op, id string) error {
	var exists bool

	err := r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM workflow_runs WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return persistence.NewRunError(op, id, err)
	}

	if !exists {
		return persistence.NewRunError(op, id, persistence.ErrRunNotFound)
	}

	return persistence.NewRunError(op, id, persistence.ErrRunAlreadyClaimed)
}

func (r *RunRepository) query(ctx context.Context, query string, args ...any) ([]*models.WorkflowRun, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	runs := make([]*models.WorkflowRun, 0)

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

func scanRun(scanner rowScanner) (*models.WorkflowRun, error) {
	var (
		run                            models.WorkflowRun
		eventJSON, contextJSON         []byte
		suspensionsJSON, stepsJSON     []byte
		scheduledResumeAt, completedAt sql.NullTime
		leaseUntil                     sql.NullTime
	)

	err := scanner.Scan(
		&run.ID,
		&run.WorkflowID,
		&run.OwnerID,
		&run.TriggerNodeID,
		&run.Status,
		&run.CurrentNodeID,
		&scheduledResumeAt,
		&eventJSON,
		&contextJSON,
		&suspensionsJSON,
		&stepsJSON,
		&run.Error,
		&run.CreatedAt,
		&run.UpdatedAt,
		&completedAt,
		&run.ClaimToken,
		&leaseUntil,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(eventJSON, &run.TriggeringEvent); err != nil {
		return nil, fmt.Errorf("failed to unmarshal triggering event: %w", err)
	}

	if err := json.Unmarshal(contextJSON, &run.Context); err != nil {
		return nil, fmt.Errorf("failed to unmarshal context: %w", err)
	}

	if err := json.Unmarshal(suspensionsJSON, &run.Suspensions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal suspensions: %w", err)
	}

	if err := json.Unmarshal(stepsJSON, &run.Steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
	}

	if scheduledResumeAt.Valid {
		at := scheduledResumeAt.Time.UTC()
		run.ScheduledResumeAt = &at
	}

	if completedAt.Valid {
		at := completedAt.Time.UTC()
		run.CompletedAt = &at
	}

	if leaseUntil.Valid {
		at := leaseUntil.Time.UTC()
		run.LeaseUntil = &at
	}

	run.CreatedAt = run.CreatedAt.UTC()
	run.UpdatedAt = run.UpdatedAt.UTC()

	return &run, nil
}

// runDocuments marshals the JSONB columns of a run: triggering event, context,
// suspensions and steps.
func runDocuments(run *models.WorkflowRun) ([][]byte, error) {
	documents := make([][]byte, 0, 4)

	for _, value := range []any{run.TriggeringEvent, nonNilMap(run.Context), nonNil(run.Suspensions), nonNil(run.Steps)} {
		document, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal run document: %w", err)
		}

		documents = append(documents, document)
	}

	return documents, nil
}

func nonNilMap(values map[string]any) map[string]any {
	if values == nil {
		return map[string]any{}
	}

	return values
}
