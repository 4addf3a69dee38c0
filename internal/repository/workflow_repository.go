package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/geahr/be-hr-approvals/internal/platform/apperr"
	"github.com/geahr/be-hr-approvals/internal/platform/database"
)

// WorkflowRepository manages workflow definitions and their steps.
// Definition + step creation is always done together in a single transaction.
// A partial unique index on (module, code, region_id) WHERE is_active backs
// the service-level duplicate check, so at most one active definition exists
// per key and FindActive is deterministic.
type WorkflowRepository struct {
	db *database.DB
}

// NewWorkflowRepository creates a new WorkflowRepository.
func NewWorkflowRepository(db *database.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// Create inserts a definition and its ordered steps in one transaction.
func (r *WorkflowRepository) Create(ctx context.Context, wf *WorkflowDefinition) error {
	return r.db.InTransaction(ctx, func(ctx context.Context) error {
		wfQuery := `
			INSERT INTO workflow_definitions
			    (module, code, name, region_id, is_active)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at, updated_at
		`

		err := r.db.QueryRow(ctx, wfQuery,
			wf.Module,
			wf.Code,
			wf.Name,
			wf.RegionID,
			wf.IsActive,
		).Scan(&wf.ID, &wf.CreatedAt, &wf.UpdatedAt)
		if err != nil {
			return apperr.Wrap(err, apperr.CodeInternal, "failed to create workflow definition")
		}

		stepQuery := `
			INSERT INTO workflow_steps
			    (workflow_id, step_order, approver_rule,
			     approver_role_code, approver_user_id, required)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at, updated_at
		`

		for _, step := range wf.Steps {
			step.WorkflowID = wf.ID

			err := r.db.QueryRow(ctx, stepQuery,
				step.WorkflowID,
				step.StepOrder,
				step.ApproverRule,
				step.ApproverRoleCode,
				step.ApproverUserID,
				step.Required,
			).Scan(&step.ID, &step.CreatedAt, &step.UpdatedAt)
			if err != nil {
				return apperr.Wrap(err, apperr.CodeInternal, "failed to create workflow step")
			}
		}

		return nil
	})
}

// FindActive returns the active definition matching (module, code, region)
// exactly, steps included, or nil when none exists. A nil regionID matches
// the global definition (region_id IS NULL). The two-tier region-then-global
// preference is composed in the service layer.
func (r *WorkflowRepository) FindActive(ctx context.Context, module, code string, regionID *string) (*WorkflowDefinition, error) {
	query := `
		SELECT id, module, code, name, region_id, is_active, created_at, updated_at
		FROM workflow_definitions
		WHERE module = $1
		  AND code = $2
		  AND is_active = TRUE
	`
	args := []any{module, code}
	if regionID != nil {
		query += " AND region_id = $3"
		args = append(args, *regionID)
	} else {
		query += " AND region_id IS NULL"
	}
	query += " LIMIT 1"

	wf, err := r.scanDefinition(r.db.QueryRow(ctx, query, args...))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to find workflow definition")
	}

	wf.Steps, err = r.getSteps(ctx, wf.ID)
	if err != nil {
		return nil, err
	}
	return wf, nil
}

// GetByID retrieves a definition with its steps.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*WorkflowDefinition, error) {
	query := `
		SELECT id, module, code, name, region_id, is_active, created_at, updated_at
		FROM workflow_definitions
		WHERE id = $1
	`

	wf, err := r.scanDefinition(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFound("workflow_definition", id)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to get workflow definition")
	}

	wf.Steps, err = r.getSteps(ctx, wf.ID)
	if err != nil {
		return nil, err
	}
	return wf, nil
}

// ListByModule returns all definitions for a module, steps included.
func (r *WorkflowRepository) ListByModule(ctx context.Context, module string) ([]*WorkflowDefinition, error) {
	query := `
		SELECT id, module, code, name, region_id, is_active, created_at, updated_at
		FROM workflow_definitions
		WHERE module = $1
		ORDER BY code ASC, region_id ASC NULLS FIRST
	`

	rows, err := r.db.Query(ctx, query, module)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to list workflow definitions")
	}
	defer rows.Close()

	var defs []*WorkflowDefinition
	for rows.Next() {
		wf, err := r.scanDefinition(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan workflow definition")
		}
		defs = append(defs, wf)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to list workflow definitions")
	}

	for _, wf := range defs {
		wf.Steps, err = r.getSteps(ctx, wf.ID)
		if err != nil {
			return nil, err
		}
	}
	return defs, nil
}

// getSteps loads the steps of a definition ordered by step_order.
func (r *WorkflowRepository) getSteps(ctx context.Context, workflowID string) ([]*WorkflowStep, error) {
	query := `
		SELECT id, workflow_id, step_order, approver_rule,
		       approver_role_code, approver_user_id, required,
		       created_at, updated_at
		FROM workflow_steps
		WHERE workflow_id = $1
		ORDER BY step_order ASC
	`

	rows, err := r.db.Query(ctx, query, workflowID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to get workflow steps")
	}
	defer rows.Close()

	var steps []*WorkflowStep
	for rows.Next() {
		s := &WorkflowStep{}
		err := rows.Scan(
			&s.ID,
			&s.WorkflowID,
			&s.StepOrder,
			&s.ApproverRule,
			&s.ApproverRoleCode,
			&s.ApproverUserID,
			&s.Required,
			&s.CreatedAt,
			&s.UpdatedAt,
		)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan workflow step")
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

// ── scan helper ───────────────────────────────────────────────────────────────

type definitionScanner interface {
	Scan(dest ...any) error
}

func (r *WorkflowRepository) scanDefinition(row definitionScanner) (*WorkflowDefinition, error) {
	wf := &WorkflowDefinition{}
	err := row.Scan(
		&wf.ID,
		&wf.Module,
		&wf.Code,
		&wf.Name,
		&wf.RegionID,
		&wf.IsActive,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return wf, nil
}
