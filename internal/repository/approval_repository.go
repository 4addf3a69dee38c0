package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/geahr/be-hr-approvals/internal/platform/apperr"
	"github.com/geahr/be-hr-approvals/internal/platform/database"
)

// ApprovalRepository tracks in-flight approval requests and their
// append-only action records. Mutations happen only through the approval
// engine, which wraps them in a transaction.
type ApprovalRepository struct {
	db *database.DB
}

// NewApprovalRepository creates a new ApprovalRepository.
func NewApprovalRepository(db *database.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

const approvalColumns = `
	id, module, request_type, request_ref_id, region_id,
	created_by, assigned_to_user, status, current_step_order,
	created_at, updated_at`

// Create persists a new approval request.
func (r *ApprovalRepository) Create(ctx context.Context, req *ApprovalRequest) error {
	query := `
		INSERT INTO approval_requests
		    (module, request_type, request_ref_id, region_id,
		     created_by, assigned_to_user, status, current_step_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		req.Module,
		req.RequestType,
		req.RequestRefID,
		req.RegionID,
		req.CreatedBy,
		req.AssignedToUser,
		req.Status,
		req.CurrentStepOrder,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to create approval request")
	}
	return nil
}

// GetByID retrieves an approval request by primary key.
func (r *ApprovalRepository) GetByID(ctx context.Context, id string) (*ApprovalRequest, error) {
	query := `SELECT` + approvalColumns + `
		FROM approval_requests
		WHERE id = $1
	`

	req, err := r.scanRequest(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFound("approval_request", id)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to get approval request")
	}
	return req, nil
}

// GetByIDForUpdate retrieves an approval request and takes a row lock.
// Only meaningful inside an open transaction; two concurrent actors on the
// same request serialize here.
func (r *ApprovalRepository) GetByIDForUpdate(ctx context.Context, id string) (*ApprovalRequest, error) {
	query := `SELECT` + approvalColumns + `
		FROM approval_requests
		WHERE id = $1
		FOR UPDATE
	`

	req, err := r.scanRequest(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFound("approval_request", id)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to lock approval request")
	}
	return req, nil
}

// Update writes the mutable fields of a request: status, current step and
// strict assignee.
func (r *ApprovalRepository) Update(ctx context.Context, req *ApprovalRequest) error {
	query := `
		UPDATE approval_requests
		SET status             = $2,
		    current_step_order = $3,
		    assigned_to_user   = $4,
		    updated_at         = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRow(ctx, query,
		req.ID,
		req.Status,
		req.CurrentStepOrder,
		req.AssignedToUser,
	).Scan(&req.UpdatedAt)
	if err == pgx.ErrNoRows {
		return apperr.NotFound("approval_request", req.ID)
	}
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to update approval request")
	}
	return nil
}

// ListPendingAssignedTo returns pending requests strictly assigned to a
// user, newest first.
func (r *ApprovalRepository) ListPendingAssignedTo(ctx context.Context, userID string) ([]*ApprovalRequest, error) {
	query := `SELECT` + approvalColumns + `
		FROM approval_requests
		WHERE status = $1
		  AND assigned_to_user = $2
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, ApprovalStatusPending, userID)
}

// ListPending returns all pending requests, newest first.
func (r *ApprovalRepository) ListPending(ctx context.Context) ([]*ApprovalRequest, error) {
	query := `SELECT` + approvalColumns + `
		FROM approval_requests
		WHERE status = $1
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, ApprovalStatusPending)
}

// List returns requests filtered by optional status and module, newest first.
func (r *ApprovalRepository) List(ctx context.Context, status, module *string) ([]*ApprovalRequest, error) {
	query := `SELECT` + approvalColumns + `
		FROM approval_requests
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR module = $2)
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, status, module)
}

func (r *ApprovalRepository) list(ctx context.Context, query string, args ...any) ([]*ApprovalRequest, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to list approval requests")
	}
	defer rows.Close()

	var reqs []*ApprovalRequest
	for rows.Next() {
		req, err := r.scanRequest(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan approval request")
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

// ── Actions ───────────────────────────────────────────────────────────────────

// AppendAction inserts one immutable action record.
func (r *ApprovalRepository) AppendAction(ctx context.Context, action *ApprovalAction) error {
	query := `
		INSERT INTO approval_actions
		    (request_id, step_order, actor_id, action, comment)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query,
		action.RequestID,
		action.StepOrder,
		action.ActorID,
		action.Action,
		action.Comment,
	).Scan(&action.ID, &action.CreatedAt)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to append approval action")
	}
	return nil
}

// ListActions returns the action history of a request, oldest first.
func (r *ApprovalRepository) ListActions(ctx context.Context, requestID string) ([]*ApprovalAction, error) {
	query := `
		SELECT id, request_id, step_order, actor_id, action, comment, created_at
		FROM approval_actions
		WHERE request_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to list approval actions")
	}
	defer rows.Close()

	var actions []*ApprovalAction
	for rows.Next() {
		a := &ApprovalAction{}
		err := rows.Scan(
			&a.ID,
			&a.RequestID,
			&a.StepOrder,
			&a.ActorID,
			&a.Action,
			&a.Comment,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan approval action")
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// ── scan helper ───────────────────────────────────────────────────────────────

type requestScanner interface {
	Scan(dest ...any) error
}

func (r *ApprovalRepository) scanRequest(row requestScanner) (*ApprovalRequest, error) {
	req := &ApprovalRequest{}
	err := row.Scan(
		&req.ID,
		&req.Module,
		&req.RequestType,
		&req.RequestRefID,
		&req.RegionID,
		&req.CreatedBy,
		&req.AssignedToUser,
		&req.Status,
		&req.CurrentStepOrder,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return req, nil
}
