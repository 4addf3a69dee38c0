package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/geahr/be-hr-approvals/internal/platform/apperr"
	"github.com/geahr/be-hr-approvals/internal/platform/database"
)

// Leave request statuses. Terminal statuses mirror the approval request
// outcomes; SUBMITTED means an approval is in flight.
const (
	LeaveStatusDraft     = "DRAFT"
	LeaveStatusSubmitted = "SUBMITTED"
	LeaveStatusApproved  = "APPROVED"
	LeaveStatusRejected  = "REJECTED"
	LeaveStatusReturned  = "RETURNED"
)

// Leave types are a closed set.
const (
	LeaveTypeAnnual        = "ANNUAL"
	LeaveTypeSick          = "SICK"
	LeaveTypeStudy         = "STUDY"
	LeaveTypeMaternity     = "MATERNITY"
	LeaveTypePaternity     = "PATERNITY"
	LeaveTypeCompassionate = "COMPASSIONATE"
	LeaveTypeOther         = "OTHER"
)

// LeaveRequest is the business record behind a leave approval.
type LeaveRequest struct {
	ID                string
	EmployeeID        string
	LeaveType         string
	StartDate         time.Time
	EndDate           time.Time
	DaysRequested     int
	Reason            string
	Status            string
	ApprovalRequestID *string
	LastActionNote    string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// LeaveRepository persists leave requests.
type LeaveRepository struct {
	db *database.DB
}

// NewLeaveRepository creates a new LeaveRepository.
func NewLeaveRepository(db *database.DB) *LeaveRepository {
	return &LeaveRepository{db: db}
}

const leaveColumns = `
	id, employee_id, leave_type, start_date, end_date, days_requested,
	reason, status, approval_request_id, last_action_note,
	created_at, updated_at`

// Create inserts a new DRAFT leave request.
func (r *LeaveRepository) Create(ctx context.Context, lr *LeaveRequest) error {
	query := `
		INSERT INTO leave_requests
		    (employee_id, leave_type, start_date, end_date,
		     days_requested, reason, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		lr.EmployeeID,
		lr.LeaveType,
		lr.StartDate,
		lr.EndDate,
		lr.DaysRequested,
		lr.Reason,
		lr.Status,
	).Scan(&lr.ID, &lr.CreatedAt, &lr.UpdatedAt)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to create leave request")
	}
	return nil
}

// GetByID retrieves a leave request by primary key.
func (r *LeaveRepository) GetByID(ctx context.Context, id string) (*LeaveRequest, error) {
	query := `SELECT` + leaveColumns + `
		FROM leave_requests
		WHERE id = $1
	`

	lr, err := r.scanLeave(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFound("leave_request", id)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to get leave request")
	}
	return lr, nil
}

// List returns leave requests filtered by optional employee and status,
// newest first.
func (r *LeaveRepository) List(ctx context.Context, employeeID, status *string) ([]*LeaveRequest, error) {
	query := `SELECT` + leaveColumns + `
		FROM leave_requests
		WHERE ($1::uuid IS NULL OR employee_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, employeeID, status)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to list leave requests")
	}
	defer rows.Close()

	var leaves []*LeaveRequest
	for rows.Next() {
		lr, err := r.scanLeave(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan leave request")
		}
		leaves = append(leaves, lr)
	}
	return leaves, rows.Err()
}

// MarkSubmitted links the created approval request and moves the leave to
// SUBMITTED.
func (r *LeaveRepository) MarkSubmitted(ctx context.Context, id, approvalRequestID string) error {
	query := `
		UPDATE leave_requests
		SET status              = $2,
		    approval_request_id = $3,
		    updated_at          = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, LeaveStatusSubmitted, approvalRequestID).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperr.NotFound("leave_request", id)
	}
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to mark leave request submitted")
	}
	return nil
}

// SyncStatus mirrors the approval outcome onto the leave record and stores
// the last action comment.
func (r *LeaveRepository) SyncStatus(ctx context.Context, id, status, lastActionNote string) error {
	query := `
		UPDATE leave_requests
		SET status           = $2,
		    last_action_note = $3,
		    updated_at       = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, status, lastActionNote).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperr.NotFound("leave_request", id)
	}
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to sync leave request status")
	}
	return nil
}

// ── scan helper ───────────────────────────────────────────────────────────────

type leaveScanner interface {
	Scan(dest ...any) error
}

func (r *LeaveRepository) scanLeave(row leaveScanner) (*LeaveRequest, error) {
	lr := &LeaveRequest{}
	err := row.Scan(
		&lr.ID,
		&lr.EmployeeID,
		&lr.LeaveType,
		&lr.StartDate,
		&lr.EndDate,
		&lr.DaysRequested,
		&lr.Reason,
		&lr.Status,
		&lr.ApprovalRequestID,
		&lr.LastActionNote,
		&lr.CreatedAt,
		&lr.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return lr, nil
}
