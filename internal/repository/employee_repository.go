package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/geahr/be-hr-approvals/internal/platform/apperr"
	"github.com/geahr/be-hr-approvals/internal/platform/database"
)

// Staff categories drive leave workflow selection.
const (
	StaffCategoryJunior     = "JUNIOR"
	StaffCategorySenior     = "SENIOR"
	StaffCategorySupervisor = "SUPERVISOR"
)

// Employment statuses.
const (
	EmploymentStatusActive = "ACTIVE"
	EmploymentStatusEnded  = "ENDED"
)

// Employee is the minimal profile the engine integration reads: identity
// linkage only. The full HR profile lives in the employees service.
type Employee struct {
	ID        string
	UserID    *string
	StaffNo   string
	FirstName string
	LastName  string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Employment is one employment record of an employee. The most recently
// created ACTIVE record carries the attributes routing depends on: staff
// category, region and supervisor linkage.
type Employment struct {
	ID            string
	EmployeeID    string
	StaffCategory string // JUNIOR | SENIOR | SUPERVISOR
	RegionID      *string
	SupervisorID  *string // supervising employee
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// EmployeeRepository reads the employee and employment records consulted by
// the leave routing selector.
type EmployeeRepository struct {
	db *database.DB
}

// NewEmployeeRepository creates a new EmployeeRepository.
func NewEmployeeRepository(db *database.DB) *EmployeeRepository {
	return &EmployeeRepository{db: db}
}

// GetEmployee retrieves an employee by primary key.
func (r *EmployeeRepository) GetEmployee(ctx context.Context, id string) (*Employee, error) {
	query := `
		SELECT id, user_id, staff_no, first_name, last_name, status,
		       created_at, updated_at
		FROM employees
		WHERE id = $1
	`

	e := &Employee{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&e.ID,
		&e.UserID,
		&e.StaffNo,
		&e.FirstName,
		&e.LastName,
		&e.Status,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFound("employee", id)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to get employee")
	}
	return e, nil
}

// GetActiveEmployment returns the most recently created ACTIVE employment
// record for an employee, or nil when none exists.
func (r *EmployeeRepository) GetActiveEmployment(ctx context.Context, employeeID string) (*Employment, error) {
	query := `
		SELECT id, employee_id, staff_category, region_id, supervisor_id,
		       status, created_at, updated_at
		FROM employments
		WHERE employee_id = $1
		  AND status = $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	em := &Employment{}
	err := r.db.QueryRow(ctx, query, employeeID, EmploymentStatusActive).Scan(
		&em.ID,
		&em.EmployeeID,
		&em.StaffCategory,
		&em.RegionID,
		&em.SupervisorID,
		&em.Status,
		&em.CreatedAt,
		&em.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to get active employment")
	}
	return em, nil
}
