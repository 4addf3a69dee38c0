package repository

import (
	"context"

	"github.com/geahr/be-hr-approvals/internal/platform/apperr"
	"github.com/geahr/be-hr-approvals/internal/platform/database"
)

// RoleRepository reads role memberships. It backs the role directory used by
// step authorization and inbox matching.
type RoleRepository struct {
	db *database.DB
}

// NewRoleRepository creates a new RoleRepository.
func NewRoleRepository(db *database.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// RolesOf returns the role codes a user holds. An unknown user simply has
// no roles.
func (r *RoleRepository) RolesOf(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT ro.code
		FROM user_roles ur
		JOIN roles ro ON ro.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY ro.code ASC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to get user roles")
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan role code")
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

// UsersWithRole returns the users holding a role code. It backs the
// audience of approval_required notifications.
func (r *RoleRepository) UsersWithRole(ctx context.Context, roleCode string) ([]string, error) {
	query := `
		SELECT ur.user_id
		FROM user_roles ur
		JOIN roles ro ON ro.id = ur.role_id
		WHERE ro.code = $1
		ORDER BY ur.user_id ASC
	`

	rows, err := r.db.Query(ctx, query, roleCode)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to get role holders")
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan role holder")
		}
		users = append(users, userID)
	}
	return users, rows.Err()
}
