package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/geahr/be-hr-approvals/internal/platform/apperr"
	"github.com/geahr/be-hr-approvals/internal/platform/database"
)

// AuditEntry is one immutable record in the audit log.
type AuditEntry struct {
	ID         string
	Action     string // SUBMIT_LEAVE, APPROVAL_ACTION, SYNC_STATUS, ...
	EntityType string // LeaveRequest, ApprovalRequest, ...
	EntityID   string
	ActorID    *string
	Before     map[string]any
	After      map[string]any
	Note       string
	CreatedAt  time.Time
}

// AuditRepository appends and reads immutable audit log entries. Append is
// the only mutation exposed.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one audit entry.
func (r *AuditRepository) Append(ctx context.Context, entry *AuditEntry) error {
	beforeJSON, err := marshalNullable(entry.Before)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to marshal audit before state")
	}
	afterJSON, err := marshalNullable(entry.After)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to marshal audit after state")
	}

	query := `
		INSERT INTO audit_log
		    (action, entity_type, entity_id, actor_id,
		     before_json, after_json, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err = r.db.QueryRow(ctx, query,
		entry.Action,
		entry.EntityType,
		entry.EntityID,
		entry.ActorID,
		beforeJSON,
		afterJSON,
		entry.Note,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to append audit entry")
	}
	return nil
}

// ListByEntity returns the audit trail for one entity, oldest first.
func (r *AuditRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]*AuditEntry, error) {
	query := `
		SELECT id, action, entity_type, entity_id, actor_id,
		       before_json, after_json, note, created_at
		FROM audit_log
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, entityType, entityID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to list audit entries")
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		entry := &AuditEntry{}
		var beforeJSON, afterJSON []byte

		err := rows.Scan(
			&entry.ID,
			&entry.Action,
			&entry.EntityType,
			&entry.EntityID,
			&entry.ActorID,
			&beforeJSON,
			&afterJSON,
			&entry.Note,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan audit entry")
		}

		if beforeJSON != nil {
			if err := json.Unmarshal(beforeJSON, &entry.Before); err != nil {
				return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to unmarshal audit before state")
			}
		}
		if afterJSON != nil {
			if err := json.Unmarshal(afterJSON, &entry.After); err != nil {
				return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to unmarshal audit after state")
			}
		}

		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func marshalNullable(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}
