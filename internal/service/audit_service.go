package service

import (
	"context"

	"github.com/geahr/be-hr-approvals/internal/platform/logger"
	"github.com/geahr/be-hr-approvals/internal/repository"
)

// AuditStore appends immutable audit entries.
type AuditStore interface {
	Append(ctx context.Context, entry *repository.AuditEntry) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]*repository.AuditEntry, error)
}

// AuditService writes audit entries for calling modules. Failures are logged
// and swallowed so audit problems never interrupt business operations.
type AuditService struct {
	store AuditStore
	log   *logger.Logger
}

// NewAuditService creates a new AuditService.
func NewAuditService(store AuditStore, log *logger.Logger) *AuditService {
	return &AuditService{store: store, log: log}
}

// Write appends one audit entry, logging a warning on failure.
func (s *AuditService) Write(ctx context.Context, action, entityType, entityID string, actorID *string, before, after map[string]any, note string) {
	entry := &repository.AuditEntry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		ActorID:    actorID,
		Before:     before,
		After:      after,
		Note:       note,
	}

	if err := s.store.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("action", action).
			Str("entity_type", entityType).
			Str("entity_id", entityID).
			Msg("Failed to write audit log entry")
	}
}

// Trail returns the audit history of one entity, oldest first.
func (s *AuditService) Trail(ctx context.Context, entityType, entityID string) ([]*repository.AuditEntry, error) {
	return s.store.ListByEntity(ctx, entityType, entityID)
}
