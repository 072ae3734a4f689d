// Package audit is the append-only audit trail service: local writes,
// filtered reads, aggregate statistics, and replication of entries to the
// other devices through the sync layer.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/openpos/companysync/internal/logging"
	"github.com/openpos/companysync/internal/models"
	auditstore "github.com/openpos/companysync/internal/store/audit"
)

// test seam
var timeNow = time.Now

// Publisher replicates an audit entry to the other devices. The sync
// orchestrator implements it; a nil publisher keeps entries local-only.
type Publisher interface {
	PublishAudit(ctx context.Context, e *models.AuditLogEntry) error
}

// Service is the audit log surface.
//
// Contract:
//   - Log appends an entry; entries are never mutated or deleted.
//   - List applies the filter; zero-value filter fields are wildcards.
//   - Stats aggregates counts per action and per user.
type Service interface {
	Log(ctx context.Context, action models.AuditAction, userID, userName, details string) (*models.AuditLogEntry, error)
	LogEntry(ctx context.Context, e *models.AuditLogEntry) (*models.AuditLogEntry, error)
	List(ctx context.Context, f models.AuditFilter) ([]*models.AuditLogEntry, error)
	Stats(ctx context.Context) (*models.AuditStats, error)
}

type service struct {
	repo      auditstore.Repository
	publisher Publisher
	log       logging.Logger
}

// NewService constructs the audit service. A nil publisher disables
// replication (degraded, local-only mode).
func NewService(repo auditstore.Repository, publisher Publisher, log logging.Logger) Service {
	return &service{repo: repo, publisher: publisher, log: log}
}

func (s *service) Log(ctx context.Context, action models.AuditAction, userID, userName, details string) (*models.AuditLogEntry, error) {
	return s.LogEntry(ctx, &models.AuditLogEntry{
		Action:   action,
		UserID:   userID,
		UserName: userName,
		Details:  details,
	})
}

// LogEntry appends a pre-built entry, filling in id and timestamp when
// absent, and replicates it when a publisher is wired.
func (s *service) LogEntry(ctx context.Context, e *models.AuditLogEntry) (*models.AuditLogEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = timeNow().UTC()
	}

	if _, err := s.repo.Insert(ctx, e); err != nil {
		return nil, err
	}

	if s.publisher != nil {
		if err := s.publisher.PublishAudit(ctx, e); err != nil {
			// local append already succeeded; replication catches up on
			// the next sync
			s.log.Warn("audit entry not replicated", "id", e.ID, "err", err)
		}
	}
	return e, nil
}

func (s *service) List(ctx context.Context, f models.AuditFilter) ([]*models.AuditLogEntry, error) {
	return s.repo.List(ctx, f)
}

func (s *service) Stats(ctx context.Context) (*models.AuditStats, error) {
	return s.repo.Stats(ctx)
}
