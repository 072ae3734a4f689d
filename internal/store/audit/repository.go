// Package audit persists the append-only audit log. Entries are never
// updated and there is deliberately no delete operation.
package audit

import (
	"context"

	"github.com/openpos/companysync/internal/models"
)

// Repository is the audit log's write/read surface.
type Repository interface {
	// Insert appends an entry. Inserting an id that already exists is a
	// no-op so relay redelivery stays idempotent.
	Insert(ctx context.Context, e *models.AuditLogEntry) (inserted bool, err error)
	List(ctx context.Context, f models.AuditFilter) ([]*models.AuditLogEntry, error)
	Stats(ctx context.Context) (*models.AuditStats, error)
}
