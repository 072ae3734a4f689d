// Package staff persists the replicated staff roster.
package staff

import (
	"context"

	"github.com/openpos/companysync/internal/models"
)

// Repository stores staff identities. Upsert replaces the whole row; merge
// semantics (monotonic revoke/delete) live in the model and the sync
// layer, not here.
type Repository interface {
	Upsert(ctx context.Context, s *models.StaffIdentity) error
	GetByID(ctx context.Context, id string) (*models.StaffIdentity, error)
	List(ctx context.Context, includeDeleted bool) ([]*models.StaffIdentity, error)
	Owner(ctx context.Context) (*models.StaffIdentity, error)
}
