// Package staff manages the replicated staff roster: pre-creating
// identities, onboarding devices through invites, and the revoke /
// restore / delete lifecycle. Revocation and deletion are monotonic
// across devices; restoration is always a new, newer event.
package staff

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/openpos/companysync/internal/common"
	"github.com/openpos/companysync/internal/models"
	staffstore "github.com/openpos/companysync/internal/store/staff"
)

// test seam
var timeNow = time.Now

// Publisher replicates roster changes to the other devices.
type Publisher interface {
	PublishUpdate(ctx context.Context, domain models.Domain, payload any) (string, error)
}

// Identities supplies key-format helpers and invite consumption.
type Identities interface {
	DeriveNpub(pubKeyHex string) (string, error)
	ConsumeInvite(ctx context.Context, token string) (targetUserID string, err error)
}

// AuditSink records roster lifecycle events.
type AuditSink interface {
	Log(ctx context.Context, action models.AuditAction, userID, userName, details string) (*models.AuditLogEntry, error)
}

// Service is the roster surface.
//
// Contract:
//   - Create: pre-creates an inactive identity awaiting a device join;
//     at most one identity may hold the owner role.
//   - Join: consumes an invite token and binds the joining device's key.
//   - Revoke / Delete are monotonic; Restore is an explicit newer event.
type Service interface {
	Create(ctx context.Context, name string, role models.Role) (*models.StaffIdentity, error)
	Get(ctx context.Context, id string) (*models.StaffIdentity, error)
	List(ctx context.Context, includeDeleted bool) ([]*models.StaffIdentity, error)
	Join(ctx context.Context, token, pubKeyHex string) (*models.StaffIdentity, error)
	Revoke(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

type service struct {
	repo      staffstore.Repository
	publisher Publisher
	ident     Identities
	audit     AuditSink
}

// NewService constructs the roster service.
func NewService(repo staffstore.Repository, publisher Publisher, ident Identities, audit AuditSink) Service {
	return &service{repo: repo, publisher: publisher, ident: ident, audit: audit}
}

// Create pre-creates a roster record. The identity stays inactive until a
// device joins with an invite; the owner record is active immediately
// since it anchors the company-code binding.
func (s *service) Create(ctx context.Context, name string, role models.Role) (*models.StaffIdentity, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", common.ErrInvalidFormat, role)
	}
	if role == models.RoleOwner {
		if _, err := s.repo.Owner(ctx); err == nil {
			return nil, fmt.Errorf("company already has an owner")
		}
	}

	now := timeNow().UTC()
	rec := &models.StaffIdentity{
		ID:          uuid.NewString(),
		Name:        name,
		Role:        role,
		Permissions: models.DefaultPermissions(role),
		IsActive:    role == models.RoleOwner,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Upsert(ctx, rec); err != nil {
		return nil, err
	}
	if _, err := s.publisher.PublishUpdate(ctx, models.DomainStaff, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *service) Get(ctx context.Context, id string) (*models.StaffIdentity, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) List(ctx context.Context, includeDeleted bool) ([]*models.StaffIdentity, error) {
	return s.repo.List(ctx, includeDeleted)
}

// Join consumes the invite and binds the joining device's public key to
// the pending identity, activating it.
func (s *service) Join(ctx context.Context, token, pubKeyHex string) (*models.StaffIdentity, error) {
	targetID, err := s.ident.ConsumeInvite(ctx, token)
	if err != nil {
		return nil, err
	}

	rec, err := s.repo.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	npub, err := s.ident.DeriveNpub(pubKeyHex)
	if err != nil {
		return nil, err
	}

	rec.PubKeyHex = pubKeyHex
	rec.Npub = npub
	rec.IsActive = true
	rec.UpdatedAt = timeNow().UTC()

	if err := s.repo.Upsert(ctx, rec); err != nil {
		return nil, err
	}
	if _, err := s.publisher.PublishUpdate(ctx, models.DomainStaff, rec); err != nil {
		return nil, err
	}
	if _, err := s.audit.Log(ctx, models.AuditStaffJoined, rec.ID, rec.Name, "device joined as "+string(rec.Role)); err != nil {
		return nil, err
	}
	return rec, nil
}

// Revoke removes sync privileges while keeping the record auditable.
// The update timestamp is bumped so a replay of the pre-revocation state
// can never win the merge.
func (s *service) Revoke(ctx context.Context, id string) error {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	now := timeNow().UTC()
	rec.RevokedAt = &now
	rec.IsActive = false
	rec.UpdatedAt = now

	if err := s.save(ctx, rec); err != nil {
		return err
	}
	_, err = s.audit.Log(ctx, models.AuditStaffRevoked, rec.ID, rec.Name, "access revoked")
	return err
}

// Restore reactivates a revoked or deleted identity. It is an explicit
// action producing a strictly newer event, never a replay of old state.
func (s *service) Restore(ctx context.Context, id string) error {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	now := timeNow().UTC()
	rec.RevokedAt = nil
	rec.DeletedAt = nil
	rec.IsActive = true
	rec.UpdatedAt = now

	if err := s.save(ctx, rec); err != nil {
		return err
	}
	_, err = s.audit.Log(ctx, models.AuditStaffRestored, rec.ID, rec.Name, "access restored")
	return err
}

// Delete soft-deletes the identity: hidden by default, recoverable with
// Restore.
func (s *service) Delete(ctx context.Context, id string) error {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	now := timeNow().UTC()
	rec.DeletedAt = &now
	rec.IsActive = false
	rec.UpdatedAt = now

	if err := s.save(ctx, rec); err != nil {
		return err
	}
	_, err = s.audit.Log(ctx, models.AuditStaffDeleted, rec.ID, rec.Name, "identity deleted")
	return err
}

func (s *service) save(ctx context.Context, rec *models.StaffIdentity) error {
	if err := s.repo.Upsert(ctx, rec); err != nil {
		return err
	}
	_, err := s.publisher.PublishUpdate(ctx, models.DomainStaff, rec)
	return err
}
