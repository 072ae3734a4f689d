package staff

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openpos/companysync/internal/common"
	"github.com/openpos/companysync/internal/dbx"
	"github.com/openpos/companysync/internal/models"
)

type SQLiteRepository struct {
	db dbx.Querier
}

func NewSQLiteRepository(db dbx.Querier) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, s *models.StaffIdentity) error {
	perms, err := json.Marshal(s.Permissions)
	if err != nil {
		return fmt.Errorf("failed to marshal permissions: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO staff (id, name, pubkey_hex, npub, role, permissions, is_active,
		                   created_at, updated_at, revoked_at, expires_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			pubkey_hex = excluded.pubkey_hex,
			npub = excluded.npub,
			role = excluded.role,
			permissions = excluded.permissions,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at,
			revoked_at = excluded.revoked_at,
			expires_at = excluded.expires_at,
			deleted_at = excluded.deleted_at
	`, s.ID, s.Name, s.PubKeyHex, s.Npub, string(s.Role), string(perms), boolToInt(s.IsActive),
		s.CreatedAt.UnixNano(), s.UpdatedAt.UnixNano(), unixPtr(s.RevokedAt), unixPtr(s.ExpiresAt), unixPtr(s.DeletedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert staff %s: %w", s.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.StaffIdentity, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` FROM staff WHERE id = ?`, id)
	s, err := scanStaff(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return s, err
}

func (r *SQLiteRepository) List(ctx context.Context, includeDeleted bool) ([]*models.StaffIdentity, error) {
	query := selectColumns + ` FROM staff`
	if !includeDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}
	defer rows.Close()

	var result []*models.StaffIdentity
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) Owner(ctx context.Context) (*models.StaffIdentity, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` FROM staff WHERE role = ? LIMIT 1`, string(models.RoleOwner))
	s, err := scanStaff(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return s, err
}

const selectColumns = `SELECT id, name, pubkey_hex, npub, role, permissions, is_active,
	created_at, updated_at, revoked_at, expires_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStaff(row rowScanner) (*models.StaffIdentity, error) {
	var s models.StaffIdentity
	var role, perms string
	var isActive int
	var createdAt, updatedAt int64
	var revokedAt, expiresAt, deletedAt sql.NullInt64

	err := row.Scan(&s.ID, &s.Name, &s.PubKeyHex, &s.Npub, &role, &perms, &isActive,
		&createdAt, &updatedAt, &revokedAt, &expiresAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	s.Role = models.Role(role)
	if err := json.Unmarshal([]byte(perms), &s.Permissions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
	}
	s.IsActive = isActive == 1
	s.CreatedAt = time.Unix(0, createdAt)
	s.UpdatedAt = time.Unix(0, updatedAt)
	s.RevokedAt = timePtr(revokedAt)
	s.ExpiresAt = timePtr(expiresAt)
	s.DeletedAt = timePtr(deletedAt)
	return &s, nil
}

// Timestamps are stored as nanoseconds: sub-second ordering decides
// merges, so a whole-second round-trip would be lossy.
func unixPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64)
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
