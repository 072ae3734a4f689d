package keys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/openpos/companysync/internal/common"
	"github.com/openpos/companysync/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.Querier
}

func NewSQLiteRepository(db dbx.Querier) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, rec *Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO encryption_keys (key_id, algorithm, material, nonce, created_at, is_current)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.KeyID, rec.Algorithm, rec.Material, rec.Nonce, rec.CreatedAt.Unix(), boolToInt(rec.IsCurrent))
	if err != nil {
		return fmt.Errorf("failed to insert key %s: %w", rec.KeyID, err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, keyID string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT key_id, algorithm, material, nonce, created_at, is_current
		FROM encryption_keys WHERE key_id = ?
	`, keyID)
	return scanRecord(row)
}

func (r *SQLiteRepository) GetCurrent(ctx context.Context) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT key_id, algorithm, material, nonce, created_at, is_current
		FROM encryption_keys WHERE is_current = 1
	`)
	return scanRecord(row)
}

// SetCurrent promotes keyID and demotes every other key in one statement
// pair; callers wrap it in a transaction together with Insert.
func (r *SQLiteRepository) SetCurrent(ctx context.Context, keyID string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE encryption_keys SET is_current = 0 WHERE key_id <> ?`, keyID); err != nil {
		return fmt.Errorf("failed to demote keys: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `UPDATE encryption_keys SET is_current = 1 WHERE key_id = ?`, keyID)
	if err != nil {
		return fmt.Errorf("failed to promote key %s: %w", keyID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrNoKeyFound
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT key_id, algorithm, material, nonce, created_at, is_current
		FROM encryption_keys ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var result []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) UpsertSecureField(ctx context.Context, f *SecureField) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO secure_fields (name, key_id, ciphertext, nonce, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			key_id = excluded.key_id,
			ciphertext = excluded.ciphertext,
			nonce = excluded.nonce,
			updated_at = excluded.updated_at
	`, f.Name, f.KeyID, f.Ciphertext, f.Nonce, f.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert secure field %s: %w", f.Name, err)
	}
	return nil
}

func (r *SQLiteRepository) GetSecureField(ctx context.Context, name string) (*SecureField, error) {
	var f SecureField
	var updatedAt int64
	err := r.db.QueryRowContext(ctx, `
		SELECT name, key_id, ciphertext, nonce, updated_at FROM secure_fields WHERE name = ?
	`, name).Scan(&f.Name, &f.KeyID, &f.Ciphertext, &f.Nonce, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get secure field %s: %w", name, err)
	}
	f.UpdatedAt = time.Unix(updatedAt, 0)
	return &f, nil
}

func (r *SQLiteRepository) ListSecureFields(ctx context.Context) ([]*SecureField, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, key_id, ciphertext, nonce, updated_at FROM secure_fields ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list secure fields: %w", err)
	}
	defer rows.Close()

	var result []*SecureField
	for rows.Next() {
		var f SecureField
		var updatedAt int64
		if err := rows.Scan(&f.Name, &f.KeyID, &f.Ciphertext, &f.Nonce, &updatedAt); err != nil {
			return nil, err
		}
		f.UpdatedAt = time.Unix(updatedAt, 0)
		result = append(result, &f)
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) DeleteSecureFields(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM secure_fields`); err != nil {
		return fmt.Errorf("failed to delete secure fields: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var createdAt int64
	var isCurrent int
	err := row.Scan(&rec.KeyID, &rec.Algorithm, &rec.Material, &rec.Nonce, &createdAt, &isCurrent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNoKeyFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan key: %w", err)
	}
	rec.CreatedAt = time.Unix(createdAt, 0)
	rec.IsCurrent = isCurrent == 1
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
