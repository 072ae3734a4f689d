package invites

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
		INSERT INTO invites (jti, target_user_id, expires_at) VALUES (?, ?, ?)
	`, rec.JTI, rec.TargetUserID, rec.ExpiresAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert invite: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Consume(ctx context.Context, jti string, now time.Time) (*Record, error) {
	var rec Record
	var expiresAt int64
	var consumedAt sql.NullInt64

	err := r.db.QueryRowContext(ctx, `
		SELECT jti, target_user_id, expires_at, consumed_at FROM invites WHERE jti = ?
	`, jti).Scan(&rec.JTI, &rec.TargetUserID, &expiresAt, &consumedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load invite: %w", err)
	}

	rec.ExpiresAt = time.Unix(expiresAt, 0)
	if consumedAt.Valid {
		return nil, common.ErrTokenUsed
	}
	if now.After(rec.ExpiresAt) {
		return nil, common.ErrTokenExpired
	}

	// The guard on consumed_at keeps two racing consumers from both
	// succeeding.
	res, err := r.db.ExecContext(ctx, `
		UPDATE invites SET consumed_at = ? WHERE jti = ? AND consumed_at IS NULL
	`, now.Unix(), jti)
	if err != nil {
		return nil, fmt.Errorf("failed to consume invite: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, common.ErrTokenUsed
	}

	rec.ConsumedAt = &now
	return &rec, nil
}
