package seen

import (
	"context"
	"fmt"
	"time"

	"github.com/openpos/companysync/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.Querier
}

func NewSQLiteRepository(db dbx.Querier) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) MarkSeen(ctx context.Context, eventID, domain string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO seen_events (event_id, domain, seen_at) VALUES (?, ?, ?)
		ON CONFLICT(event_id, domain) DO NOTHING
	`, eventID, domain, at.Unix())
	if err != nil {
		return false, fmt.Errorf("failed to mark event seen: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SQLiteRepository) IsSeen(ctx context.Context, eventID, domain string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM seen_events WHERE event_id = ? AND domain = ?
	`, eventID, domain).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check seen event: %w", err)
	}
	return n > 0, nil
}
