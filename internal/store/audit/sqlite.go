package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/openpos/companysync/internal/dbx"
	"github.com/openpos/companysync/internal/models"
)

type SQLiteRepository struct {
	db dbx.Querier
}

func NewSQLiteRepository(db dbx.Querier) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, e *models.AuditLogEntry) (bool, error) {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return false, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, user_id, user_name, ts, details,
		                       ip_address, metadata, resource_type, resource_id, nostr_event_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, e.ID, string(e.Action), e.UserID, e.UserName, e.Timestamp.Unix(), e.Details,
		e.IPAddress, string(meta), e.ResourceType, e.ResourceID, e.NostrEventID)
	if err != nil {
		return false, fmt.Errorf("failed to insert audit entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *SQLiteRepository) List(ctx context.Context, f models.AuditFilter) ([]*models.AuditLogEntry, error) {
	var conds []string
	var args []any

	if f.Action != "" {
		conds = append(conds, "action = ?")
		args = append(args, string(f.Action))
	}
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if !f.From.IsZero() {
		conds = append(conds, "ts >= ?")
		args = append(args, f.From.Unix())
	}
	if !f.To.IsZero() {
		conds = append(conds, "ts <= ?")
		args = append(args, f.To.Unix())
	}
	if f.Search != "" {
		conds = append(conds, "(details LIKE ? OR user_name LIKE ? OR action LIKE ?)")
		pattern := "%" + f.Search + "%"
		args = append(args, pattern, pattern, pattern)
	}

	query := `SELECT id, action, user_id, user_name, ts, details,
		ip_address, metadata, resource_type, resource_id, nostr_event_id FROM audit_log`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY ts DESC, id"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var result []*models.AuditLogEntry
	for rows.Next() {
		var e models.AuditLogEntry
		var action, meta string
		var ts int64
		if err := rows.Scan(&e.ID, &action, &e.UserID, &e.UserName, &ts, &e.Details,
			&e.IPAddress, &meta, &e.ResourceType, &e.ResourceID, &e.NostrEventID); err != nil {
			return nil, err
		}
		e.Action = models.AuditAction(action)
		e.Timestamp = time.Unix(ts, 0)
		if meta != "" && meta != "null" {
			if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		result = append(result, &e)
	}
	return result, rows.Err()
}

func (r *SQLiteRepository) Stats(ctx context.Context) (*models.AuditStats, error) {
	stats := &models.AuditStats{
		ByAction: make(map[models.AuditAction]int64),
		ByUser:   make(map[string]int64),
	}

	rows, err := r.db.QueryContext(ctx, `SELECT action, COUNT(*) FROM audit_log GROUP BY action`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by action: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var action string
		var n int64
		if err := rows.Scan(&action, &n); err != nil {
			return nil, err
		}
		stats.ByAction[models.AuditAction(action)] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	userRows, err := r.db.QueryContext(ctx, `SELECT user_id, COUNT(*) FROM audit_log GROUP BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate by user: %w", err)
	}
	defer userRows.Close()
	for userRows.Next() {
		var user string
		var n int64
		if err := userRows.Scan(&user, &n); err != nil {
			return nil, err
		}
		stats.ByUser[user] = n
	}
	if err := userRows.Err(); err != nil {
		return nil, err
	}

	if stats.Total > 0 {
		var minTS, maxTS int64
		if err := r.db.QueryRowContext(ctx, `SELECT MIN(ts), MAX(ts) FROM audit_log`).Scan(&minTS, &maxTS); err != nil {
			return nil, err
		}
		earliest, latest := time.Unix(minTS, 0), time.Unix(maxTS, 0)
		stats.Earliest, stats.Latest = &earliest, &latest
	}

	return stats, nil
}
