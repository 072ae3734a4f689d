// Package store bootstraps the per-device sqlite database and bundles the
// repositories the services are built on.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/openpos/companysync/internal/store/audit"
	"github.com/openpos/companysync/internal/store/invites"
	"github.com/openpos/companysync/internal/store/keys"
	"github.com/openpos/companysync/internal/store/metadata"
	"github.com/openpos/companysync/internal/store/migrations"
	"github.com/openpos/companysync/internal/store/seen"
	"github.com/openpos/companysync/internal/store/staff"
)

// Repositories groups every repository backed by one database handle.
type Repositories struct {
	Metadata metadata.Repository
	Keys     keys.Repository
	Staff    staff.Repository
	Audit    audit.Repository
	Invites  invites.Repository
	Seen     seen.Repository
}

// RunMigrations applies the embedded schema migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens (creating if needed) the local database at dsn,
// applies migrations, and returns the handle plus bound repositories.
func InitDatabase(ctx context.Context, dsn string) (*sql.DB, *Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	repos := &Repositories{
		Metadata: metadata.NewSQLiteRepository(db),
		Keys:     keys.NewSQLiteRepository(db),
		Staff:    staff.NewSQLiteRepository(db),
		Audit:    audit.NewSQLiteRepository(db),
		Invites:  invites.NewSQLiteRepository(db),
		Seen:     seen.NewSQLiteRepository(db),
	}
	return db, repos, nil
}
