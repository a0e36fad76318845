package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/registro/internal/logging"
	"github.com/dmitrijs2005/registro/internal/migrations"
	"github.com/pressly/goose/v3"
)

// SchemaVersion is the version a store is upgraded to on Open.
const SchemaVersion int64 = 5

func newProvider(db *sql.DB) (*goose.Provider, error) {
	p, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.Migrations)
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	return p, nil
}

// Migrate upgrades db to SchemaVersion. Steps already recorded as applied
// are skipped, so calling it on an up-to-date database is a no-op.
func Migrate(ctx context.Context, db *sql.DB, log logging.Logger) error {
	return MigrateTo(ctx, db, SchemaVersion, log)
}

// MigrateTo applies every pending step up to and including version.
func MigrateTo(ctx context.Context, db *sql.DB, version int64, log logging.Logger) error {
	p, err := newProvider(db)
	if err != nil {
		return err
	}

	results, err := p.UpTo(ctx, version)
	if err != nil {
		return fmt.Errorf("failed to migrate to version %d: %w", version, err)
	}

	for _, r := range results {
		log.Info(ctx, "migration applied", "version", r.Source.Version, "file", r.Source.Path, "duration", r.Duration)
	}
	return nil
}

func schemaVersion(ctx context.Context, db *sql.DB) (int64, error) {
	p, err := newProvider(db)
	if err != nil {
		return 0, err
	}
	v, err := p.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}
