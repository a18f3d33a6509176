// Package migrate creates the tables the server needs: the admin tables
// through versioned goose migrations and the content-type tables from the
// schema registry.
package migrate

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/mickamy/contentorm/orm"
	"github.com/mickamy/contentorm/schema"
)

//go:embed migrations
var migrationsFS embed.FS

func gooseDialect(d orm.Dialect) goose.Dialect {
	switch d.Name() {
	case orm.NameMySQL:
		return goose.DialectMySQL
	case orm.NamePostgreSQL:
		return goose.DialectPostgres
	default:
		return goose.DialectSQLite3
	}
}

func provider(db *orm.DB) (*goose.Provider, error) {
	fsys, err := fs.Sub(migrationsFS, "migrations/"+db.Dialect().Name())
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	p, err := goose.NewProvider(gooseDialect(db.Dialect()), db.Raw(), fsys)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return p, nil
}

// Up applies every pending admin migration.
func Up(ctx context.Context, db *orm.DB) error {
	p, err := provider(db)
	if err != nil {
		return err
	}
	results, err := p.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate: up: %w", err)
	}
	log := zerolog.Ctx(ctx)
	for _, r := range results {
		log.Info().Str("migration", r.Source.Path).Dur("took", r.Duration).Msg("applied")
	}
	return nil
}

// Version returns the current admin schema version.
func Version(ctx context.Context, db *orm.DB) (int64, error) {
	p, err := provider(db)
	if err != nil {
		return 0, err
	}
	v, err := p.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("migrate: version: %w", err)
	}
	return v, nil
}

// SyncContentTypes creates the missing tables of every model and group in
// registry. Existing tables are left as they are.
func SyncContentTypes(ctx context.Context, db *orm.DB, registry *schema.Registry) error {
	models := append(registry.Models(), registry.Groups()...)
	return db.Transaction(ctx, func(tx *orm.Tx) error {
		for _, m := range models {
			for _, stmt := range schema.Statements(m, db.Dialect()) {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("migrate: sync %s: %w", m.UID, err)
				}
			}
			zerolog.Ctx(ctx).Debug().Str("model", m.UID).Str("table", m.CollectionName).Msg("synced")
		}
		return nil
	})
}
