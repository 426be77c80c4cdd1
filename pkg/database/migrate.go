package database

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jmoiron/sqlx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations returns the schema statements in apply order.
func Migrations() ([]string, error) {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	out := make([]string, 0, len(names))
	for _, name := range names {
		data, err := migrationsFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		out = append(out, string(data))
	}
	return out, nil
}

// Migrate applies every embedded migration. Statements are idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	stmts, err := Migrations()
	if err != nil {
		return err
	}
	err = db.Transaction(ctx, func(tx *sqlx.Tx) error {
		for i, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migration %d failed: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	db.logger.Info().Int("migrations", len(stmts)).Msg("database schema up to date")
	return nil
}
