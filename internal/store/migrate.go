package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ApplyMigrations brings the schema up to date by running every pending
// *.up.sql file in migrationsDir in lexicographic order, each inside
// its own transaction. Applied file names are recorded in the
// applied_migrations table, so reruns are no-ops and the server can
// migrate unconditionally on boot.
func ApplyMigrations(ctx context.Context, db *sql.DB, migrationsDir string) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS applied_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("create applied_migrations: %w", err)
	}

	pending, err := pendingMigrations(ctx, db, migrationsDir)
	if err != nil {
		return err
	}
	for _, name := range pending {
		if err := runMigration(ctx, db, filepath.Join(migrationsDir, name), name); err != nil {
			return err
		}
	}
	return nil
}

// pendingMigrations lists the up-migrations in dir that have not been
// applied yet, sorted by file name.
func pendingMigrations(ctx context.Context, db *sql.DB, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	var pending []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		var applied bool
		err := db.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM applied_migrations WHERE version = $1)
		`, name).Scan(&applied)
		if err != nil {
			return nil, fmt.Errorf("migration %s: check: %w", name, err)
		}
		if !applied {
			pending = append(pending, name)
		}
	}
	sort.Strings(pending)
	return pending, nil
}

// runMigration executes one migration script and records it, atomically.
func runMigration(ctx context.Context, db *sql.DB, path, name string) error {
	script, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("migration %s: read: %w", name, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %s: begin: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, string(script)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migration %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO applied_migrations (version) VALUES ($1)`, name); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("migration %s: record: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration %s: commit: %w", name, err)
	}
	return nil
}
