package store

import (
	"context"
	"database/sql"
	_ "embed"
	"strings"

	"github.com/varflow/varflow/pkg/schema"
)

//go:embed migrations/001_initial_schema.sql
var initialSchemaSQL string

// migrations lists every schema script in order. Applied versions are
// recorded in schema_migrations so reopening an existing database is a no-op.
var migrations = []struct {
	version int
	name    string
	script  string
}{
	{1, "initial_schema", initialSchemaSQL},
}

// runMigrations brings the database up to the latest schema version.
func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return migrationError(0, "create migration table", err)
	}

	applied, err := appliedVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= applied {
			continue
		}
		if err := applyMigration(ctx, db, m.version, m.name, m.script); err != nil {
			return err
		}
	}
	return nil
}

func appliedVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v)
	if err != nil {
		return 0, migrationError(0, "read schema version", err)
	}
	return v, nil
}

// applyMigration runs one script and records its version, all in a single
// transaction so a partial failure leaves the previous version intact.
func applyMigration(ctx context.Context, db *sql.DB, version int, name, script string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return migrationError(version, name, err)
	}
	defer tx.Rollback()

	for _, stmt := range sqlStatements(script) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return migrationError(version, name, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, version, name); err != nil {
		return migrationError(version, name, err)
	}
	if err := tx.Commit(); err != nil {
		return migrationError(version, name, err)
	}
	return nil
}

func migrationError(version int, what string, cause error) *schema.FlowError {
	e := schema.NewErrorf(schema.ErrCodeStore, "migration failed: %s", what).WithCause(cause)
	if version > 0 {
		e = e.WithDetails(map[string]any{"version": version})
	}
	return e
}

// sqlStatements splits an embedded script into executable statements,
// dropping fragments that hold only whitespace or -- comments.
func sqlStatements(script string) []string {
	var out []string
	for _, chunk := range strings.Split(script, ";") {
		if stmt := strings.TrimSpace(chunk); hasSQL(stmt) {
			out = append(out, stmt)
		}
	}
	return out
}

func hasSQL(stmt string) bool {
	for _, line := range strings.Split(stmt, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return true
		}
	}
	return false
}
