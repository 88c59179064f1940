// Package migrations carries the dialect-keyed schema for the SQL
// store as embedded filesystems, so deployments can register them with
// whatever migration runner they already use, or apply them directly.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"slices"
	"strings"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

//go:embed sql/postgres/*.sql sql/sqlite/*.sql
var schemaFS embed.FS

// RegisterFunc is the integration point for an external migration
// runner: called once per dialect with the migration filesystem.
type RegisterFunc func(ctx context.Context, dialect string, fsys fs.FS) error

// Register hands each supported dialect's migration filesystem to fn.
func Register(ctx context.Context, fn RegisterFunc) error {
	if fn == nil {
		return fmt.Errorf("migrations: register func is required")
	}
	for _, dialect := range []string{DialectPostgres, DialectSQLite} {
		fsys, err := Filesystem(dialect)
		if err != nil {
			return err
		}
		if err := fn(ctx, dialect, fsys); err != nil {
			return fmt.Errorf("migrations: register %s: %w", dialect, err)
		}
	}
	return nil
}

// Filesystem returns the migration files for one dialect, rooted at
// the directory containing the numbered .sql files.
func Filesystem(dialect string) (fs.FS, error) {
	dialect = strings.ToLower(strings.TrimSpace(dialect))
	switch dialect {
	case DialectPostgres, DialectSQLite:
		return fs.Sub(schemaFS, "sql/"+dialect)
	default:
		return nil, fmt.Errorf("migrations: unsupported dialect %q", dialect)
	}
}

// Statements returns the dialect's migration files in lexical order.
func Statements(dialect string) ([]string, error) {
	fsys, err := Filesystem(dialect)
	if err != nil {
		return nil, err
	}
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: list %s migrations: %w", dialect, err)
	}
	slices.Sort(names)

	statements := make([]string, 0, len(names))
	for _, name := range names {
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("migrations: read %s: %w", name, err)
		}
		statements = append(statements, string(content))
	}
	return statements, nil
}

// Apply executes every migration file against db in order. Files use
// IF NOT EXISTS guards, so Apply is safe to run repeatedly.
func Apply(ctx context.Context, db *sql.DB, dialect string) error {
	if db == nil {
		return fmt.Errorf("migrations: db is required")
	}
	statements, err := Statements(dialect)
	if err != nil {
		return err
	}
	for _, statement := range statements {
		for _, chunk := range splitStatements(statement) {
			if _, err := db.ExecContext(ctx, chunk); err != nil {
				return fmt.Errorf("migrations: apply %s migration: %w", dialect, err)
			}
		}
	}
	return nil
}

func splitStatements(script string) []string {
	parts := strings.Split(script, ";")
	chunks := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			chunks = append(chunks, trimmed)
		}
	}
	return chunks
}
