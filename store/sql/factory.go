package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// Open connects a bun DB for the given driver. Supported drivers are
// sqlite3 and postgres.
func Open(driver string, dsn string) (*bun.DB, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("sqlstore: dsn is required")
	}

	switch driver {
	case "sqlite3", "sqlite":
		sqldb, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: open sqlite: %w", err)
		}
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	case "postgres", "pg":
		sqldb, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("sqlstore: open postgres: %w", err)
		}
		return bun.NewDB(sqldb, pgdialect.New()), nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
}

// CreateTables provisions the store schema. Intended for tests and
// single-node sqlite deployments; shared deployments own their schema
// through migrations.
func CreateTables(ctx context.Context, db *bun.DB) error {
	if db == nil {
		return fmt.Errorf("sqlstore: bun db is required")
	}
	if _, err := db.NewCreateTable().
		Model((*subscriptionRecord)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("sqlstore: create subscriptions table: %w", err)
	}
	if _, err := db.NewCreateTable().
		Model((*idempotencyRecord)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("sqlstore: create idempotency table: %w", err)
	}
	if _, err := db.NewCreateIndex().
		Model((*idempotencyRecord)(nil)).
		Index("ux_ingest_idempotency_namespace_key").
		Unique().
		IfNotExists().
		Column("namespace", "key").
		Exec(ctx); err != nil {
		return fmt.Errorf("sqlstore: create idempotency unique index: %w", err)
	}
	if _, err := db.NewCreateIndex().
		Model((*subscriptionRecord)(nil)).
		Index("ix_ingest_subscriptions_route").
		IfNotExists().
		Column("route").
		Exec(ctx); err != nil {
		return fmt.Errorf("sqlstore: create subscription route index: %w", err)
	}
	return nil
}
