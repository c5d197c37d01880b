package store

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jw6ventures/calgrid/internal/log"
	"github.com/jw6ventures/calgrid/internal/migrations"
)

// migrationLockID serializes migration transactions across server instances.
const migrationLockID int64 = 0x63616c67726964 // "calgrid"

// PgxPool represents the subset of pgxpool.Pool used by the migration runner.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// ApplyMigrations applies every embedded migration not yet recorded in
// schema_migrations, each in its own transaction. A database that already has
// tables but no tracking table is assumed to contain the first migration.
func ApplyMigrations(ctx context.Context, pool PgxPool) error {
	return applyFrom(ctx, pool, migrations.Files)
}

func applyFrom(ctx context.Context, pool PgxPool, files fs.FS) error {
	names, err := migrationNames(files)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return nil
	}

	tracked, err := queryBool(ctx, pool, `SELECT EXISTS (
        SELECT 1 FROM information_schema.tables
        WHERE table_schema='public' AND table_name='schema_migrations'
)`)
	if err != nil {
		return fmt.Errorf("check migration table: %w", err)
	}

	if !tracked {
		var tables int
		if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM information_schema.tables
WHERE table_schema NOT IN ('pg_catalog', 'information_schema')`).Scan(&tables); err != nil {
			return fmt.Errorf("count tables: %w", err)
		}
		if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
        version TEXT PRIMARY KEY,
        applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
			return fmt.Errorf("create schema_migrations: %w", err)
		}
		if tables > 0 {
			if _, err := pool.Exec(ctx, recordMigrationSQL, names[0]); err != nil {
				return fmt.Errorf("record migration %s: %w", names[0], err)
			}
			log.Info("existing schema found, marking migration as applied", "version", names[0])
		}
	}

	for _, name := range names {
		applied, err := queryBool(ctx, pool, migrationAppliedSQL, name)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied {
			continue
		}
		if err := applyOne(ctx, pool, files, name); err != nil {
			return err
		}
	}
	return nil
}

const (
	migrationAppliedSQL = `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version=$1)`
	recordMigrationSQL  = `INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT (version) DO NOTHING`
)

func migrationNames(files fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(files, ".")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// applyOne runs one migration under the migration lock. Another instance may
// have applied it while this one waited, so the check is repeated inside the
// transaction.
func applyOne(ctx context.Context, pool PgxPool, files fs.FS, name string) error {
	contents, err := fs.ReadFile(files, name)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", name, err)
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin migration %s: %w", name, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
		return fmt.Errorf("lock migration %s: %w", name, err)
	}
	applied, err := queryBool(ctx, tx, migrationAppliedSQL, name)
	if err != nil {
		return fmt.Errorf("recheck migration %s: %w", name, err)
	}
	if applied {
		return tx.Commit(ctx)
	}
	if _, err := tx.Exec(ctx, string(contents)); err != nil {
		return fmt.Errorf("apply migration %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx, recordMigrationSQL, name); err != nil {
		return fmt.Errorf("record migration %s: %w", name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %s: %w", name, err)
	}
	log.Info("applied migration", "version", name)
	return nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func queryBool(ctx context.Context, q rowQuerier, sql string, args ...any) (bool, error) {
	var v bool
	if err := q.QueryRow(ctx, sql, args...).Scan(&v); err != nil {
		return false, err
	}
	return v, nil
}
