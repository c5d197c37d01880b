package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

var (
	trackingQuery = regexp.MustCompile("information_schema.tables\\s+WHERE table_schema='public'")
	countQuery    = regexp.MustCompile("SELECT COUNT\\(\\*\\) FROM information_schema.tables")
	createTable   = regexp.MustCompile("CREATE TABLE IF NOT EXISTS schema_migrations")
	appliedQuery  = regexp.MustCompile("SELECT EXISTS \\(SELECT 1 FROM schema_migrations WHERE version=\\$1\\)")
	recordExec    = regexp.MustCompile("INSERT INTO schema_migrations")
	lockExec      = regexp.MustCompile("pg_advisory_xact_lock")
)

func migrationTx(marker, name string) *mockTx {
	return &mockTx{
		execs: []execExpectation{
			{expect: lockExec, args: []any{migrationLockID}},
			{expect: regexp.MustCompile(regexp.QuoteMeta(marker))},
			{expect: recordExec, args: []any{name}},
		},
		queries: []queryExpectation{
			{expect: appliedQuery, args: []any{name}, value: false},
		},
	}
}

func TestApplyMigrationsEmptyDatabase(t *testing.T) {
	tx := migrationTx("-- Initial schema for calgrid", "001_init.sql")
	pool := &mockPool{
		t: t,
		queries: []queryExpectation{
			{expect: trackingQuery, value: false},
			{expect: countQuery, value: 0},
			{expect: appliedQuery, args: []any{"001_init.sql"}, value: false},
		},
		execs: []execExpectation{{expect: createTable}},
		txs:   []*mockTx{tx},
	}

	require.NoError(t, ApplyMigrations(context.Background(), pool))
	pool.assertDone()
	tx.assertDone(t)
	require.True(t, tx.committed)
}

func TestApplyMigrationsPopulatedWithoutTracking(t *testing.T) {
	files := fstest.MapFS{
		"001_init.sql": {Data: []byte("-- first\nCREATE TABLE a (id INT);")},
		"002_more.sql": {Data: []byte("-- second\nALTER TABLE a ADD COLUMN b INT;")},
		"README":       {Data: []byte("not a migration")},
	}
	tx := migrationTx("-- second", "002_more.sql")
	pool := &mockPool{
		t: t,
		queries: []queryExpectation{
			{expect: trackingQuery, value: false},
			{expect: countQuery, value: 3},
			{expect: appliedQuery, args: []any{"001_init.sql"}, value: true},
			{expect: appliedQuery, args: []any{"002_more.sql"}, value: false},
		},
		execs: []execExpectation{
			{expect: createTable},
			{expect: recordExec, args: []any{"001_init.sql"}},
		},
		txs: []*mockTx{tx},
	}

	require.NoError(t, applyFrom(context.Background(), pool, files))
	pool.assertDone()
	tx.assertDone(t)
}

func TestApplyMigrationsAllAlreadyApplied(t *testing.T) {
	pool := &mockPool{
		t: t,
		queries: []queryExpectation{
			{expect: trackingQuery, value: true},
			{expect: appliedQuery, args: []any{"001_init.sql"}, value: true},
		},
	}

	require.NoError(t, ApplyMigrations(context.Background(), pool))
	pool.assertDone()
}

func TestApplyMigrationsSkipsWhenAppliedWhileWaitingForLock(t *testing.T) {
	tx := &mockTx{
		execs: []execExpectation{{expect: lockExec, args: []any{migrationLockID}}},
		queries: []queryExpectation{
			{expect: appliedQuery, args: []any{"001_init.sql"}, value: true},
		},
	}
	pool := &mockPool{
		t: t,
		queries: []queryExpectation{
			{expect: trackingQuery, value: true},
			{expect: appliedQuery, args: []any{"001_init.sql"}, value: false},
		},
		txs: []*mockTx{tx},
	}

	require.NoError(t, ApplyMigrations(context.Background(), pool))
	pool.assertDone()
	tx.assertDone(t)
	require.True(t, tx.committed)
}

func TestApplyMigrationsRollsBackOnFailure(t *testing.T) {
	files := fstest.MapFS{
		"001_init.sql": {Data: []byte("-- broken\nCREATE TABLE")},
	}
	boom := errors.New("syntax error")
	tx := &mockTx{
		execs: []execExpectation{
			{expect: lockExec},
			{expect: regexp.MustCompile("-- broken"), err: boom},
		},
		queries: []queryExpectation{
			{expect: appliedQuery, value: false},
		},
	}
	pool := &mockPool{
		t: t,
		queries: []queryExpectation{
			{expect: trackingQuery, value: true},
			{expect: appliedQuery, value: false},
		},
		txs: []*mockTx{tx},
	}

	err := applyFrom(context.Background(), pool, files)
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "apply migration 001_init.sql")
	require.True(t, tx.rolled)
	require.False(t, tx.committed)
}

func TestApplyMigrationsNoFiles(t *testing.T) {
	pool := &mockPool{t: t}
	require.NoError(t, applyFrom(context.Background(), pool, fstest.MapFS{}))
	pool.assertDone()
}
