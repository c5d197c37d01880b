package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jw6ventures/calgrid/internal/metrics"
)

// DB is the subset of pgxpool.Pool used by the repositories. Tests supply
// their own implementation.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

var _ DB = (*pgxpool.Pool)(nil)

// Store aggregates repositories backed by PostgreSQL.
type Store struct {
	pool DB

	Users  UserRepository
	Tokens TokenRepository
	Events EventRepository
}

// New wires concrete repository implementations with shared connection pool.
func New(pool DB) *Store {
	return &Store{
		pool:   pool,
		Users:  &userRepo{pool: pool},
		Tokens: &tokenRepo{pool: pool},
		Events: &eventRepo{pool: pool},
	}
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	defer observeDB(ctx, "db.migrate")()
	return ApplyMigrations(ctx, s.pool)
}

// HealthCheck verifies that the underlying database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("store has no database")
	}
	defer observeDB(ctx, "db.healthcheck")()
	return s.pool.Ping(ctx)
}

// observeDB records the latency of one database operation when the returned
// func is called.
func observeDB(ctx context.Context, operation string) func() {
	start := time.Now()
	return func() {
		metrics.ObserveDBLatency(ctx, operation, start)
	}
}
