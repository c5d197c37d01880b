package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// userRepo implements UserRepository.
type userRepo struct {
	pool DB
}

const userColumns = `id, name, email, COALESCE(password_hash, ''), oidc_subject, created_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.OIDCSubject, &u.CreatedAt); err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *userRepo) Create(ctx context.Context, user User) (*User, error) {
	defer observeDB(ctx, "users.create")()
	const q = `INSERT INTO users (name, email, password_hash, oidc_subject)
VALUES ($1, $2, NULLIF($3, ''), $4)
RETURNING ` + userColumns
	u, err := scanUser(r.pool.QueryRow(ctx, q, user.Name, strings.ToLower(user.Email), user.PasswordHash, user.OIDCSubject))
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func (r *userRepo) GetByID(ctx context.Context, id int64) (*User, error) {
	defer observeDB(ctx, "users.get_by_id")()
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	defer observeDB(ctx, "users.get_by_email")()
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, strings.ToLower(email)))
}

func (r *userRepo) UpsertOIDC(ctx context.Context, subject, email, name string) (*User, error) {
	defer observeDB(ctx, "users.upsert_oidc")()
	linked, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE oidc_subject=$1`, subject))
	if err == nil {
		return linked, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("find oidc user: %w", err)
	}

	const q = `INSERT INTO users (name, email, oidc_subject)
VALUES ($1, $2, $3)
ON CONFLICT (email) DO UPDATE SET oidc_subject = EXCLUDED.oidc_subject
WHERE users.oidc_subject IS NULL
RETURNING ` + userColumns
	u, err := scanUser(r.pool.QueryRow(ctx, q, name, strings.ToLower(email), subject))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrAccountLinked
	}
	if err != nil {
		return nil, fmt.Errorf("upsert oidc user: %w", err)
	}
	return u, nil
}

// tokenRepo implements TokenRepository.
type tokenRepo struct {
	pool DB
}

func (r *tokenRepo) Create(ctx context.Context, token Token) (*Token, error) {
	defer observeDB(ctx, "tokens.create")()
	const q = `INSERT INTO user_tokens (user_id, token_hash, expires_at)
VALUES ($1, $2, $3)
RETURNING id, created_at`
	if err := r.pool.QueryRow(ctx, q, token.UserID, token.TokenHash, token.ExpiresAt).Scan(&token.ID, &token.CreatedAt); err != nil {
		return nil, fmt.Errorf("create token: %w", translate(err))
	}
	return &token, nil
}

func (r *tokenRepo) FindActive(ctx context.Context, hash string, now time.Time) (*Token, error) {
	defer observeDB(ctx, "tokens.find_active")()
	const q = `SELECT id, user_id, token_hash, created_at, expires_at
FROM user_tokens WHERE token_hash=$1 AND expires_at > $2`
	var t Token
	if err := r.pool.QueryRow(ctx, q, hash, now).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt); err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (r *tokenRepo) Delete(ctx context.Context, userID int64, hash string) error {
	defer observeDB(ctx, "tokens.delete")()
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_tokens WHERE user_id=$1 AND token_hash=$2`, userID, hash)
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *tokenRepo) DeleteAllForUser(ctx context.Context, userID int64) (int64, error) {
	defer observeDB(ctx, "tokens.delete_all")()
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_tokens WHERE user_id=$1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *tokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	defer observeDB(ctx, "tokens.delete_expired")()
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// eventRepo implements EventRepository.
type eventRepo struct {
	pool DB
}

const eventColumns = `id, user_id, title, description, start_ms, end_ms, created_at, updated_at`

func scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	if err := row.Scan(&e.ID, &e.UserID, &e.Title, &e.Description, &e.StartMS, &e.EndMS, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	return &e, nil
}

func (r *eventRepo) Create(ctx context.Context, ev Event) (*Event, error) {
	defer observeDB(ctx, "events.create")()
	if ev.EndMS <= ev.StartMS {
		return nil, ErrInvalidRange
	}
	const q = `INSERT INTO events (id, user_id, title, description, start_ms, end_ms)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + eventColumns
	created, err := scanEvent(r.pool.QueryRow(ctx, q, ev.ID, ev.UserID, ev.Title, ev.Description, ev.StartMS, ev.EndMS))
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return created, nil
}

func (r *eventRepo) Get(ctx context.Context, userID int64, id string) (*Event, error) {
	defer observeDB(ctx, "events.get")()
	return scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id=$1 AND user_id=$2`, id, userID))
}

// Update applies patch under a row lock so concurrent partial updates cannot
// produce an end before the start.
func (r *eventRepo) Update(ctx context.Context, userID int64, id string, patch EventPatch) (*Event, error) {
	defer observeDB(ctx, "events.update")()
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin update event: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanEvent(tx.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id=$1 AND user_id=$2 FOR UPDATE`, id, userID))
	if err != nil {
		return nil, err
	}
	next := patch.Apply(*current)
	if next.EndMS <= next.StartMS {
		return nil, ErrInvalidRange
	}

	const q = `UPDATE events SET title=$3, description=$4, start_ms=$5, end_ms=$6, updated_at=NOW()
WHERE id=$1 AND user_id=$2
RETURNING ` + eventColumns
	updated, err := scanEvent(tx.QueryRow(ctx, q, id, userID, next.Title, next.Description, next.StartMS, next.EndMS))
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit update event: %w", err)
	}
	return updated, nil
}

func (r *eventRepo) Delete(ctx context.Context, userID int64, id string) error {
	defer observeDB(ctx, "events.delete")()
	tag, err := r.pool.Exec(ctx, `DELETE FROM events WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *eventRepo) ListInRange(ctx context.Context, userID int64, startMS, endMS int64) ([]Event, error) {
	defer observeDB(ctx, "events.list_in_range")()
	const q = `SELECT ` + eventColumns + ` FROM events
WHERE user_id=$1 AND start_ms < $3 AND end_ms > $2
ORDER BY start_ms, id`
	rows, err := r.pool.Query(ctx, q, userID, startMS, endMS)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out, nil
}
