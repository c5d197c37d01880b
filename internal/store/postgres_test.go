package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)

func eventRow(id string, start, end int64) []any {
	return []any{id, int64(7), "Standup", "daily", start, end, testTime, testTime}
}

func TestUserCreateLowercasesEmail(t *testing.T) {
	pool := &mockPool{t: t, queries: []queryExpectation{{
		expect: regexp.MustCompile("INSERT INTO users"),
		args:   []any{"ada", "ada@example.com", "hash", (*string)(nil)},
		values: []any{int64(1), "ada", "ada@example.com", "hash", nil, testTime},
	}}}
	s := New(pool)

	u, err := s.Users.Create(context.Background(), User{Name: "ada", Email: "Ada@Example.COM", PasswordHash: "hash"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.ID)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.Nil(t, u.OIDCSubject)
	pool.assertDone()
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	pool := &mockPool{t: t, queries: []queryExpectation{{
		expect: regexp.MustCompile("INSERT INTO users"),
		err:    &pgconn.PgError{Code: "23505"},
	}}}

	_, err := New(pool).Users.Create(context.Background(), User{Name: "ada", Email: "ada@example.com"})
	require.ErrorIs(t, err, ErrConflict)
}

func TestUserGetByEmailNotFound(t *testing.T) {
	pool := &mockPool{t: t, queries: []queryExpectation{{
		expect: regexp.MustCompile("FROM users WHERE email=\\$1"),
		args:   []any{"nobody@example.com"},
		err:    pgx.ErrNoRows,
	}}}

	_, err := New(pool).Users.GetByEmail(context.Background(), "Nobody@example.com")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUserUpsertOIDCReturnsLinkedUser(t *testing.T) {
	subject := "sub-1"
	pool := &mockPool{t: t, queries: []queryExpectation{{
		expect: regexp.MustCompile("WHERE oidc_subject=\\$1"),
		args:   []any{subject},
		values: []any{int64(3), "ada", "ada@example.com", "", &subject, testTime},
	}}}

	u, err := New(pool).Users.UpsertOIDC(context.Background(), subject, "ada@example.com", "ada")
	require.NoError(t, err)
	require.NotNil(t, u.OIDCSubject)
	assert.Equal(t, subject, *u.OIDCSubject)
	pool.assertDone()
}

func TestUserUpsertOIDCLinksByEmail(t *testing.T) {
	subject := "sub-2"
	pool := &mockPool{t: t, queries: []queryExpectation{
		{expect: regexp.MustCompile("WHERE oidc_subject=\\$1"), err: pgx.ErrNoRows},
		{
			expect: regexp.MustCompile("ON CONFLICT \\(email\\) DO UPDATE"),
			args:   []any{"ada", "ada@example.com", subject},
			values: []any{int64(3), "ada", "ada@example.com", "hash", &subject, testTime},
		},
	}}

	u, err := New(pool).Users.UpsertOIDC(context.Background(), subject, "ADA@example.com", "ada")
	require.NoError(t, err)
	assert.Equal(t, "hash", u.PasswordHash)
	pool.assertDone()
}

func TestUserUpsertOIDCKeepsExistingLink(t *testing.T) {
	pool := &mockPool{t: t, queries: []queryExpectation{
		{expect: regexp.MustCompile("WHERE oidc_subject=\\$1"), err: pgx.ErrNoRows},
		{
			expect: regexp.MustCompile("WHERE users.oidc_subject IS NULL"),
			args:   []any{"mallory", "ada@example.com", "other-subject"},
			err:    pgx.ErrNoRows,
		},
	}}

	_, err := New(pool).Users.UpsertOIDC(context.Background(), "other-subject", "ada@example.com", "mallory")
	require.ErrorIs(t, err, ErrAccountLinked)
	pool.assertDone()
}

func TestTokenDeleteNotFound(t *testing.T) {
	pool := &mockPool{t: t, execs: []execExpectation{{
		expect: regexp.MustCompile("DELETE FROM user_tokens WHERE user_id=\\$1 AND token_hash=\\$2"),
		args:   []any{int64(1), "abc"},
		rows:   0,
	}}}

	err := New(pool).Tokens.Delete(context.Background(), 1, "abc")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTokenDeleteExpiredReportsCount(t *testing.T) {
	pool := &mockPool{t: t, execs: []execExpectation{{
		expect: regexp.MustCompile("DELETE FROM user_tokens WHERE expires_at <= \\$1"),
		args:   []any{testTime},
		rows:   4,
	}}}

	n, err := New(pool).Tokens.DeleteExpired(context.Background(), testTime)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestTokenFindActive(t *testing.T) {
	expires := testTime.Add(time.Hour)
	pool := &mockPool{t: t, queries: []queryExpectation{{
		expect: regexp.MustCompile("FROM user_tokens WHERE token_hash=\\$1 AND expires_at > \\$2"),
		args:   []any{"abc", testTime},
		values: []any{int64(9), int64(1), "abc", testTime, expires},
	}}}

	tok, err := New(pool).Tokens.FindActive(context.Background(), "abc", testTime)
	require.NoError(t, err)
	assert.Equal(t, int64(9), tok.ID)
	assert.Equal(t, expires, tok.ExpiresAt)
}

func TestEventCreateRejectsInvalidRange(t *testing.T) {
	pool := &mockPool{t: t}
	_, err := New(pool).Events.Create(context.Background(), Event{ID: "a", UserID: 7, StartMS: 10, EndMS: 10})
	require.ErrorIs(t, err, ErrInvalidRange)
	pool.assertDone()
}

func TestEventCreateDuplicateID(t *testing.T) {
	pool := &mockPool{t: t, queries: []queryExpectation{{
		expect: regexp.MustCompile("INSERT INTO events"),
		err:    &pgconn.PgError{Code: "23505"},
	}}}
	_, err := New(pool).Events.Create(context.Background(), Event{ID: "a", UserID: 7, StartMS: 10, EndMS: 20})
	require.ErrorIs(t, err, ErrConflict)
}

func TestEventUpdateAppliesPatch(t *testing.T) {
	end := int64(5000)
	tx := &mockTx{queries: []queryExpectation{
		{
			expect: regexp.MustCompile("FOR UPDATE"),
			args:   []any{"a", int64(7)},
			values: eventRow("a", 1000, 2000),
		},
		{
			expect: regexp.MustCompile("UPDATE events SET"),
			args:   []any{"a", int64(7), "Standup", "daily", int64(1000), int64(5000)},
			values: eventRow("a", 1000, 5000),
		},
	}}
	pool := &mockPool{t: t, txs: []*mockTx{tx}}

	ev, err := New(pool).Events.Update(context.Background(), 7, "a", EventPatch{EndMS: &end})
	require.NoError(t, err)
	assert.Equal(t, int64(5000), ev.EndMS)
	tx.assertDone(t)
	assert.True(t, tx.committed)
}

func TestEventUpdateRejectsInvertedRange(t *testing.T) {
	start := int64(3000)
	tx := &mockTx{queries: []queryExpectation{{
		expect: regexp.MustCompile("FOR UPDATE"),
		values: eventRow("a", 1000, 2000),
	}}}
	pool := &mockPool{t: t, txs: []*mockTx{tx}}

	_, err := New(pool).Events.Update(context.Background(), 7, "a", EventPatch{StartMS: &start})
	require.ErrorIs(t, err, ErrInvalidRange)
	assert.True(t, tx.rolled)
	assert.False(t, tx.committed)
}

func TestEventUpdateMissing(t *testing.T) {
	tx := &mockTx{queries: []queryExpectation{{
		expect: regexp.MustCompile("FOR UPDATE"),
		err:    pgx.ErrNoRows,
	}}}
	pool := &mockPool{t: t, txs: []*mockTx{tx}}

	title := "x"
	_, err := New(pool).Events.Update(context.Background(), 7, "missing", EventPatch{Title: &title})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEventDeleteScopedToOwner(t *testing.T) {
	pool := &mockPool{t: t, execs: []execExpectation{
		{expect: regexp.MustCompile("DELETE FROM events WHERE id=\\$1 AND user_id=\\$2"), args: []any{"a", int64(7)}, rows: 1},
		{expect: regexp.MustCompile("DELETE FROM events"), args: []any{"a", int64(8)}, rows: 0},
	}}
	s := New(pool)

	require.NoError(t, s.Events.Delete(context.Background(), 7, "a"))
	require.ErrorIs(t, s.Events.Delete(context.Background(), 8, "a"), ErrNotFound)
	pool.assertDone()
}

func TestEventListInRange(t *testing.T) {
	pool := &mockPool{t: t, selects: []rowsExpectation{{
		expect: regexp.MustCompile("start_ms < \\$3 AND end_ms > \\$2"),
		args:   []any{int64(7), int64(0), int64(86_400_000)},
		rows:   [][]any{
			eventRow("a", 1000, 2000),
			eventRow("b", 3000, 4000),
		},
	}}}

	events, err := New(pool).Events.ListInRange(context.Background(), 7, 0, 86_400_000)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].ID)
	assert.Equal(t, "b", events[1].ID)
	pool.assertDone()
}

func TestEventListInRangeQueryError(t *testing.T) {
	pool := &mockPool{t: t, selects: []rowsExpectation{{
		expect: regexp.MustCompile("FROM events"),
		err:    errors.New("connection reset"),
	}}}

	_, err := New(pool).Events.ListInRange(context.Background(), 7, 0, 1)
	require.ErrorContains(t, err, "list events")
}

func TestTranslate(t *testing.T) {
	assert.Nil(t, translate(nil))
	assert.ErrorIs(t, translate(fmt.Errorf("wrap: %w", pgx.ErrNoRows)), ErrNotFound)
	assert.ErrorIs(t, translate(&pgconn.PgError{Code: "23505"}), ErrConflict)
	assert.ErrorIs(t, translate(&pgconn.PgError{Code: "23514"}), ErrInvalidRange)
	other := errors.New("other")
	assert.Equal(t, other, translate(other))
}

func TestEventPatchApply(t *testing.T) {
	title := "New"
	ev := Event{Title: "Old", Description: "d", StartMS: 1, EndMS: 2}
	got := EventPatch{Title: &title}.Apply(ev)
	assert.Equal(t, "New", got.Title)
	assert.Equal(t, "d", got.Description)
	assert.Equal(t, int64(2), got.EndMS)
}
