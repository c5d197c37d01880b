package store

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound indicates a missing or unauthorized resource lookup.
var ErrNotFound = errors.New("record not found")

// ErrConflict indicates a unique constraint violation, such as a taken email
// or an event id that already exists.
var ErrConflict = errors.New("record already exists")

// ErrAccountLinked indicates an account with the email is already linked to a
// different OIDC subject.
var ErrAccountLinked = errors.New("account is linked to another identity")

// ErrInvalidRange indicates an event whose end is not after its start.
var ErrInvalidRange = errors.New("event end must be after start")

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return ErrConflict
		case pgCheckViolation:
			return ErrInvalidRange
		}
	}
	return err
}
