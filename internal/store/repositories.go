package store

import (
	"context"
	"time"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, user User) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	// UpsertOIDC finds the user linked to subject, links an existing account
	// with the same email, or creates a new one. An account already linked to
	// another subject is never relinked; that returns ErrAccountLinked.
	UpsertOIDC(ctx context.Context, subject, email, name string) (*User, error)
}

// TokenRepository stores hashes of issued login tokens.
type TokenRepository interface {
	Create(ctx context.Context, token Token) (*Token, error)
	// FindActive returns the unexpired token with the given hash.
	FindActive(ctx context.Context, hash string, now time.Time) (*Token, error)
	Delete(ctx context.Context, userID int64, hash string) error
	DeleteAllForUser(ctx context.Context, userID int64) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// EventRepository handles event storage. Every call is scoped to the owner.
type EventRepository interface {
	Create(ctx context.Context, ev Event) (*Event, error)
	Get(ctx context.Context, userID int64, id string) (*Event, error)
	Update(ctx context.Context, userID int64, id string, patch EventPatch) (*Event, error)
	Delete(ctx context.Context, userID int64, id string) error
	// ListInRange returns events overlapping [startMS, endMS) ordered by start.
	ListInRange(ctx context.Context, userID int64, startMS, endMS int64) ([]Event, error)
}
