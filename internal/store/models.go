package store

import "time"

// User is an account that owns events. PasswordHash is empty for users that
// only sign in through OIDC.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	OIDCSubject  *string
	CreatedAt    time.Time
}

// Token is an issued login token. Only its hash is stored.
type Token struct {
	ID        int64
	UserID    int64
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Event is a calendar event owned by a user. Times are ms since epoch.
type Event struct {
	ID          string
	UserID      int64
	Title       string
	Description string
	StartMS     int64
	EndMS       int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EventPatch holds the fields of a partial update. Nil fields are unchanged.
type EventPatch struct {
	Title       *string
	Description *string
	StartMS     *int64
	EndMS       *int64
}

// Apply returns ev with the patch applied.
func (p EventPatch) Apply(ev Event) Event {
	if p.Title != nil {
		ev.Title = *p.Title
	}
	if p.Description != nil {
		ev.Description = *p.Description
	}
	if p.StartMS != nil {
		ev.StartMS = *p.StartMS
	}
	if p.EndMS != nil {
		ev.EndMS = *p.EndMS
	}
	return ev
}
