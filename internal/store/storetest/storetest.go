// Package storetest provides in-memory repositories for handler and service
// tests.
package storetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jw6ventures/calgrid/internal/store"
)

// New returns a Store backed by fresh in-memory repositories.
func New() (*store.Store, *Users, *Tokens, *Events) {
	users, tokens, events := NewUsers(), NewTokens(), NewEvents()
	st := &store.Store{Users: users, Tokens: tokens, Events: events}
	return st, users, tokens, events
}

// Users is an in-memory store.UserRepository.
type Users struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*store.User
}

func NewUsers() *Users {
	return &Users{byID: map[int64]*store.User{}}
}

func (f *Users) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID)
}

func (f *Users) Create(ctx context.Context, user store.User) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user.Email = strings.ToLower(user.Email)
	for _, u := range f.byID {
		if u.Email == user.Email {
			return nil, store.ErrConflict
		}
	}
	f.nextID++
	user.ID = f.nextID
	user.CreatedAt = time.Now()
	f.byID[user.ID] = &user
	cp := user
	return &cp, nil
}

func (f *Users) GetByID(ctx context.Context, id int64) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *Users) GetByEmail(ctx context.Context, email string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == strings.ToLower(email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *Users) UpsertOIDC(ctx context.Context, subject, email, name string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.OIDCSubject != nil && *u.OIDCSubject == subject {
			cp := *u
			return &cp, nil
		}
	}
	email = strings.ToLower(email)
	for _, u := range f.byID {
		if u.Email == email {
			if u.OIDCSubject != nil {
				return nil, store.ErrAccountLinked
			}
			u.OIDCSubject = &subject
			cp := *u
			return &cp, nil
		}
	}
	f.nextID++
	u := &store.User{ID: f.nextID, Name: name, Email: email, OIDCSubject: &subject, CreatedAt: time.Now()}
	f.byID[u.ID] = u
	cp := *u
	return &cp, nil
}

// Tokens is an in-memory store.TokenRepository keyed by hash.
type Tokens struct {
	mu     sync.Mutex
	nextID int64
	rows   map[string]store.Token
}

func NewTokens() *Tokens {
	return &Tokens{rows: map[string]store.Token{}}
}

func (f *Tokens) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

// Put overwrites the row for token.TokenHash.
func (f *Tokens) Put(token store.Token) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[token.TokenHash] = token
}

func (f *Tokens) Create(ctx context.Context, token store.Token) (*store.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[token.TokenHash]; ok {
		return nil, store.ErrConflict
	}
	f.nextID++
	token.ID = f.nextID
	token.CreatedAt = time.Now()
	f.rows[token.TokenHash] = token
	return &token, nil
}

func (f *Tokens) FindActive(ctx context.Context, hash string, now time.Time) (*store.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.rows[hash]
	if !ok || !t.ExpiresAt.After(now) {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (f *Tokens) Delete(ctx context.Context, userID int64, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.rows[hash]
	if !ok || t.UserID != userID {
		return store.ErrNotFound
	}
	delete(f.rows, hash)
	return nil
}

func (f *Tokens) DeleteAllForUser(ctx context.Context, userID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for h, t := range f.rows {
		if t.UserID == userID {
			delete(f.rows, h)
			n++
		}
	}
	return n, nil
}

func (f *Tokens) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for h, t := range f.rows {
		if !t.ExpiresAt.After(now) {
			delete(f.rows, h)
			n++
		}
	}
	return n, nil
}

// Events is an in-memory store.EventRepository. Err, when set, is returned by
// every call.
type Events struct {
	mu   sync.Mutex
	rows map[string]store.Event
	Err  error
}

func NewEvents() *Events {
	return &Events{rows: map[string]store.Event{}}
}

// Put stores ev as is.
func (f *Events) Put(ev store.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[ev.ID] = ev
}

// Lookup returns ev regardless of owner.
func (f *Events) Lookup(id string) (store.Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.rows[id]
	return ev, ok
}

func (f *Events) Create(ctx context.Context, ev store.Event) (*store.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if ev.EndMS <= ev.StartMS {
		return nil, store.ErrInvalidRange
	}
	if _, ok := f.rows[ev.ID]; ok {
		return nil, store.ErrConflict
	}
	ev.CreatedAt = time.Now()
	ev.UpdatedAt = ev.CreatedAt
	f.rows[ev.ID] = ev
	return &ev, nil
}

func (f *Events) Get(ctx context.Context, userID int64, id string) (*store.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	ev, ok := f.rows[id]
	if !ok || ev.UserID != userID {
		return nil, store.ErrNotFound
	}
	return &ev, nil
}

func (f *Events) Update(ctx context.Context, userID int64, id string, patch store.EventPatch) (*store.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	ev, ok := f.rows[id]
	if !ok || ev.UserID != userID {
		return nil, store.ErrNotFound
	}
	next := patch.Apply(ev)
	if next.EndMS <= next.StartMS {
		return nil, store.ErrInvalidRange
	}
	next.UpdatedAt = time.Now()
	f.rows[id] = next
	return &next, nil
}

func (f *Events) Delete(ctx context.Context, userID int64, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	ev, ok := f.rows[id]
	if !ok || ev.UserID != userID {
		return store.ErrNotFound
	}
	delete(f.rows, id)
	return nil
}

func (f *Events) ListInRange(ctx context.Context, userID int64, startMS, endMS int64) ([]store.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []store.Event
	for _, ev := range f.rows {
		if ev.UserID == userID && ev.StartMS < endMS && ev.EndMS > startMS {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartMS != out[j].StartMS {
			return out[i].StartMS < out[j].StartMS
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

var (
	_ store.UserRepository  = (*Users)(nil)
	_ store.TokenRepository = (*Tokens)(nil)
	_ store.EventRepository = (*Events)(nil)
)
