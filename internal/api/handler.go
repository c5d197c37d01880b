// Package api serves the JSON user and event endpoints.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jw6ventures/calgrid/internal/auth"
	"github.com/jw6ventures/calgrid/internal/config"
	httperrors "github.com/jw6ventures/calgrid/internal/http/errors"
	"github.com/jw6ventures/calgrid/internal/store"
)

const maxBodyBytes = 1 << 20

// Handler serves the API routes.
type Handler struct {
	cfg         *config.Config
	events      store.EventRepository
	authService *auth.Service
	oidc        *auth.OIDC
	now         func() time.Time
}

// NewHandler wires the API. oidc may be nil when OIDC sign-in is disabled.
func NewHandler(cfg *config.Config, events store.EventRepository, authService *auth.Service, oidc *auth.OIDC) *Handler {
	return &Handler{cfg: cfg, events: events, authService: authService, oidc: oidc, now: time.Now}
}

// currentUser returns the user set by auth.RequireToken.
func currentUser(w http.ResponseWriter, r *http.Request) (*store.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		httperrors.Unauthorized(w, r)
		return nil, false
	}
	return user, true
}

var errEmptyBody = errors.New("empty body")

// decodeJSON reads a single JSON value from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("decode body: %w", err)
	}
	if dec.More() {
		return errors.New("decode body: trailing data")
	}
	return nil
}

type userJSON struct {
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

func userView(u *store.User) userJSON {
	return userJSON{Name: u.Name, Email: u.Email, CreatedAt: u.CreatedAt}
}

type sessionJSON struct {
	Token string   `json:"token"`
	User  userJSON `json:"user"`
}

func sessionView(s *auth.Session) sessionJSON {
	return sessionJSON{Token: s.Token, User: userView(s.User)}
}

type eventJSON struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	StartTimestamp int64     `json:"startTimestamp"`
	EndTimestamp   int64     `json:"endTimestamp"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func eventView(e *store.Event) eventJSON {
	return eventJSON{
		ID:             e.ID,
		Title:          e.Title,
		Description:    e.Description,
		StartTimestamp: e.StartMS,
		EndTimestamp:   e.EndMS,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}
