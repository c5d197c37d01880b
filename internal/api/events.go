package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	httperrors "github.com/jw6ventures/calgrid/internal/http/errors"
	"github.com/jw6ventures/calgrid/internal/ics"
	"github.com/jw6ventures/calgrid/internal/store"
)

// eventKeys are the body keys a client may set on an event.
var eventKeys = map[string]bool{
	"title":          true,
	"description":    true,
	"startTimestamp": true,
	"endTimestamp":   true,
}

const msgEventNotFound = "Event not found!"

// eventFields is a decoded event body. Absent keys stay nil.
type eventFields struct {
	ID             *string
	Title          *string
	Description    *string
	StartTimestamp *int64
	EndTimestamp   *int64
}

// decodeEventBody rejects any key outside eventKeys, plus "id" when allowID.
func decodeEventBody(w http.ResponseWriter, r *http.Request, allowID bool) (eventFields, error) {
	var raw map[string]json.RawMessage
	if err := decodeJSON(w, r, &raw); err != nil {
		return eventFields{}, err
	}

	var f eventFields
	for key, value := range raw {
		var err error
		switch {
		case key == "id" && allowID:
			err = decodeField(value, &f.ID)
		case !eventKeys[key]:
			return eventFields{}, fmt.Errorf("invalid operation %q", key)
		case key == "title":
			err = decodeField(value, &f.Title)
		case key == "description":
			err = decodeField(value, &f.Description)
		case key == "startTimestamp":
			err = decodeField(value, &f.StartTimestamp)
		case key == "endTimestamp":
			err = decodeField(value, &f.EndTimestamp)
		}
		if err != nil {
			return eventFields{}, fmt.Errorf("field %q: %w", key, err)
		}
	}
	return f, nil
}

func decodeField[T any](value json.RawMessage, dst **T) error {
	var v T
	if err := json.Unmarshal(value, &v); err != nil {
		return err
	}
	*dst = &v
	return nil
}

func (f eventFields) patch() store.EventPatch {
	return store.EventPatch{
		Title:       f.Title,
		Description: f.Description,
		StartMS:     f.StartTimestamp,
		EndMS:       f.EndTimestamp,
	}
}

// CreateEvent stores a new event. The client may supply its own uuid.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	f, err := decodeEventBody(w, r, true)
	if err != nil {
		httperrors.BadRequestError(w, r, err, "invalid event")
		return
	}
	if f.StartTimestamp == nil || f.EndTimestamp == nil {
		httperrors.BadRequestError(w, r, errors.New("missing timestamps"), "startTimestamp and endTimestamp are required")
		return
	}

	id := uuid.NewString()
	if f.ID != nil {
		parsed, err := uuid.Parse(*f.ID)
		if err != nil {
			httperrors.BadRequestError(w, r, err, "invalid event id")
			return
		}
		id = parsed.String()
	}

	ev := store.Event{ID: id, UserID: user.ID}
	ev = f.patch().Apply(ev)

	created, err := h.events.Create(r.Context(), ev)
	switch {
	case errors.Is(err, store.ErrInvalidRange):
		httperrors.BadRequestError(w, r, err, err.Error())
		return
	case errors.Is(err, store.ErrConflict):
		httperrors.Write(w, http.StatusConflict, "event already exists")
		return
	case err != nil:
		httperrors.InternalError(w, r, err, "create event")
		return
	}
	httperrors.WriteJSON(w, http.StatusCreated, eventView(created))
}

// UpdateEvent applies a partial update to one of the user's events.
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	f, err := decodeEventBody(w, r, false)
	if err != nil {
		httperrors.BadRequestError(w, r, err, "invalid event")
		return
	}

	updated, err := h.events.Update(r.Context(), user.ID, chi.URLParam(r, "id"), f.patch())
	switch {
	case errors.Is(err, store.ErrNotFound):
		httperrors.NotFound(w, r, msgEventNotFound)
		return
	case errors.Is(err, store.ErrInvalidRange):
		httperrors.BadRequestError(w, r, err, err.Error())
		return
	case err != nil:
		httperrors.InternalError(w, r, err, "update event")
		return
	}
	httperrors.WriteJSON(w, http.StatusOK, eventView(updated))
}

// DeleteEvent removes one of the user's events.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	err := h.events.Delete(r.Context(), user.ID, chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		httperrors.NotFound(w, r, msgEventNotFound)
		return
	}
	if err != nil {
		httperrors.InternalError(w, r, err, "delete event")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListEvents returns the user's events overlapping [start, end).
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	start, end, err := parseRange(r)
	if err != nil {
		httperrors.BadRequestError(w, r, err, err.Error())
		return
	}

	events, err := h.events.ListInRange(r.Context(), user.ID, start, end)
	if err != nil {
		httperrors.InternalError(w, r, err, "list events")
		return
	}
	out := make([]eventJSON, 0, len(events))
	for i := range events {
		out = append(out, eventView(&events[i]))
	}
	httperrors.WriteJSON(w, http.StatusOK, out)
}

// ExportEvents returns the same range as ListEvents as an iCalendar file.
func (h *Handler) ExportEvents(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	start, end, err := parseRange(r)
	if err != nil {
		httperrors.BadRequestError(w, r, err, err.Error())
		return
	}

	events, err := h.events.ListInRange(r.Context(), user.ID, start, end)
	if err != nil {
		httperrors.InternalError(w, r, err, "export events")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calgrid.ics"`)
	if err := ics.Write(w, user.Name, events, h.now()); err != nil {
		httperrors.LogError(r, "write calendar", err)
	}
}

func parseRange(r *http.Request) (int64, int64, error) {
	q := r.URL.Query()
	start, err := strconv.ParseInt(q.Get("start"), 10, 64)
	if err != nil {
		return 0, 0, errors.New("start must be a timestamp in ms")
	}
	end, err := strconv.ParseInt(q.Get("end"), 10, 64)
	if err != nil {
		return 0, 0, errors.New("end must be a timestamp in ms")
	}
	if end <= start {
		return 0, 0, errors.New("end must be after start")
	}
	return start, end, nil
}
