// Package event holds the in-memory calendar event and the per-day segments it
// is drawn as. An Event is the single source of truth for its times; the
// renderer only ever receives values computed from it.
//
// Events are owned by the UI goroutine and are not safe for concurrent use.
package event

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jw6ventures/calgrid/internal/grid"
	"github.com/jw6ventures/calgrid/internal/timeutil"
)

// UnnamedTitle is shown for events without a title.
const UnnamedTitle = "(Unnamed)"

// Fields are the user editable attributes of an event.
type Fields struct {
	Title       string
	Description string
	Start       int64 // ms since epoch
	End         int64 // ms since epoch, always > Start
}

// Record is a persisted event as exchanged with the storage gateway.
type Record struct {
	ID string
	Fields
}

// Store is the remote persistence contract consumed by the client.
type Store interface {
	Create(ctx context.Context, rec Record) error
	Update(ctx context.Context, rec Record) error
	Delete(ctx context.Context, id string) error
	ListInRange(ctx context.Context, start, end int64) ([]Record, error)
}

// Syncer accepts persistence work without blocking the caller.
type Syncer interface {
	Create(rec Record)
	Update(rec Record)
	Delete(id string)
}

// Kind is the persistence state of an event: Draft or Persisted.
type Kind interface {
	kind()
}

// Draft is an event that has not been confirmed yet. It has no remote record.
type Draft struct {
	LocalID string
}

// Persisted is an event backed by exactly one remote record.
type Persisted struct {
	ID string
}

func (Draft) kind()     {}
func (Persisted) kind() {}

// Layout is the part of the grid an event needs to place itself.
type Layout interface {
	CellFor(ts int64) (grid.Cell, bool)
	VerticalOffset(ts int64) float64
	Height(start, end int64) float64
	CellHeight() float64
	Location() *time.Location
}

// Segment is the part of an event drawn in one day column.
type Segment struct {
	Index  int
	Cell   grid.Cell
	Top    float64 // px inside Cell
	Height float64 // px
	// Hidden segments fall outside the visible window. They are kept so they
	// show up again when the window moves back.
	Hidden bool
	Raised bool
	// Resizable marks the segment that carries the resize handle.
	Resizable bool

	// Set on the first segment only.
	Title       string
	Description string
	TimeLabel   string
}

// Renderer draws the segments of an event. Draw always receives the complete
// segment list for the event.
type Renderer interface {
	Draw(id string, segments []Segment)
	Erase(id string)
}

// Env bundles the collaborators every event shares.
type Env struct {
	Layout   Layout
	Renderer Renderer
	Syncer   Syncer
}

// Event is a schedulable interval drawn as one segment per day it spans.
type Event struct {
	env      Env
	fields   Fields
	kind     Kind
	segments []Segment
	raised   bool
	removed  bool
}

// Option adjusts a new draft.
type Option func(*Fields)

// WithEnd sets the end time; the default is one hour after start.
func WithEnd(end int64) Option {
	return func(f *Fields) { f.End = end }
}

func WithTitle(title string) Option {
	return func(f *Fields) { f.Title = title }
}

func WithDescription(description string) Option {
	return func(f *Fields) { f.Description = description }
}

// NewDraft creates and renders a placeholder event starting at start.
func NewDraft(env Env, start int64, opts ...Option) *Event {
	f := Fields{Start: start}
	for _, opt := range opts {
		opt(&f)
	}
	if f.End <= f.Start {
		f.End = timeutil.AddHours(f.Start, 1)
	}
	e := &Event{env: env, fields: f, kind: Draft{LocalID: uuid.NewString()}}
	e.Render()
	return e
}

// Hydrate creates and renders an event loaded from storage.
func Hydrate(env Env, rec Record) *Event {
	e := &Event{env: env, fields: rec.Fields, kind: Persisted{ID: rec.ID}}
	e.Render()
	return e
}

// ID returns the remote id for persisted events and the local id for drafts.
func (e *Event) ID() string {
	switch k := e.kind.(type) {
	case Persisted:
		return k.ID
	case Draft:
		return k.LocalID
	}
	return ""
}

func (e *Event) Kind() Kind          { return e.kind }
func (e *Event) Fields() Fields      { return e.fields }
func (e *Event) Start() int64        { return e.fields.Start }
func (e *Event) End() int64          { return e.fields.End }
func (e *Event) Title() string       { return e.fields.Title }
func (e *Event) Description() string { return e.fields.Description }
func (e *Event) Removed() bool       { return e.removed }
func (e *Event) Raised() bool        { return e.raised }
func (e *Event) Duration() int64     { return e.fields.End - e.fields.Start }

// Location is the zone the event is laid out in.
func (e *Event) Location() *time.Location {
	return e.env.Layout.Location()
}

// IsPlaceholder reports whether the event is still a draft.
func (e *Event) IsPlaceholder() bool {
	_, ok := e.kind.(Draft)
	return ok
}

// Record returns the remote record of a persisted event. Drafts have none.
func (e *Event) Record() (Record, bool) {
	p, ok := e.kind.(Persisted)
	if !ok {
		return Record{}, false
	}
	return Record{ID: p.ID, Fields: e.fields}, true
}

// Segments returns a copy of the current segments.
func (e *Event) Segments() []Segment {
	out := make([]Segment, len(e.segments))
	copy(out, e.segments)
	return out
}

// LastSegmentHeight is the rendered height of the segment holding the resize handle.
func (e *Event) LastSegmentHeight() float64 {
	if len(e.segments) == 0 {
		return 0
	}
	return e.segments[len(e.segments)-1].Height
}

// Render recomputes every segment from the current times and hands them to the
// renderer. The segment list is rebuilt when the number of days spanned changes.
func (e *Event) Render() {
	if e.removed {
		return
	}
	loc := e.env.Layout.Location()
	n := timeutil.DaysBetween(e.fields.Start, e.fields.End, loc) + 1
	if n < 1 {
		n = 1
	}
	if len(e.segments) != n {
		e.segments = make([]Segment, n)
	}

	segStart := e.fields.Start
	for i := range e.segments {
		nextMidnight := timeutil.StartOfDay(timeutil.AddDays(segStart, 1, loc), loc)
		segEnd := e.fields.End
		if segEnd > nextMidnight {
			segEnd = nextMidnight
		}

		cell, ok := e.env.Layout.CellFor(segStart)
		seg := Segment{
			Index:     i,
			Cell:      cell,
			Height:    e.env.Layout.Height(segStart, segEnd),
			Hidden:    !ok,
			Raised:    e.raised,
			Resizable: i == n-1,
		}
		if i == 0 {
			seg.Top = e.env.Layout.VerticalOffset(e.fields.Start)
			seg.Title = e.DisplayTitle()
			seg.Description = e.fields.Description
			seg.TimeLabel = e.TimeLabel()
		}
		e.segments[i] = seg
		segStart = nextMidnight
	}

	if e.env.Renderer != nil {
		e.env.Renderer.Draw(e.ID(), e.Segments())
	}
}

// DisplayTitle is the title shown on the first segment.
func (e *Event) DisplayTitle() string {
	if e.fields.Title == "" {
		return UnnamedTitle
	}
	return e.fields.Title
}

// TimeLabel renders "HH:MM - HH:MM".
func (e *Event) TimeLabel() string {
	loc := e.env.Layout.Location()
	return fmt.Sprintf("%s - %s", timeutil.FormatClock(e.fields.Start, loc), timeutil.FormatClock(e.fields.End, loc))
}

// UpdateTitle changes the title, re-renders and saves a persisted event.
func (e *Event) UpdateTitle(title string) {
	if e.removed {
		return
	}
	e.fields.Title = title
	e.Render()
	e.save()
}

// UpdateDescription changes the description, re-renders and saves a persisted event.
func (e *Event) UpdateDescription(description string) {
	if e.removed {
		return
	}
	e.fields.Description = description
	e.Render()
	e.save()
}

// UpdateTimes replaces both timestamps. Callers validate end > start; the
// event does not reject invalid ranges itself.
func (e *Event) UpdateTimes(start, end int64) {
	if e.removed {
		return
	}
	e.fields.Start = start
	e.fields.End = end
	e.segments = nil
	e.Render()
	e.save()
}

// BringToFront raises every segment above its neighbours.
func (e *Event) BringToFront() {
	if e.raised {
		return
	}
	e.raised = true
	e.Render()
}

// SendToBack returns the segments to normal stacking.
func (e *Event) SendToBack() {
	if !e.raised {
		return
	}
	e.raised = false
	e.Render()
}

// Remove erases every drawn segment. It does not touch persisted state.
func (e *Event) Remove() {
	if e.removed {
		return
	}
	e.removed = true
	if e.env.Renderer != nil {
		e.env.Renderer.Erase(e.ID())
	}
}

// Delete removes the event and, when persisted, deletes its remote record.
func (e *Event) Delete() {
	rec, persisted := e.Record()
	e.Remove()
	if persisted && e.env.Syncer != nil {
		e.env.Syncer.Delete(rec.ID)
	}
}

// Confirm turns a draft into a persisted event and issues the create call.
// The local id becomes the remote id. Confirming a persisted event saves it.
func (e *Event) Confirm() Record {
	d, ok := e.kind.(Draft)
	if !ok {
		e.save()
		rec, _ := e.Record()
		return rec
	}
	e.kind = Persisted{ID: d.LocalID}
	rec, _ := e.Record()
	if !e.removed && e.env.Syncer != nil {
		e.env.Syncer.Create(rec)
	}
	return rec
}

// Save pushes the current state of a persisted event.
func (e *Event) Save() {
	e.save()
}

func (e *Event) save() {
	if e.removed || e.env.Syncer == nil {
		return
	}
	if rec, ok := e.Record(); ok {
		e.env.Syncer.Update(rec)
	}
}
