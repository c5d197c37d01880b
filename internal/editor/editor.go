// Package editor is the event editor panel: it binds to one event at a time,
// mirrors its fields into a form and applies form edits back to it.
package editor

import (
	"errors"
	"fmt"
	"time"

	"github.com/jw6ventures/calgrid/internal/event"
	"github.com/jw6ventures/calgrid/internal/timeutil"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"

	HeaderNew  = "Add a new event"
	HeaderEdit = "Edit"
)

var (
	ErrNoSelection  = errors.New("no event selected")
	ErrEndNotAfter  = errors.New("end must be after start")
	ErrInvalidInput = errors.New("invalid date or time")
)

// Form is what the editor panel displays.
type Form struct {
	Title       string
	Description string
	FromDate    string
	FromTime    string
	ToDate      string
	ToDateMin   string
	ToTime      string
}

// Rect is an on-screen box in pixels.
type Rect struct {
	Left, Top, Width, Height float64
}

// Size is a width and height in pixels.
type Size struct {
	Width, Height float64
}

// State is handed to the View every time the panel changes.
type State struct {
	Header   string
	Form     Form
	Position Rect
}

// View draws the panel.
type View interface {
	Render(s State)
	Hide()
}

// Locator reports where an event's first segment is drawn.
type Locator interface {
	Locate(id string) (Rect, bool)
}

// Editor is driven from the UI goroutine and is not safe for concurrent use.
type Editor struct {
	view     View
	locator  Locator
	size     Size
	bounds   Size
	selected *event.Event
	shown    bool
	position Rect
}

type Option func(*Editor)

// WithPlacement enables positioning next to the selected event inside bounds.
func WithPlacement(l Locator, panel, bounds Size) Option {
	return func(e *Editor) {
		e.locator = l
		e.size = panel
		e.bounds = bounds
	}
}

func New(view View, opts ...Option) *Editor {
	e := &Editor{view: view}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Shown reports whether the panel is visible.
func (ed *Editor) Shown() bool { return ed.shown }

// Selected is the event bound to the panel.
func (ed *Editor) Selected() *event.Event { return ed.selected }

// SetBounds updates the grid size used for placement.
func (ed *Editor) SetBounds(bounds Size) { ed.bounds = bounds }

// Show binds e and opens the panel. A different selection that is still a
// draft is discarded first.
func (ed *Editor) Show(e *event.Event) {
	if e == nil || e.Removed() {
		return
	}
	if ed.selected != nil && ed.selected != e {
		ed.release(ed.selected)
	}
	ed.selected = e
	ed.shown = true
	if ed.locator != nil {
		if anchor, ok := ed.locator.Locate(e.ID()); ok {
			ed.position = Place(anchor, ed.size, ed.bounds)
		}
	}
	ed.render()
}

// Hide closes the panel. A draft selection is discarded without any
// persistence call; a persisted one is left as it is.
func (ed *Editor) Hide() {
	if ed.selected != nil {
		ed.release(ed.selected)
	}
	ed.selected = nil
	ed.shown = false
	if ed.view != nil {
		ed.view.Hide()
	}
}

func (ed *Editor) release(e *event.Event) {
	e.SendToBack()
	if e.IsPlaceholder() {
		e.Remove()
	}
}

// RefreshTimes re-reads the form times when e is the selected event.
func (ed *Editor) RefreshTimes(e *event.Event) {
	if ed.shown && e == ed.selected {
		ed.render()
	}
}

// SetTitle applies a title edit immediately.
func (ed *Editor) SetTitle(title string) error {
	if ed.selected == nil {
		return ErrNoSelection
	}
	ed.selected.UpdateTitle(title)
	ed.render()
	return nil
}

// SetDescription applies a description edit immediately.
func (ed *Editor) SetDescription(description string) error {
	if ed.selected == nil {
		return ErrNoSelection
	}
	ed.selected.UpdateDescription(description)
	ed.render()
	return nil
}

// SetStart moves the start to ts and shifts the end by the same amount.
func (ed *Editor) SetStart(ts int64) error {
	e := ed.selected
	if e == nil {
		return ErrNoSelection
	}
	delta := ts - e.Start()
	if delta == 0 {
		return nil
	}
	e.UpdateTimes(ts, e.End()+delta)
	ed.render()
	return nil
}

// SetEnd moves only the end. An end at or before the start is rejected and
// nothing changes.
func (ed *Editor) SetEnd(ts int64) error {
	e := ed.selected
	if e == nil {
		return ErrNoSelection
	}
	if ts <= e.Start() {
		return ErrEndNotAfter
	}
	if ts == e.End() {
		return nil
	}
	e.UpdateTimes(e.Start(), ts)
	ed.render()
	return nil
}

// SetStartInput applies the from-date and from-time inputs.
func (ed *Editor) SetStartInput(date, clock string) error {
	if ed.selected == nil {
		return ErrNoSelection
	}
	ts, err := ParseInput(date, clock, ed.selected.Location())
	if err != nil {
		return err
	}
	return ed.SetStart(ts)
}

// SetEndInput applies the to-date and to-time inputs.
func (ed *Editor) SetEndInput(date, clock string) error {
	if ed.selected == nil {
		return ErrNoSelection
	}
	ts, err := ParseInput(date, clock, ed.selected.Location())
	if err != nil {
		return err
	}
	return ed.SetEnd(ts)
}

// Submit confirms a draft (create) or saves a persisted event (update) and
// closes the panel.
func (ed *Editor) Submit() error {
	e := ed.selected
	if e == nil {
		return ErrNoSelection
	}
	if e.IsPlaceholder() {
		e.Confirm()
	} else {
		e.Save()
	}
	ed.Hide()
	return nil
}

// Delete removes the selected event, deletes it remotely when persisted and
// closes the panel.
func (ed *Editor) Delete() error {
	e := ed.selected
	if e == nil {
		return ErrNoSelection
	}
	e.Delete()
	ed.selected = nil
	ed.Hide()
	return nil
}

// State is the current panel content. It is only meaningful while shown.
func (ed *Editor) State() State {
	if ed.selected == nil {
		return State{}
	}
	header := HeaderEdit
	if ed.selected.IsPlaceholder() {
		header = HeaderNew
	}
	return State{Header: header, Form: FormFor(ed.selected), Position: ed.position}
}

func (ed *Editor) render() {
	if !ed.shown || ed.view == nil {
		return
	}
	ed.view.Render(ed.State())
}

// FormFor fills a form from e in the event's location.
func FormFor(e *event.Event) Form {
	loc := e.Location()
	start := timeutil.Time(e.Start(), loc)
	end := timeutil.Time(e.End(), loc)
	return Form{
		Title:       e.Title(),
		Description: e.Description(),
		FromDate:    start.Format(DateLayout),
		FromTime:    start.Format(TimeLayout),
		ToDate:      end.Format(DateLayout),
		ToDateMin:   start.Format(DateLayout),
		ToTime:      end.Format(TimeLayout),
	}
}

// ParseInput reads a date input and a time input as wall time in loc.
func ParseInput(date, clock string, loc *time.Location) (int64, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+clock, loc)
	if err != nil {
		return 0, fmt.Errorf("%w: %q %q", ErrInvalidInput, date, clock)
	}
	return t.UnixMilli(), nil
}

// Place puts a panel of the given size to the right of and above anchor. It
// moves below the anchor's top when it would overflow the bottom of bounds and
// to the left of the anchor when it would overflow the right.
func Place(anchor Rect, panel, bounds Size) Rect {
	top := anchor.Top - anchor.Height
	if bounds.Height > 0 && top+panel.Height > bounds.Height {
		top += anchor.Height
		top -= 1.1 * panel.Height
	}
	left := anchor.Left + anchor.Width
	if bounds.Width > 0 && left+panel.Width > bounds.Width {
		left -= anchor.Width + panel.Width
	}
	return Rect{Left: left, Top: top, Width: panel.Width, Height: panel.Height}
}
