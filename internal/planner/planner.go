// Package planner wires the grid, the events shown in it, the editor and the
// gesture controller into the calendar component.
//
// Everything except Load.Fetch runs on the UI goroutine.
package planner

import (
	"context"
	"fmt"

	"github.com/jw6ventures/calgrid/internal/editor"
	"github.com/jw6ventures/calgrid/internal/event"
	"github.com/jw6ventures/calgrid/internal/gesture"
	"github.com/jw6ventures/calgrid/internal/grid"
	"github.com/jw6ventures/calgrid/internal/log"
)

// Planner owns the visible window and every event drawn in it.
type Planner struct {
	table    *grid.Table
	store    event.Store
	env      event.Env
	editor   *editor.Editor
	gestures *gesture.Controller
	events   map[string]*event.Event
	gen      uint64
}

// Config collects the collaborators of a Planner.
type Config struct {
	Table    *grid.Table
	Store    event.Store
	Syncer   event.Syncer
	Renderer event.Renderer
	Editor   *editor.Editor
}

func New(cfg Config) *Planner {
	ed := cfg.Editor
	if ed == nil {
		ed = editor.New(nil)
	}
	p := &Planner{
		table:  cfg.Table,
		store:  cfg.Store,
		editor: ed,
		env: event.Env{
			Layout:   cfg.Table,
			Renderer: cfg.Renderer,
			Syncer:   cfg.Syncer,
		},
		events: make(map[string]*event.Event),
	}
	p.gestures = gesture.New(cfg.Table, ed)
	return p
}

func (p *Planner) Table() *grid.Table            { return p.table }
func (p *Planner) Editor() *editor.Editor        { return p.editor }
func (p *Planner) Gestures() *gesture.Controller { return p.gestures }

// Event returns a live event by id.
func (p *Planner) Event(id string) (*event.Event, bool) {
	e, ok := p.events[id]
	return e, ok && !e.Removed()
}

// Events returns the live events currently held.
func (p *Planner) Events() []*event.Event {
	out := make([]*event.Event, 0, len(p.events))
	for _, e := range p.events {
		if !e.Removed() {
			out = append(out, e)
		}
	}
	return out
}

// ClickCell creates a draft at the quarter hour under pixelY in cell and opens
// it in the editor. A draft still open in the editor is discarded.
func (p *Planner) ClickCell(c grid.Cell, pixelY float64) (*event.Event, bool) {
	if c.Day < 0 || c.Day >= p.table.Days() || c.Hour < 0 || c.Hour >= grid.HoursPerDay {
		return nil, false
	}
	e := event.NewDraft(p.env, p.table.TimestampAt(c, pixelY))
	p.events[e.ID()] = e
	p.editor.Show(e)
	p.prune()
	return e, true
}

// prune forgets events removed since the last window change, such as drafts
// the editor discarded.
func (p *Planner) prune() {
	for id, e := range p.events {
		if e.Removed() {
			delete(p.events, id)
		}
	}
}

// Load is one fetch of the events in a window. Fetch may run on any goroutine.
type Load struct {
	gen        uint64
	start, end int64
	store      event.Store
}

func (l Load) Range() (start, end int64) { return l.start, l.end }

func (l Load) Fetch(ctx context.Context) ([]event.Record, error) {
	if l.store == nil {
		return nil, nil
	}
	recs, err := l.store.ListInRange(ctx, l.start, l.end)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return recs, nil
}

// Show replaces the window and clears the drawn events. The returned Load
// fetches the events of the new window.
func (p *Planner) Show(anchor int64, days int) (Load, error) {
	if err := p.table.Show(anchor, days); err != nil {
		return Load{}, err
	}
	return p.reset(), nil
}

func (p *Planner) Today() Load {
	p.table.Today()
	return p.reset()
}

func (p *Planner) Next() Load {
	p.table.Next()
	return p.reset()
}

func (p *Planner) Previous() Load {
	p.table.Previous()
	return p.reset()
}

func (p *Planner) reset() Load {
	p.gestures.PointerCancel()
	p.editor.Hide()
	for id, e := range p.events {
		e.Remove()
		delete(p.events, id)
	}
	p.gen++
	start, end := p.table.Range()
	return Load{gen: p.gen, start: start, end: end, store: p.store}
}

// Apply draws the records of l. It reports false and draws nothing when the
// window changed after l was started.
func (p *Planner) Apply(l Load, recs []event.Record) bool {
	if l.gen != p.gen {
		log.Debug("dropping stale event load", "gen", l.gen, "current", p.gen)
		return false
	}
	for _, rec := range recs {
		if rec.End <= rec.Start {
			log.Warn("skipping event with invalid range", "id", rec.ID)
			continue
		}
		if e, ok := p.events[rec.ID]; ok && !e.Removed() {
			continue
		}
		p.events[rec.ID] = event.Hydrate(p.env, rec)
	}
	return true
}

// Open shows the window containing anchor and loads its events.
func (p *Planner) Open(ctx context.Context, anchor int64, days int) error {
	l, err := p.Show(anchor, days)
	if err != nil {
		return err
	}
	return p.Run(ctx, l)
}

// Run fetches and applies l on the calling goroutine.
func (p *Planner) Run(ctx context.Context, l Load) error {
	recs, err := l.Fetch(ctx)
	if err != nil {
		return err
	}
	p.Apply(l, recs)
	return nil
}

// Rerender redraws every event, for example after the cell size changed.
func (p *Planner) Rerender() {
	for _, e := range p.events {
		e.Render()
	}
}
