// Package gesture turns continuous pointer movement over an event into
// discrete, snapped edits: 15 minute steps vertically, whole days
// horizontally.
//
// Steps are computed directly in PointerMove. Every applied step is committed
// to the event immediately; releasing or cancelling the pointer ends the
// gesture but never reverts it.
package gesture

import (
	"math"

	"github.com/jw6ventures/calgrid/internal/event"
	"github.com/jw6ventures/calgrid/internal/timeutil"
)

// StepMinutes is the time quantum of one vertical step.
const StepMinutes = 15

// Mode is the kind of gesture in progress.
type Mode int

const (
	Idle Mode = iota
	Resizing
	Moving
)

func (m Mode) String() string {
	switch m {
	case Resizing:
		return "resize"
	case Moving:
		return "move"
	default:
		return "idle"
	}
}

// Point is an absolute pointer position in pixels.
type Point struct {
	X, Y float64
}

// Metrics supplies the current cell size. It is read on every step so a
// resized table is picked up mid-gesture.
type Metrics interface {
	CellHeight() float64
	CellWidth() float64
}

// Editor is the part of the event editor the controller drives.
type Editor interface {
	Show(e *event.Event)
	// RefreshTimes re-reads the times of e if it is the selected event.
	RefreshTimes(e *event.Event)
}

// state is the context of one gesture. It lives only while the pointer is down.
type state struct {
	mode     Mode
	ev       *event.Event
	last     Point // position at which the last step was applied
	hasMoved bool
	steps    int
}

// Controller runs at most one gesture at a time. It is driven from the UI
// goroutine and is not safe for concurrent use.
type Controller struct {
	metrics Metrics
	editor  Editor
	cur     *state
}

func New(metrics Metrics, editor Editor) *Controller {
	return &Controller{metrics: metrics, editor: editor}
}

// Mode reports the gesture in progress.
func (c *Controller) Mode() Mode {
	if c.cur == nil {
		return Idle
	}
	return c.cur.mode
}

// Active returns the event being manipulated, if any.
func (c *Controller) Active() (*event.Event, bool) {
	if c.cur == nil {
		return nil, false
	}
	return c.cur.ev, true
}

// PointerDownResize starts resizing e from its bottom handle.
func (c *Controller) PointerDownResize(e *event.Event, p Point) {
	c.begin(Resizing, e, p)
}

// PointerDownMove starts dragging e.
func (c *Controller) PointerDownMove(e *event.Event, p Point) {
	c.begin(Moving, e, p)
}

func (c *Controller) begin(mode Mode, e *event.Event, p Point) {
	if c.cur != nil {
		c.finish()
	}
	if e == nil || e.Removed() {
		return
	}
	c.cur = &state{mode: mode, ev: e, last: p}
}

// PointerMove applies every whole step between the last applied position and p.
// It returns the number of steps applied.
func (c *Controller) PointerMove(p Point) int {
	g := c.cur
	if g == nil {
		return 0
	}
	if g.ev.Removed() {
		c.cur = nil
		return 0
	}

	var n int
	switch g.mode {
	case Resizing:
		n = c.resize(g, p)
	case Moving:
		n = c.move(g, p)
	}
	g.steps += n
	return n
}

// PointerUp ends the gesture. A move that never stepped is a click: the event
// is raised and opened in the editor.
func (c *Controller) PointerUp() {
	c.finish()
}

// PointerCancel ends the gesture like PointerUp. Applied steps are kept.
func (c *Controller) PointerCancel() {
	c.finish()
}

func (c *Controller) finish() {
	g := c.cur
	c.cur = nil
	if g == nil || g.ev.Removed() || g.mode != Moving {
		return
	}
	if !g.hasMoved {
		g.ev.BringToFront()
	}
	if c.editor != nil {
		c.editor.Show(g.ev)
	}
}

// trailingMinutes is the length of the last day segment of e if it ended at
// end. A shrink must leave that segment, the one carrying the resize handle,
// at least one step tall.
func trailingMinutes(e *event.Event, end int64) int {
	from := timeutil.StartOfDay(end, e.Location())
	if from < e.Start() {
		from = e.Start()
	}
	return timeutil.MinutesBetween(from, end)
}

func (c *Controller) resize(g *state, p Point) int {
	unit, dead := c.verticalQuanta()
	delta := p.Y - g.last.Y
	if math.Abs(delta) <= dead {
		return 0
	}

	steps := 0
	consumed := 0.0
	for delta >= unit {
		delta -= unit
		consumed += unit
		end := timeutil.AddMinutes(g.ev.End(), StepMinutes)
		c.apply(g, g.ev.Start(), end)
		steps++
	}
	for delta <= -unit {
		delta += unit
		consumed -= unit
		end := timeutil.SubtractMinutes(g.ev.End(), StepMinutes)
		if trailingMinutes(g.ev, end) < StepMinutes {
			// Too short; the motion is still consumed.
			continue
		}
		c.apply(g, g.ev.Start(), end)
		steps++
	}
	g.last.Y += consumed
	return steps
}

func (c *Controller) move(g *state, p Point) int {
	steps := 0

	unit, dead := c.verticalQuanta()
	dy := p.Y - g.last.Y
	if math.Abs(dy) > dead {
		consumed := 0.0
		for dy >= unit {
			dy -= unit
			consumed += unit
			c.shift(g, func(ts int64) int64 { return timeutil.AddMinutes(ts, StepMinutes) })
			steps++
		}
		for dy <= -unit {
			dy += unit
			consumed -= unit
			c.shift(g, func(ts int64) int64 { return timeutil.SubtractMinutes(ts, StepMinutes) })
			steps++
		}
		g.last.Y += consumed
	}

	width := c.metrics.CellWidth()
	if width <= 0 {
		return steps
	}
	loc := g.ev.Location()
	dx := p.X - g.last.X
	consumed := 0.0
	for dx > width/2 {
		dx -= width
		consumed += width
		c.shift(g, func(ts int64) int64 { return timeutil.AddDays(ts, 1, loc) })
		steps++
	}
	for dx < -width/2 {
		dx += width
		consumed -= width
		c.shift(g, func(ts int64) int64 { return timeutil.SubtractDays(ts, 1, loc) })
		steps++
	}
	g.last.X += consumed
	return steps
}

// shift moves the start with fn and keeps the duration exact.
func (c *Controller) shift(g *state, fn func(int64) int64) {
	d := g.ev.Duration()
	start := fn(g.ev.Start())
	c.apply(g, start, start+d)
}

func (c *Controller) apply(g *state, start, end int64) {
	g.ev.UpdateTimes(start, end)
	g.hasMoved = true
	if c.editor != nil {
		c.editor.RefreshTimes(g.ev)
	}
}

func (c *Controller) verticalQuanta() (unit, dead float64) {
	h := c.metrics.CellHeight()
	return h / 4, h / 6
}
