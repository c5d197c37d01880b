// Package grid maps between the calendar table layout (one column per visible
// day, one row per hour, fixed pixel cell height) and real timestamps.
package grid

import (
	"errors"
	"fmt"
	"time"

	"github.com/jw6ventures/calgrid/internal/timeutil"
)

// DefaultCellHeight is the height of one hour cell in pixels.
const DefaultCellHeight = 50

// HoursPerDay is the number of hour rows in every day column.
const HoursPerDay = 24

// ErrInvalidDays is returned when a window other than 1, 4 or 7 days is requested.
var ErrInvalidDays = errors.New("number of days shown must be 1, 4 or 7")

// Cell identifies one hour-by-day unit of the visible table.
type Cell struct {
	Day  int // offset from the first visible day
	Hour int // 0..23
}

func (c Cell) String() string {
	return fmt.Sprintf("day %d %02d:00", c.Day, c.Hour)
}

// Table is the visible window of the calendar. Every placement is derived from
// the window start, the number of days shown and the cell size.
type Table struct {
	start      int64
	days       int
	cellHeight float64
	cellWidth  float64
	loc        *time.Location
	now        func() time.Time
}

// Option configures a Table.
type Option func(*Table)

// WithClock overrides the clock used by Today and by Show with a zero anchor.
func WithClock(now func() time.Time) Option {
	return func(t *Table) { t.now = now }
}

// WithCellWidth sets the width of a day column in pixels.
func WithCellWidth(px float64) Option {
	return func(t *Table) { t.cellWidth = px }
}

// New returns a table showing the current week.
func New(cellHeight float64, loc *time.Location, opts ...Option) *Table {
	if cellHeight <= 0 {
		cellHeight = DefaultCellHeight
	}
	if loc == nil {
		loc = time.Local
	}
	t := &Table{
		days:       7,
		cellHeight: cellHeight,
		cellWidth:  cellHeight * 2,
		loc:        loc,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.start = t.normalize(t.now().UnixMilli(), t.days)
	return t
}

// Show moves the window so that it contains anchor. The start is normalized to
// local midnight and, for a week view, back to Monday.
func (t *Table) Show(anchor int64, days int) error {
	switch days {
	case 1, 4, 7:
	default:
		return ErrInvalidDays
	}
	t.start = t.normalize(anchor, days)
	t.days = days
	return nil
}

// Today shows the window containing the current time.
func (t *Table) Today() {
	_ = t.Show(t.now().UnixMilli(), t.days)
}

// Next advances the window by the number of days shown.
func (t *Table) Next() {
	_ = t.Show(timeutil.AddDays(t.start, t.days, t.loc), t.days)
}

// Previous moves the window back by the number of days shown.
func (t *Table) Previous() {
	_ = t.Show(timeutil.SubtractDays(t.start, t.days, t.loc), t.days)
}

func (t *Table) normalize(anchor int64, days int) int64 {
	start := timeutil.StartOfDay(anchor, t.loc)
	if days == 7 {
		for timeutil.Time(start, t.loc).Weekday() != time.Monday {
			start = timeutil.SubtractDays(start, 1, t.loc)
		}
	}
	return start
}

func (t *Table) Start() int64             { return t.start }
func (t *Table) Days() int                { return t.days }
func (t *Table) CellHeight() float64      { return t.cellHeight }
func (t *Table) CellWidth() float64       { return t.cellWidth }
func (t *Table) Location() *time.Location { return t.loc }

// SetCellWidth records the rendered width of a day column.
func (t *Table) SetCellWidth(px float64) {
	t.cellWidth = px
}

// Now is the table clock in milliseconds.
func (t *Table) Now() int64 {
	return t.now().UnixMilli()
}

// DayStart returns local midnight of the visible day at offset.
func (t *Table) DayStart(offset int) int64 {
	return timeutil.AddDays(t.start, offset, t.loc)
}

// Range returns the visible interval [start, end).
func (t *Table) Range() (start, end int64) {
	return t.start, timeutil.AddDays(t.start, t.days, t.loc)
}

// CellFor returns the cell showing ts, or false when ts is outside the window.
func (t *Table) CellFor(ts int64) (Cell, bool) {
	day := timeutil.DaysBetween(t.start, ts, t.loc)
	if day < 0 || day >= t.days {
		return Cell{}, false
	}
	return Cell{Day: day, Hour: timeutil.HourOfDay(ts, t.loc)}, true
}

// TimestampAt converts a click at pixelY inside cell c to a timestamp snapped
// down to the quarter hour.
func (t *Table) TimestampAt(c Cell, pixelY float64) int64 {
	day := timeutil.Time(t.DayStart(c.Day), t.loc)
	minutes := int(MinuteFraction(pixelY, t.cellHeight) * 60)
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour, minutes, 0, 0, t.loc).UnixMilli()
}

// VerticalOffset is the pixel offset of ts inside its hour cell.
func (t *Table) VerticalOffset(ts int64) float64 {
	return float64(timeutil.MinuteOfHour(ts, t.loc)) / 60 * t.cellHeight
}

// Height is the pixel height of the interval [start, end]. It is never negative.
func (t *Table) Height(start, end int64) float64 {
	minutes := timeutil.MinutesBetween(start, end)
	if minutes < 0 {
		return 0
	}
	return float64(minutes) / 60 * t.cellHeight
}

// MonthName is the name of the month the window starts in.
func (t *Table) MonthName() string {
	return timeutil.Time(t.start, t.loc).Month().String()
}

func (t *Table) Year() int {
	return timeutil.Time(t.start, t.loc).Year()
}

// TimezoneAbbrev is shown in the corner cell of the header.
func (t *Table) TimezoneAbbrev() string {
	name, _ := timeutil.Time(t.now().UnixMilli(), t.loc).Zone()
	return name
}

// MinuteFraction buckets a pixel offset inside an hour cell into a quarter of
// an hour: 0, 0.25, 0.5 or 0.75.
func MinuteFraction(pixelY, cellHeight float64) float64 {
	p := pixelY / cellHeight
	switch {
	case p < 0.25:
		return 0
	case p < 0.5:
		return 0.25
	case p < 0.75:
		return 0.5
	default:
		return 0.75
	}
}
