package grid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wednesday 2024-05-15 11:20 UTC.
var fixedNow = time.Date(2024, 5, 15, 11, 20, 0, 0, time.UTC)

func newTestTable(t *testing.T, days int) *Table {
	t.Helper()
	tbl := New(60, time.UTC, WithClock(func() time.Time { return fixedNow }), WithCellWidth(100))
	require.NoError(t, tbl.Show(fixedNow.UnixMilli(), days))
	return tbl
}

func ms(y int, m time.Month, d, hh, mm int) int64 {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC).UnixMilli()
}

func TestShowNormalizesStart(t *testing.T) {
	week := newTestTable(t, 7)
	assert.Equal(t, ms(2024, 5, 13, 0, 0), week.Start(), "week view starts on Monday")

	four := newTestTable(t, 4)
	assert.Equal(t, ms(2024, 5, 15, 0, 0), four.Start())

	day := newTestTable(t, 1)
	assert.Equal(t, ms(2024, 5, 15, 0, 0), day.Start())

	assert.ErrorIs(t, day.Show(fixedNow.UnixMilli(), 3), ErrInvalidDays)
	assert.Equal(t, 1, day.Days(), "failed Show leaves the window alone")
}

func TestNavigation(t *testing.T) {
	tbl := newTestTable(t, 4)

	tbl.Next()
	assert.Equal(t, ms(2024, 5, 19, 0, 0), tbl.Start())
	tbl.Previous()
	tbl.Previous()
	assert.Equal(t, ms(2024, 5, 11, 0, 0), tbl.Start())
	tbl.Today()
	assert.Equal(t, ms(2024, 5, 15, 0, 0), tbl.Start())

	start, end := tbl.Range()
	assert.Equal(t, ms(2024, 5, 15, 0, 0), start)
	assert.Equal(t, ms(2024, 5, 19, 0, 0), end)
}

func TestCellFor(t *testing.T) {
	tbl := newTestTable(t, 7)

	testCases := []struct {
		name string
		ts   int64
		want Cell
		ok   bool
	}{
		{"first cell", ms(2024, 5, 13, 0, 0), Cell{Day: 0, Hour: 0}, true},
		{"mid week", ms(2024, 5, 15, 9, 45), Cell{Day: 2, Hour: 9}, true},
		{"last cell", ms(2024, 5, 19, 23, 59), Cell{Day: 6, Hour: 23}, true},
		{"before window", ms(2024, 5, 12, 23, 59), Cell{}, false},
		{"after window", ms(2024, 5, 20, 0, 0), Cell{}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := tbl.CellFor(tc.ts)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMinuteFractionBuckets(t *testing.T) {
	const h = 60.0
	testCases := []struct {
		px   float64
		want float64
	}{
		{0, 0}, {14.9, 0}, {15, 0.25}, {29.9, 0.25}, {30, 0.5}, {40, 0.5}, {44.9, 0.5}, {45, 0.75}, {59, 0.75},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, MinuteFraction(tc.px, h), "px=%v", tc.px)
	}

	for px := 0.0; px < h; px += 0.5 {
		if MinuteFraction(px, h) == 0.25 {
			assert.True(t, 0.25*h <= px && px < 0.5*h, "px=%v", px)
		}
	}
}

func TestTimestampAtClickScenario(t *testing.T) {
	tbl := newTestTable(t, 7)

	// 60px cells, click 40px into the 09:00 cell on Wednesday.
	got := tbl.TimestampAt(Cell{Day: 2, Hour: 9}, 40)
	assert.Equal(t, ms(2024, 5, 15, 9, 30), got)
}

func TestOffsetsAndHeights(t *testing.T) {
	tbl := newTestTable(t, 7)

	assert.Equal(t, 45.0, tbl.VerticalOffset(ms(2024, 5, 15, 9, 45)))
	assert.Equal(t, 0.0, tbl.VerticalOffset(ms(2024, 5, 15, 9, 0)))
	assert.Equal(t, 90.0, tbl.Height(ms(2024, 5, 15, 9, 0), ms(2024, 5, 15, 10, 30)))
	assert.Equal(t, 0.0, tbl.Height(ms(2024, 5, 15, 10, 30), ms(2024, 5, 15, 9, 0)))
}

func TestLabels(t *testing.T) {
	tbl := newTestTable(t, 7)

	assert.Equal(t, "May", tbl.MonthName())
	assert.Equal(t, 2024, tbl.Year())
	assert.Equal(t, "UTC", tbl.TimezoneAbbrev())
	assert.Equal(t, "day 2 09:00", Cell{Day: 2, Hour: 9}.String())
}
