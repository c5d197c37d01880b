package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func at(loc *time.Location, y int, m time.Month, d, hh, mm int) int64 {
	return time.Date(y, m, d, hh, mm, 0, 0, loc).UnixMilli()
}

func TestFixedShifts(t *testing.T) {
	ts := at(time.UTC, 2024, 3, 1, 10, 0)

	assert.Equal(t, at(time.UTC, 2024, 3, 1, 10, 15), AddMinutes(ts, 15))
	assert.Equal(t, at(time.UTC, 2024, 3, 1, 9, 45), SubtractMinutes(ts, 15))
	assert.Equal(t, at(time.UTC, 2024, 3, 1, 13, 0), AddHours(ts, 3))
	assert.Equal(t, at(time.UTC, 2024, 3, 1, 7, 0), SubtractHours(ts, 3))
	assert.Equal(t, ts, SubtractMinutes(AddMinutes(ts, 45), 45))
}

func TestAddDaysKeepsWallClockAcrossDST(t *testing.T) {
	berlin := mustLoad(t, "Europe/Berlin")
	// 2024-03-31 is the spring-forward day in Berlin.
	ts := at(berlin, 2024, 3, 30, 9, 30)

	next := AddDays(ts, 1, berlin)
	got := Time(next, berlin)
	assert.Equal(t, 31, got.Day())
	assert.Equal(t, 9, got.Hour())
	assert.Equal(t, 30, got.Minute())
	assert.Equal(t, 23*time.Hour, time.Duration(next-ts)*time.Millisecond)

	assert.Equal(t, ts, SubtractDays(next, 1, berlin))
}

func TestDaysBetween(t *testing.T) {
	loc := mustLoad(t, "America/New_York")

	testCases := []struct {
		name string
		a, b int64
		want int
	}{
		{"same instant", at(loc, 2024, 5, 1, 12, 0), at(loc, 2024, 5, 1, 12, 0), 0},
		{"same day early to late", at(loc, 2024, 5, 1, 0, 1), at(loc, 2024, 5, 1, 23, 59), 0},
		{"midnight crossing", at(loc, 2024, 5, 1, 23, 59), at(loc, 2024, 5, 2, 0, 1), 1},
		{"later time of day, next date", at(loc, 2024, 5, 1, 8, 0), at(loc, 2024, 5, 2, 22, 0), 1},
		{"earlier time of day, two dates later", at(loc, 2024, 5, 1, 22, 0), at(loc, 2024, 5, 3, 1, 0), 2},
		{"backwards", at(loc, 2024, 5, 3, 10, 0), at(loc, 2024, 5, 1, 10, 0), -2},
		{"across fall back", at(loc, 2024, 11, 2, 12, 0), at(loc, 2024, 11, 4, 12, 0), 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DaysBetween(tc.a, tc.b, loc))
		})
	}
}

func TestDaysBetweenNonNegativeForOrderedPairs(t *testing.T) {
	base := at(time.UTC, 2024, 1, 1, 0, 0)
	for step := int64(0); step < 14*24*60; step += 37 {
		a := base + step*60000
		for _, gap := range []int64{0, 1, 59, 61, 1440, 1441, 5000} {
			b := a + gap*60000
			assert.GreaterOrEqual(t, DaysBetween(a, b, time.UTC), 0)
		}
		assert.Zero(t, DaysBetween(a, a, time.UTC))
	}
}

func TestClockHelpers(t *testing.T) {
	ts := at(time.UTC, 2024, 7, 4, 17, 45)

	assert.Equal(t, 17, HourOfDay(ts, time.UTC))
	assert.Equal(t, 45, MinuteOfHour(ts, time.UTC))
	assert.Equal(t, "17:45", FormatClock(ts, time.UTC))
	assert.Equal(t, at(time.UTC, 2024, 7, 4, 0, 0), StartOfDay(ts, time.UTC))
	assert.Equal(t, 105, MinutesBetween(at(time.UTC, 2024, 7, 4, 16, 0), ts))
}
