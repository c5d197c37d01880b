// Package timeutil holds the timestamp arithmetic shared by the grid and the
// event engine. Timestamps are milliseconds since the Unix epoch; anything that
// reasons about calendar days takes the viewer's location explicitly.
package timeutil

import "time"

const (
	msPerMinute = int64(time.Minute / time.Millisecond)
	msPerHour   = int64(time.Hour / time.Millisecond)
)

// Time converts a millisecond timestamp to a time.Time in loc.
func Time(ts int64, loc *time.Location) time.Time {
	return time.UnixMilli(ts).In(location(loc))
}

// Millis converts t to milliseconds since the epoch.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

func AddMinutes(ts int64, minutes int) int64 {
	return ts + int64(minutes)*msPerMinute
}

func SubtractMinutes(ts int64, minutes int) int64 {
	return ts - int64(minutes)*msPerMinute
}

func AddHours(ts int64, hours int) int64 {
	return ts + int64(hours)*msPerHour
}

func SubtractHours(ts int64, hours int) int64 {
	return ts - int64(hours)*msPerHour
}

// AddDays moves ts by whole calendar days in loc, keeping the wall clock time.
// Across a DST change the result is not a multiple of 24h away from ts.
func AddDays(ts int64, days int, loc *time.Location) int64 {
	return Time(ts, loc).AddDate(0, 0, days).UnixMilli()
}

func SubtractDays(ts int64, days int, loc *time.Location) int64 {
	return AddDays(ts, -days, loc)
}

// DaysBetween returns how many calendar-day boundaries separate a and b in loc.
// Only the dates matter: 23:59 -> 00:01 the next day is one day, 00:01 -> 23:59
// on the same day is zero. The result is negative when b falls on an earlier date.
func DaysBetween(a, b int64, loc *time.Location) int {
	ta, tb := Time(a, loc), Time(b, loc)
	da := time.Date(ta.Year(), ta.Month(), ta.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(tb.Year(), tb.Month(), tb.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// MinutesBetween returns the whole minutes from a to b, truncated toward zero.
func MinutesBetween(a, b int64) int {
	return int((b - a) / msPerMinute)
}

// StartOfDay returns local midnight of the day containing ts.
func StartOfDay(ts int64, loc *time.Location) int64 {
	t := Time(ts, loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).UnixMilli()
}

func HourOfDay(ts int64, loc *time.Location) int {
	return Time(ts, loc).Hour()
}

func MinuteOfHour(ts int64, loc *time.Location) int {
	return Time(ts, loc).Minute()
}

// FormatClock renders ts as HH:MM in loc.
func FormatClock(ts int64, loc *time.Location) string {
	return Time(ts, loc).Format("15:04")
}

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}
