// Package timeutil provides UTC calendar helpers for the league.
// Every day boundary in the league (active days, daily caps, round edges) is a UTC boundary.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"time"
)

// DayLayout is the canonical day key format.
const DayLayout = "2006-01-02"

// Day is 24 hours. Rounds are always whole days long.
const Day = 24 * time.Hour

// Date creates a UTC midnight for the given date.
func Date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// DateTime creates a UTC time with the given date and time.
func DateTime(year, month, day, hour, min, sec int) time.Time {
	return time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC)
}

// StartOfDay returns 00:00:00 UTC of the day containing t.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the start of the following UTC day (exclusive end).
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1)
}

// DayKey returns the UTC calendar day of t as "YYYY-MM-DD".
func DayKey(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// ParseDayKey parses a "YYYY-MM-DD" key back into a UTC midnight.
func ParseDayKey(key string) (time.Time, error) {
	t, err := time.ParseInLocation(DayLayout, key, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("timeutil: invalid day key %q: %w", key, err)
	}
	return t, nil
}

// IsSameDay checks if two times fall on the same UTC day.
func IsSameDay(t1, t2 time.Time) bool {
	return DayKey(t1) == DayKey(t2)
}

// IsSundayMidnight reports whether t is exactly Sunday 00:00:00 UTC.
func IsSundayMidnight(t time.Time) bool {
	u := t.UTC()
	return u.Weekday() == time.Sunday && u.Equal(StartOfDay(u))
}

// NextSunday returns the first Sunday 00:00 UTC strictly after t.
func NextSunday(t time.Time) time.Time {
	start := StartOfDay(t)
	days := (7 - int(start.Weekday())) % 7
	if days == 0 {
		days = 7
	}
	return start.AddDate(0, 0, days)
}

// AlignWindow returns the [start, end) window of length period that contains t,
// where windows are laid end to end from anchor in both directions.
func AlignWindow(anchor time.Time, period time.Duration, t time.Time) (time.Time, time.Time) {
	if period <= 0 {
		return t, t
	}
	anchor = anchor.UTC()
	offset := t.UTC().Sub(anchor)
	k := offset / period
	if offset < 0 && offset%period != 0 {
		k--
	}
	start := anchor.Add(k * period)
	return start, start.Add(period)
}

// DaysBetween returns the number of whole UTC days from t1 to t2.
func DaysBetween(t1, t2 time.Time) int {
	return int(StartOfDay(t2).Sub(StartOfDay(t1)) / Day)
}

// FormatRelative renders a duration in a short human form, e.g. "3d 4h", "12m".
func FormatRelative(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	switch {
	case d >= Day:
		days := int(d / Day)
		hours := int((d % Day) / time.Hour)
		if hours == 0 {
			return fmt.Sprintf("%dd", days)
		}
		return fmt.Sprintf("%dd %dh", days, hours)
	case d >= time.Hour:
		return fmt.Sprintf("%dh %dm", int(d/time.Hour), int((d%time.Hour)/time.Minute))
	case d >= time.Minute:
		return fmt.Sprintf("%dm", int(d/time.Minute))
	default:
		return fmt.Sprintf("%ds", int(d/time.Second))
	}
}
