// Package window computes the recurring reset boundaries for the daily
// and weekly action resources.
//
// Both windows reset at 06:00 local time rather than midnight, so a
// late-night check-in counts against the day it belongs to. The weekly
// window starts Monday (ISO weekday numbering).
//
// Boundary rule: an instant exactly at a reset boundary belongs to the
// NEW window. For any t, DayStart(t) <= t < DayEnd(t).
package window

import "time"

// ResetHour is the local hour at which both windows roll over.
const ResetHour = 6

// DayStart returns the start of the day window containing t,
// in t's location.
func DayStart(t time.Time) time.Time {
	start := time.Date(t.Year(), t.Month(), t.Day(), ResetHour, 0, 0, 0, t.Location())
	if t.Before(start) {
		start = start.AddDate(0, 0, -1)
	}
	return start
}

// DayEnd returns the first instant after the day window containing t,
// i.e. the next reset boundary.
func DayEnd(t time.Time) time.Time {
	return DayStart(t).AddDate(0, 0, 1)
}

// WeekStart returns the Monday 06:00 boundary starting the week window
// containing t.
func WeekStart(t time.Time) time.Time {
	day := DayStart(t)
	// Weekday is Sunday-based; shift so Monday = 0.
	back := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -back)
}

// WeekEnd returns the first instant after the week window containing t.
func WeekEnd(t time.Time) time.Time {
	return WeekStart(t).AddDate(0, 0, 7)
}

// InDayWindow reports whether ts falls inside the day window that
// contains ref. The lower boundary is inclusive, the upper exclusive.
func InDayWindow(ref, ts time.Time) bool {
	return !ts.Before(DayStart(ref)) && ts.Before(DayEnd(ref))
}

// InWeekWindow reports whether ts falls inside the week window that
// contains ref. The lower boundary is inclusive, the upper exclusive.
func InWeekWindow(ref, ts time.Time) bool {
	return !ts.Before(WeekStart(ref)) && ts.Before(WeekEnd(ref))
}
