// Package window does the day arithmetic behind course access windows and relative due dates.
// A day is always exactly 24 hours; no calendar adjustment is applied.
package window

import "time"

const Day = 24 * time.Hour

// AddDays returns t shifted by n whole days.
func AddDays(t time.Time, n int) time.Time {
	return t.Add(time.Duration(n) * Day)
}

// Expiry is the end of an access window of durationDays starting at start.
func Expiry(start time.Time, durationDays int) time.Time {
	return AddDays(start, durationDays)
}

// DueDate is the deadline falling offsetDays after start.
func DueDate(start time.Time, offsetDays int) time.Time {
	return AddDays(start, offsetDays)
}

// DaysUntil returns the whole days from now until t, rounded down.
// It is negative once t has passed: 1 hour past t is -1, not 0.
func DaysUntil(t, now time.Time) int {
	d := t.Sub(now)
	days := d / Day
	if d%Day < 0 {
		days--
	}
	return int(days)
}

// Open reports whether now falls before the window's expiry.
func Open(expiry, now time.Time) bool {
	return now.Before(expiry)
}
