// Package week computes activity accounting week boundaries and renders
// durations for display.
package week

import (
	"fmt"
	"strings"
	"time"
)

// Boundary returns the most recent week-start instant at or before t:
// midnight of the configured start weekday in loc.
func Boundary(t time.Time, start time.Weekday, loc *time.Location) time.Time {
	local := t.In(loc)
	days := int(local.Weekday() - start)
	if days < 0 {
		days += 7
	}
	day := local.AddDate(0, 0, -days)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
}

// Next returns the first week-start instant strictly after t.
func Next(t time.Time, start time.Weekday, loc *time.Location) time.Time {
	return Boundary(t, start, loc).AddDate(0, 0, 7)
}

// SameWeek reports whether a and b fall inside the same accounting week.
func SameWeek(a, b time.Time, start time.Weekday, loc *time.Location) bool {
	return Boundary(a, start, loc).Equal(Boundary(b, start, loc))
}

// FormatDuration renders d largest-unit-first, omitting zero components,
// e.g. "1j 2h 5min 30s". Negative or zero durations render as "0s".
// Display only: threshold comparisons always use the raw duration.
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	total := int64(d.Seconds())
	days := total / 86400
	hours := (total % 86400) / 3600
	mins := (total % 3600) / 60
	secs := total % 60

	parts := make([]string, 0, 4)
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dj", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if mins > 0 {
		parts = append(parts, fmt.Sprintf("%dmin", mins))
	}
	if secs > 0 {
		parts = append(parts, fmt.Sprintf("%ds", secs))
	}
	if len(parts) == 0 {
		return "0s"
	}
	return strings.Join(parts, " ")
}
