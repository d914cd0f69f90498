package aggregate

import (
	"time"

	"github.com/lumenlearn/pulse/internal/model"
)

// dayStart truncates t to UTC midnight.
func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// dayBounds returns the [00:00, next midnight) window containing t.
func dayBounds(t time.Time) (time.Time, time.Time) {
	start := dayStart(t)
	return start, start.AddDate(0, 0, 1)
}

// weekStart returns the Monday 00:00 UTC starting the week containing t.
func weekStart(t time.Time) time.Time {
	start := dayStart(t)
	offset := (int(start.Weekday()) + 6) % 7 // Monday=0 .. Sunday=6
	return start.AddDate(0, 0, -offset)
}

// monthStart returns the first of the month at 00:00 UTC.
func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// periodWindow resolves the [start, end) window of the given period
// anchored at t.
func periodWindow(period model.PeriodType, t time.Time) (time.Time, time.Time) {
	switch period {
	case model.PeriodHour:
		start := t.UTC().Truncate(time.Hour)
		return start, start.Add(time.Hour)
	case model.PeriodWeek:
		start := weekStart(t)
		return start, start.AddDate(0, 0, 7)
	case model.PeriodMonth:
		start := monthStart(t)
		return start, start.AddDate(0, 1, 0)
	default:
		return dayBounds(t)
	}
}

// daysBetween counts whole calendar days from a to b, comparing UTC
// midnights so partial days never round inconsistently.
func daysBetween(a, b time.Time) int {
	return int(dayStart(b).Sub(dayStart(a)) / (24 * time.Hour))
}

// addPeriods advances start by n periods of the given type.
func addPeriods(start time.Time, period model.PeriodType, n int) time.Time {
	switch period {
	case model.PeriodWeek:
		return start.AddDate(0, 0, 7*n)
	case model.PeriodMonth:
		return start.AddDate(0, n, 0)
	default:
		return start.AddDate(0, 0, n)
	}
}
