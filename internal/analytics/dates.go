package analytics

import (
	"math"
	"time"
)

const dayLayout = "2006-01-02"

// Day truncates t to its calendar date, expressed as midnight UTC.
// The date is taken in t's own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the calendar date of now as observed in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return Day(now.In(loc))
}

// DaysBetween returns the number of whole days from a to b, floored.
func DaysBetween(a, b time.Time) int {
	return int(math.Floor(Day(b).Sub(Day(a)).Hours() / 24))
}

func dayKey(t time.Time) string {
	return Day(t).Format(dayLayout)
}
