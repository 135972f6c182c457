package analytics

import (
	"fmt"
	"time"
)

// FillPolicy decides the value of a day missing from a sparse series.
type FillPolicy int

const (
	// FillForward repeats the last known value, or 0 before the first one.
	// Suits cumulative series such as fitness scores.
	FillForward FillPolicy = iota
	// FillZero emits 0. Suits per-day quantities such as distance.
	FillZero
)

func (p FillPolicy) String() string {
	switch p {
	case FillForward:
		return "forward"
	case FillZero:
		return "zero"
	default:
		return fmt.Sprintf("FillPolicy(%d)", int(p))
	}
}

// Sample is one dated value of a sparse series.
type Sample struct {
	Date  time.Time
	Value float64
}

// DailyPoint is one day of a dense series.
type DailyPoint struct {
	Day   time.Time `json:"date"`
	Value float64   `json:"value"`
}

type materializeOptions struct {
	dayShift int
	carryIn  bool
}

// MaterializeOption tunes Materialize.
type MaterializeOption func(*materializeOptions)

// WithDayShift moves every sample by n days before it is matched to a
// calendar day. Only needed for sources whose dates were stored one day early
// by a timezone round-trip.
func WithDayShift(n int) MaterializeOption {
	return func(o *materializeOptions) {
		o.dayShift = n
	}
}

// WithCarryIn seeds forward fill with the latest sample dated before the
// window, so a cumulative series does not drop to 0 at the window edge.
func WithCarryIn() MaterializeOption {
	return func(o *materializeOptions) {
		o.carryIn = true
	}
}

// Materialize expands a sparse series into one point per calendar day of the
// window, in ascending order. When two samples fall on the same day the later
// one in input order wins.
func Materialize(series []Sample, window Window, fill FillPolicy, today time.Time, opts ...MaterializeOption) []DailyPoint {
	var o materializeOptions
	for _, opt := range opts {
		opt(&o)
	}

	start, end := window.Range(today)

	var (
		last     float64
		lastSeen time.Time
	)
	lookup := make(map[string]float64, len(series))
	for _, s := range series {
		day := Day(s.Date).AddDate(0, 0, o.dayShift)
		lookup[dayKey(day)] = s.Value
		if o.carryIn && day.Before(start) && !day.Before(lastSeen) {
			last, lastSeen = s.Value, day
		}
	}

	points := make([]DailyPoint, 0, DaysBetween(start, end)+1)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		value, ok := lookup[dayKey(d)]
		switch {
		case ok:
			last = value
		case fill == FillForward:
			value = last
		default:
			value = 0
		}
		points = append(points, DailyPoint{Day: d, Value: value})
	}
	return points
}
