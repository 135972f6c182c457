package analytics

import (
	"errors"
	"time"
)

// StreakMultiplier compounds once per consecutive running day.
const StreakMultiplier = 1.05

// ScorePoint is the cumulative score as of one run.
type ScorePoint struct {
	Date  time.Time
	Score float64
}

// ScoreSeries is the output of ComputeScoreSeries. Invalid lists the runs that
// were scored as zero.
type ScoreSeries struct {
	Points  []ScorePoint
	Invalid []*InvalidRunDataError
}

// ComputeScoreSeries folds a user's runs, oldest first, into a running total
// weighted by the current streak multiplier. It emits one point per run.
//
// The multiplier grows by StreakMultiplier when a run lands exactly one day
// after the previous one and resets to 1 on any other gap, including same-day
// runs and out-of-order input. A run that cannot be scored contributes 0 and
// leaves the multiplier and the previous date untouched, so its neighbours
// are compared with each other.
//
// An empty history yields a single zero point dated today.
func ComputeScoreSeries(runs []Run, today time.Time) ScoreSeries {
	if len(runs) == 0 {
		return ScoreSeries{Points: []ScorePoint{{Date: Day(today), Score: 0}}}
	}

	series := ScoreSeries{Points: make([]ScorePoint, 0, len(runs))}
	var (
		total      float64
		multiplier = 1.0
		previous   time.Time
		seen       bool
	)

	for _, run := range runs {
		contribution, err := ScoreOf(run)
		if err != nil {
			var runErr *InvalidRunDataError
			if errors.As(err, &runErr) {
				series.Invalid = append(series.Invalid, runErr)
			}
			series.Points = append(series.Points, ScorePoint{Date: Day(run.Date), Score: total})
			continue
		}

		if seen {
			if DaysBetween(previous, run.Date) == 1 {
				multiplier *= StreakMultiplier
			} else {
				multiplier = 1
			}
		}

		total += contribution * multiplier
		series.Points = append(series.Points, ScorePoint{Date: Day(run.Date), Score: total})
		previous = run.Date
		seen = true
	}

	return series
}
