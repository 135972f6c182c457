package analytics

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Score weights applied to a single run.
const (
	DurationWeight = 0.4
	DistanceWeight = 0.4
	PaceWeight     = 0.2
)

// ErrInvalidRunData marks a run that cannot be scored.
var ErrInvalidRunData = errors.New("invalid run data")

// Run is a logged workout as read from the workout store.
type Run struct {
	ID         string
	UserID     string
	Date       time.Time
	DistanceKm float64
	Duration   string // "HH:MM:SS"
	Pace       string // "MM:SS" per kilometre
	CreatedAt  time.Time
}

// InvalidRunDataError describes why a run contributed nothing to the score.
type InvalidRunDataError struct {
	RunID string
	Date  time.Time
	Err   error
}

func (e *InvalidRunDataError) Error() string {
	return fmt.Sprintf("run %s on %s: %v", e.RunID, dayKey(e.Date), e.Err)
}

// Unwrap exposes the underlying cause.
func (e *InvalidRunDataError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrInvalidRunData.
func (e *InvalidRunDataError) Is(target error) bool { return target == ErrInvalidRunData }

// ScoreOf returns the streak-independent contribution of a single run.
func ScoreOf(run Run) (float64, error) {
	duration, err := DurationToMinutes(run.Duration)
	if err != nil {
		return 0, invalid(run, err)
	}
	pace, err := PaceToMinutes(run.Pace)
	if err != nil {
		return 0, invalid(run, err)
	}
	if !finite(run.DistanceKm) || !finite(duration) || !finite(pace) {
		return 0, invalid(run, errors.New("non-finite distance, duration or pace"))
	}

	paceScore := 1 / pace * PaceWeight
	if !finite(paceScore) {
		return 0, invalid(run, fmt.Errorf("pace %q yields a non-finite score", run.Pace))
	}
	return duration*DurationWeight + run.DistanceKm*DistanceWeight + paceScore, nil
}

func invalid(run Run, err error) *InvalidRunDataError {
	return &InvalidRunDataError{RunID: run.ID, Date: run.Date, Err: err}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
