// Package analytics holds the fitness scoring and charting algorithms.
//
// Everything in this package is pure: no I/O, no clocks. Callers pass "today"
// explicitly so results are reproducible.
package analytics

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrMalformedDuration is returned when a duration is not "HH:MM:SS".
	ErrMalformedDuration = errors.New("malformed duration")
	// ErrMalformedPace is returned when a pace is not "MM:SS".
	ErrMalformedPace = errors.New("malformed pace")
)

// DurationToMinutes converts "HH:MM:SS" into fractional minutes.
func DurationToMinutes(text string) (float64, error) {
	fields, ok := parseClock(text, 3)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrMalformedDuration, text)
	}
	return float64(fields[0])*60 + float64(fields[1]) + float64(fields[2])/60, nil
}

// PaceToMinutes converts "MM:SS" (minutes per kilometre) into fractional minutes.
func PaceToMinutes(text string) (float64, error) {
	fields, ok := parseClock(text, 2)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrMalformedPace, text)
	}
	return float64(fields[0]) + float64(fields[1])/60, nil
}

// DerivePace computes the "m:ss" pace of a run from its duration and distance.
func DerivePace(durationText string, distanceKm float64) (string, error) {
	minutes, err := DurationToMinutes(durationText)
	if err != nil {
		return "", err
	}
	if distanceKm <= 0 || math.IsNaN(distanceKm) || math.IsInf(distanceKm, 0) {
		return "", fmt.Errorf("%w: distance %v", ErrMalformedPace, distanceKm)
	}

	pace := minutes / distanceKm
	whole := int(math.Floor(pace))
	seconds := int(math.Round((pace - float64(whole)) * 60))
	if seconds == 60 {
		whole++
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", whole, seconds), nil
}

func parseClock(text string, want int) ([]int, bool) {
	parts := strings.Split(strings.TrimSpace(text), ":")
	if len(parts) != want {
		return nil, false
	}
	out := make([]int, 0, want)
	for _, part := range parts {
		value, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || value < 0 {
			return nil, false
		}
		out = append(out, value)
	}
	return out, true
}
