package memory

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"example.com/analytics/internal/analytics"
)

// SeedRun is one run in a seed file. Field names follow the runs table.
type SeedRun struct {
	ID         string    `json:"run_id"`
	UserID     string    `json:"user_id"`
	Date       string    `json:"run_date"`
	DistanceKm float64   `json:"distance_km"`
	Duration   string    `json:"duration"`
	Pace       string    `json:"pace,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Seed reads a JSON array of runs from r and stores them. Nothing is stored
// when any entry is rejected. A blank pace is derived from duration and
// distance, as the Postgres repository does.
func (s *Store) Seed(r io.Reader) (int, error) {
	var entries []SeedRun
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return 0, fmt.Errorf("decode seed runs: %w", err)
	}

	runs := make([]analytics.Run, 0, len(entries))
	for i, entry := range entries {
		if entry.ID == "" || entry.UserID == "" {
			return 0, fmt.Errorf("seed run %d: run_id and user_id are required", i)
		}
		date, err := time.Parse(time.DateOnly, entry.Date)
		if err != nil {
			return 0, fmt.Errorf("seed run %s: run_date: %w", entry.ID, err)
		}

		run := analytics.Run{
			ID:         entry.ID,
			UserID:     entry.UserID,
			Date:       date,
			DistanceKm: entry.DistanceKm,
			Duration:   entry.Duration,
			Pace:       entry.Pace,
			CreatedAt:  entry.CreatedAt,
		}
		if strings.TrimSpace(run.Pace) == "" {
			if pace, err := analytics.DerivePace(run.Duration, run.DistanceKm); err == nil {
				run.Pace = pace
			}
		}
		runs = append(runs, run)
	}

	for _, run := range runs {
		s.PutRun(run)
	}
	return len(runs), nil
}
