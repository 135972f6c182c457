// Package postgres implements the analytics repositories on PostgreSQL.
package postgres

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/analytics/internal/analytics"
)

// RunRepository reads workout records written by the activity log. It never
// writes to the runs table.
type RunRepository struct {
	pool *pgxpool.Pool
}

// NewRunRepository constructs a RunRepository.
func NewRunRepository(pool *pgxpool.Pool) *RunRepository {
	return &RunRepository{pool: pool}
}

// ListByUser returns every run of the user in replay order.
func (r *RunRepository) ListByUser(ctx context.Context, userID string) ([]analytics.Run, error) {
	const query = `SELECT run_id, user_id, run_date, distance_km, duration, pace, created_at
        FROM runs WHERE user_id=$1
        ORDER BY run_date ASC, created_at ASC, run_id ASC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]analytics.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// DistancesByDate returns the user's total distance per run date.
func (r *RunRepository) DistancesByDate(ctx context.Context, userID string) ([]analytics.Sample, error) {
	const query = `SELECT run_date, SUM(distance_km)
        FROM runs WHERE user_id=$1
        GROUP BY run_date
        ORDER BY run_date ASC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	samples := make([]analytics.Sample, 0)
	for rows.Next() {
		var sample analytics.Sample
		if err := rows.Scan(&sample.Date, &sample.Value); err != nil {
			return nil, err
		}
		sample.Date = analytics.Day(sample.Date)
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// ListUserIDs returns every user with at least one run.
func (r *RunRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT user_id FROM runs ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanRun(row pgx.Row) (analytics.Run, error) {
	var run analytics.Run
	if err := row.Scan(&run.ID, &run.UserID, &run.Date, &run.DistanceKm, &run.Duration, &run.Pace, &run.CreatedAt); err != nil {
		return analytics.Run{}, err
	}
	run.Date = analytics.Day(run.Date)

	// Older rows were written without a pace; derive it like the run log does.
	if strings.TrimSpace(run.Pace) == "" {
		if pace, err := analytics.DerivePace(run.Duration, run.DistanceKm); err == nil {
			run.Pace = pace
		}
	}
	return run, nil
}
