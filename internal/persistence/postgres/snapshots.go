package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/analytics/internal/analytics"
	"example.com/analytics/internal/domain"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SnapshotRepository persists fitness score snapshots.
type SnapshotRepository struct {
	pool *pgxpool.Pool // nil when bound to a transaction
	db   querier
}

// NewSnapshotRepository constructs a SnapshotRepository.
func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool, db: pool}
}

// InTx runs fn against a repository bound to one transaction and commits when
// fn succeeds. Other readers keep seeing the previous rows until the commit.
// Calls made on a transaction-bound repository run inside the same transaction.
func (r *SnapshotRepository) InTx(ctx context.Context, fn func(tx domain.SnapshotRepository) error) error {
	if r.pool == nil {
		return fn(r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&SnapshotRepository{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetSnapshot returns nil, nil when the user has no snapshot for date.
func (r *SnapshotRepository) GetSnapshot(ctx context.Context, userID string, date time.Time) (*domain.ScoreSnapshot, error) {
	const query = `SELECT user_id, score_date, score, updated_at
        FROM fitness_scores WHERE user_id=$1 AND score_date=$2`

	var snap domain.ScoreSnapshot
	err := r.db.QueryRow(ctx, query, userID, analytics.Day(date)).Scan(&snap.UserID, &snap.Date, &snap.Score, &snap.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	snap.Date = analytics.Day(snap.Date)
	return &snap, nil
}

// UpsertSnapshot creates the (user, date) row or overwrites its score.
func (r *SnapshotRepository) UpsertSnapshot(ctx context.Context, snapshot domain.ScoreSnapshot) error {
	const stmt = `INSERT INTO fitness_scores (user_id, score_date, score, updated_at)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (user_id, score_date) DO UPDATE SET score = EXCLUDED.score, updated_at = EXCLUDED.updated_at`

	updatedAt := snapshot.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, stmt, snapshot.UserID, analytics.Day(snapshot.Date), snapshot.Score, updatedAt)
	return err
}

// DeleteSnapshots removes every snapshot of the user.
func (r *SnapshotRepository) DeleteSnapshots(ctx context.Context, userID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM fitness_scores WHERE user_id=$1`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListSnapshots returns the user's snapshots ordered by date.
func (r *SnapshotRepository) ListSnapshots(ctx context.Context, userID string) ([]domain.ScoreSnapshot, error) {
	const query = `SELECT user_id, score_date, score, updated_at
        FROM fitness_scores WHERE user_id=$1
        ORDER BY score_date ASC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.ScoreSnapshot, 0)
	for rows.Next() {
		var snap domain.ScoreSnapshot
		if err := rows.Scan(&snap.UserID, &snap.Date, &snap.Score, &snap.UpdatedAt); err != nil {
			return nil, err
		}
		snap.Date = analytics.Day(snap.Date)
		results = append(results, snap)
	}
	return results, rows.Err()
}
