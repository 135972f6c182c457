package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// AdvisoryLocker serializes work per user with session-level advisory locks,
// so resyncs from the API and the consumer never overlap for one user.
type AdvisoryLocker struct {
	pool *pgxpool.Pool
}

// NewAdvisoryLocker constructs an AdvisoryLocker.
func NewAdvisoryLocker(pool *pgxpool.Pool) *AdvisoryLocker {
	return &AdvisoryLocker{pool: pool}
}

// WithUserLock blocks until the user's lock is held, runs fn and releases it.
func (l *AdvisoryLocker) WithUserLock(ctx context.Context, userID string, fn func(context.Context) error) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtextextended($1, 0))`, userID); err != nil {
		return err
	}
	defer func() {
		// The caller's context may already be cancelled; unlocking must still happen.
		if _, err := conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, userID); err != nil {
			log.WithField("user_id", userID).Errorf("release advisory lock: %v", err)
			// A connection still holding the lock must not go back to the pool.
			conn.Conn().Close(context.WithoutCancel(ctx))
		}
	}()

	return fn(ctx)
}
