//go:build integration

package postgres

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/analytics/internal/domain"
)

func TestRunRepositoryOrdersAndAggregates(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewRunRepository(pool)

	userID := uuid.NewString()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	insertRun(t, ctx, pool, "r3", userID, base.AddDate(0, 0, 1), 3, "00:18:00", "6:00", base.Add(2*time.Hour))
	insertRun(t, ctx, pool, "r1", userID, base, 5, "00:30:00", "6:00", base)
	insertRun(t, ctx, pool, "r2", userID, base.AddDate(0, 0, 1), 2, "00:12:00", "", base.Add(time.Hour))
	insertRun(t, ctx, pool, "other", uuid.NewString(), base, 1, "00:06:00", "6:00", base)

	runs, err := repo.ListByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	require.Equal(t, []string{"r1", "r2", "r3"}, []string{runs[0].ID, runs[1].ID, runs[2].ID})
	require.Equal(t, "6:00", runs[1].Pace, "blank pace is derived")
	require.True(t, base.Equal(runs[0].Date))

	samples, err := repo.DistancesByDate(ctx, userID)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	require.InDelta(t, 5.0, samples[0].Value, 1e-9)
	require.InDelta(t, 5.0, samples[1].Value, 1e-9)

	ids, err := repo.ListUserIDs(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 2)
}

func TestSnapshotRepositoryUpsertsPerDate(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewSnapshotRepository(pool)

	userID := uuid.NewString()
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	missing, err := repo.GetSnapshot(ctx, userID, day)
	require.NoError(t, err)
	require.Nil(t, missing)

	require.NoError(t, repo.UpsertSnapshot(ctx, domain.ScoreSnapshot{UserID: userID, Date: day, Score: 10}))
	require.NoError(t, repo.UpsertSnapshot(ctx, domain.ScoreSnapshot{UserID: userID, Date: day, Score: 12.5}))
	require.NoError(t, repo.UpsertSnapshot(ctx, domain.ScoreSnapshot{UserID: userID, Date: day.AddDate(0, 0, 2), Score: 20}))

	stored, err := repo.GetSnapshot(ctx, userID, day)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, 12.5, stored.Score)

	all, err := repo.ListSnapshots(ctx, userID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.True(t, day.Equal(all[0].Date))

	deleted, err := repo.DeleteSnapshots(ctx, userID)
	require.NoError(t, err)
	require.EqualValues(t, 2, deleted)
}

func TestSnapshotRepositoryInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewSnapshotRepository(pool)

	userID := uuid.NewString()
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.UpsertSnapshot(ctx, domain.ScoreSnapshot{UserID: userID, Date: day, Score: 10}))
	require.NoError(t, repo.UpsertSnapshot(ctx, domain.ScoreSnapshot{UserID: userID, Date: day.AddDate(0, 0, 1), Score: 20}))

	errAbort := errors.New("abort")
	err := repo.InTx(ctx, func(tx domain.SnapshotRepository) error {
		deleted, err := tx.DeleteSnapshots(ctx, userID)
		require.NoError(t, err)
		require.EqualValues(t, 2, deleted)

		visible, err := repo.ListSnapshots(ctx, userID)
		require.NoError(t, err)
		require.Len(t, visible, 2, "uncommitted delete is not visible to other readers")
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	all, err := repo.ListSnapshots(ctx, userID)
	require.NoError(t, err)
	require.Len(t, all, 2)

	require.NoError(t, repo.InTx(ctx, func(tx domain.SnapshotRepository) error {
		if _, err := tx.DeleteSnapshots(ctx, userID); err != nil {
			return err
		}
		return tx.UpsertSnapshot(ctx, domain.ScoreSnapshot{UserID: userID, Date: day, Score: 30})
	}))
	all, err = repo.ListSnapshots(ctx, userID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, 30.0, all[0].Score)
}

func TestAdvisoryLockerSerializesUser(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	locker := NewAdvisoryLocker(pool)

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithUserLock(ctx, "user-1", func(context.Context) error {
				mu.Lock()
				active++
				if active > maxSeen {
					maxSeen = active
				}
				mu.Unlock()

				time.Sleep(50 * time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Equal(t, 1, maxSeen)
}

func TestResynchronizeAgainstPostgresIsIdempotent(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)

	userID := uuid.NewString()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	insertRun(t, ctx, pool, "a", userID, base, 5, "00:30:00", "6:00", base)
	insertRun(t, ctx, pool, "b", userID, base.AddDate(0, 0, 1), 5, "00:30:00", "6:00", base)
	insertRun(t, ctx, pool, "c", userID, base.AddDate(0, 0, 3), 5, "00:30:00", "6:00", base)

	snapshots := NewSnapshotRepository(pool)
	synchronizer := domain.NewSynchronizer(NewRunRepository(pool), snapshots, NewAdvisoryLocker(pool),
		domain.WithClock(func() time.Time { return base.AddDate(0, 0, 10) }))

	first, err := synchronizer.ResynchronizeUser(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, 3, first.Created)
	before, err := snapshots.ListSnapshots(ctx, userID)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, `DELETE FROM runs WHERE run_id='c'`)
	require.NoError(t, err)
	_, err = synchronizer.ResynchronizeUser(ctx, userID)
	require.NoError(t, err)
	pruned, err := snapshots.ListSnapshots(ctx, userID)
	require.NoError(t, err)
	require.Len(t, pruned, 2, "orphaned date is removed in rebuild mode")

	insertRun(t, ctx, pool, "c", userID, base.AddDate(0, 0, 3), 5, "00:30:00", "6:00", base)
	_, err = synchronizer.ResynchronizeUser(ctx, userID)
	require.NoError(t, err)
	after, err := snapshots.ListSnapshots(ctx, userID)
	require.NoError(t, err)

	require.Len(t, after, len(before))
	for i := range before {
		require.True(t, before[i].Date.Equal(after[i].Date))
		require.InDelta(t, before[i].Score, after[i].Score, 1e-9)
	}
}

func insertRun(t *testing.T, ctx context.Context, pool *pgxpool.Pool, id, userID string, date time.Time, distance float64, duration, pace string, createdAt time.Time) {
	t.Helper()
	_, err := pool.Exec(ctx,
		`INSERT INTO runs (run_id, user_id, run_date, distance_km, duration, pace, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		id, userID, date, distance, duration, pace, createdAt)
	require.NoError(t, err)
}

func setupPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("fitness"),
		postgrescontainer.WithUsername("platform"),
		postgrescontainer.WithPassword("platform"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	runMigrations(t, ctx, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func runMigrations(t *testing.T, ctx context.Context, connStr string) {
	t.Helper()

	files, err := filepath.Glob(filepath.Join(resolvePath(t, "../../../db/postgres/migrations"), "*.up.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files)
	sort.Strings(files)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	defer pool.Close()

	for _, file := range files {
		contents, readErr := os.ReadFile(file)
		require.NoErrorf(t, readErr, "read migration %s", file)
		_, execErr := pool.Exec(ctx, string(contents))
		require.NoErrorf(t, execErr, "execute migration %s", file)
	}
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
