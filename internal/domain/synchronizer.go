package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"example.com/analytics/internal/analytics"
	"example.com/analytics/internal/observability"
)

// ErrSnapshotWrite wraps persistence failures while rewriting snapshots. The
// rewrite is transactional, so a failed resync leaves the previous snapshots.
var ErrSnapshotWrite = errors.New("snapshot write failed")

// RunRepository reads the workout records owned by the activity log.
type RunRepository interface {
	// ListByUser returns every run of the user ordered by date, then by
	// insertion order.
	ListByUser(ctx context.Context, userID string) ([]analytics.Run, error)
	// DistancesByDate returns one sample per run date with the day's total distance.
	DistancesByDate(ctx context.Context, userID string) ([]analytics.Sample, error)
	// ListUserIDs returns every user that has at least one run.
	ListUserIDs(ctx context.Context) ([]string, error)
}

// SnapshotRepository persists score snapshots keyed by (user, date).
type SnapshotRepository interface {
	GetSnapshot(ctx context.Context, userID string, date time.Time) (*ScoreSnapshot, error)
	UpsertSnapshot(ctx context.Context, snapshot ScoreSnapshot) error
	DeleteSnapshots(ctx context.Context, userID string) (int64, error)
	ListSnapshots(ctx context.Context, userID string) ([]ScoreSnapshot, error)
	// InTx applies every write fn makes through tx atomically. When fn returns
	// an error none of them become visible.
	InTx(ctx context.Context, fn func(tx SnapshotRepository) error) error
}

// UserLocker serializes resynchronizations of the same user. The replay reads
// the whole history and rewrites every snapshot, so two concurrent replays for
// one user may interleave stale reads and writes.
type UserLocker interface {
	WithUserLock(ctx context.Context, userID string, fn func(context.Context) error) error
}

// SynchronizerOption configures a Synchronizer.
type SynchronizerOption func(*Synchronizer)

// WithSyncMode selects rebuild or upsert behaviour.
func WithSyncMode(mode SyncMode) SynchronizerOption {
	return func(s *Synchronizer) {
		s.mode = mode
	}
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) SynchronizerOption {
	return func(s *Synchronizer) {
		s.clock = clock
	}
}

// WithLocation sets the timezone used to decide what "today" is.
func WithLocation(loc *time.Location) SynchronizerOption {
	return func(s *Synchronizer) {
		if loc != nil {
			s.location = loc
		}
	}
}

// Synchronizer replays a user's full run history into score snapshots.
type Synchronizer struct {
	runs      RunRepository
	snapshots SnapshotRepository
	locker    UserLocker
	mode      SyncMode
	clock     func() time.Time
	location  *time.Location
}

// NewSynchronizer constructs a Synchronizer.
func NewSynchronizer(runs RunRepository, snapshots SnapshotRepository, locker UserLocker, opts ...SynchronizerOption) *Synchronizer {
	s := &Synchronizer{
		runs:      runs,
		snapshots: snapshots,
		locker:    locker,
		mode:      SyncModeRebuild,
		clock:     time.Now,
		location:  time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today returns the current calendar day in the configured location.
func (s *Synchronizer) Today() time.Time {
	return analytics.Today(s.clock(), s.location)
}

// ResynchronizeUser recomputes the user's score series from scratch and
// rewrites the snapshot rows. Runs sharing a date each produce a point; the
// last one written for that date wins. Calling it twice without intervening
// run changes leaves identical snapshots.
func (s *Synchronizer) ResynchronizeUser(ctx context.Context, userID string) (SyncResult, error) {
	start := time.Now()

	var result SyncResult
	err := s.locker.WithUserLock(ctx, userID, func(ctx context.Context) error {
		var replayErr error
		result, replayErr = s.replay(ctx, userID)
		return replayErr
	})

	observability.RecordResync(time.Since(start), err)
	return result, err
}

func (s *Synchronizer) replay(ctx context.Context, userID string) (SyncResult, error) {
	result := SyncResult{UserID: userID}
	logger := log.WithField("user_id", userID)

	runs, err := s.runs.ListByUser(ctx, userID)
	if err != nil {
		return result, fmt.Errorf("list runs of %s: %w", userID, err)
	}

	series := analytics.ComputeScoreSeries(runs, s.Today())
	result.Points = len(series.Points)
	result.Invalid = len(series.Invalid)
	for _, invalid := range series.Invalid {
		logger.WithField("run_id", invalid.RunID).Warnf("run scored as zero: %v", invalid.Err)
		observability.RecordInvalidRun()
	}

	now := s.clock().UTC()
	var created, updated int
	var pruned int64
	err = s.snapshots.InTx(ctx, func(tx SnapshotRepository) error {
		if s.mode == SyncModeRebuild {
			n, err := tx.DeleteSnapshots(ctx, userID)
			if err != nil {
				return fmt.Errorf("%w: delete snapshots of %s: %w", ErrSnapshotWrite, userID, err)
			}
			pruned = n
		}

		for _, point := range series.Points {
			existing, err := tx.GetSnapshot(ctx, userID, point.Date)
			if err != nil {
				return fmt.Errorf("%w: read snapshot %s/%s: %w", ErrSnapshotWrite, userID, point.Date.Format(time.DateOnly), err)
			}

			snapshot := ScoreSnapshot{UserID: userID, Date: point.Date, Score: point.Score, UpdatedAt: now}
			if err := tx.UpsertSnapshot(ctx, snapshot); err != nil {
				return fmt.Errorf("%w: upsert snapshot %s/%s: %w", ErrSnapshotWrite, userID, point.Date.Format(time.DateOnly), err)
			}

			if existing == nil {
				created++
			} else {
				updated++
			}
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrSnapshotWrite) {
			err = fmt.Errorf("%w: commit snapshots of %s: %w", ErrSnapshotWrite, userID, err)
		}
		return result, err
	}

	result.Created, result.Updated, result.Pruned = created, updated, pruned
	observability.RecordSnapshotsWritten(result.Created, result.Updated)

	logger.WithFields(log.Fields{
		"points":  result.Points,
		"created": result.Created,
		"updated": result.Updated,
		"pruned":  result.Pruned,
		"invalid": result.Invalid,
	}).Debug("score snapshots resynchronized")
	return result, nil
}
