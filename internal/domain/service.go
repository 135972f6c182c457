// Package domain orchestrates score resynchronization and chart series for the
// analytics service.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"example.com/analytics/internal/analytics"
	"example.com/analytics/internal/events"
)

// SeriesKind names a chartable series.
type SeriesKind string

const (
	SeriesScore    SeriesKind = "score"
	SeriesDistance SeriesKind = "distance"
)

// SeriesCache stores materialized series by opaque key.
type SeriesCache interface {
	Get(key string) ([]analytics.DailyPoint, bool)
	Set(key string, points []analytics.DailyPoint)
	Delete(keys ...string)
}

// ScorePublisher announces finished resynchronizations.
type ScorePublisher interface {
	PublishScoreResynchronized(ctx context.Context, event events.ScoreResynchronized) error
}

// Series is a dense chart series over a window.
type Series struct {
	Kind   SeriesKind
	Window analytics.Window
	Points []analytics.DailyPoint
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithSeriesCache enables caching of materialized series.
func WithSeriesCache(cache SeriesCache) ServiceOption {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithPublisher sets the publisher notified after each resync.
func WithPublisher(publisher ScorePublisher) ServiceOption {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// WithMaterializeOptions passes options to every Materialize call.
func WithMaterializeOptions(opts ...analytics.MaterializeOption) ServiceOption {
	return func(s *Service) {
		s.materializeOpts = append(s.materializeOpts, opts...)
	}
}

// WithScoreCarryIn lets the score chart start from the latest score recorded
// before the window instead of 0.
func WithScoreCarryIn(enabled bool) ServiceOption {
	return func(s *Service) {
		s.carryIn = enabled
	}
}

// Service is the entry point for the HTTP and consumer layers.
type Service struct {
	runs            RunRepository
	snapshots       SnapshotRepository
	sync            *Synchronizer
	cache           SeriesCache
	publisher       ScorePublisher
	materializeOpts []analytics.MaterializeOption
	carryIn         bool
}

// NewService constructs a Service.
func NewService(runs RunRepository, snapshots SnapshotRepository, sync *Synchronizer, opts ...ServiceOption) *Service {
	s := &Service{runs: runs, snapshots: snapshots, sync: sync}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resynchronize replays the user's history, drops cached series and publishes
// a ScoreResynchronized event. A publish failure is logged, not returned.
func (s *Service) Resynchronize(ctx context.Context, userID string) (SyncResult, error) {
	result, err := s.sync.ResynchronizeUser(ctx, userID)
	if err != nil {
		return result, err
	}

	s.InvalidateSeries(userID)

	if s.publisher != nil {
		event := events.ScoreResynchronized{
			UserID:     userID,
			Points:     result.Points,
			Created:    result.Created,
			Updated:    result.Updated,
			Pruned:     result.Pruned,
			Invalid:    result.Invalid,
			OccurredAt: time.Now().UTC(),
		}
		if pubErr := s.publisher.PublishScoreResynchronized(ctx, event); pubErr != nil {
			log.WithField("user_id", userID).Errorf("publish score resynchronized: %v", pubErr)
		}
	}
	return result, nil
}

// ResynchronizeAll replays every user with runs and returns the number that
// succeeded. Failures for individual users are joined into the error.
func (s *Service) ResynchronizeAll(ctx context.Context) (int, error) {
	userIDs, err := s.runs.ListUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	var errs error
	done := 0
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return done, errors.Join(errs, err)
		}
		if _, err := s.Resynchronize(ctx, userID); err != nil {
			errs = errors.Join(errs, fmt.Errorf("user %s: %w", userID, err))
			continue
		}
		done++
	}
	return done, errs
}

// Snapshots returns the persisted snapshots of a user ordered by date.
func (s *Service) Snapshots(ctx context.Context, userID string) ([]ScoreSnapshot, error) {
	return s.snapshots.ListSnapshots(ctx, userID)
}

// ScoreSeries materializes the user's score snapshots over the window named by
// token, forward-filling days without a snapshot.
func (s *Service) ScoreSeries(ctx context.Context, userID, token string) (Series, error) {
	return s.series(ctx, userID, token, SeriesScore, func(ctx context.Context) ([]analytics.Sample, error) {
		snapshots, err := s.snapshots.ListSnapshots(ctx, userID)
		if err != nil {
			return nil, err
		}
		samples := make([]analytics.Sample, 0, len(snapshots))
		for _, snap := range snapshots {
			samples = append(samples, analytics.Sample{Date: snap.Date, Value: snap.Score})
		}
		return samples, nil
	})
}

// DistanceSeries materializes the user's daily distance over the window named
// by token, zero-filling days without runs.
func (s *Service) DistanceSeries(ctx context.Context, userID, token string) (Series, error) {
	return s.series(ctx, userID, token, SeriesDistance, func(ctx context.Context) ([]analytics.Sample, error) {
		return s.runs.DistancesByDate(ctx, userID)
	})
}

func (s *Service) series(ctx context.Context, userID, token string, kind SeriesKind, load func(context.Context) ([]analytics.Sample, error)) (Series, error) {
	window, ok := analytics.ParseWindow(token)
	if !ok && token != "" {
		log.WithFields(log.Fields{"user_id": userID, "window": token}).Debug("unknown window, using default")
	}

	today := s.sync.Today()
	key := seriesKey(userID, kind, window, today)
	if s.cache != nil {
		if points, hit := s.cache.Get(key); hit {
			return Series{Kind: kind, Window: window, Points: points}, nil
		}
	}

	samples, err := load(ctx)
	if err != nil {
		return Series{}, fmt.Errorf("load %s series of %s: %w", kind, userID, err)
	}

	fill := analytics.FillZero
	opts := s.materializeOpts
	if kind == SeriesScore {
		fill = analytics.FillForward
		if s.carryIn {
			opts = append(append([]analytics.MaterializeOption(nil), opts...), analytics.WithCarryIn())
		}
	}

	points := analytics.Materialize(samples, window, fill, today, opts...)
	if s.cache != nil {
		s.cache.Set(key, points)
	}
	return Series{Kind: kind, Window: window, Points: points}, nil
}

// InvalidateSeries drops the user's cached series for today. The API calls it
// for resyncs that other processes announce on the score events topic.
func (s *Service) InvalidateSeries(userID string) {
	if s.cache == nil {
		return
	}
	today := s.sync.Today()
	keys := make([]string, 0, 2*len(analytics.Windows))
	for _, kind := range []SeriesKind{SeriesScore, SeriesDistance} {
		for _, window := range analytics.Windows {
			keys = append(keys, seriesKey(userID, kind, window, today))
		}
	}
	s.cache.Delete(keys...)
}

func seriesKey(userID string, kind SeriesKind, window analytics.Window, day time.Time) string {
	return fmt.Sprintf("%s|%s|%s|%s", userID, kind, window, day.Format(time.DateOnly))
}
