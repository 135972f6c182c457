package domain_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/analytics/internal/analytics"
	"example.com/analytics/internal/domain"
	"example.com/analytics/internal/events"
	"example.com/analytics/internal/persistence/memory"
)

func newService(store *memory.Store, opts ...domain.ServiceOption) *domain.Service {
	sync := domain.NewSynchronizer(store, store, store, domain.WithClock(fixedClock))
	return domain.NewService(store, store, sync, opts...)
}

func TestScoreSeriesForwardFills(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.PutRun(run("a", "user-1", -5))
	store.PutRun(run("b", "user-1", -2))
	service := newService(store)

	_, err := service.Resynchronize(ctx, "user-1")
	require.NoError(t, err)

	series, err := service.ScoreSeries(ctx, "user-1", "7D")
	require.NoError(t, err)
	require.Equal(t, analytics.Window7D, series.Window)
	require.Len(t, series.Points, 8)

	got := make([]float64, len(series.Points))
	for i, p := range series.Points {
		got[i] = p.Value
	}
	c := unitScore
	require.InDeltaSlice(t, []float64{0, 0, c, c, c, 2 * c, 2 * c, 2 * c}, got, 1e-9)
}

func TestScoreSeriesCarryIn(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.PutRun(run("a", "user-1", -30))
	service := newService(store, domain.WithScoreCarryIn(true))

	_, err := service.Resynchronize(ctx, "user-1")
	require.NoError(t, err)

	series, err := service.ScoreSeries(ctx, "user-1", "7D")
	require.NoError(t, err)
	for _, p := range series.Points {
		require.InDelta(t, unitScore, p.Value, 1e-9)
	}
}

func TestDistanceSeriesZeroFillsAndSumsSameDay(t *testing.T) {
	store := memory.NewStore()
	store.PutRun(run("a", "user-1", -1))
	second := run("b", "user-1", -1)
	second.DistanceKm = 2.5
	store.PutRun(second)
	service := newService(store)

	series, err := service.DistanceSeries(context.Background(), "user-1", "bogus")
	require.NoError(t, err)
	require.Equal(t, analytics.Window7D, series.Window, "unknown window falls back to 7D")
	require.Len(t, series.Points, 8)
	require.InDelta(t, 7.5, series.Points[6].Value, 1e-9)
	require.Zero(t, series.Points[7].Value)
	require.Zero(t, series.Points[0].Value)
}

func TestResynchronizeInvalidatesCacheAndPublishes(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.PutRun(run("a", "user-1", -1))
	cache := newMapCache()
	publisher := &recordingPublisher{}
	service := newService(store, domain.WithSeriesCache(cache), domain.WithPublisher(publisher))

	_, err := service.Resynchronize(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, publisher.events, 1)
	require.Equal(t, "user-1", publisher.events[0].UserID)
	require.Equal(t, 1, publisher.events[0].Created)

	first, err := service.ScoreSeries(ctx, "user-1", "7D")
	require.NoError(t, err)
	require.Len(t, cache.entries, 1)

	store.PutRun(run("b", "user-1", 0))
	cached, err := service.ScoreSeries(ctx, "user-1", "7D")
	require.NoError(t, err)
	require.Equal(t, first.Points, cached.Points, "served from cache until resync")

	_, err = service.Resynchronize(ctx, "user-1")
	require.NoError(t, err)
	require.Empty(t, cache.entries)

	fresh, err := service.ScoreSeries(ctx, "user-1", "7D")
	require.NoError(t, err)
	require.Greater(t, fresh.Points[7].Value, first.Points[7].Value)
}

func TestInvalidateSeriesPicksUpResyncsFromOtherProcesses(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.PutRun(run("a", "user-1", -1))
	cache := newMapCache()
	api := newService(store, domain.WithSeriesCache(cache))
	worker := newService(store)

	_, err := worker.Resynchronize(ctx, "user-1")
	require.NoError(t, err)
	first, err := api.ScoreSeries(ctx, "user-1", "7D")
	require.NoError(t, err)
	_, err = api.DistanceSeries(ctx, "user-1", "1M")
	require.NoError(t, err)
	require.Len(t, cache.entries, 2)

	store.PutRun(run("b", "user-1", 0))
	_, err = worker.Resynchronize(ctx, "user-1")
	require.NoError(t, err)
	stale, err := api.ScoreSeries(ctx, "user-1", "7D")
	require.NoError(t, err)
	require.Equal(t, first.Points, stale.Points)

	api.InvalidateSeries("user-1")
	require.Empty(t, cache.entries)

	fresh, err := api.ScoreSeries(ctx, "user-1", "7D")
	require.NoError(t, err)
	require.Greater(t, fresh.Points[7].Value, first.Points[7].Value)
}

func TestResynchronizeIgnoresPublishFailure(t *testing.T) {
	store := memory.NewStore()
	service := newService(store, domain.WithPublisher(&recordingPublisher{err: errors.New("broker down")}))

	_, err := service.Resynchronize(context.Background(), "user-1")
	require.NoError(t, err)
}

func TestResynchronizeAll(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.PutRun(run("a", "user-1", -1))
	store.PutRun(run("b", "user-2", -1))
	service := newService(store)

	done, err := service.ResynchronizeAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, done)

	for _, user := range []string{"user-1", "user-2"} {
		snapshots, err := service.Snapshots(ctx, user)
		require.NoError(t, err)
		require.Len(t, snapshots, 1)
	}
}

type mapCache struct {
	entries map[string][]analytics.DailyPoint
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string][]analytics.DailyPoint)}
}

func (c *mapCache) Get(key string) ([]analytics.DailyPoint, bool) {
	points, ok := c.entries[key]
	return points, ok
}

func (c *mapCache) Set(key string, points []analytics.DailyPoint) {
	c.entries[key] = points
}

func (c *mapCache) Delete(keys ...string) {
	for _, key := range keys {
		delete(c.entries, key)
	}
}

type recordingPublisher struct {
	events []events.ScoreResynchronized
	err    error
}

func (p *recordingPublisher) PublishScoreResynchronized(_ context.Context, event events.ScoreResynchronized) error {
	p.events = append(p.events, event)
	return p.err
}
