package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"example.com/analytics/internal/analytics"
	"example.com/analytics/internal/auth"
	"example.com/analytics/internal/domain"
	"example.com/analytics/internal/persistence/memory"
)

var now = time.Date(2024, time.May, 10, 12, 0, 0, 0, time.UTC)

const unitScore = 12 + 2 + 0.2/6

func newTestRouter(t *testing.T, store *memory.Store, scopes ...string) http.Handler {
	t.Helper()
	sync := domain.NewSynchronizer(store, store, store, domain.WithClock(func() time.Time { return now }))
	handler := NewHandler(domain.NewService(store, store, sync))

	router := mux.NewRouter()
	handler.RegisterRoutes(router)

	claims := &auth.Claims{
		Subject:   "user-1",
		Scopes:    make(map[string]struct{}),
		ExpiresAt: now.Add(time.Hour),
	}
	for _, scope := range scopes {
		claims.Scopes[scope] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		router.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
	})
}

func seedRuns(store *memory.Store, offsets ...int) {
	for i, offset := range offsets {
		store.PutRun(analytics.Run{
			ID:         string(rune('a' + i)),
			UserID:     "user-1",
			Date:       analytics.Day(now).AddDate(0, 0, offset),
			DistanceKm: 5,
			Duration:   "00:30:00",
			Pace:       "6:00",
		})
	}
}

func serve(handler http.Handler, method, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	return rr
}

func TestFitnessScoresAfterResync(t *testing.T) {
	store := memory.NewStore()
	seedRuns(store, -1)
	handler := newTestRouter(t, store, auth.ScopeAnalyticsWrite)

	rr := serve(handler, http.MethodPost, "/v1/analytics/resync")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var result domain.SyncResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	require.Equal(t, "user-1", result.UserID)
	require.Equal(t, 1, result.Points)
	require.Equal(t, 1, result.Created)

	rr = serve(handler, http.MethodGet, "/v1/analytics/fitness-scores?range=7D")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp SeriesResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "7D", resp.Range)
	require.Len(t, resp.Points, 8)
	require.Equal(t, "2024-05-03", resp.Points[0].Date)
	require.Equal(t, "2024-05-10", resp.Points[7].Date)
	require.Zero(t, resp.Points[5].Value)
	require.InDelta(t, unitScore, resp.Points[6].Value, 1e-9)
	require.InDelta(t, unitScore, resp.Points[7].Value, 1e-9)
}

func TestFitnessScoresUnknownRangeFallsBack(t *testing.T) {
	handler := newTestRouter(t, memory.NewStore(), auth.ScopeAnalyticsRead)

	rr := serve(handler, http.MethodGet, "/v1/analytics/fitness-scores?range=2W")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp SeriesResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "7D", resp.Range)
	require.Len(t, resp.Points, 8)
}

func TestDistancesZeroFill(t *testing.T) {
	store := memory.NewStore()
	seedRuns(store, -3, -3, 0)
	handler := newTestRouter(t, store, auth.ScopeAnalyticsRead)

	rr := serve(handler, http.MethodGet, "/v1/analytics/distances?range=1M")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp SeriesResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "1M", resp.Range)
	require.Len(t, resp.Points, 31)
	require.Equal(t, "2024-04-10", resp.Points[0].Date)

	last := len(resp.Points) - 1
	require.Equal(t, 5.0, resp.Points[last].Value)
	require.Equal(t, 10.0, resp.Points[last-3].Value)
	require.Zero(t, resp.Points[last-1].Value)
}

func TestSnapshotsListing(t *testing.T) {
	store := memory.NewStore()
	seedRuns(store, -2, -1)
	handler := newTestRouter(t, store, auth.ScopeAnalyticsWrite)

	require.Equal(t, http.StatusOK, serve(handler, http.MethodPost, "/v1/analytics/resync").Code)

	rr := serve(handler, http.MethodGet, "/v1/analytics/snapshots")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp SnapshotsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 2)
	require.Equal(t, "2024-05-08", resp.Items[0].Date)
	require.Equal(t, "2024-05-09", resp.Items[1].Date)
	require.Greater(t, resp.Items[1].Score, resp.Items[0].Score)
}

func TestScopeEnforcement(t *testing.T) {
	readOnly := newTestRouter(t, memory.NewStore(), auth.ScopeAnalyticsRead)
	rr := serve(readOnly, http.MethodPost, "/v1/analytics/resync")
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.JSONEq(t, `{"type":"forbidden","detail":"scope analytics:write required"}`, rr.Body.String())

	none := newTestRouter(t, memory.NewStore())
	rr = serve(none, http.MethodGet, "/v1/analytics/fitness-scores")
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestMissingClaims(t *testing.T) {
	store := memory.NewStore()
	sync := domain.NewSynchronizer(store, store, store)
	router := mux.NewRouter()
	NewHandler(domain.NewService(store, store, sync)).RegisterRoutes(router)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/analytics/snapshots", nil)
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	handler := newTestRouter(t, memory.NewStore(), auth.ScopeAnalyticsWrite)

	rr := serve(handler, http.MethodGet, "/v1/analytics/resync")
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	require.JSONEq(t, `{"type":"method_not_allowed","detail":"unsupported method"}`, rr.Body.String())

	rr = serve(handler, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())
}
