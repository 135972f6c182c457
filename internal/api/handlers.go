// Package api exposes HTTP handlers for the analytics service.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"example.com/analytics/internal/analytics"
	"example.com/analytics/internal/auth"
	"example.com/analytics/internal/domain"
)

const dateLayout = "2006-01-02"

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the router.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet)

	r.HandleFunc("/v1/analytics/fitness-scores", h.fitnessScores).Methods(http.MethodGet)
	r.HandleFunc("/v1/analytics/distances", h.distances).Methods(http.MethodGet)
	r.HandleFunc("/v1/analytics/snapshots", h.snapshots).Methods(http.MethodGet)
	r.HandleFunc("/v1/analytics/resync", h.resync).Methods(http.MethodPost)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	})
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) fitnessScores(w http.ResponseWriter, r *http.Request) {
	claims, ok := readClaims(w, r)
	if !ok {
		return
	}

	series, err := h.service.ScoreSeries(r.Context(), claims.Subject, r.URL.Query().Get("range"))
	if err != nil {
		serverError(w, claims.Subject, err)
		return
	}
	writeJSON(w, http.StatusOK, toSeriesResponse(series))
}

func (h *Handler) distances(w http.ResponseWriter, r *http.Request) {
	claims, ok := readClaims(w, r)
	if !ok {
		return
	}

	series, err := h.service.DistanceSeries(r.Context(), claims.Subject, r.URL.Query().Get("range"))
	if err != nil {
		serverError(w, claims.Subject, err)
		return
	}
	writeJSON(w, http.StatusOK, toSeriesResponse(series))
}

func (h *Handler) snapshots(w http.ResponseWriter, r *http.Request) {
	claims, ok := readClaims(w, r)
	if !ok {
		return
	}

	snapshots, err := h.service.Snapshots(r.Context(), claims.Subject)
	if err != nil {
		serverError(w, claims.Subject, err)
		return
	}

	resp := SnapshotsResponse{Items: make([]SnapshotView, 0, len(snapshots))}
	for _, snap := range snapshots {
		resp.Items = append(resp.Items, SnapshotView{
			Date:      snap.Date.Format(dateLayout),
			Score:     snap.Score,
			UpdatedAt: snap.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) resync(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeAnalyticsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope analytics:write required")
		return
	}

	result, err := h.service.Resynchronize(r.Context(), claims.Subject)
	if err != nil {
		serverError(w, claims.Subject, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func readClaims(w http.ResponseWriter, r *http.Request) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.CanRead() {
		writeError(w, http.StatusForbidden, "forbidden", "scope analytics:read required")
		return nil, false
	}
	return claims, true
}

// SeriesResponse is the body of the series endpoints.
type SeriesResponse struct {
	Range  string      `json:"range"`
	Points []PointView `json:"points"`
}

// PointView is one day of a chart series.
type PointView struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// SnapshotView exposes a persisted score snapshot.
type SnapshotView struct {
	Date      string    `json:"date"`
	Score     float64   `json:"score"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SnapshotsResponse packages snapshot results.
type SnapshotsResponse struct {
	Items []SnapshotView `json:"items"`
}

func toSeriesResponse(series domain.Series) SeriesResponse {
	return SeriesResponse{
		Range:  series.Window.String(),
		Points: toPointViews(series.Points),
	}
}

func toPointViews(points []analytics.DailyPoint) []PointView {
	out := make([]PointView, 0, len(points))
	for _, p := range points {
		out = append(out, PointView{Date: p.Day.Format(dateLayout), Value: p.Value})
	}
	return out
}

func serverError(w http.ResponseWriter, userID string, err error) {
	log.WithField("user_id", userID).Errorf("request failed: %v", err)
	writeError(w, http.StatusInternalServerError, "server_error", err.Error())
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
