// Package api exposes HTTP handlers for the ecolog service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"example.com/ecolog/internal/auth"
	"example.com/ecolog/internal/domain"
	"example.com/ecolog/internal/observability"
	"example.com/ecolog/internal/persistence"
	"example.com/ecolog/internal/rng"
)

// DrawBounds is the default inclusive range for the public draw endpoint.
type DrawBounds struct {
	Min int
	Max int
}

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service    *domain.Service
	draws      *rng.Stream
	drawBounds DrawBounds
}

// NewHandler builds a Handler. The stream backs the public draw endpoint
// for the lifetime of the process.
func NewHandler(service *domain.Service, draws *rng.Stream, bounds DrawBounds) *Handler {
	return &Handler{service: service, draws: draws, drawBounds: bounds}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/activities", h.activities)
	mux.HandleFunc("/v1/stats", h.stats)
	mux.HandleFunc("/v1/draw", h.draw)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.logActivity(w, r)
	case http.MethodGet:
		h.listActivities(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) logActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeActivitiesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope activities:write required")
		return
	}

	var req LogActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	activity, stats, err := h.service.LogActivity(r.Context(), domain.LogActivityInput{
		UserID:        claims.Subject,
		Type:          domain.ActivityType(req.Type),
		DistanceMiles: req.DistanceMiles,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidDistance) || errors.Is(err, domain.ErrInvalidActivityType) {
			writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := LogActivityResponse{
		Activity: toActivityView(*activity),
		Stats:    toStatsView(*stats),
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeActivitiesRead) && !claims.HasScope(auth.ScopeActivitiesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope activities:read required")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	cursorToken := r.URL.Query().Get("cursor")
	cursor, err := persistence.DecodeCursor(cursorToken)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	activities, next, err := h.service.ListActivities(r.Context(), claims.Subject, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]ActivityView, 0, len(activities))
	for _, activity := range activities {
		items = append(items, toActivityView(activity))
	}

	resp := ListActivitiesResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeActivitiesRead) && !claims.HasScope(auth.ScopeActivitiesWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope activities:read required")
		return
	}

	recentLimit := 10
	if raw := r.URL.Query().Get("recent_limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 50 {
				parsed = 50
			}
			recentLimit = parsed
		}
	}

	dashboard, err := h.service.GetDashboard(r.Context(), claims.Subject, recentLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := StatsResponse{
		Stats:  toStatsView(dashboard.Stats),
		Rank:   dashboard.Rank,
		Recent: make([]ActivityView, 0, len(dashboard.Recent)),
	}
	for _, activity := range dashboard.Recent {
		resp.Recent = append(resp.Recent, toActivityView(activity))
	}

	writeJSON(w, http.StatusOK, resp)
}

// draw serves the public numeric endpoint. It is exempt from auth; every
// call within one process consumes the same evolving stream.
func (h *Handler) draw(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	min, max := h.drawBounds.Min, h.drawBounds.Max
	if raw := r.URL.Query().Get("min"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "min must be an integer")
			return
		}
		min = parsed
	}
	if raw := r.URL.Query().Get("max"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "max must be an integer")
			return
		}
		max = parsed
	}

	number, err := h.draws.IntBetween(min, max)
	if err != nil {
		if errors.Is(err, rng.ErrInvalidRange) {
			writeError(w, http.StatusBadRequest, "validation_failed", "min must not exceed max")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	observability.RecordDrawServed()
	writeJSON(w, http.StatusOK, DrawResponse{Number: number})
}

// LogActivityRequest is the payload for POST /v1/activities.
type LogActivityRequest struct {
	Type          string  `json:"type"`
	DistanceMiles float64 `json:"distance_miles"`
}

// ActivityView exposes one logged activity.
type ActivityView struct {
	ActivityID    string    `json:"activity_id"`
	UserID        string    `json:"user_id"`
	Type          string    `json:"type"`
	DistanceMiles float64   `json:"distance_miles"`
	CO2SavedKG    float64   `json:"co2_saved_kg"`
	CreatedAt     time.Time `json:"created_at"`
}

// StatsView exposes the running totals.
type StatsView struct {
	Points     int64   `json:"points"`
	CO2SavedKG float64 `json:"co2_saved_kg"`
}

// LogActivityResponse returns the created activity with the new totals.
type LogActivityResponse struct {
	Activity ActivityView `json:"activity"`
	Stats    StatsView    `json:"stats"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// StatsResponse merges totals with the mock rank and recent activities.
type StatsResponse struct {
	Stats  StatsView      `json:"stats"`
	Rank   int            `json:"rank"`
	Recent []ActivityView `json:"recent"`
}

// DrawResponse carries the drawn number.
type DrawResponse struct {
	Number int `json:"number"`
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

func toActivityView(activity domain.Activity) ActivityView {
	return ActivityView{
		ActivityID:    activity.ID,
		UserID:        activity.UserID,
		Type:          string(activity.Type),
		DistanceMiles: activity.DistanceMiles,
		CO2SavedKG:    activity.CO2SavedKG,
		CreatedAt:     activity.CreatedAt,
	}
}

func toStatsView(stats domain.UserStats) StatsView {
	return StatsView{
		Points:     stats.Points,
		CO2SavedKG: stats.CO2SavedKG,
	}
}
