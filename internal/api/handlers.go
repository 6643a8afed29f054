package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/neexbeast/flight-explorer/internal/flight"
	"github.com/neexbeast/flight-explorer/internal/orchestrator"
	"github.com/neexbeast/flight-explorer/internal/skypicker"
)

const defaultImageWidth = 600

// Handlers holds the dependencies for all HTTP handlers.
type Handlers struct {
	flights   FlightService
	favorites FavoriteService
	cities    CityLookup
	log       *slog.Logger
}

// NewHandlers constructs Handlers with all required dependencies.
func NewHandlers(flights FlightService, favorites FavoriteService, cities CityLookup, log *slog.Logger) *Handlers {
	return &Handlers{
		flights:   flights,
		favorites: favorites,
		cities:    cities,
		log:       log,
	}
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type flightView struct {
	flight.Flight
	ImageURL string `json:"image_url,omitempty"`
}

type snapshotResponse struct {
	State        orchestrator.State  `json:"state"`
	Status       orchestrator.Status `json:"status"`
	Running      bool                `json:"running"`
	SearchID     string              `json:"search_id,omitempty"`
	InvocationID string              `json:"invocation_id,omitempty"`
	UpdatedAt    time.Time           `json:"updated_at"`
	Flights      []flightView        `json:"flights"`
}

func newSnapshotResponse(snap orchestrator.Snapshot, width int) snapshotResponse {
	flights := snap.Results.Flights()
	views := make([]flightView, 0, len(flights))
	for _, f := range flights {
		views = append(views, flightView{Flight: f, ImageURL: skypicker.ImageURL(f.ImageID, width)})
	}
	return snapshotResponse{
		State:        snap.State,
		Status:       snap.Status,
		Running:      snap.Running,
		SearchID:     snap.SearchID,
		InvocationID: snap.InvocationID,
		UpdatedAt:    snap.UpdatedAt,
		Flights:      views,
	}
}

func imageWidth(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("width")
	if raw == "" {
		return defaultImageWidth, nil
	}
	width, err := strconv.Atoi(raw)
	if err != nil || width <= 0 {
		return 0, errors.New("width must be a positive integer")
	}
	return width, nil
}

// GetFlights handles GET /api/v1/flights.
// Returns the latest published snapshot; ?width= sizes the image URLs.
func (h *Handlers) GetFlights(w http.ResponseWriter, r *http.Request) {
	width, err := imageWidth(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newSnapshotResponse(h.flights.Snapshot(), width))
}

// RefreshFlights handles POST /api/v1/flights/refresh.
// 202 when a background search starts, 409 when one is already running.
func (h *Handlers) RefreshFlights(w http.ResponseWriter, r *http.Request) {
	if !h.flights.Refresh(r.Context()) {
		writeError(w, http.StatusConflict, "a search is already in progress")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

type searchRequest struct {
	Cities []flight.CityFilter `json:"cities"`
}

// SearchFlights handles POST /api/v1/flights/search.
// Runs a search for the given cities and returns the published snapshot.
func (h *Handlers) SearchFlights(w http.ResponseWriter, r *http.Request) {
	width, err := imageWidth(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, err := h.flights.Search(r.Context(), req.Cities)
	if errors.Is(err, orchestrator.ErrSearchInProgress) {
		writeError(w, http.StatusConflict, "a search is already in progress")
		return
	}
	if err != nil {
		h.log.Error("search failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	status := http.StatusOK
	switch snap.State {
	case orchestrator.Error:
		status = http.StatusBadGateway
	case orchestrator.TimedOut:
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, newSnapshotResponse(snap, width))
}

// ToggleFavorite handles POST /api/v1/flights/{id}/favorite.
// Flips the flag in the published results; 404 if the flight is not there.
func (h *Handlers) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	favorite, err := h.flights.ToggleFavorite(r.Context(), id)
	if errors.Is(err, orchestrator.ErrFlightNotFound) {
		writeError(w, http.StatusNotFound, "flight not found in current results")
		return
	}
	if err != nil {
		h.log.Error("toggle favorite failed", "flight_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "is_favorite": favorite})
}

// GetFavorites handles GET /api/v1/favorites.
// Returns stored favorites matching ?q=, grouped by destination country.
func (h *Handlers) GetFavorites(w http.ResponseWriter, r *http.Request) {
	groups, err := h.favorites.Filter(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.log.Error("filter favorites failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if groups == nil {
		groups = []flight.CountryGroup{}
	}
	writeJSON(w, http.StatusOK, groups)
}

// CountFavorites handles GET /api/v1/favorites/count.
func (h *Handlers) CountFavorites(w http.ResponseWriter, r *http.Request) {
	n, err := h.favorites.Count(r.Context())
	if err != nil {
		h.log.Error("count favorites failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

// GetCities handles GET /api/v1/cities.
// City autocomplete on ?q=.
func (h *Handlers) GetCities(w http.ResponseWriter, r *http.Request) {
	cities, err := h.cities.FilterCities(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.log.Error("filter cities failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if cities == nil {
		cities = []flight.City{}
	}
	writeJSON(w, http.StatusOK, cities)
}

type dbPinger interface {
	Ping(ctx context.Context) error
}

type redisPinger interface {
	Ping(ctx context.Context) error
}

// HealthHandlerFunc returns an http.HandlerFunc that checks db and redis connectivity.
// Returns 200 if both respond, 503 otherwise.
func HealthHandlerFunc(db dbPinger, redis redisPinger, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		overall := "ok"
		dbStatus := "ok"
		redisStatus := "ok"

		if err := db.Ping(ctx); err != nil {
			log.Error("health check: db ping failed", "err", err)
			dbStatus = "error"
			status = http.StatusServiceUnavailable
		}

		if err := redis.Ping(ctx); err != nil {
			log.Error("health check: redis ping failed", "err", err)
			redisStatus = "error"
			status = http.StatusServiceUnavailable
		}

		if status != http.StatusOK {
			overall = "degraded"
		}
		writeJSON(w, status, map[string]string{
			"status": overall,
			"db":     dbStatus,
			"redis":  redisStatus,
		})
	}
}
