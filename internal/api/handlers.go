// Package api serves the live state of a simulation over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/mini-rodalies-3d/transitsim/internal/bus"
	"github.com/mini-rodalies-3d/transitsim/internal/clock"
	"github.com/mini-rodalies-3d/transitsim/internal/db"
	"github.com/mini-rodalies-3d/transitsim/internal/departure"
	"github.com/mini-rodalies-3d/transitsim/internal/dispatch"
	"github.com/mini-rodalies-3d/transitsim/internal/metrics"
	"github.com/mini-rodalies-3d/transitsim/internal/realtime"
	"github.com/mini-rodalies-3d/transitsim/internal/sim"
	"github.com/mini-rodalies-3d/transitsim/internal/station"
	"github.com/mini-rodalies-3d/transitsim/internal/tracking"
)

// QueryTimeout bounds every request to the simulation components
const QueryTimeout = 2 * time.Second

// Simulation defines the live operations the API needs
type Simulation interface {
	Clock() *clock.Clock
	Station(ctx context.Context, id string) (station.Stats, error)
	Stations(ctx context.Context) ([]station.Stats, error)
	Bus(ctx context.Context, id string) (bus.Status, error)
	Buses(ctx context.Context) ([]bus.Status, error)
	Path(ctx context.Context, busID string) (tracking.Path, error)
	Departure(ctx context.Context, stationID string) (departure.DepartureWas, error)
	Headways(ctx context.Context) ([]departure.Headway, error)
	Assign(busID, routeID string) error
}

// Reports defines the read operations on the run-report store
type Reports interface {
	Ping(ctx context.Context) error
	ListRuns(ctx context.Context, limit int) ([]db.Run, error)
	ListHeadwayBaselines(ctx context.Context) ([]metrics.HeadwayBaseline, error)
}

// Handler serves the simulation. reports may be nil.
type Handler struct {
	sim      Simulation
	reports  Reports
	validate *validator.Validate
	timeout  time.Duration
}

func NewHandler(s Simulation, reports Reports) *Handler {
	return &Handler{sim: s, reports: reports, validate: validator.New(), timeout: QueryTimeout}
}

// ErrorResponse is the JSON error response structure
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

type StationsResponse struct {
	Stations []station.Stats `json:"stations"`
	Count    int             `json:"count"`
}

type BusesResponse struct {
	Buses       []bus.Status `json:"buses"`
	Count       int          `json:"count"`
	SimulatedAt time.Time    `json:"simulatedAt"`
}

type HeadwaysResponse struct {
	Headways []departure.Headway `json:"headways"`
	Count    int                 `json:"count"`
}

type ClockResponse struct {
	TimeScale   int       `json:"timeScale"`
	SimulatedAt time.Time `json:"simulatedAt"`
}

type SetClockRequest struct {
	TimeScale int `json:"timeScale" validate:"required,gte=1"`
}

type AssignRequest struct {
	RouteID string `json:"routeId" validate:"required"`
}

type RunsResponse struct {
	Runs  []db.Run `json:"runs"`
	Count int      `json:"count"`
}

type Baseline struct {
	StationID     string  `json:"stationId"`
	MeanSeconds   float64 `json:"meanSeconds"`
	StdDevSeconds float64 `json:"stdDevSeconds"`
	SampleCount   int     `json:"sampleCount"`
	RunCount      int     `json:"runCount"`
}

type BaselinesResponse struct {
	Baselines []Baseline `json:"baselines"`
	Count     int        `json:"count"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeQueryError maps component and lookup errors to HTTP statuses
func writeQueryError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, sim.ErrStationNotFound),
		errors.Is(err, sim.ErrBusNotFound),
		errors.Is(err, dispatch.ErrRouteNotFound):
		status = http.StatusNotFound
	}
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Details: map[string]interface{}{
			"internal": err.Error(),
		},
	})
}

func (h *Handler) queryContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.timeout)
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.queryContext(r)
	defer cancel()

	response := map[string]interface{}{
		"status":      "ok",
		"simulatedAt": h.sim.Clock().Now(),
		"timestamp":   time.Now().UTC(),
	}

	if h.reports != nil {
		if err := h.reports.Ping(ctx); err != nil {
			response["status"] = "error"
			response["database"] = "disconnected"
			response["error"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, response)
			return
		}
		response["database"] = "connected"
	}

	writeJSON(w, http.StatusOK, response)
}

// GetStations handles GET /api/stations
func (h *Handler) GetStations(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.queryContext(r)
	defer cancel()

	stations, err := h.sim.Stations(ctx)
	if err != nil {
		writeQueryError(w, "Failed to retrieve stations", err)
		return
	}
	writeJSON(w, http.StatusOK, StationsResponse{Stations: stations, Count: len(stations)})
}

// GetStation handles GET /api/stations/{stationId}
func (h *Handler) GetStation(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.queryContext(r)
	defer cancel()

	stats, err := h.sim.Station(ctx, chi.URLParam(r, "stationId"))
	if err != nil {
		writeQueryError(w, "Failed to retrieve station", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetBuses handles GET /api/buses, optionally filtered by route_id
func (h *Handler) GetBuses(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.queryContext(r)
	defer cancel()

	buses, err := h.sim.Buses(ctx)
	if err != nil {
		writeQueryError(w, "Failed to retrieve buses", err)
		return
	}

	if routeID := r.URL.Query().Get("route_id"); routeID != "" {
		filtered := buses[:0]
		for _, b := range buses {
			if b.RouteID == routeID {
				filtered = append(filtered, b)
			}
		}
		buses = filtered
	}

	writeJSON(w, http.StatusOK, BusesResponse{
		Buses:       buses,
		Count:       len(buses),
		SimulatedAt: h.sim.Clock().Now(),
	})
}

// GetBus handles GET /api/buses/{busId}
func (h *Handler) GetBus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.queryContext(r)
	defer cancel()

	status, err := h.sim.Bus(ctx, chi.URLParam(r, "busId"))
	if err != nil {
		writeQueryError(w, "Failed to retrieve bus", err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// GetBusTrack handles GET /api/buses/{busId}/track
func (h *Handler) GetBusTrack(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.queryContext(r)
	defer cancel()

	path, err := h.sim.Path(ctx, chi.URLParam(r, "busId"))
	if err != nil {
		writeQueryError(w, "Failed to retrieve track", err)
		return
	}
	writeJSON(w, http.StatusOK, path)
}

// AssignRoute handles PUT /api/buses/{busId}/route
func (h *Handler) AssignRoute(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.sim.Assign(chi.URLParam(r, "busId"), req.RouteID); err != nil {
		writeQueryError(w, "Failed to assign route", err)
		return
	}
	writeJSON(w, http.StatusAccepted, req)
}

// GetDeparture handles GET /api/departures/{stationId}
func (h *Handler) GetDeparture(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.queryContext(r)
	defer cancel()

	dep, err := h.sim.Departure(ctx, chi.URLParam(r, "stationId"))
	if err != nil {
		writeQueryError(w, "Failed to retrieve departure", err)
		return
	}
	writeJSON(w, http.StatusOK, dep)
}

// GetHeadways handles GET /api/headways
func (h *Handler) GetHeadways(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.queryContext(r)
	defer cancel()

	headways, err := h.sim.Headways(ctx)
	if err != nil {
		writeQueryError(w, "Failed to retrieve headways", err)
		return
	}
	writeJSON(w, http.StatusOK, HeadwaysResponse{Headways: headways, Count: len(headways)})
}

// GetClock handles GET /api/clock
func (h *Handler) GetClock(w http.ResponseWriter, r *http.Request) {
	clk := h.sim.Clock()
	writeJSON(w, http.StatusOK, ClockResponse{TimeScale: clk.TimeScale(), SimulatedAt: clk.Now()})
}

// SetClock handles PUT /api/clock. Timers already running keep the delay
// they were scheduled with.
func (h *Handler) SetClock(w http.ResponseWriter, r *http.Request) {
	var req SetClockRequest
	if !h.decode(w, r, &req) {
		return
	}

	clk := h.sim.Clock()
	if err := clk.SetTimeScale(req.TimeScale); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ClockResponse{TimeScale: clk.TimeScale(), SimulatedAt: clk.Now()})
}

// GetVehiclePositionsFeed handles GET /gtfs-rt/vehicle_positions.pb
func (h *Handler) GetVehiclePositionsFeed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.queryContext(r)
	defer cancel()

	buses, err := h.sim.Buses(ctx)
	if err != nil {
		writeQueryError(w, "Failed to retrieve buses", err)
		return
	}

	data, err := realtime.Marshal(buses, h.sim.Clock().Now())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Failed to encode feed"})
		return
	}

	w.Header().Set("Content-Type", "application/x-protobuf")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// GetRuns handles GET /api/runs?limit=N
func (h *Handler) GetRuns(w http.ResponseWriter, r *http.Request) {
	if !h.requireReports(w) {
		return
	}
	ctx, cancel := h.queryContext(r)
	defer cancel()

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	runs, err := h.reports.ListRuns(ctx, limit)
	if err != nil {
		writeQueryError(w, "Failed to retrieve runs", err)
		return
	}
	writeJSON(w, http.StatusOK, RunsResponse{Runs: runs, Count: len(runs)})
}

// GetBaselines handles GET /api/baselines
func (h *Handler) GetBaselines(w http.ResponseWriter, r *http.Request) {
	if !h.requireReports(w) {
		return
	}
	ctx, cancel := h.queryContext(r)
	defer cancel()

	stored, err := h.reports.ListHeadwayBaselines(ctx)
	if err != nil {
		writeQueryError(w, "Failed to retrieve baselines", err)
		return
	}

	baselines := make([]Baseline, 0, len(stored))
	for _, b := range stored {
		baselines = append(baselines, Baseline(b))
	}
	writeJSON(w, http.StatusOK, BaselinesResponse{Baselines: baselines, Count: len(baselines)})
}

func (h *Handler) requireReports(w http.ResponseWriter) bool {
	if h.reports == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "Run reports are disabled"})
		return false
	}
	return true
}

// decode reads a JSON body into v and validates it. On failure the
// response is already written.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid JSON body"})
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request",
			Details: map[string]interface{}{
				"validation": err.Error(),
			},
		})
		return false
	}
	return true
}
