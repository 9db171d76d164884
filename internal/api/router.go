package api

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// NewRouter wires every endpoint of h behind the CORS policy
func NewRouter(h *Handler, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)

	r.Get("/api/stations", h.GetStations)
	r.Get("/api/stations/{stationId}", h.GetStation)

	r.Get("/api/buses", h.GetBuses)
	r.Get("/api/buses/{busId}", h.GetBus)
	r.Get("/api/buses/{busId}/track", h.GetBusTrack)
	r.Put("/api/buses/{busId}/route", h.AssignRoute)

	r.Get("/api/departures/{stationId}", h.GetDeparture)
	r.Get("/api/headways", h.GetHeadways)

	r.Get("/api/clock", h.GetClock)
	r.Put("/api/clock", h.SetClock)

	r.Get("/api/runs", h.GetRuns)
	r.Get("/api/baselines", h.GetBaselines)

	r.Get("/gtfs-rt/vehicle_positions.pb", h.GetVehiclePositionsFeed)

	return r
}

// LogEndpoints prints the routes served by NewRouter
func LogEndpoints(port string) {
	log.Printf("API server starting on :%s", port)
	log.Println("Simulation endpoints:")
	log.Println("  GET /api/stations")
	log.Println("  GET /api/stations/{stationId}")
	log.Println("  GET /api/buses")
	log.Println("  GET /api/buses/{busId}")
	log.Println("  GET /api/buses/{busId}/track")
	log.Println("  PUT /api/buses/{busId}/route")
	log.Println("  GET /api/departures/{stationId}")
	log.Println("  GET /api/headways")
	log.Println("  GET|PUT /api/clock")
	log.Println("Reports:")
	log.Println("  GET /api/runs")
	log.Println("  GET /api/baselines")
	log.Println("GTFS-RT:")
	log.Println("  GET /gtfs-rt/vehicle_positions.pb")
	log.Println("Health:")
	log.Println("  GET /health")
}
