package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"metrotrack/internal/config"
	"metrotrack/internal/handler"
)

// Server is the HTTP server for metrotrack.
type Server struct {
	mux    *http.ServeMux
	cfg    *config.Config
	logger *slog.Logger
	http   *http.Server
}

// New creates a new Server with all routes registered.
func New(cfg *config.Config, h *handler.Handler, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Routing
	mux.HandleFunc("POST /api/routes", h.FindRoute)

	// Catalog
	mux.HandleFunc("GET /api/stations", h.CityStations)
	mux.HandleFunc("GET /api/stations/nearby", h.NearbyStations)
	mux.HandleFunc("GET /api/stations/{id}", h.StationDetail)
	mux.HandleFunc("GET /api/lines", h.CityLines)

	// Live tracking
	mux.HandleFunc("POST /api/live/trains/report", h.ReportTrain)
	mux.HandleFunc("GET /api/live/trains", h.ListTrains)
	mux.HandleFunc("GET /api/live/trains/{trainId}", h.TrainDetail)
	mux.HandleFunc("GET /api/live/lines/{lineId}/direction/{direction}", h.LineTrain)
	mux.HandleFunc("POST /api/live/segment-speeds", h.RecordSegmentSpeed)

	// Sightings
	mux.HandleFunc("POST /api/train-sightings", h.ReportSighting)
	mux.HandleFunc("GET /api/train-sightings/recent", h.RecentSightings)
	mux.HandleFunc("GET /api/train-positions/{lineId}", h.LinePositions)
	mux.HandleFunc("POST /api/train-positions/route", h.RoutePosition)

	// Schedule
	mux.HandleFunc("POST /api/schedule/project", h.ProjectPosition)
	mux.HandleFunc("GET /api/schedule/next-departure", h.NextDeparture)

	// Feeds and push
	mux.HandleFunc("GET /gtfs-rt/vehicle-positions", h.VehiclePositions)
	mux.HandleFunc("GET "+wsPath, h.ServeWS)

	// Operations
	mux.HandleFunc("GET /status", h.Status)
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)

	s := &Server{mux: mux, cfg: cfg, logger: logger}
	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	return s
}

// Handler returns the routes wrapped in middleware.
func (s *Server) Handler() http.Handler {
	return withMiddleware(s.mux, s.logger)
}

// ListenAndServe starts the HTTP server. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("server starting", "addr", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
