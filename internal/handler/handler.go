package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"metrotrack/internal/config"
	"metrotrack/internal/hub"
	"metrotrack/internal/metro"
	"metrotrack/internal/realtime"
	"metrotrack/internal/sighting"
	"metrotrack/internal/storage"
	"metrotrack/internal/tracking"
	"metrotrack/internal/transit"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Handler holds shared dependencies for all HTTP handlers.
type Handler struct {
	db        *storage.DB
	router    *transit.Router
	tracker   *tracking.Tracker
	estimator *sighting.Estimator
	hub       *hub.Hub
	feed      *realtime.Stats // nil when no GTFS-RT feed is polled
	maxAge    time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a Handler. feed may be nil.
func New(db *storage.DB, router *transit.Router, tracker *tracking.Tracker, estimator *sighting.Estimator,
	h *hub.Hub, feed *realtime.Stats, cfg *config.Config, logger *slog.Logger) *Handler {
	maxAge := time.Duration(cfg.Sighting.MaxAgeSeconds) * time.Second
	if maxAge <= 0 {
		maxAge = sighting.DefaultMaxAge
	}
	return &Handler{
		db:        db,
		router:    router,
		tracker:   tracker,
		estimator: estimator,
		hub:       h,
		feed:      feed,
		maxAge:    maxAge,
		now:       time.Now,
		logger:    logger.With("component", "http"),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

// fail maps a core error onto an HTTP status. Unexpected errors are logged
// and hidden from the client.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case metro.IsValidation(err):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, metro.ErrCrossCity):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, metro.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return metro.Invalid("body", fmt.Sprintf("malformed JSON: %v", err))
	}
	return nil
}

// queryFloat parses an optional float query parameter.
func queryFloat(r *http.Request, name string, fallback float64) (float64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, metro.Invalid(name, "must be a number")
	}
	return v, nil
}

// queryInt parses an optional positive integer query parameter.
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return 0, metro.Invalid(name, "must be a positive integer")
	}
	return v, nil
}

// maxAgeParam reads ?maxAge= in seconds, defaulting to the configured window.
func (h *Handler) maxAgeParam(r *http.Request) (time.Duration, error) {
	secs, err := queryInt(r, "maxAge", int(h.maxAge/time.Second))
	if err != nil {
		return 0, err
	}
	return time.Duration(secs) * time.Second, nil
}
