package handler

import (
	"math"
	"net/http"
	"time"

	"metrotrack/internal/metro"
	"metrotrack/internal/sighting"
	"metrotrack/internal/storage"
)

const (
	defaultRecentLimit  = 20
	maxRecentLimit      = 100
	defaultRecentWindow = 30 // minutes
)

type sightingResponse struct {
	Success  bool                 `json:"success"`
	Sighting *metro.TrainSighting `json:"sighting"`
}

// ReportSighting records a crowd sighting of a train at a station.
func (h *Handler) ReportSighting(w http.ResponseWriter, r *http.Request) {
	var req sighting.ReportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	s, err := h.estimator.Report(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, sightingResponse{Success: true, Sighting: s})
}

type recentSighting struct {
	storage.RecentSighting
	AgeSeconds int `json:"ageSeconds"`
}

type recentResponse struct {
	Sightings []recentSighting `json:"sightings"`
	Count     int              `json:"count"`
}

// RecentSightings lists sightings from the last ?minutes= (default 30),
// newest first, optionally for one ?cityId=.
func (h *Handler) RecentSightings(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultRecentLimit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit = min(limit, maxRecentLimit)
	minutes, err := queryInt(r, "minutes", defaultRecentWindow)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	now := h.now()
	rows, err := h.db.RecentSightings(r.Context(), r.URL.Query().Get("cityId"),
		now.Add(-time.Duration(minutes)*time.Minute), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := make([]recentSighting, 0, len(rows))
	for _, s := range rows {
		age := int(math.Floor(now.Sub(s.Timestamp).Seconds()))
		out = append(out, recentSighting{RecentSighting: s, AgeSeconds: max(age, 0)})
	}
	respondJSON(w, http.StatusOK, recentResponse{Sightings: out, Count: len(out)})
}

type positionsResponse struct {
	LineID    string              `json:"lineId"`
	Positions []sighting.Estimate `json:"positions"`
}

// LinePositions estimates the trains of a line from sightings. With
// ?direction= only that direction is estimated.
func (h *Handler) LinePositions(w http.ResponseWriter, r *http.Request) {
	lineID := r.PathValue("lineId")
	maxAge, err := h.maxAgeParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.db.LineByID(r.Context(), lineID); err != nil {
		h.fail(w, r, err)
		return
	}

	var positions []sighting.Estimate
	if d := r.URL.Query().Get("direction"); d != "" {
		dir, err := metro.ParseDirection(d)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		est, err := h.estimator.EstimatePosition(r.Context(), lineID, dir, maxAge)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if est != nil {
			positions = append(positions, *est)
		}
	} else {
		positions, err = h.estimator.AllTrainPositions(r.Context(), lineID, maxAge)
		if err != nil {
			h.fail(w, r, err)
			return
		}
	}
	if positions == nil {
		positions = []sighting.Estimate{}
	}
	respondJSON(w, http.StatusOK, positionsResponse{LineID: lineID, Positions: positions})
}

type routePositionRequest struct {
	Route     []string        `json:"route"`
	LineID    string          `json:"lineId" validate:"required"`
	Direction metro.Direction `json:"direction" validate:"oneof=forward backward"`
	MaxAge    int             `json:"maxAge" validate:"gte=0"`
}

type routePositionResponse struct {
	Position *sighting.Estimate `json:"position"`
}

// RoutePosition estimates the train serving a planned journey.
func (h *Handler) RoutePosition(w http.ResponseWriter, r *http.Request) {
	var req routePositionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := metro.Validate(req); err != nil {
		h.fail(w, r, err)
		return
	}
	maxAge := h.maxAge
	if req.MaxAge > 0 {
		maxAge = time.Duration(req.MaxAge) * time.Second
	}
	est, err := h.estimator.RouteTrainPosition(r.Context(), req.Route, req.LineID, req.Direction, maxAge)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, routePositionResponse{Position: est})
}
