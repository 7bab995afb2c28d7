package handler

import (
	"fmt"
	"net/http"
	"time"

	"metrotrack/internal/metro"
	"metrotrack/internal/schedule"
)

type projectRequest struct {
	DepartureTime time.Time          `json:"departureTime"`
	CurrentTime   *time.Time         `json:"currentTime,omitempty"`
	Route         []string           `json:"route"`
	Segments      []schedule.Segment `json:"segments"`
}

type projectResponse struct {
	schedule.Position
	RemainingSeconds int    `json:"remainingSeconds"`
	RemainingText    string `json:"remainingText"`
}

// ProjectPosition projects a scheduled train along a route. currentTime
// defaults to now.
func (h *Handler) ProjectPosition(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.DepartureTime.IsZero() {
		h.fail(w, r, metro.Invalid("departureTime", "is required"))
		return
	}
	if len(req.Route) == 0 {
		h.fail(w, r, metro.Invalid("route", "must not be empty"))
		return
	}
	if len(req.Segments) != len(req.Route)-1 {
		h.fail(w, r, metro.Invalid("segments", fmt.Sprintf("want %d for a %d-station route", len(req.Route)-1, len(req.Route))))
		return
	}

	now := h.now()
	if req.CurrentTime != nil {
		now = *req.CurrentTime
	}

	pos := schedule.Project(req.DepartureTime, now, req.Route, req.Segments)
	resp := projectResponse{Position: pos}
	if pos.EstimatedArrival != nil {
		resp.RemainingSeconds = max(int(pos.EstimatedArrival.Sub(now).Seconds()), 0)
	}
	resp.RemainingText = schedule.FormatRemaining(resp.RemainingSeconds)
	respondJSON(w, http.StatusOK, resp)
}

type nextDepartureResponse struct {
	LineID        string             `json:"lineId"`
	Direction     metro.Direction    `json:"direction"`
	NextDeparture *time.Time         `json:"nextDeparture"`
	MinutesUntil  *int               `json:"minutesUntil,omitempty"`
	Frequency     schedule.Frequency `json:"frequency"`
	Peak          bool               `json:"isPeak"`
}

// NextDeparture returns the next scheduled departure of ?lineId= in
// ?direction=, evaluated in the line's city timezone. nextDeparture is null
// outside operating hours.
func (h *Handler) NextDeparture(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lineID := r.URL.Query().Get("lineId")
	if lineID == "" {
		h.fail(w, r, metro.Invalid("lineId", "is required"))
		return
	}
	dir, err := metro.ParseDirection(r.URL.Query().Get("direction"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	line, err := h.db.LineByID(ctx, lineID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	freq, err := h.db.LineSchedule(ctx, lineID, dir)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if freq == nil {
		respondError(w, http.StatusNotFound, fmt.Sprintf("no schedule for line %s %s", lineID, dir))
		return
	}

	now := h.now().In(h.cityLocation(r, line.CityID))
	resp := nextDepartureResponse{
		LineID:    lineID,
		Direction: dir,
		Frequency: *freq,
		Peak:      freq.IsPeak(schedule.ClockOf(now)),
	}
	if next, ok := schedule.NextDeparture(now, *freq); ok {
		mins := int(next.Sub(now).Minutes())
		resp.NextDeparture = &next
		resp.MinutesUntil = &mins
	}
	respondJSON(w, http.StatusOK, resp)
}

// cityLocation loads the city's timezone, falling back to UTC.
func (h *Handler) cityLocation(r *http.Request, cityID string) *time.Location {
	city, err := h.db.CityByID(r.Context(), cityID)
	if err != nil {
		h.logger.Warn("city lookup failed", "city", cityID, "error", err)
		return time.UTC
	}
	loc, err := time.LoadLocation(city.Timezone)
	if err != nil {
		h.logger.Warn("unknown city timezone", "city", cityID, "timezone", city.Timezone, "error", err)
		return time.UTC
	}
	return loc
}
