package handler

import (
	"net/http"
	"time"
)

type routeRequest struct {
	OriginStationID      string     `json:"originStationId"`
	DestinationStationID string     `json:"destinationStationId"`
	DepartureTime        *time.Time `json:"departureTime,omitempty"`
}

// FindRoute plans the fastest journey between two stations.
func (h *Handler) FindRoute(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	var departure time.Time
	if req.DepartureTime != nil {
		departure = *req.DepartureTime
	}

	route, err := h.router.FindRoute(r.Context(), req.OriginStationID, req.DestinationStationID, departure)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, route)
}
