package handler

import (
	"net/http"

	"metrotrack/internal/realtime"
)

// VehiclePositions serves the live trains as a GTFS-RT VehiclePositions
// feed. ?lineId= and ?cityId= filter the entities.
func (h *Handler) VehiclePositions(w http.ResponseWriter, r *http.Request) {
	trains := h.tracker.Trains(r.URL.Query().Get("lineId"), r.URL.Query().Get("cityId"))
	data, err := realtime.MarshalVehiclePositions(trains, h.now())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
