package handler

import (
	"net/http"
	"time"
)

// Healthz reports that the process is up.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type readyResponse struct {
	Ready      bool      `json:"ready"`
	LiveTrains int       `json:"liveTrains"`
	Clients    int       `json:"clients"`
	ServerTime time.Time `json:"serverTime"`
}

// Readyz reports whether the catalog has data to route over.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ready := h.db.HasData(r.Context())
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, readyResponse{
		Ready:      ready,
		LiveTrains: h.tracker.Count(),
		Clients:    h.hub.ClientCount(),
		ServerTime: h.now(),
	})
}
