package handler

import (
	"math"
	"net/http"
	"time"

	"metrotrack/internal/templates"
)

// statusSightingWindow is how far back the status page lists sightings.
const statusSightingWindow = time.Hour

// Status serves the operations status page.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.now()

	data := templates.StatusData{
		Title:       "Metro live status",
		GeneratedAt: now,
		Clients:     h.hub.ClientCount(),
	}

	for _, st := range h.tracker.Trains("", "") {
		data.Trains = append(data.Trains, templates.TrainRow{
			Key:        st.Key,
			TrainID:    st.TrainID,
			LineID:     st.LineID,
			Direction:  string(st.Direction),
			Latitude:   st.Latitude,
			Longitude:  st.Longitude,
			Speed:      st.Speed,
			Confidence: st.Confidence,
			AgeSeconds: ageSeconds(now, st.LastUpdate),
			Active:     st.Active,
		})
	}

	sightings, err := h.db.RecentSightings(ctx, "", now.Add(-statusSightingWindow), 10)
	if err != nil {
		h.logger.Error("recent sightings for status page", "error", err)
	}
	for _, s := range sightings {
		data.Sightings = append(data.Sightings, templates.SightingRow{
			LineName:    s.LineName,
			StationName: s.StationName,
			Direction:   string(s.Direction),
			AgeSeconds:  ageSeconds(now, s.Timestamp),
			Confidence:  s.ConfidenceScore,
		})
	}

	if h.feed != nil {
		snap := h.feed.Snapshot()
		data.Feed = &templates.FeedRow{
			LastPoll:  snap.LastPoll,
			Entities:  snap.Entities,
			Ingested:  snap.Ingested,
			Failures:  snap.Failures,
			LastError: snap.LastError,
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.StatusPage(data).Render(ctx, w); err != nil {
		h.logger.Error("rendering status page", "error", err)
	}
}

func ageSeconds(now, t time.Time) int {
	return max(int(math.Floor(now.Sub(t).Seconds())), 0)
}
