package handler

import (
	"fmt"
	"net/http"

	"metrotrack/internal/metro"
	"metrotrack/internal/storage"
)

const (
	defaultNearbyRadius = 2000.0 // meters
	defaultNearbyLimit  = 10
	maxNearbyRadius     = 20000.0
)

// radiusTiers are the search radii tried in turn when ?expand=1 and the
// requested radius finds nothing.
var radiusTiers = []float64{2000, 5000, 10000, 20000}

// nextRadius returns the next radius tier above the given radius.
// Returns 0, false if already at or above the maximum.
func nextRadius(current float64) (float64, bool) {
	for _, tier := range radiusTiers {
		if tier > current {
			return tier, true
		}
	}
	return 0, false
}

// formatDistance renders meters as "850 m" or "1.2 km".
func formatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%.0f m", meters)
	}
	return fmt.Sprintf("%.1f km", meters/1000)
}

// StationDetail returns one station.
func (h *Handler) StationDetail(w http.ResponseWriter, r *http.Request) {
	st, err := h.db.StationByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

type stationsResponse struct {
	Stations []metro.Station `json:"stations"`
	Count    int             `json:"count"`
}

// CityStations lists the stations of ?cityId=, or of ?lineId= in line order.
func (h *Handler) CityStations(w http.ResponseWriter, r *http.Request) {
	cityID := r.URL.Query().Get("cityId")
	lineID := r.URL.Query().Get("lineId")

	var stations []metro.Station
	var err error
	switch {
	case lineID != "":
		stations, err = h.db.StationsForLine(r.Context(), lineID)
	case cityID != "":
		stations, err = h.db.StationsByCity(r.Context(), cityID)
	default:
		err = metro.Invalid("cityId", "cityId or lineId is required")
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if stations == nil {
		stations = []metro.Station{}
	}
	respondJSON(w, http.StatusOK, stationsResponse{Stations: stations, Count: len(stations)})
}

type nearbyStation struct {
	storage.NearbyStation
	DistanceText string `json:"distanceText"`
}

type nearbyResponse struct {
	Stations []nearbyStation `json:"stations"`
	Count    int             `json:"count"`
	Radius   float64         `json:"radius"`
}

// NearbyStations lists stations within ?radius= meters of ?lat=&lon=,
// nearest first. With ?expand=1 an empty result widens the radius tier by
// tier.
func (h *Handler) NearbyStations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("lat") == "" || q.Get("lon") == "" {
		h.fail(w, r, metro.Invalid("lat", "lat and lon are required"))
		return
	}
	lat, err := queryFloat(r, "lat", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	lon, err := queryFloat(r, "lon", 0)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		h.fail(w, r, metro.Invalid("lat", "coordinates out of range"))
		return
	}
	radius, err := queryFloat(r, "radius", defaultNearbyRadius)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if radius <= 0 || radius > maxNearbyRadius {
		h.fail(w, r, metro.Invalid("radius", "must be between 0 and 20000 meters"))
		return
	}
	limit, err := queryInt(r, "limit", defaultNearbyLimit)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	expand := q.Get("expand") == "1"
	var found []storage.NearbyStation
	for {
		found, err = h.db.NearbyStations(r.Context(), lat, lon, radius, limit)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if len(found) > 0 || !expand {
			break
		}
		next, ok := nextRadius(radius)
		if !ok {
			break
		}
		radius = next
	}

	stations := make([]nearbyStation, 0, len(found))
	for _, s := range found {
		stations = append(stations, nearbyStation{NearbyStation: s, DistanceText: formatDistance(s.DistanceMeters)})
	}
	respondJSON(w, http.StatusOK, nearbyResponse{Stations: stations, Count: len(stations), Radius: radius})
}

type linesResponse struct {
	Lines []metro.Line `json:"lines"`
	Count int          `json:"count"`
}

// CityLines lists the lines of ?cityId= in display order.
func (h *Handler) CityLines(w http.ResponseWriter, r *http.Request) {
	cityID := r.URL.Query().Get("cityId")
	if cityID == "" {
		h.fail(w, r, metro.Invalid("cityId", "is required"))
		return
	}
	lines, err := h.db.LinesByCity(r.Context(), cityID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if lines == nil {
		lines = []metro.Line{}
	}
	respondJSON(w, http.StatusOK, linesResponse{Lines: lines, Count: len(lines)})
}
