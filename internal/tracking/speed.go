package tracking

import (
	"math"
	"time"

	"metrotrack/internal/geo"
	"metrotrack/internal/metro"
)

const (
	// MaxSpeedKMH is the fastest plausible metro speed.
	MaxSpeedKMH = 90.0

	// DefaultSpeedKMH is assumed when a line has no recorded segment speed.
	DefaultSpeedKMH = 40.0
)

// SegmentSpeed is the rolling average speed observed between two stations.
type SegmentSpeed struct {
	LineID        string    `json:"lineId"`
	FromStationID string    `json:"fromStationId"`
	ToStationID   string    `json:"toStationId"`
	AvgSpeed      float64   `json:"avgSpeed"`
	SampleCount   int       `json:"sampleCount"`
	LastUpdated   time.Time `json:"lastUpdated"`
}

func speedKey(lineID, fromID, toID string) string {
	return lineID + ":" + fromID + ":" + toID
}

// RecordSegmentSpeed folds a speed sample into the segment's rolling
// average. Samples outside [0, MaxSpeedKMH] are rejected.
func (t *Tracker) RecordSegmentSpeed(lineID, fromID, toID string, kmh float64) error {
	if math.IsNaN(kmh) || kmh < 0 || kmh > MaxSpeedKMH {
		return metro.Invalid("speed", "must be between 0 and 90 km/h")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := speedKey(lineID, fromID, toID)
	now := t.now()
	sp, ok := t.speeds[key]
	if !ok {
		t.speeds[key] = &SegmentSpeed{
			LineID:        lineID,
			FromStationID: fromID,
			ToStationID:   toID,
			AvgSpeed:      kmh,
			SampleCount:   1,
			LastUpdated:   now,
		}
		return nil
	}
	sp.AvgSpeed = (sp.AvgSpeed*float64(sp.SampleCount) + kmh) / float64(sp.SampleCount+1)
	sp.SampleCount++
	sp.LastUpdated = now
	return nil
}

// SegmentSpeed returns the accumulated speed of a segment.
func (t *Tracker) SegmentSpeed(lineID, fromID, toID string) (SegmentSpeed, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sp, ok := t.speeds[speedKey(lineID, fromID, toID)]
	if !ok {
		return SegmentSpeed{}, false
	}
	return *sp, true
}

// lineSpeed averages all recorded segment speeds of a line, weighted by
// sample count.
func (t *Tracker) lineSpeed(lineID string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var sum float64
	var n int
	for _, sp := range t.speeds {
		if sp.LineID != lineID {
			continue
		}
		sum += sp.AvgSpeed * float64(sp.SampleCount)
		n += sp.SampleCount
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// PlausibleMove reports whether moving between two points in dt implies a
// speed a metro train can reach. Intervals under one second are rejected.
func PlausibleMove(lat1, lon1, lat2, lon2 float64, dt time.Duration) bool {
	if dt < time.Second {
		return false
	}
	kmh := geo.SpeedKMH(geo.Haversine(lat1, lon1, lat2, lon2), dt)
	return kmh >= 0 && kmh <= MaxSpeedKMH
}

// StationETA is the estimated arrival of a tracked train at a station.
type StationETA struct {
	StationID      string  `json:"stationId"`
	DistanceMeters float64 `json:"distanceMeters"`
	ETASeconds     int     `json:"etaSeconds"`
	SpeedKMH       float64 `json:"speedKmh"`
}

// NextStationETA picks the station nearest to the train by straight-line
// distance and estimates the time to reach it from the line's recorded
// segment speeds, or DefaultSpeedKMH when none are known.
func (t *Tracker) NextStationETA(st State, stations []metro.Station) (StationETA, bool) {
	if len(stations) == 0 {
		return StationETA{}, false
	}

	best := -1
	bestDist := math.Inf(1)
	for i, s := range stations {
		if d := geo.Haversine(st.Latitude, st.Longitude, s.Latitude, s.Longitude); d < bestDist {
			best, bestDist = i, d
		}
	}

	speed, ok := t.lineSpeed(st.LineID)
	if !ok || speed <= 0 {
		speed = DefaultSpeedKMH
	}
	eta := geo.TravelTime(bestDist, speed)
	return StationETA{
		StationID:      stations[best].ID,
		DistanceMeters: bestDist,
		ETASeconds:     int(math.Round(eta.Seconds())),
		SpeedKMH:       speed,
	}, true
}
