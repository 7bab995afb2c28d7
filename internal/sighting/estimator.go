// Package sighting turns crowd-sourced "train seen at station" reports into
// position estimates.
package sighting

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"metrotrack/internal/metro"
)

const (
	// DefaultMaxAge bounds how old the sighting used for an estimate may be.
	DefaultMaxAge = 600 * time.Second

	// DwellTime is the assumed stop at the sighted station.
	DwellTime = 30 * time.Second

	// DefaultTravelTime is used when the next segment has no travel time.
	DefaultTravelTime = 120 * time.Second
)

// Status is the estimated phase of the train.
type Status string

const (
	StatusAtStation Status = "at_station"
	StatusInTransit Status = "in_transit"
	StatusUnknown   Status = "unknown"
)

// Level buckets a confidence score.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
)

// Estimate is a derived, never persisted, train position.
type Estimate struct {
	LineID             string          `json:"lineId"`
	Direction          metro.Direction `json:"direction"`
	Status             Status          `json:"status"`
	CurrentStationID   string          `json:"currentStationId"`
	CurrentStationName string          `json:"currentStationName"`
	NextStationID      string          `json:"nextStationId,omitempty"`
	NextStationName    string          `json:"nextStationName,omitempty"`
	ProgressPercent    float64         `json:"progressPercent"`
	Confidence         Level           `json:"confidence"`
	ConfidenceScore    float64         `json:"confidenceScore"`
	SightingAgeSeconds int             `json:"lastSightingAge"`
	ETASeconds         *int            `json:"estimatedArrivalNextStation"`
}

// Store persists sightings. LatestSighting returns nil when no sighting for
// the line and direction is at or after since.
type Store interface {
	LatestSighting(ctx context.Context, lineID string, dir metro.Direction, since time.Time) (*metro.TrainSighting, error)
	InsertSighting(ctx context.Context, s *metro.TrainSighting) (int64, error)
}

// Catalog resolves stations, lines and the next stop along a line.
// NextStation returns nil when the station is the end of the line in dir.
type Catalog interface {
	StationByID(ctx context.Context, id string) (metro.Station, error)
	LineByID(ctx context.Context, id string) (metro.Line, error)
	NextStation(ctx context.Context, lineID, stationID string, dir metro.Direction) (*metro.NextStop, error)
}

// Estimator answers position queries from the latest sighting.
type Estimator struct {
	store   Store
	catalog Catalog
	now     func() time.Time
	logger  *slog.Logger
}

// NewEstimator creates an estimator.
func NewEstimator(store Store, catalog Catalog, logger *slog.Logger) *Estimator {
	return &Estimator{
		store:   store,
		catalog: catalog,
		now:     time.Now,
		logger:  logger.With("component", "sighting"),
	}
}

// EstimatePosition estimates where the train on lineID heading dir is now,
// using only the most recent sighting no older than maxAge. It returns nil
// when there is no such sighting. A zero maxAge selects DefaultMaxAge.
func (e *Estimator) EstimatePosition(ctx context.Context, lineID string, dir metro.Direction, maxAge time.Duration) (*Estimate, error) {
	if _, err := metro.ParseDirection(string(dir)); err != nil {
		return nil, err
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	now := e.now()
	s, err := e.store.LatestSighting(ctx, lineID, dir, now.Add(-maxAge))
	if err != nil {
		return nil, fmt.Errorf("latest sighting: %w", err)
	}
	if s == nil {
		return nil, nil
	}

	station, err := e.catalog.StationByID(ctx, s.StationID)
	if err != nil {
		return nil, fmt.Errorf("sighted station: %w", err)
	}
	next, err := e.catalog.NextStation(ctx, lineID, s.StationID, dir)
	if err != nil {
		return nil, fmt.Errorf("next station: %w", err)
	}

	age := int(math.Floor(now.Sub(s.Timestamp).Seconds()))
	if age < 0 {
		age = 0
	}

	est := PositionFromAge(age, station, next)
	est.LineID = lineID
	est.Direction = dir
	est.SightingAgeSeconds = age
	est.ConfidenceScore = Confidence(age, s.ConfidenceScore)
	est.Confidence = LevelOf(est.ConfidenceScore)
	return &est, nil
}

// AllTrainPositions estimates both directions of a line independently.
// A direction without a fresh sighting is omitted.
func (e *Estimator) AllTrainPositions(ctx context.Context, lineID string, maxAge time.Duration) ([]Estimate, error) {
	out := make([]Estimate, 0, 2)
	for _, dir := range metro.Directions() {
		est, err := e.EstimatePosition(ctx, lineID, dir, maxAge)
		if err != nil {
			return nil, err
		}
		if est != nil {
			out = append(out, *est)
		}
	}
	return out, nil
}

// RouteTrainPosition estimates the train serving a journey. Only the line
// position is considered; the route's stations do not narrow the search.
func (e *Estimator) RouteTrainPosition(ctx context.Context, route []string, lineID string, dir metro.Direction, maxAge time.Duration) (*Estimate, error) {
	if len(route) < 2 {
		return nil, metro.Invalid("route", "needs at least two stations")
	}
	return e.EstimatePosition(ctx, lineID, dir, maxAge)
}

// PositionFromAge derives the train phase from seconds elapsed since it was
// sighted at station. next is nil at the end of the line. A train past the
// next station is placed there; later hops are not inferred.
func PositionFromAge(age int, station metro.Station, next *metro.NextStop) Estimate {
	dwell := int(DwellTime / time.Second)
	est := Estimate{
		CurrentStationID:   station.ID,
		CurrentStationName: station.Name,
	}

	if age < dwell {
		est.Status = StatusAtStation
		if next != nil {
			est.NextStationID = next.Station.ID
			est.NextStationName = next.Station.Name
			eta := next.TravelTimeSeconds
			est.ETASeconds = &eta
		}
		return est
	}

	if next == nil {
		est.Status = StatusUnknown
		return est
	}

	travel := next.TravelTimeSeconds
	if travel <= 0 {
		travel = int(DefaultTravelTime / time.Second)
	}
	transit := age - dwell
	if transit < travel {
		est.Status = StatusInTransit
		est.NextStationID = next.Station.ID
		est.NextStationName = next.Station.Name
		est.ProgressPercent = math.Min(100, math.Max(0, float64(transit)/float64(travel)*100))
		remaining := travel - transit
		est.ETASeconds = &remaining
		return est
	}

	est.Status = StatusAtStation
	est.CurrentStationID = next.Station.ID
	est.CurrentStationName = next.Station.Name
	return est
}

// Confidence combines an age bucket with the sighting's stored score. A
// missing score counts as fully trusted.
func Confidence(ageSeconds int, sightingScore float64) float64 {
	if sightingScore <= 0 {
		sightingScore = 1
	}
	var ageScore float64
	switch {
	case ageSeconds < 60:
		ageScore = 1.0
	case ageSeconds < 180:
		ageScore = 0.8
	case ageSeconds < 300:
		ageScore = 0.6
	default:
		ageScore = 0.4
	}
	return ageScore * sightingScore
}

// LevelOf buckets a combined confidence score.
func LevelOf(score float64) Level {
	switch {
	case score >= 0.7:
		return LevelHigh
	case score >= 0.4:
		return LevelMedium
	default:
		return LevelLow
	}
}
