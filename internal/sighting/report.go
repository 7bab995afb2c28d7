package sighting

import (
	"context"
	"fmt"

	"metrotrack/internal/geo"
	"metrotrack/internal/metro"
)

// ReportRequest is a user's sighting submission.
type ReportRequest struct {
	LineID        string          `json:"lineId" validate:"required"`
	StationID     string          `json:"stationId" validate:"required"`
	Direction     metro.Direction `json:"direction" validate:"oneof=forward backward"`
	UserID        string          `json:"userId,omitempty"`
	UserLatitude  *float64        `json:"userLatitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	UserLongitude *float64        `json:"userLongitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
}

// Report validates and stores a sighting timestamped now. Its confidence
// score reflects how close the reporter was to the station.
func (e *Estimator) Report(ctx context.Context, req ReportRequest) (*metro.TrainSighting, error) {
	if err := metro.Validate(req); err != nil {
		return nil, err
	}

	station, err := e.catalog.StationByID(ctx, req.StationID)
	if err != nil {
		return nil, fmt.Errorf("station %s: %w", req.StationID, err)
	}
	if _, err := e.catalog.LineByID(ctx, req.LineID); err != nil {
		return nil, fmt.Errorf("line %s: %w", req.LineID, err)
	}

	s := &metro.TrainSighting{
		LineID:          req.LineID,
		StationID:       req.StationID,
		Direction:       req.Direction,
		Timestamp:       e.now(),
		UserID:          req.UserID,
		UserLatitude:    req.UserLatitude,
		UserLongitude:   req.UserLongitude,
		ConfidenceScore: 1.0,
	}
	if req.UserLatitude != nil && req.UserLongitude != nil {
		d := geo.Haversine(*req.UserLatitude, *req.UserLongitude, station.Latitude, station.Longitude)
		s.ConfidenceScore = ProximityConfidence(d)
	}

	id, err := e.store.InsertSighting(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("insert sighting: %w", err)
	}
	s.ID = id
	e.logger.Info("sighting reported", "id", id, "line", s.LineID, "station", s.StationID,
		"direction", s.Direction, "confidence", s.ConfidenceScore)
	return s, nil
}

// ProximityConfidence scores a sighting by the reporter's distance from the
// station in meters.
func ProximityConfidence(meters float64) float64 {
	switch {
	case meters < 100:
		return 1.0
	case meters < 200:
		return 0.9
	case meters < 500:
		return 0.7
	default:
		return 0.5
	}
}
