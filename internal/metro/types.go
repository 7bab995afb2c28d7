// Package metro holds the reference and event types shared by the routing,
// tracking and estimation packages.
package metro

import (
	"fmt"
	"time"
)

// Direction is the travel direction of a train along its line.
type Direction string

const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
)

// ParseDirection validates a direction string.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Forward, Backward:
		return Direction(s), nil
	default:
		return "", Invalid("direction", fmt.Sprintf("must be %q or %q", Forward, Backward))
	}
}

// Directions lists both directions in the order they are reported.
func Directions() []Direction {
	return []Direction{Forward, Backward}
}

// Source identifies who produced a live location report.
type Source string

const (
	SourceOnboard  Source = "onboard"
	SourcePlatform Source = "platform"
	SourceObserver Source = "observer"
)

// Weight returns the trust multiplier for a report source.
// Onboard reports are the most reliable.
func (s Source) Weight() float64 {
	switch s {
	case SourceOnboard:
		return 3
	case SourcePlatform:
		return 2
	default:
		return 1
	}
}

// City is a metro operating area.
type City struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Timezone    string `json:"timezone"`
}

// Line is a metro line within a city.
type Line struct {
	ID           string `json:"id"`
	CityID       string `json:"cityId"`
	Name         string `json:"name"`
	Color        string `json:"color"`
	DisplayOrder int    `json:"displayOrder"`
}

// Station is immutable reference data owned by the catalog.
type Station struct {
	ID            string  `json:"id"`
	CityID        string  `json:"cityId"`
	Name          string  `json:"name"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	IsInterchange bool    `json:"isInterchange"`
}

// Connection is a directed edge between two adjacent stations on a line.
// Both directions of travel are stored as separate connections.
type Connection struct {
	FromStationID     string `json:"fromStationId"`
	ToStationID       string `json:"toStationId"`
	LineID            string `json:"lineId"`
	TravelTimeSeconds int    `json:"travelTimeSeconds"`
	StopTimeSeconds   int    `json:"stopTimeSeconds"`
}

// Weight is the routing cost of the connection in seconds.
func (c Connection) Weight() float64 {
	return float64(c.TravelTimeSeconds + c.StopTimeSeconds)
}

// NextStop is the station a train reaches next from a given station, with
// the timing of the connecting segment.
type NextStop struct {
	Station           Station
	TravelTimeSeconds int
	StopTimeSeconds   int
}

// TrainReport is a single live location update. Reports are never mutated.
type TrainReport struct {
	TrainID   string    `json:"trainId" validate:"required"`
	LineID    string    `json:"lineId" validate:"required"`
	CityID    string    `json:"cityId" validate:"required"`
	Latitude  float64   `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64   `json:"longitude" validate:"gte=-180,lte=180"`
	Direction Direction `json:"direction" validate:"oneof=forward backward"`
	Source    Source    `json:"source" validate:"oneof=onboard platform observer"`
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"userId,omitempty"`
	Speed     *float64  `json:"speed,omitempty" validate:"omitempty,gte=0"`    // km/h
	Accuracy  *float64  `json:"accuracy,omitempty" validate:"omitempty,gte=0"` // meters
}

// TrainSighting is a crowd report of a train seen at a station.
type TrainSighting struct {
	ID              int64     `json:"id"`
	LineID          string    `json:"lineId"`
	StationID       string    `json:"stationId"`
	Direction       Direction `json:"direction"`
	Timestamp       time.Time `json:"timestamp"`
	UserID          string    `json:"userId,omitempty"`
	UserLatitude    *float64  `json:"userLatitude,omitempty"`
	UserLongitude   *float64  `json:"userLongitude,omitempty"`
	ConfidenceScore float64   `json:"confidenceScore"`
	Verified        bool      `json:"isVerified"`
}
