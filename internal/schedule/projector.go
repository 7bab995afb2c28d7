// Package schedule projects a train's position from its timetable when no
// live signal exists, and computes the next scheduled departure.
package schedule

import (
	"fmt"
	"time"
)

// Segment is one hop of a journey, travelled after dwelling at From.
type Segment struct {
	FromStationID     string `json:"fromStationId"`
	ToStationID       string `json:"toStationId"`
	TravelTimeSeconds int    `json:"travelTimeSeconds"`
	StopTimeSeconds   int    `json:"stopTimeSeconds"`
}

func (s Segment) duration() time.Duration {
	return time.Duration(s.TravelTimeSeconds+s.StopTimeSeconds) * time.Second
}

// Status is the projected phase of a scheduled train.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusAtStation Status = "at_station"
	StatusInTransit Status = "in_transit"
	StatusArrived   Status = "arrived"
)

// Position is a projected train position along a route.
type Position struct {
	Status              Status     `json:"status"`
	CurrentStationID    string     `json:"currentStationId"`
	NextStationID       string     `json:"nextStationId,omitempty"`
	CurrentStationIndex int        `json:"currentStationIndex"`
	NextStationIndex    *int       `json:"nextStationIndex,omitempty"`
	ProgressPercent     float64    `json:"progressPercent"`
	EstimatedArrival    *time.Time `json:"estimatedArrival,omitempty"`
	StationsRemaining   int        `json:"stationsRemaining"`
}

// TotalDuration sums travel and dwell time over all segments.
func TotalDuration(segments []Segment) time.Duration {
	var total time.Duration
	for _, s := range segments {
		total += s.duration()
	}
	return total
}

// Project computes where a train that left at departure should be at now.
// route lists the station IDs in travel order; segments[i] connects
// route[i] to route[i+1]. Project has no side effects.
func Project(departure, now time.Time, route []string, segments []Segment) Position {
	arrival := departure.Add(TotalDuration(segments))
	last := len(route) - 1

	if now.Before(departure) {
		p := Position{
			Status:            StatusWaiting,
			EstimatedArrival:  &arrival,
			StationsRemaining: max(last, 0),
		}
		if len(route) > 0 {
			p.CurrentStationID = route[0]
		}
		if len(route) > 1 {
			p.NextStationID = route[1]
			p.NextStationIndex = intPtr(1)
		}
		return p
	}

	elapsed := now.Sub(departure)
	for i, seg := range segments {
		d := seg.duration()
		if elapsed < d {
			stop := time.Duration(seg.StopTimeSeconds) * time.Second
			p := Position{
				CurrentStationID:    seg.FromStationID,
				NextStationID:       seg.ToStationID,
				CurrentStationIndex: i,
				NextStationIndex:    intPtr(i + 1),
				EstimatedArrival:    &arrival,
				StationsRemaining:   len(segments) - i,
			}
			if elapsed < stop {
				p.Status = StatusAtStation
				return p
			}
			p.Status = StatusInTransit
			if seg.TravelTimeSeconds > 0 {
				travel := time.Duration(seg.TravelTimeSeconds) * time.Second
				p.ProgressPercent = min(100, float64(elapsed-stop)/float64(travel)*100)
			}
			return p
		}
		elapsed -= d
	}

	p := Position{
		Status:              StatusArrived,
		CurrentStationIndex: max(last, 0),
	}
	if last >= 0 {
		p.CurrentStationID = route[last]
	} else if n := len(segments); n > 0 {
		p.CurrentStationID = segments[n-1].ToStationID
	}
	return p
}

// FormatRemaining renders a countdown such as "45s", "2m 5s", "4m" or "1h 3m".
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600 && seconds%60 == 0:
		return fmt.Sprintf("%dm", seconds/60)
	case seconds < 3600:
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	default:
		return fmt.Sprintf("%dh %dm", seconds/3600, (seconds%3600)/60)
	}
}

func intPtr(i int) *int { return &i }
