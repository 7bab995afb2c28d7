package schedule

import (
	"reflect"
	"testing"
	"time"
)

var (
	testRoute    = []string{"A", "B", "C"}
	testSegments = []Segment{
		{FromStationID: "A", ToStationID: "B", TravelTimeSeconds: 120, StopTimeSeconds: 30},
		{FromStationID: "B", ToStationID: "C", TravelTimeSeconds: 60, StopTimeSeconds: 20},
	}
	testDeparture = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
)

func TestProject(t *testing.T) {
	wantArrival := testDeparture.Add(230 * time.Second)

	tests := []struct {
		name         string
		offset       time.Duration
		wantStatus   Status
		wantCurrent  string
		wantNext     string
		wantIndex    int
		wantProgress float64
		wantArrival  bool
	}{
		{"before departure", -time.Minute, StatusWaiting, "A", "B", 0, 0, true},
		{"at departure", 0, StatusAtStation, "A", "B", 0, 0, true},
		{"end of first dwell", 29 * time.Second, StatusAtStation, "A", "B", 0, 0, true},
		{"start of first travel", 30 * time.Second, StatusInTransit, "A", "B", 0, 0, true},
		{"halfway first travel", 90 * time.Second, StatusInTransit, "A", "B", 0, 50, true},
		{"dwell at B", 150 * time.Second, StatusAtStation, "B", "C", 1, 0, true},
		{"second travel", 200 * time.Second, StatusInTransit, "B", "C", 1, 50, true},
		{"exactly at arrival", 230 * time.Second, StatusArrived, "C", "", 2, 0, false},
		{"long after arrival", time.Hour, StatusArrived, "C", "", 2, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Project(testDeparture, testDeparture.Add(tt.offset), testRoute, testSegments)
			if p.Status != tt.wantStatus {
				t.Fatalf("Status = %q, want %q", p.Status, tt.wantStatus)
			}
			if p.CurrentStationID != tt.wantCurrent {
				t.Errorf("CurrentStationID = %q, want %q", p.CurrentStationID, tt.wantCurrent)
			}
			if p.NextStationID != tt.wantNext {
				t.Errorf("NextStationID = %q, want %q", p.NextStationID, tt.wantNext)
			}
			if p.CurrentStationIndex != tt.wantIndex {
				t.Errorf("CurrentStationIndex = %d, want %d", p.CurrentStationIndex, tt.wantIndex)
			}
			if diff := p.ProgressPercent - tt.wantProgress; diff > 0.01 || diff < -0.01 {
				t.Errorf("ProgressPercent = %.2f, want %.2f", p.ProgressPercent, tt.wantProgress)
			}
			if tt.wantArrival {
				if p.EstimatedArrival == nil || !p.EstimatedArrival.Equal(wantArrival) {
					t.Errorf("EstimatedArrival = %v, want %v", p.EstimatedArrival, wantArrival)
				}
			} else if p.EstimatedArrival != nil {
				t.Errorf("EstimatedArrival = %v, want nil", p.EstimatedArrival)
			}
		})
	}
}

func TestProject_Deterministic(t *testing.T) {
	now := testDeparture.Add(97 * time.Second)
	a := Project(testDeparture, now, testRoute, testSegments)
	b := Project(testDeparture, now, testRoute, testSegments)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("Project not deterministic: %+v vs %+v", a, b)
	}
}

func TestProject_StationsRemaining(t *testing.T) {
	p := Project(testDeparture, testDeparture.Add(160*time.Second), testRoute, testSegments)
	if p.StationsRemaining != 1 {
		t.Errorf("StationsRemaining = %d, want 1", p.StationsRemaining)
	}
	if p.NextStationIndex == nil || *p.NextStationIndex != 2 {
		t.Errorf("NextStationIndex = %v, want 2", p.NextStationIndex)
	}
}

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{-3, "0s"},
		{45, "45s"},
		{60, "1m"},
		{125, "2m 5s"},
		{240, "4m"},
		{3599, "59m 59s"},
		{3780, "1h 3m"},
	}
	for _, tt := range tests {
		if got := FormatRemaining(tt.seconds); got != tt.want {
			t.Errorf("FormatRemaining(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}
