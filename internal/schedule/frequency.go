package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is a wall-clock time of day in seconds since midnight.
type Clock int

// ParseClock parses "HH:MM" or "HH:MM:SS".
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	var vals [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid clock %q", s)
		}
		vals[i] = v
	}
	if vals[0] > 23 || vals[1] > 59 || vals[2] > 59 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	return Clock(vals[0]*3600 + vals[1]*60 + vals[2]), nil
}

// ClockOf returns the wall-clock time of t in its own location.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*3600 + t.Minute()*60 + t.Second())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", int(c)/3600, int(c)%3600/60, int(c)%60)
}

// MarshalText encodes the clock as "HH:MM:SS".
func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts the formats of ParseClock.
func (c *Clock) UnmarshalText(b []byte) error {
	v, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// PeakWindow is an inclusive wall-clock range with peak frequency.
type PeakWindow struct {
	Start Clock `json:"start"`
	End   Clock `json:"end"`
}

// Contains reports whether c falls within the window, bounds included.
func (w PeakWindow) Contains(c Clock) bool {
	return c >= w.Start && c <= w.End
}

// Frequency is the service pattern of one line and direction.
type Frequency struct {
	FirstTrain     Clock        `json:"firstTrain"`
	LastTrain      Clock        `json:"lastTrain"`
	PeakMinutes    int          `json:"peakFrequencyMinutes"`
	OffPeakMinutes int          `json:"offPeakFrequencyMinutes"`
	PeakHours      []PeakWindow `json:"peakHours,omitempty"`
}

// IsPeak reports whether c lies in any peak window.
func (f Frequency) IsPeak(c Clock) bool {
	for _, w := range f.PeakHours {
		if w.Contains(c) {
			return true
		}
	}
	return false
}

// NextDeparture returns the next departure at or after now, to the second.
// Trains depart every N minutes counted from the first train, where N is the
// peak or off-peak frequency in force at now's wall-clock time. It reports
// false when now is outside the first/last train window or the frequency is
// zero.
func NextDeparture(now time.Time, f Frequency) (time.Time, bool) {
	c := ClockOf(now)
	if c < f.FirstTrain || c > f.LastTrain {
		return time.Time{}, false
	}

	minutes := f.OffPeakMinutes
	if f.IsPeak(c) {
		minutes = f.PeakMinutes
	}
	if minutes <= 0 {
		return time.Time{}, false
	}

	period := minutes * 60
	elapsed := int(c - f.FirstTrain)
	next := (elapsed + period - 1) / period * period

	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return midnight.Add(time.Duration(int(f.FirstTrain)+next) * time.Second), true
}
