// Package tracking aggregates live train location reports into one
// best-estimate position per line and direction.
package tracking

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"metrotrack/internal/metro"
)

const (
	DefaultRetention       = 5 * time.Minute
	DefaultStaleAfter      = 5 * time.Minute
	DefaultSpeedRetention  = 30 * time.Minute
	DefaultCleanupInterval = 5 * time.Minute

	// decay is the time constant of the exponential recency weight.
	decay = 60 * time.Second

	// trustedConfidence keeps a stale state visible until the next cleanup.
	trustedConfidence = 0.5

	// MaxClockSkew is how far ahead of the server clock a report may be
	// stamped.
	MaxClockSkew = 30 * time.Second
)

// State is the aggregated position of the train running on one line in one
// direction. Only one train per line and direction is tracked.
type State struct {
	Key         string          `json:"key"`
	TrainID     string          `json:"trainId"`
	LineID      string          `json:"lineId"`
	CityID      string          `json:"cityId"`
	Latitude    float64         `json:"currentLatitude"`
	Longitude   float64         `json:"currentLongitude"`
	Direction   metro.Direction `json:"direction"`
	Speed       float64         `json:"speed"`
	Confidence  float64         `json:"confidence"`
	LastUpdate  time.Time       `json:"lastUpdate"`
	ReportCount int             `json:"reportCount"`
	Active      bool            `json:"isActive"`
}

// DeltaType distinguishes state updates from removals.
type DeltaType string

const (
	DeltaUpdate DeltaType = "update"
	DeltaRemove DeltaType = "remove"
)

// Delta is a change to the tracked set, published after each mutation.
type Delta struct {
	Type   DeltaType `json:"type"`
	Key    string    `json:"key"`
	LineID string    `json:"lineId"`
	State  *State    `json:"state,omitempty"`
}

// Broadcaster receives deltas outside the tracker lock.
type Broadcaster interface {
	Broadcast(deltas []Delta)
}

// Options configures a Tracker. Zero values select the defaults.
type Options struct {
	Retention       time.Duration
	StaleAfter      time.Duration
	SpeedRetention  time.Duration
	CleanupInterval time.Duration
	Now             func() time.Time
	Broadcaster     Broadcaster
}

// Tracker owns the report buffers, aggregated states and segment speed
// accumulators. All methods are safe for concurrent use.
type Tracker struct {
	mu      sync.RWMutex
	reports map[string][]metro.TrainReport
	states  map[string]*State
	speeds  map[string]*SegmentSpeed

	retention       time.Duration
	staleAfter      time.Duration
	speedRetention  time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
	broadcaster     Broadcaster
	logger          *slog.Logger
}

// New creates a tracker.
func New(opts Options, logger *slog.Logger) *Tracker {
	t := &Tracker{
		reports:         make(map[string][]metro.TrainReport),
		states:          make(map[string]*State),
		speeds:          make(map[string]*SegmentSpeed),
		retention:       orDefault(opts.Retention, DefaultRetention),
		staleAfter:      orDefault(opts.StaleAfter, DefaultStaleAfter),
		speedRetention:  orDefault(opts.SpeedRetention, DefaultSpeedRetention),
		cleanupInterval: orDefault(opts.CleanupInterval, DefaultCleanupInterval),
		now:             opts.Now,
		broadcaster:     opts.Broadcaster,
		logger:          logger.With("component", "tracker"),
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t
}

// SetBroadcaster installs the delta sink. Call before the tracker is shared.
func (t *Tracker) SetBroadcaster(b Broadcaster) {
	t.broadcaster = b
}

// Key identifies the single tracked train of a line and direction.
func Key(lineID string, dir metro.Direction) string {
	return lineID + ":" + string(dir)
}

// Ingest validates a report, adds it to its key's buffer and recomputes the
// aggregate. A zero timestamp is taken as "now". Reports stamped more than
// MaxClockSkew ahead of the clock are rejected, as are reports from the
// tracked train whose distance from the current aggregate implies a speed
// above MaxSpeedKMH. The returned state is a copy, or nil when no fresh
// report remains for the key.
func (t *Tracker) Ingest(r metro.TrainReport) (*State, error) {
	if err := metro.Validate(r); err != nil {
		return nil, err
	}

	t.mu.Lock()
	now := t.now()
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
	if r.Timestamp.Sub(now) > MaxClockSkew {
		t.mu.Unlock()
		return nil, metro.Invalid("timestamp", "is in the future")
	}
	key := Key(r.LineID, r.Direction)

	if prev, ok := t.states[key]; ok && prev.TrainID == r.TrainID && now.Sub(prev.LastUpdate) < t.retention {
		dt := r.Timestamp.Sub(prev.LastUpdate)
		if dt >= time.Second && !PlausibleMove(prev.Latitude, prev.Longitude, r.Latitude, r.Longitude, dt) {
			t.mu.Unlock()
			return nil, metro.Invalid("latitude", "position implies a speed above 90 km/h")
		}
	}

	fresh := make([]metro.TrainReport, 0, len(t.reports[key])+1)
	for _, old := range append(t.reports[key], r) {
		if age := now.Sub(old.Timestamp); age >= -MaxClockSkew && age < t.retention {
			fresh = append(fresh, old)
		}
	}

	var delta Delta
	var out *State
	if len(fresh) == 0 {
		delete(t.reports, key)
		_, existed := t.states[key]
		delete(t.states, key)
		if existed {
			delta = Delta{Type: DeltaRemove, Key: key, LineID: r.LineID}
		}
	} else {
		t.reports[key] = fresh
		st := aggregate(fresh, now)
		st.Key = key
		st.TrainID = r.TrainID
		st.LineID = r.LineID
		st.CityID = r.CityID
		st.Direction = r.Direction
		t.states[key] = st
		cp := *st
		out = &cp
		delta = Delta{Type: DeltaUpdate, Key: key, LineID: r.LineID, State: &cp}
	}
	t.mu.Unlock()

	if delta.Type != "" {
		t.publish([]Delta{delta})
	}
	t.logger.Debug("report ingested", "key", key, "source", r.Source, "fresh", len(fresh))
	return out, nil
}

// aggregate computes the weighted position, speed and confidence of a
// non-empty buffer.
func aggregate(reports []metro.TrainReport, now time.Time) *State {
	weights := make([]float64, len(reports))
	var total float64
	for i, r := range reports {
		weights[i] = ReportWeight(r.Source, now.Sub(r.Timestamp))
		total += weights[i]
	}

	st := &State{
		Confidence:  Confidence(len(reports)),
		LastUpdate:  now,
		ReportCount: len(reports),
		Active:      true,
	}
	var speedWeight, speedSum float64
	for i, r := range reports {
		w := weights[i] / total
		st.Latitude += r.Latitude * w
		st.Longitude += r.Longitude * w
		if r.Speed != nil {
			speedSum += *r.Speed * w
			speedWeight += w
		}
	}
	if speedWeight > 0 {
		st.Speed = speedSum / speedWeight
	}
	return st
}

// ReportWeight is the source weight decayed exponentially with report age.
// Reports stamped in the future count as age zero.
func ReportWeight(src metro.Source, age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	return src.Weight() * math.Exp(-age.Seconds()/decay.Seconds())
}

// Confidence grows with the number of fresh reports and saturates at 1 from
// three reports on.
func Confidence(reports int) float64 {
	return math.Min(1, float64(reports)/3*0.7+0.3)
}

// Trains returns the tracked states, optionally filtered by line and city.
// A stale state is reported inactive, and is omitted unless its confidence
// is above 0.5. Results are copies sorted by key.
func (t *Tracker) Trains(lineID, cityID string) []State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	out := make([]State, 0, len(t.states))
	for _, st := range t.states {
		if lineID != "" && st.LineID != lineID {
			continue
		}
		if cityID != "" && st.CityID != cityID {
			continue
		}
		cp := *st
		stale := now.Sub(st.LastUpdate) > t.staleAfter
		if stale {
			cp.Active = false
		}
		if !stale || cp.Confidence > trustedConfidence {
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// TrainByID returns the state last updated by trainID.
func (t *Tracker) TrainByID(trainID string) (State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, st := range t.states {
		if st.TrainID == trainID {
			cp := *st
			if t.now().Sub(cp.LastUpdate) > t.staleAfter {
				cp.Active = false
			}
			return cp, true
		}
	}
	return State{}, false
}

// Train returns the state for a line and direction.
func (t *Tracker) Train(lineID string, dir metro.Direction) (State, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.states[Key(lineID, dir)]
	if !ok {
		return State{}, false
	}
	cp := *st
	if t.now().Sub(cp.LastUpdate) > t.staleAfter {
		cp.Active = false
	}
	return cp, true
}

// Count returns the number of stored states, stale ones included.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.states)
}

// Cleanup deletes every stale state regardless of confidence, along with
// its report buffer, and expires old segment speeds.
func (t *Tracker) Cleanup() (trains, speeds int) {
	t.mu.Lock()
	now := t.now()
	var deltas []Delta
	for key, st := range t.states {
		if now.Sub(st.LastUpdate) > t.staleAfter {
			delete(t.states, key)
			delete(t.reports, key)
			deltas = append(deltas, Delta{Type: DeltaRemove, Key: key, LineID: st.LineID})
		}
	}
	for key, sp := range t.speeds {
		if now.Sub(sp.LastUpdated) > t.speedRetention {
			delete(t.speeds, key)
			speeds++
		}
	}
	t.mu.Unlock()

	t.publish(deltas)
	return len(deltas), speeds
}

// Run sweeps stale data every cleanup interval until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			trains, speeds := t.Cleanup()
			if trains > 0 || speeds > 0 {
				t.logger.Info("stale tracking data removed", "trains", trains, "segment_speeds", speeds)
			}
		}
	}
}

func (t *Tracker) publish(deltas []Delta) {
	if t.broadcaster == nil || len(deltas) == 0 {
		return
	}
	t.broadcaster.Broadcast(deltas)
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
