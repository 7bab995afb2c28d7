package transit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"metrotrack/internal/metro"
	"metrotrack/internal/schedule"
)

// fallbackWait is used as the next departure when a line has no timetable.
const fallbackWait = 3 * time.Minute

// Catalog is the read-only station and connection source used for routing.
type Catalog interface {
	StationByID(ctx context.Context, id string) (metro.Station, error)
	CityByID(ctx context.Context, id string) (metro.City, error)
	Connections(ctx context.Context) ([]metro.Connection, error)
	DirectionBetween(ctx context.Context, lineID, fromID, toID string) (metro.Direction, error)
	LineSchedule(ctx context.Context, lineID string, dir metro.Direction) (*schedule.Frequency, error)
}

// ResultCache stores computed journeys keyed by origin and destination.
// The station catalog is read-only, so a path never goes stale.
type ResultCache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, v any) error
}

// Journey is the time-independent part of a route.
type Journey struct {
	Stations        []string           `json:"route"`
	Transfers       []Transfer         `json:"transfers"`
	DurationSeconds int                `json:"estimatedDuration"`
	Segments        []schedule.Segment `json:"segments"`
	FirstLineID     string             `json:"firstLineId"`
}

// Route is a journey plus the next departure from the origin.
type Route struct {
	Journey
	NextDeparture time.Time `json:"nextTrainDeparture"`
}

// Router answers journey requests against the catalog.
type Router struct {
	catalog Catalog
	cache   ResultCache
	penalty time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// NewRouter creates a router. cache may be nil.
func NewRouter(catalog Catalog, cache ResultCache, penalty time.Duration, logger *slog.Logger) *Router {
	if penalty <= 0 {
		penalty = DefaultTransferPenalty
	}
	return &Router{
		catalog: catalog,
		cache:   cache,
		penalty: penalty,
		now:     time.Now,
		logger:  logger.With("component", "router"),
	}
}

// FindRoute computes the fastest journey between two stations of the same
// city. A zero departure means "leave now".
func (r *Router) FindRoute(ctx context.Context, originID, destID string, departure time.Time) (*Route, error) {
	if originID == "" {
		return nil, metro.Invalid("origin", "is required")
	}
	if destID == "" {
		return nil, metro.Invalid("destination", "is required")
	}
	if originID == destID {
		return nil, metro.Invalid("destination", "must differ from origin")
	}

	origin, err := r.catalog.StationByID(ctx, originID)
	if err != nil {
		return nil, fmt.Errorf("origin: %w", err)
	}
	dest, err := r.catalog.StationByID(ctx, destID)
	if err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}
	if origin.CityID != dest.CityID {
		return nil, metro.ErrCrossCity
	}

	j, err := r.journey(ctx, originID, destID)
	if err != nil {
		return nil, err
	}

	route := &Route{Journey: *j}
	route.NextDeparture = r.nextDeparture(ctx, j, departure, r.location(ctx, origin.CityID))
	return route, nil
}

func (r *Router) journey(ctx context.Context, originID, destID string) (*Journey, error) {
	key := CacheKey(originID, destID)
	if r.cache != nil {
		var cached Journey
		ok, err := r.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			r.logger.Warn("route cache read failed", "key", key, "error", err)
		} else if ok {
			return &cached, nil
		}
	}

	conns, err := r.catalog.Connections(ctx)
	if err != nil {
		return nil, fmt.Errorf("load connections: %w", err)
	}
	j, ok := Plan(conns, originID, destID, r.penalty)
	if !ok {
		return nil, fmt.Errorf("no route from %s to %s: %w", originID, destID, metro.ErrNotFound)
	}

	if r.cache != nil {
		if err := r.cache.SetJSON(ctx, key, j); err != nil {
			r.logger.Warn("route cache write failed", "key", key, "error", err)
		}
	}
	r.logger.Debug("route computed", "origin", originID, "destination", destID,
		"stations", len(j.Stations), "transfers", len(j.Transfers), "duration", j.DurationSeconds)
	return j, nil
}

// location loads the city's timezone, falling back to UTC.
func (r *Router) location(ctx context.Context, cityID string) *time.Location {
	city, err := r.catalog.CityByID(ctx, cityID)
	if err != nil {
		if !errors.Is(err, metro.ErrNotFound) {
			r.logger.Warn("city lookup failed", "city", cityID, "error", err)
		}
		return time.UTC
	}
	loc, err := time.LoadLocation(city.Timezone)
	if err != nil {
		r.logger.Warn("unknown city timezone", "city", cityID, "timezone", city.Timezone, "error", err)
		return time.UTC
	}
	return loc
}

// nextDeparture looks up the timetable of the first line in the direction
// of travel, read against the wall clock of loc. Without a usable timetable
// the requested departure is kept, or "now plus a short wait" when none was
// requested.
func (r *Router) nextDeparture(ctx context.Context, j *Journey, departure time.Time, loc *time.Location) time.Time {
	at := departure
	if at.IsZero() {
		at = r.now()
	}
	at = at.In(loc)
	fallback := departure
	if fallback.IsZero() {
		fallback = at.Add(fallbackWait)
	}
	if len(j.Segments) == 0 {
		return fallback
	}

	first := j.Segments[0]
	dir, err := r.catalog.DirectionBetween(ctx, j.FirstLineID, first.FromStationID, first.ToStationID)
	if err != nil {
		if !errors.Is(err, metro.ErrNotFound) {
			r.logger.Warn("direction lookup failed", "line", j.FirstLineID, "error", err)
		}
		return fallback
	}
	freq, err := r.catalog.LineSchedule(ctx, j.FirstLineID, dir)
	if err != nil {
		r.logger.Warn("schedule lookup failed", "line", j.FirstLineID, "error", err)
		return fallback
	}
	if freq == nil {
		return fallback
	}
	if next, ok := schedule.NextDeparture(at, *freq); ok {
		return next
	}
	return fallback
}

// Plan builds a graph from conns and computes the journey without touching
// the catalog. It reports false when no path exists.
func Plan(conns []metro.Connection, originID, destID string, penalty time.Duration) (*Journey, bool) {
	g := NewGraph()
	timing := make(map[[3]string]metro.Connection, len(conns))
	for _, c := range conns {
		g.AddEdge(c.FromStationID, c.ToStationID, c.Weight(), c.LineID)
		timing[[3]string{c.FromStationID, c.ToStationID, c.LineID}] = c
	}

	path, ok := g.ShortestPath(originID, destID)
	if !ok {
		return nil, false
	}

	transfers := DetectTransfers(path.Edges)
	segments := make([]schedule.Segment, 0, len(path.Edges))
	for _, e := range path.Edges {
		c := timing[[3]string{e.From, e.To, e.LineID}]
		segments = append(segments, schedule.Segment{
			FromStationID:     e.From,
			ToStationID:       e.To,
			TravelTimeSeconds: c.TravelTimeSeconds,
			StopTimeSeconds:   c.StopTimeSeconds,
		})
	}

	j := &Journey{
		Stations:        path.Stations,
		Transfers:       transfers,
		DurationSeconds: JourneySeconds(path.Weight, len(transfers), penalty),
		Segments:        segments,
	}
	if j.Transfers == nil {
		j.Transfers = []Transfer{}
	}
	if len(path.Edges) > 0 {
		j.FirstLineID = path.Edges[0].LineID
	}
	return j, true
}

// CacheKey is the cache key for a journey between two stations.
func CacheKey(originID, destID string) string {
	return "route:" + originID + ":" + destID
}
