// Package realtime bridges live train positions and GTFS-RT
// VehiclePositions feeds in both directions.
package realtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"metrotrack/internal/metro"
	"metrotrack/internal/tracking"
)

// DefaultPollInterval is how often the vehicle positions feed is fetched.
const DefaultPollInterval = 30 * time.Second

// Ingester accepts live reports.
type Ingester interface {
	Ingest(r metro.TrainReport) (*tracking.State, error)
}

// Fetcher polls a GTFS-RT VehiclePositions feed and feeds each vehicle into
// the tracker as an onboard report.
type Fetcher struct {
	url      string
	cityID   string
	interval time.Duration
	ingester Ingester
	stats    *Stats
	client   *http.Client
	now      func() time.Time
	logger   *slog.Logger
}

// NewFetcher creates a vehicle positions fetcher.
func NewFetcher(url, cityID string, interval time.Duration, ingester Ingester, stats *Stats, logger *slog.Logger) *Fetcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if stats == nil {
		stats = NewStats()
	}
	return &Fetcher{
		url:      url,
		cityID:   cityID,
		interval: interval,
		ingester: ingester,
		stats:    stats,
		client:   &http.Client{Timeout: 15 * time.Second},
		now:      time.Now,
		logger:   logger.With("component", "gtfsrt_fetcher"),
	}
}

// Start begins polling the feed. Blocks until ctx is cancelled.
func (f *Fetcher) Start(ctx context.Context) {
	f.poll(ctx)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.poll(ctx)
		case <-ctx.Done():
			f.logger.Info("GTFS-RT fetcher stopped")
			return
		}
	}
}

func (f *Fetcher) poll(ctx context.Context) {
	feed, err := f.Fetch(ctx)
	if err != nil {
		f.logger.Warn("fetch vehicle positions failed", "error", err)
		f.stats.recordError(f.now(), err)
		return
	}

	reports := ReportsFromFeed(feed, f.cityID, f.now())
	ingested := 0
	for _, r := range reports {
		if _, err := f.ingester.Ingest(r); err != nil {
			f.logger.Debug("vehicle report rejected", "train_id", r.TrainID, "error", err)
			continue
		}
		ingested++
	}
	f.stats.recordPoll(f.now(), len(feed.GetEntity()), ingested)
	f.logger.Info("GTFS-RT vehicle positions ingested", "entities", len(feed.GetEntity()), "ingested", ingested)
}

// Fetch downloads and decodes one feed message.
func (f *Fetcher) Fetch(ctx context.Context) (*gtfs.FeedMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		return nil, fmt.Errorf("parse protobuf: %w", err)
	}
	return feed, nil
}

// ReportsFromFeed converts the vehicle entities of a feed into onboard
// reports. Entities without a route or a position are skipped. Direction id
// 0 is forward and 1 is backward. Only the most recently stamped vehicle of
// each route and direction is kept, since the tracker follows one train per
// line and direction.
func ReportsFromFeed(feed *gtfs.FeedMessage, cityID string, now time.Time) []metro.TrainReport {
	var reports []metro.TrainReport
	seen := make(map[string]int)
	for _, entity := range feed.GetEntity() {
		v := entity.GetVehicle()
		if v == nil || entity.GetIsDeleted() {
			continue
		}
		pos := v.GetPosition()
		routeID := v.GetTrip().GetRouteId()
		if pos == nil || routeID == "" {
			continue
		}

		trainID := v.GetVehicle().GetId()
		if trainID == "" {
			trainID = entity.GetId()
		}

		dir := metro.Forward
		if v.GetTrip().GetDirectionId() == 1 {
			dir = metro.Backward
		}

		ts := now
		if v.Timestamp != nil {
			ts = time.Unix(int64(v.GetTimestamp()), 0)
		}

		r := metro.TrainReport{
			TrainID:   trainID,
			LineID:    routeID,
			CityID:    cityID,
			Latitude:  float64(pos.GetLatitude()),
			Longitude: float64(pos.GetLongitude()),
			Direction: dir,
			Source:    metro.SourceOnboard,
			Timestamp: ts,
		}
		if pos.Speed != nil {
			kmh := float64(pos.GetSpeed()) * 3.6
			r.Speed = &kmh
		}

		key := tracking.Key(r.LineID, r.Direction)
		if i, ok := seen[key]; ok {
			if r.Timestamp.After(reports[i].Timestamp) {
				reports[i] = r
			}
			continue
		}
		seen[key] = len(reports)
		reports = append(reports, r)
	}
	return reports
}
