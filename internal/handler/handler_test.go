package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metrotrack/internal/cache"
	"metrotrack/internal/config"
	"metrotrack/internal/hub"
	"metrotrack/internal/metro"
	"metrotrack/internal/realtime"
	"metrotrack/internal/sighting"
	"metrotrack/internal/storage"
	"metrotrack/internal/tracking"
	"metrotrack/internal/transit"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	h       *Handler
	db      *storage.DB
	tracker *tracking.Tracker
	hub     *hub.Hub
	clock   *testClock
	mux     *http.ServeMux
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := storage.Open(filepath.Join(t.TempDir(), "metro.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	seed(t, db)

	clock := &testClock{t: time.Now().Truncate(time.Second)}
	wsHub := hub.New(logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go wsHub.Run(ctx)

	tracker := tracking.New(tracking.Options{Now: clock.Now, Broadcaster: wsHub}, logger)
	router := transit.NewRouter(db, cache.NewMemory(time.Minute), transit.DefaultTransferPenalty, logger)
	estimator := sighting.NewEstimator(db, db, logger)
	stats := realtime.NewStats()

	h := New(db, router, tracker, estimator, wsHub, stats, config.Load(), logger)
	h.now = clock.Now

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/routes", h.FindRoute)
	mux.HandleFunc("GET /api/stations", h.CityStations)
	mux.HandleFunc("GET /api/stations/nearby", h.NearbyStations)
	mux.HandleFunc("GET /api/stations/{id}", h.StationDetail)
	mux.HandleFunc("GET /api/lines", h.CityLines)
	mux.HandleFunc("POST /api/live/trains/report", h.ReportTrain)
	mux.HandleFunc("GET /api/live/trains", h.ListTrains)
	mux.HandleFunc("GET /api/live/trains/{trainId}", h.TrainDetail)
	mux.HandleFunc("GET /api/live/lines/{lineId}/direction/{direction}", h.LineTrain)
	mux.HandleFunc("POST /api/live/segment-speeds", h.RecordSegmentSpeed)
	mux.HandleFunc("POST /api/train-sightings", h.ReportSighting)
	mux.HandleFunc("GET /api/train-sightings/recent", h.RecentSightings)
	mux.HandleFunc("GET /api/train-positions/{lineId}", h.LinePositions)
	mux.HandleFunc("POST /api/train-positions/route", h.RoutePosition)
	mux.HandleFunc("POST /api/schedule/project", h.ProjectPosition)
	mux.HandleFunc("GET /api/schedule/next-departure", h.NextDeparture)
	mux.HandleFunc("GET /gtfs-rt/vehicle-positions", h.VehiclePositions)
	mux.HandleFunc("GET /ws", h.ServeWS)
	mux.HandleFunc("GET /status", h.Status)
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)

	return &testEnv{h: h, db: db, tracker: tracker, hub: wsHub, clock: clock, mux: mux}
}

// seed loads a red line (rithala, rohini-west, rohini-east) and a yellow
// branch to ashok-park in Delhi, plus one Mumbai station.
func seed(t *testing.T, db *storage.DB) {
	t.Helper()
	stmts := []string{
		`INSERT INTO cities (id, name, display_name, timezone) VALUES
			('delhi', 'delhi', 'Delhi', 'Asia/Kolkata'),
			('mumbai', 'mumbai', 'Mumbai', 'Asia/Kolkata')`,
		`INSERT INTO metro_lines (id, city_id, name, color, display_order) VALUES
			('red', 'delhi', 'Red Line', '#e53935', 1),
			('yellow', 'delhi', 'Yellow Line', '#fdd835', 2),
			('m1', 'mumbai', 'Line 1', '#1565c0', 1)`,
		`INSERT INTO metro_stations (id, city_id, name, latitude, longitude, is_interchange) VALUES
			('rithala', 'delhi', 'Rithala', 28.7208, 77.1071, 0),
			('rohini-west', 'delhi', 'Rohini West', 28.7149, 77.1157, 0),
			('rohini-east', 'delhi', 'Rohini East', 28.7075, 77.1256, 1),
			('ashok-park', 'delhi', 'Ashok Park', 28.6700, 77.1550, 0),
			('andheri', 'mumbai', 'Andheri', 19.1197, 72.8464, 0)`,
		`INSERT INTO line_stations (line_id, station_id, sequence_number) VALUES
			('red', 'rithala', 1), ('red', 'rohini-west', 2), ('red', 'rohini-east', 3),
			('yellow', 'rohini-east', 1), ('yellow', 'ashok-park', 2)`,
		`INSERT INTO station_connections VALUES
			('rithala', 'rohini-west', 'red', 120, 30),
			('rohini-west', 'rithala', 'red', 120, 30),
			('rohini-west', 'rohini-east', 'red', 90, 20),
			('rohini-east', 'rohini-west', 'red', 90, 20),
			('rohini-east', 'ashok-park', 'yellow', 200, 30),
			('ashok-park', 'rohini-east', 'yellow', 200, 30)`,
		`INSERT INTO train_schedules VALUES ('red', 'forward', '06:00:00', '23:00:00', 3, 8)`,
		`INSERT INTO peak_hours VALUES
			('red', 'forward', '08:00:00', '10:00:00'),
			('red', 'forward', '17:00:00', '20:00:00')`,
	}
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err, s)
	}
	require.NoError(t, db.RebuildStationIndex(context.Background()))
}

func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, rd)
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestFail_StatusMapping(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", fmt.Errorf("route: %w", metro.Invalid("direction", "bad")), http.StatusBadRequest},
		{"cross city", metro.ErrCrossCity, http.StatusBadRequest},
		{"not found", fmt.Errorf("station x: %w", metro.ErrNotFound), http.StatusNotFound},
		{"internal", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			env.h.fail(rec, httptest.NewRequest("GET", "/x", nil), tt.err)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	env.h.fail(rec, httptest.NewRequest("GET", "/x", nil), errors.New("secret detail"))
	assert.NotContains(t, rec.Body.String(), "secret detail")
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "GET", "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = env.do(t, "GET", "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	ready := decode[readyResponse](t, rec)
	assert.True(t, ready.Ready)
	assert.Equal(t, 0, ready.LiveTrains)
}
