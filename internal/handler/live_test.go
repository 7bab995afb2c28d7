package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metrotrack/internal/metro"
	"metrotrack/internal/tracking"
)

func redReport(trainID string, lat, lon float64) metro.TrainReport {
	return metro.TrainReport{
		TrainID:   trainID,
		LineID:    "red",
		CityID:    "delhi",
		Latitude:  lat,
		Longitude: lon,
		Direction: metro.Forward,
		Source:    metro.SourceOnboard,
	}
}

func TestReportTrain(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/live/trains/report", redReport("DL-101", 28.7208, 77.1071))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	got := decode[reportResponse](t, rec)
	assert.True(t, got.Success)
	require.NotNil(t, got.Train)
	assert.Equal(t, "red:forward", got.Train.Key)
	assert.Equal(t, "DL-101", got.Train.TrainID)
	assert.Equal(t, 1, got.Train.ReportCount)
	assert.InDelta(t, 0.3+0.7/3, got.Train.Confidence, 1e-9)
	assert.True(t, got.Train.Active)
	assert.Equal(t, 1, env.tracker.Count())
}

func TestReportTrain_Invalid(t *testing.T) {
	env := newTestEnv(t)

	noTrain := redReport("", 28.7208, 77.1071)
	badLat := redReport("DL-101", 91, 77.1071)
	badSource := redReport("DL-101", 28.7208, 77.1071)
	badSource.Source = "satellite"
	badDir := redReport("DL-101", 28.7208, 77.1071)
	badDir.Direction = "up"
	future := redReport("DL-101", 28.7208, 77.1071)
	future.Timestamp = env.clock.Now().Add(time.Hour)

	for name, rep := range map[string]metro.TrainReport{
		"missing train":  noTrain,
		"latitude":       badLat,
		"unknown source": badSource,
		"direction":      badDir,
		"future":         future,
	} {
		t.Run(name, func(t *testing.T) {
			rec := env.do(t, "POST", "/api/live/trains/report", rep)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
	assert.Equal(t, 0, env.tracker.Count())
}

func TestReportTrain_ImplausibleMove(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/live/trains/report", redReport("DL-101", 28.7208, 77.1071))
	require.Equal(t, http.StatusAccepted, rec.Code)

	// Ashok Park is about 6 km away
	env.clock.Advance(10 * time.Second)
	rec = env.do(t, "POST", "/api/live/trains/report", redReport("DL-101", 28.6700, 77.1550))
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	// Rohini West, about 1 km in 70 s
	env.clock.Advance(60 * time.Second)
	rec = env.do(t, "POST", "/api/live/trains/report", redReport("DL-101", 28.7149, 77.1157))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, 2, decode[reportResponse](t, rec).Train.ReportCount)

	// a different train id on the same line replaces the aggregate unchecked
	env.clock.Advance(time.Second)
	rec = env.do(t, "POST", "/api/live/trains/report", redReport("DL-202", 28.6700, 77.1550))
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
}

func TestListTrains(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.tracker.Ingest(redReport("DL-101", 28.7208, 77.1071))
	require.NoError(t, err)
	mumbai := redReport("MU-1", 19.1197, 72.8464)
	mumbai.LineID, mumbai.CityID = "m1", "mumbai"
	_, err = env.tracker.Ingest(mumbai)
	require.NoError(t, err)

	tests := []struct {
		query string
		want  int
	}{
		{"", 2},
		{"?lineId=red", 1},
		{"?cityId=mumbai", 1},
		{"?lineId=yellow", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := env.do(t, "GET", "/api/live/trains"+tt.query, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			got := decode[trainsResponse](t, rec)
			assert.Equal(t, tt.want, got.Count)
			assert.Len(t, got.Trains, tt.want)
			assert.True(t, got.ServerTime.Equal(env.clock.Now()))
		})
	}
}

func TestTrainDetail(t *testing.T) {
	env := newTestEnv(t)

	// just past Rithala towards Rohini West
	_, err := env.tracker.Ingest(redReport("DL-101", 28.7206, 77.1074))
	require.NoError(t, err)

	rec := env.do(t, "GET", "/api/live/trains/DL-101", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[trainDetail](t, rec)
	assert.Equal(t, "red:forward", got.Key)
	require.NotNil(t, got.NextStation)
	assert.Equal(t, "rithala", got.NextStation.StationID)
	assert.Equal(t, tracking.DefaultSpeedKMH, got.NextStation.SpeedKMH)
	assert.Greater(t, got.NextStation.DistanceMeters, 0.0)

	rec = env.do(t, "GET", "/api/live/trains/DL-999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrainDetail_UsesSegmentSpeeds(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.tracker.Ingest(redReport("DL-101", 28.7206, 77.1074))
	require.NoError(t, err)

	rec := env.do(t, "POST", "/api/live/segment-speeds", segmentSpeedRequest{
		LineID: "red", FromStationID: "rithala", ToStationID: "rohini-west", SpeedKMH: 60,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, "GET", "/api/live/trains/DL-101", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[trainDetail](t, rec)
	require.NotNil(t, got.NextStation)
	assert.Equal(t, 60.0, got.NextStation.SpeedKMH)
}

func TestLineTrain(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.tracker.Ingest(redReport("DL-101", 28.7208, 77.1071))
	require.NoError(t, err)

	rec := env.do(t, "GET", "/api/live/lines/red/direction/forward", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[lineTrainResponse](t, rec)
	require.NotNil(t, got.Train)
	assert.Equal(t, "DL-101", got.Train.TrainID)

	rec = env.do(t, "GET", "/api/live/lines/red/direction/backward", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"train":null}`, rec.Body.String())

	rec = env.do(t, "GET", "/api/live/lines/red/direction/sideways", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLineTrain_StaleIsInactive(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.tracker.Ingest(redReport("DL-101", 28.7208, 77.1071))
	require.NoError(t, err)

	env.clock.Advance(tracking.DefaultStaleAfter + time.Second)
	rec := env.do(t, "GET", "/api/live/lines/red/direction/forward", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[lineTrainResponse](t, rec)
	require.NotNil(t, got.Train)
	assert.False(t, got.Train.Active)
}

func TestRecordSegmentSpeed(t *testing.T) {
	env := newTestEnv(t)

	req := segmentSpeedRequest{LineID: "red", FromStationID: "rithala", ToStationID: "rohini-west", SpeedKMH: 45}
	rec := env.do(t, "POST", "/api/live/segment-speeds", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[tracking.SegmentSpeed](t, rec)
	assert.Equal(t, 45.0, got.AvgSpeed)
	assert.Equal(t, 1, got.SampleCount)

	req.SpeedKMH = 55
	rec = env.do(t, "POST", "/api/live/segment-speeds", req)
	require.Equal(t, http.StatusOK, rec.Code)
	got = decode[tracking.SegmentSpeed](t, rec)
	assert.Equal(t, 50.0, got.AvgSpeed)
	assert.Equal(t, 2, got.SampleCount)

	req.SpeedKMH = 120
	rec = env.do(t, "POST", "/api/live/segment-speeds", req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "POST", "/api/live/segment-speeds", segmentSpeedRequest{LineID: "red", SpeedKMH: 30})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
