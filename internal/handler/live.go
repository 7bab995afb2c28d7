package handler

import (
	"net/http"
	"time"

	"metrotrack/internal/metro"
	"metrotrack/internal/tracking"
)

type reportResponse struct {
	Success bool            `json:"success"`
	Train   *tracking.State `json:"train"`
}

// ReportTrain ingests a live location report.
func (h *Handler) ReportTrain(w http.ResponseWriter, r *http.Request) {
	var rep metro.TrainReport
	if err := decodeJSON(w, r, &rep); err != nil {
		h.fail(w, r, err)
		return
	}
	st, err := h.tracker.Ingest(rep)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, reportResponse{Success: true, Train: st})
}

type trainsResponse struct {
	Trains     []tracking.State `json:"trains"`
	Count      int              `json:"count"`
	ServerTime time.Time        `json:"serverTime"`
}

// ListTrains returns live trains, optionally filtered by ?lineId= and ?cityId=.
func (h *Handler) ListTrains(w http.ResponseWriter, r *http.Request) {
	trains := h.tracker.Trains(r.URL.Query().Get("lineId"), r.URL.Query().Get("cityId"))
	respondJSON(w, http.StatusOK, trainsResponse{
		Trains:     trains,
		Count:      len(trains),
		ServerTime: h.now(),
	})
}

type trainDetail struct {
	tracking.State
	NextStation *tracking.StationETA `json:"nextStation,omitempty"`
}

// TrainDetail returns one train by id with its ETA to the nearest station.
func (h *Handler) TrainDetail(w http.ResponseWriter, r *http.Request) {
	st, ok := h.tracker.TrainByID(r.PathValue("trainId"))
	if !ok {
		respondError(w, http.StatusNotFound, "train not found")
		return
	}
	detail, err := h.withETA(r, st)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}

type lineTrainResponse struct {
	Train *trainDetail `json:"train"`
}

// LineTrain returns the train tracked for a line and direction, or null.
func (h *Handler) LineTrain(w http.ResponseWriter, r *http.Request) {
	dir, err := metro.ParseDirection(r.PathValue("direction"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	st, ok := h.tracker.Train(r.PathValue("lineId"), dir)
	if !ok {
		respondJSON(w, http.StatusOK, lineTrainResponse{})
		return
	}
	detail, err := h.withETA(r, st)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, lineTrainResponse{Train: detail})
}

func (h *Handler) withETA(r *http.Request, st tracking.State) (*trainDetail, error) {
	stations, err := h.db.StationsForLine(r.Context(), st.LineID)
	if err != nil {
		return nil, err
	}
	d := &trainDetail{State: st}
	if eta, ok := h.tracker.NextStationETA(st, stations); ok {
		d.NextStation = &eta
	}
	return d, nil
}

type segmentSpeedRequest struct {
	LineID        string  `json:"lineId" validate:"required"`
	FromStationID string  `json:"fromStationId" validate:"required"`
	ToStationID   string  `json:"toStationId" validate:"required"`
	SpeedKMH      float64 `json:"speedKmh"`
}

// RecordSegmentSpeed folds an observed speed into a segment's rolling average.
func (h *Handler) RecordSegmentSpeed(w http.ResponseWriter, r *http.Request) {
	var req segmentSpeedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := metro.Validate(req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.tracker.RecordSegmentSpeed(req.LineID, req.FromStationID, req.ToStationID, req.SpeedKMH); err != nil {
		h.fail(w, r, err)
		return
	}
	sp, _ := h.tracker.SegmentSpeed(req.LineID, req.FromStationID, req.ToStationID)
	respondJSON(w, http.StatusOK, sp)
}
