package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"metrotrack/internal/geo"
	"metrotrack/internal/metro"
	"metrotrack/internal/schedule"
)

const stationColumns = `s.id, s.city_id, s.name, s.latitude, s.longitude, s.is_interchange`

type scanner interface {
	Scan(dest ...any) error
}

func scanStation(row scanner, extra ...any) (metro.Station, error) {
	var s metro.Station
	dest := append([]any{&s.ID, &s.CityID, &s.Name, &s.Latitude, &s.Longitude, &s.IsInterchange}, extra...)
	err := row.Scan(dest...)
	return s, err
}

// StationByID returns a station or an error wrapping metro.ErrNotFound.
func (db *DB) StationByID(ctx context.Context, id string) (metro.Station, error) {
	row := db.QueryRowContext(ctx, `SELECT `+stationColumns+` FROM metro_stations s WHERE s.id = ?`, id)
	s, err := scanStation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return metro.Station{}, fmt.Errorf("station %s: %w", id, metro.ErrNotFound)
	}
	if err != nil {
		return metro.Station{}, fmt.Errorf("station query: %w", err)
	}
	return s, nil
}

// StationsByCity returns all stations of a city ordered by name.
func (db *DB) StationsByCity(ctx context.Context, cityID string) ([]metro.Station, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+stationColumns+`
		FROM metro_stations s
		WHERE s.city_id = ?
		ORDER BY s.name`, cityID)
	if err != nil {
		return nil, fmt.Errorf("stations by city query: %w", err)
	}
	defer rows.Close()

	var stations []metro.Station
	for rows.Next() {
		s, err := scanStation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		stations = append(stations, s)
	}
	return stations, rows.Err()
}

// StationsForLine returns a line's stations in forward order.
func (db *DB) StationsForLine(ctx context.Context, lineID string) ([]metro.Station, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+stationColumns+`
		FROM line_stations ls
		JOIN metro_stations s ON s.id = ls.station_id
		WHERE ls.line_id = ?
		ORDER BY ls.sequence_number`, lineID)
	if err != nil {
		return nil, fmt.Errorf("stations for line query: %w", err)
	}
	defer rows.Close()

	var stations []metro.Station
	for rows.Next() {
		s, err := scanStation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		stations = append(stations, s)
	}
	return stations, rows.Err()
}

// NearbyStation is a station with its distance from a query point.
type NearbyStation struct {
	metro.Station
	DistanceMeters float64 `json:"distanceMeters"`
}

// NearbyStations finds stations within radiusMeters using the R-Tree index,
// refines distances with Haversine and returns the closest limit results.
func (db *DB) NearbyStations(ctx context.Context, lat, lon, radiusMeters float64, limit int) ([]NearbyStation, error) {
	latDeg, lonDeg := geo.BoundingBoxRadius(lat, radiusMeters)
	rows, err := db.QueryContext(ctx, `
		SELECT `+stationColumns+`
		FROM metro_stations_rtree AS r
		JOIN metro_stations AS s ON s.rowid = r.id
		WHERE r.min_lat >= ? AND r.max_lat <= ?
		  AND r.min_lon >= ? AND r.max_lon <= ?`,
		lat-latDeg, lat+latDeg,
		lon-lonDeg, lon+lonDeg,
	)
	if err != nil {
		return nil, fmt.Errorf("nearby stations query: %w", err)
	}
	defer rows.Close()

	var out []NearbyStation
	for rows.Next() {
		s, err := scanStation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		d := geo.Haversine(lat, lon, s.Latitude, s.Longitude)
		if d <= radiusMeters {
			out = append(out, NearbyStation{Station: s, DistanceMeters: d})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].DistanceMeters < out[j].DistanceMeters })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CityByID returns a city or an error wrapping metro.ErrNotFound.
func (db *DB) CityByID(ctx context.Context, id string) (metro.City, error) {
	var c metro.City
	err := db.QueryRowContext(ctx, `
		SELECT id, name, display_name, timezone
		FROM cities WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.DisplayName, &c.Timezone)
	if errors.Is(err, sql.ErrNoRows) {
		return metro.City{}, fmt.Errorf("city %s: %w", id, metro.ErrNotFound)
	}
	if err != nil {
		return metro.City{}, fmt.Errorf("city query: %w", err)
	}
	return c, nil
}

// LineByID returns a line or an error wrapping metro.ErrNotFound.
func (db *DB) LineByID(ctx context.Context, id string) (metro.Line, error) {
	var l metro.Line
	err := db.QueryRowContext(ctx, `
		SELECT id, city_id, name, color, display_order
		FROM metro_lines WHERE id = ?`, id).
		Scan(&l.ID, &l.CityID, &l.Name, &l.Color, &l.DisplayOrder)
	if errors.Is(err, sql.ErrNoRows) {
		return metro.Line{}, fmt.Errorf("line %s: %w", id, metro.ErrNotFound)
	}
	if err != nil {
		return metro.Line{}, fmt.Errorf("line query: %w", err)
	}
	return l, nil
}

// LinesByCity returns a city's lines in display order.
func (db *DB) LinesByCity(ctx context.Context, cityID string) ([]metro.Line, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, city_id, name, color, display_order
		FROM metro_lines
		WHERE city_id = ?
		ORDER BY display_order, name`, cityID)
	if err != nil {
		return nil, fmt.Errorf("lines by city query: %w", err)
	}
	defer rows.Close()

	var lines []metro.Line
	for rows.Next() {
		var l metro.Line
		if err := rows.Scan(&l.ID, &l.CityID, &l.Name, &l.Color, &l.DisplayOrder); err != nil {
			return nil, fmt.Errorf("scan line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// Connections returns every directed station connection.
func (db *DB) Connections(ctx context.Context) ([]metro.Connection, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT from_station_id, to_station_id, line_id, travel_time_seconds, stop_time_seconds
		FROM station_connections
		ORDER BY line_id, from_station_id, to_station_id`)
	if err != nil {
		return nil, fmt.Errorf("connections query: %w", err)
	}
	defer rows.Close()

	var conns []metro.Connection
	for rows.Next() {
		var c metro.Connection
		if err := rows.Scan(&c.FromStationID, &c.ToStationID, &c.LineID,
			&c.TravelTimeSeconds, &c.StopTimeSeconds); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

// DirectionBetween reports the direction of travel from one station of a
// line to another, from their sequence numbers.
func (db *DB) DirectionBetween(ctx context.Context, lineID, fromID, toID string) (metro.Direction, error) {
	var fromSeq, toSeq int
	err := db.QueryRowContext(ctx, `
		SELECT a.sequence_number, b.sequence_number
		FROM line_stations a
		JOIN line_stations b ON b.line_id = a.line_id
		WHERE a.line_id = ? AND a.station_id = ? AND b.station_id = ?`,
		lineID, fromID, toID).Scan(&fromSeq, &toSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("stations %s, %s on line %s: %w", fromID, toID, lineID, metro.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("direction query: %w", err)
	}
	if toSeq > fromSeq {
		return metro.Forward, nil
	}
	return metro.Backward, nil
}

// NextStation returns the adjacent station reached from stationID on lineID
// in direction dir: the closest higher sequence number going forward, lower
// going backward. It returns nil at the end of the line.
func (db *DB) NextStation(ctx context.Context, lineID, stationID string, dir metro.Direction) (*metro.NextStop, error) {
	cmp, order := ">", "ASC"
	if dir == metro.Backward {
		cmp, order = "<", "DESC"
	}

	row := db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT `+stationColumns+`, c.travel_time_seconds, c.stop_time_seconds
		FROM line_stations cur
		JOIN line_stations nxt ON nxt.line_id = cur.line_id
		JOIN station_connections c
		  ON c.from_station_id = cur.station_id
		 AND c.to_station_id = nxt.station_id
		 AND c.line_id = cur.line_id
		JOIN metro_stations s ON s.id = nxt.station_id
		WHERE cur.line_id = ? AND cur.station_id = ?
		  AND nxt.sequence_number %s cur.sequence_number
		ORDER BY nxt.sequence_number %s
		LIMIT 1`, cmp, order),
		lineID, stationID)

	var ns metro.NextStop
	s, err := scanStation(row, &ns.TravelTimeSeconds, &ns.StopTimeSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next station query: %w", err)
	}
	ns.Station = s
	return &ns, nil
}

// LineSchedule returns the service frequency of a line in one direction,
// or nil when the line has no timetable.
func (db *DB) LineSchedule(ctx context.Context, lineID string, dir metro.Direction) (*schedule.Frequency, error) {
	var first, last string
	var f schedule.Frequency
	err := db.QueryRowContext(ctx, `
		SELECT first_train, last_train, peak_frequency_minutes, off_peak_frequency_minutes
		FROM train_schedules
		WHERE line_id = ? AND direction = ?`, lineID, string(dir)).
		Scan(&first, &last, &f.PeakMinutes, &f.OffPeakMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("schedule query: %w", err)
	}
	if f.FirstTrain, err = schedule.ParseClock(first); err != nil {
		return nil, fmt.Errorf("schedule %s first train: %w", lineID, err)
	}
	if f.LastTrain, err = schedule.ParseClock(last); err != nil {
		return nil, fmt.Errorf("schedule %s last train: %w", lineID, err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT start_time, end_time
		FROM peak_hours
		WHERE line_id = ? AND direction = ?
		ORDER BY start_time`, lineID, string(dir))
	if err != nil {
		return nil, fmt.Errorf("peak hours query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var start, end string
		if err := rows.Scan(&start, &end); err != nil {
			return nil, fmt.Errorf("scan peak hours: %w", err)
		}
		var w schedule.PeakWindow
		if w.Start, err = schedule.ParseClock(start); err != nil {
			return nil, fmt.Errorf("peak window start: %w", err)
		}
		if w.End, err = schedule.ParseClock(end); err != nil {
			return nil, fmt.Errorf("peak window end: %w", err)
		}
		f.PeakHours = append(f.PeakHours, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &f, nil
}

// InsertSighting appends a sighting and returns its ID.
func (db *DB) InsertSighting(ctx context.Context, s *metro.TrainSighting) (int64, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO train_sightings
			(line_id, station_id, direction, timestamp, user_id,
			 user_latitude, user_longitude, confidence_score, is_verified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.LineID, s.StationID, string(s.Direction), s.Timestamp.Unix(), nullString(s.UserID),
		s.UserLatitude, s.UserLongitude, s.ConfidenceScore, s.Verified)
	if err != nil {
		return 0, fmt.Errorf("insert sighting: %w", err)
	}
	return res.LastInsertId()
}

const sightingColumns = `t.id, t.line_id, t.station_id, t.direction, t.timestamp, t.user_id,
	t.user_latitude, t.user_longitude, t.confidence_score, t.is_verified`

func scanSighting(row scanner, extra ...any) (metro.TrainSighting, error) {
	var (
		s      metro.TrainSighting
		dir    string
		ts     int64
		userID sql.NullString
		lat    sql.NullFloat64
		lon    sql.NullFloat64
		score  sql.NullFloat64
	)
	dest := append([]any{&s.ID, &s.LineID, &s.StationID, &dir, &ts, &userID,
		&lat, &lon, &score, &s.Verified}, extra...)
	if err := row.Scan(dest...); err != nil {
		return s, err
	}
	s.Direction = metro.Direction(dir)
	s.Timestamp = time.Unix(ts, 0)
	s.UserID = userID.String
	if lat.Valid {
		s.UserLatitude = &lat.Float64
	}
	if lon.Valid {
		s.UserLongitude = &lon.Float64
	}
	s.ConfidenceScore = 1.0
	if score.Valid {
		s.ConfidenceScore = score.Float64
	}
	return s, nil
}

// LatestSighting returns the newest sighting for a line and direction at or
// after since, or nil if there is none.
func (db *DB) LatestSighting(ctx context.Context, lineID string, dir metro.Direction, since time.Time) (*metro.TrainSighting, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+sightingColumns+`
		FROM train_sightings t
		WHERE t.line_id = ? AND t.direction = ? AND t.timestamp >= ?
		ORDER BY t.timestamp DESC, t.id DESC
		LIMIT 1`, lineID, string(dir), since.Unix())
	s, err := scanSighting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest sighting query: %w", err)
	}
	return &s, nil
}

// RecentSighting is a sighting joined with its station and line names.
type RecentSighting struct {
	metro.TrainSighting
	StationName string `json:"stationName"`
	LineName    string `json:"lineName"`
}

// RecentSightings returns sightings at or after since, newest first,
// optionally restricted to one city.
func (db *DB) RecentSightings(ctx context.Context, cityID string, since time.Time, limit int) ([]RecentSighting, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+sightingColumns+`, s.name, l.name
		FROM train_sightings t
		JOIN metro_stations s ON s.id = t.station_id
		JOIN metro_lines l ON l.id = t.line_id
		WHERE t.timestamp >= ?
		  AND (? = '' OR l.city_id = ?)
		ORDER BY t.timestamp DESC, t.id DESC
		LIMIT ?`, since.Unix(), cityID, cityID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent sightings query: %w", err)
	}
	defer rows.Close()

	var out []RecentSighting
	for rows.Next() {
		var r RecentSighting
		s, err := scanSighting(rows, &r.StationName, &r.LineName)
		if err != nil {
			return nil, fmt.Errorf("scan sighting: %w", err)
		}
		r.TrainSighting = s
		out = append(out, r)
	}
	return out, rows.Err()
}

// HasData returns true if the catalog has any connections loaded.
func (db *DB) HasData(ctx context.Context) bool {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM station_connections`).Scan(&count)
	return err == nil && count > 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
