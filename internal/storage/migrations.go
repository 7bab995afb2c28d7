package storage

import "fmt"

// migrate creates the metro catalog and sighting schema if it doesn't exist.
func (db *DB) migrate() error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	db.logger.Info("database migrations applied", "statements", len(migrations))
	return nil
}

var migrations = []string{
	// Cities
	`CREATE TABLE IF NOT EXISTS cities (
		id           TEXT PRIMARY KEY,
		name         TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		timezone     TEXT NOT NULL DEFAULT 'Asia/Kolkata'
	)`,

	// Lines
	`CREATE TABLE IF NOT EXISTS metro_lines (
		id            TEXT PRIMARY KEY,
		city_id       TEXT NOT NULL REFERENCES cities(id),
		name          TEXT NOT NULL,
		color         TEXT NOT NULL DEFAULT '',
		display_order INTEGER NOT NULL DEFAULT 0
	)`,

	// Stations
	`CREATE TABLE IF NOT EXISTS metro_stations (
		id             TEXT PRIMARY KEY,
		city_id        TEXT NOT NULL REFERENCES cities(id),
		name           TEXT NOT NULL,
		latitude       REAL NOT NULL,
		longitude      REAL NOT NULL,
		is_interchange INTEGER NOT NULL DEFAULT 0
	)`,

	// Station order along each line
	`CREATE TABLE IF NOT EXISTS line_stations (
		line_id         TEXT NOT NULL REFERENCES metro_lines(id),
		station_id      TEXT NOT NULL REFERENCES metro_stations(id),
		sequence_number INTEGER NOT NULL,
		PRIMARY KEY (line_id, station_id)
	)`,

	// Directed connections; each direction of travel is its own row.
	`CREATE TABLE IF NOT EXISTS station_connections (
		from_station_id     TEXT NOT NULL REFERENCES metro_stations(id),
		to_station_id       TEXT NOT NULL REFERENCES metro_stations(id),
		line_id             TEXT NOT NULL REFERENCES metro_lines(id),
		travel_time_seconds INTEGER NOT NULL,
		stop_time_seconds   INTEGER NOT NULL DEFAULT 30,
		PRIMARY KEY (from_station_id, to_station_id, line_id)
	)`,

	// Service frequency per line and direction
	`CREATE TABLE IF NOT EXISTS train_schedules (
		line_id                    TEXT NOT NULL REFERENCES metro_lines(id),
		direction                  TEXT NOT NULL CHECK (direction IN ('forward', 'backward')),
		first_train                TEXT NOT NULL,
		last_train                 TEXT NOT NULL,
		peak_frequency_minutes     INTEGER NOT NULL,
		off_peak_frequency_minutes INTEGER NOT NULL,
		PRIMARY KEY (line_id, direction)
	)`,

	`CREATE TABLE IF NOT EXISTS peak_hours (
		line_id    TEXT NOT NULL,
		direction  TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time   TEXT NOT NULL,
		PRIMARY KEY (line_id, direction, start_time),
		FOREIGN KEY (line_id, direction) REFERENCES train_schedules(line_id, direction)
	)`,

	// Crowd sightings, append-only. timestamp is unix seconds.
	`CREATE TABLE IF NOT EXISTS train_sightings (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		line_id          TEXT NOT NULL REFERENCES metro_lines(id),
		station_id       TEXT NOT NULL REFERENCES metro_stations(id),
		direction        TEXT NOT NULL CHECK (direction IN ('forward', 'backward')),
		timestamp        INTEGER NOT NULL,
		user_id          TEXT,
		user_latitude    REAL,
		user_longitude   REAL,
		confidence_score REAL,
		is_verified      INTEGER NOT NULL DEFAULT 0
	)`,

	// R-Tree spatial index on stations for nearby queries
	`CREATE VIRTUAL TABLE IF NOT EXISTS metro_stations_rtree USING rtree(
		id,
		min_lat, max_lat,
		min_lon, max_lon
	)`,

	// Indexes for common query patterns
	`CREATE INDEX IF NOT EXISTS idx_stations_city ON metro_stations(city_id)`,
	`CREATE INDEX IF NOT EXISTS idx_lines_city ON metro_lines(city_id)`,
	`CREATE INDEX IF NOT EXISTS idx_line_stations_seq ON line_stations(line_id, sequence_number)`,
	`CREATE INDEX IF NOT EXISTS idx_connections_from ON station_connections(from_station_id, line_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sightings_latest ON train_sightings(line_id, direction, timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_sightings_timestamp ON train_sightings(timestamp)`,
}
