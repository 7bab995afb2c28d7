package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps a SQLite database holding the metro catalog and sightings.
type DB struct {
	*sql.DB
	logger *slog.Logger
}

// Open creates or opens a SQLite database at the given path, applies
// migrations and rebuilds the station spatial index.
func Open(path string, logger *slog.Logger) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{DB: sqlDB, logger: logger.With("component", "storage")}

	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	if err := db.RebuildStationIndex(context.Background()); err != nil {
		sqlDB.Close()
		return nil, err
	}

	db.logger.Info("database opened", "path", path)
	return db, nil
}

// RebuildStationIndex repopulates the R-Tree index from metro_stations.
// Call it after loading stations.
func (db *DB) RebuildStationIndex(ctx context.Context) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rtree rebuild: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM metro_stations_rtree`); err != nil {
		return fmt.Errorf("clear rtree: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO metro_stations_rtree(id, min_lat, max_lat, min_lon, max_lon)
		 SELECT rowid, latitude, latitude, longitude, longitude FROM metro_stations`); err != nil {
		return fmt.Errorf("populate rtree: %w", err)
	}
	return tx.Commit()
}
