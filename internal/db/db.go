package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"multimodal-router/internal/geo"
	"multimodal-router/internal/gtfs"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// StationStore reads GTFS parent stations from an imported feed database.
type StationStore struct {
	db *sql.DB
}

func NewStationStore(db *sql.DB) *StationStore {
	return &StationStore{db: db}
}

// StationsIn returns parent stations inside b.
func (s *StationStore) StationsIn(ctx context.Context, b geo.Bounds) ([]gtfs.Station, error) {
	return FetchStations(ctx, s.db, b)
}

// FetchStations returns parent stations (location_type 1) inside b.
func FetchStations(ctx context.Context, db *sql.DB, b geo.Bounds) ([]gtfs.Station, error) {
	// Prefer stop_lat/stop_lon, but support PostGIS stop_loc geography as fallback
	latlonExists, err := hasColumns(ctx, db, "public", "stops", "stop_lat", "stop_lon")
	if err != nil {
		return nil, fmt.Errorf("introspect stops columns: %w", err)
	}
	var q string
	if latlonExists["stop_lat"] && latlonExists["stop_lon"] {
		q = `SELECT stop_id, COALESCE(stop_name, ''), stop_lat, stop_lon
             FROM stops
             WHERE location_type::text IN ('1', 'station')
               AND stop_lat BETWEEN $1 AND $2
               AND stop_lon BETWEEN $3 AND $4
             ORDER BY stop_id`
	} else {
		locExists, err := hasColumns(ctx, db, "public", "stops", "stop_loc")
		if err != nil {
			return nil, fmt.Errorf("introspect stops stop_loc: %w", err)
		}
		if !locExists["stop_loc"] {
			return nil, fmt.Errorf("stops table missing expected columns (stop_lat/lon or stop_loc)")
		}
		q = `SELECT stop_id, COALESCE(stop_name, ''), lat, lon
             FROM (
               SELECT stop_id, stop_name, location_type,
                      ST_Y(stop_loc::geometry) AS lat,
                      ST_X(stop_loc::geometry) AS lon
               FROM stops
             ) s
             WHERE location_type::text IN ('1', 'station')
               AND lat BETWEEN $1 AND $2
               AND lon BETWEEN $3 AND $4
             ORDER BY stop_id`
	}
	rows, err := db.QueryContext(ctx, q, b.MinLat, b.MaxLat, b.MinLon, b.MaxLon)
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	defer rows.Close()

	var stations []gtfs.Station
	for rows.Next() {
		var s gtfs.Station
		if err := rows.Scan(&s.StopID, &s.Name, &s.Lat, &s.Lon); err != nil {
			return nil, err
		}
		stations = append(stations, s)
	}
	return stations, rows.Err()
}

// hasColumns returns a map of requested column names to existence for the given table.
func hasColumns(ctx context.Context, db *sql.DB, schema, table string, cols ...string) (map[string]bool, error) {
	res := make(map[string]bool, len(cols))
	if len(cols) == 0 {
		return res, nil
	}
	// Initialize to false
	for _, c := range cols {
		res[c] = false
	}
	q := `SELECT column_name FROM information_schema.columns
          WHERE table_schema = $1 AND table_name = $2 AND column_name = ANY($3)`
	rows, err := db.QueryContext(ctx, q, schema, table, cols)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res[name] = true
	}
	return res, rows.Err()
}
