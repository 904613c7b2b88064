package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lox/firetrends/internal/models"
)

const dateFormat = "2006-01-02"

type Store struct {
	db  *sql.DB
	loc *time.Location
}

func New(db *sql.DB, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{db: db, loc: loc}
}

// Open opens a sqlite database at path with the pragmas the job relies on.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return db, nil
}

func (s *Store) UpsertStation(ctx context.Context, st models.Station, active bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stations (station_id, name, active)
		VALUES (?, ?, ?)
		ON CONFLICT(station_id) DO UPDATE SET
			name = excluded.name,
			active = excluded.active
	`, st.StationID, st.Name, active)
	return err
}

// ActiveStations returns the stations to process, ordered by ID.
func (s *Store) ActiveStations(ctx context.Context) ([]models.Station, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT station_id, name FROM stations WHERE active = TRUE ORDER BY station_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []models.Station
	for rows.Next() {
		var st models.Station
		var name sql.NullString
		if err := rows.Scan(&st.StationID, &name); err != nil {
			return nil, err
		}
		st.Name = name.String
		stations = append(stations, st)
	}
	return stations, rows.Err()
}

// ReplaceAssociations swaps the whole station-to-zone mapping in one transaction.
func (s *Store) ReplaceAssociations(ctx context.Context, assocs []models.Association) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM station_zones`); err != nil {
		return fmt.Errorf("clear associations: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO station_zones (station_id, station_name, zone_id)
		VALUES (?, ?, ?)
		ON CONFLICT(station_id) DO UPDATE SET
			station_name = excluded.station_name,
			zone_id = excluded.zone_id
	`)
	if err != nil {
		return fmt.Errorf("prepare association insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range assocs {
		if _, err := stmt.ExecContext(ctx, a.StationID, a.StationName, a.ZoneID); err != nil {
			return fmt.Errorf("insert association %s: %w", a.StationID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) Associations(ctx context.Context) ([]models.Association, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT station_id, station_name, zone_id FROM station_zones ORDER BY station_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assocs []models.Association
	for rows.Next() {
		var a models.Association
		var name sql.NullString
		if err := rows.Scan(&a.StationID, &name, &a.ZoneID); err != nil {
			return nil, err
		}
		a.StationName = name.String
		assocs = append(assocs, a)
	}
	return assocs, rows.Err()
}

// ReplaceBins replaces the percentile table for one station and index.
func (s *Store) ReplaceBins(ctx context.Context, stationID string, idx models.Index, bins []models.Bin) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM percentile_bins WHERE station_id = ? AND component = ?`, stationID, string(idx)); err != nil {
		return fmt.Errorf("clear bins: %w", err)
	}
	for _, b := range bins {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO percentile_bins (station_id, component, greater_than_equal_to, less_than, percentile)
			VALUES (?, ?, ?, ?, ?)
		`, stationID, string(idx), b.Lower, b.Upper, b.Percentile); err != nil {
			return fmt.Errorf("insert bin %s/%s [%v,%v): %w", stationID, idx, b.Lower, b.Upper, err)
		}
	}
	return tx.Commit()
}

// BinTables loads every station's percentile tables sorted by lower bound.
func (s *Store) BinTables(ctx context.Context) (models.BinTables, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT station_id, component, greater_than_equal_to, less_than, percentile
		FROM percentile_bins
		ORDER BY station_id, component, greater_than_equal_to
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := make(models.BinTables)
	for rows.Next() {
		var key models.BinKey
		var component string
		var b models.Bin
		if err := rows.Scan(&key.StationID, &component, &b.Lower, &b.Upper, &b.Percentile); err != nil {
			return nil, err
		}
		key.Index = models.Index(component)
		tables[key] = append(tables[key], b)
	}
	return tables, rows.Err()
}

// UpsertReadings caches feed readings, replacing older values for the same station and day.
func (s *Store) UpsertReadings(ctx context.Context, readings []models.Reading) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO nfdr_readings (station_id, summary_date, nfdr_type, fuel_model, erc, bi, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(station_id, summary_date) DO UPDATE SET
			nfdr_type = excluded.nfdr_type,
			fuel_model = excluded.fuel_model,
			erc = excluded.erc,
			bi = excluded.bi,
			fetched_at = excluded.fetched_at
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare reading insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range readings {
		if _, err := stmt.ExecContext(ctx, r.StationID, r.Date.Format(dateFormat), r.NFDRType, r.FuelModel, r.ERC, r.BI, now); err != nil {
			return 0, fmt.Errorf("insert reading %s %s: %w", r.StationID, r.Date.Format(dateFormat), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(readings), nil
}

// Readings returns cached readings with summary dates in [start, end].
func (s *Store) Readings(ctx context.Context, start, end time.Time) ([]models.Reading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT station_id, summary_date, nfdr_type, fuel_model, erc, bi
		FROM nfdr_readings
		WHERE summary_date >= ? AND summary_date <= ?
		ORDER BY station_id, summary_date
	`, start.Format(dateFormat), end.Format(dateFormat))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []models.Reading
	for rows.Next() {
		var r models.Reading
		var dateStr string
		var nfdrType, fuelModel sql.NullString
		if err := rows.Scan(&r.StationID, &dateStr, &nfdrType, &fuelModel, &r.ERC, &r.BI); err != nil {
			return nil, err
		}
		t, err := time.Parse(dateFormat, dateStr)
		if err != nil {
			return nil, fmt.Errorf("parse summary_date %q: %w", dateStr, err)
		}
		r.Date = t
		r.NFDRType = nfdrType.String
		r.FuelModel = fuelModel.String
		readings = append(readings, r)
	}
	return readings, rows.Err()
}
