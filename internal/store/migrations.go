package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Reference tables: stations, zone associations, percentile bins",
		SQL: `
CREATE TABLE IF NOT EXISTS stations (
    station_id TEXT PRIMARY KEY,
    name TEXT,
    active BOOLEAN DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS station_zones (
    station_id TEXT PRIMARY KEY,
    station_name TEXT,
    zone_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS percentile_bins (
    station_id TEXT NOT NULL,
    component TEXT NOT NULL,
    greater_than_equal_to REAL NOT NULL,
    less_than REAL NOT NULL,
    percentile REAL NOT NULL,
    PRIMARY KEY (station_id, component, greater_than_equal_to)
);

CREATE INDEX IF NOT EXISTS idx_station_zones_zone ON station_zones(zone_id);
`,
	},
	{
		Version:     2,
		Description: "Cache of daily NFDRS readings from the climatology feed",
		SQL: `
CREATE TABLE IF NOT EXISTS nfdr_readings (
    station_id TEXT NOT NULL,
    summary_date TEXT NOT NULL,
    nfdr_type TEXT,
    fuel_model TEXT,
    erc REAL,
    bi REAL,
    fetched_at DATETIME NOT NULL,
    PRIMARY KEY (station_id, summary_date)
);

CREATE INDEX IF NOT EXISTS idx_nfdr_readings_date ON nfdr_readings(summary_date);
`,
	},
	{
		Version:     3,
		Description: "Station and zone percentile/trend result tables",
		SQL: `
CREATE TABLE IF NOT EXISTS station_trends (
    station_id TEXT PRIMARY KEY,
    station_name TEXT,
    erc REAL,
    erc_percentile REAL,
    erc_trend TEXT,
    erc_fcast REAL,
    erc_fcast_percentile REAL,
    erc_fcast_trend TEXT,
    bi REAL,
    bi_percentile REAL,
    bi_trend TEXT,
    bi_fcast REAL,
    bi_fcast_percentile REAL,
    bi_fcast_trend TEXT,
    update_date TEXT NOT NULL,
    update_time TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS zone_trends (
    zone_id TEXT PRIMARY KEY,
    avg_erc REAL,
    avg_erc_percentile REAL,
    avg_erc_trend TEXT,
    avg_erc_fcast REAL,
    avg_erc_fcast_percentile REAL,
    avg_erc_fcast_trend TEXT,
    avg_bi REAL,
    avg_bi_percentile REAL,
    avg_bi_trend TEXT,
    avg_bi_fcast REAL,
    avg_bi_fcast_percentile REAL,
    avg_bi_fcast_trend TEXT,
    stations INTEGER NOT NULL DEFAULT 0,
    update_date TEXT NOT NULL,
    update_time TEXT NOT NULL
);
`,
	},
	{
		Version:     4,
		Description: "Run audit and raw feed payload archive",
		SQL: `
CREATE TABLE IF NOT EXISTS analysis_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    run_date TEXT NOT NULL,
    source TEXT NOT NULL,
    http_status INTEGER,
    readings INTEGER,
    stations INTEGER,
    zones INTEGER,
    diagnostics INTEGER,
    published TEXT,
    success BOOLEAN NOT NULL DEFAULT FALSE,
    error_message TEXT
);

CREATE TABLE IF NOT EXISTS raw_payloads (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    analysis_run_id INTEGER REFERENCES analysis_runs(id),
    fetched_at DATETIME NOT NULL,
    source TEXT NOT NULL,
    endpoint TEXT NOT NULL,
    payload_compressed BLOB NOT NULL,
    payload_hash TEXT NOT NULL UNIQUE,
    schema_version INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_analysis_runs_started ON analysis_runs(started_at);
CREATE INDEX IF NOT EXISTS idx_raw_payloads_fetched ON raw_payloads(fetched_at);
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		log.Printf("migrations: applying %d - %s", m.Version, m.Description)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
