package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/lox/firetrends/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS station_trends (
    station_id TEXT PRIMARY KEY,
    station_name TEXT,
    erc DOUBLE PRECISION,
    erc_percentile DOUBLE PRECISION,
    erc_trend TEXT,
    erc_fcast DOUBLE PRECISION,
    erc_fcast_percentile DOUBLE PRECISION,
    erc_fcast_trend TEXT,
    bi DOUBLE PRECISION,
    bi_percentile DOUBLE PRECISION,
    bi_trend TEXT,
    bi_fcast DOUBLE PRECISION,
    bi_fcast_percentile DOUBLE PRECISION,
    bi_fcast_trend TEXT,
    update_date TEXT NOT NULL,
    update_time TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS zone_trends (
    zone_id TEXT PRIMARY KEY,
    avg_erc DOUBLE PRECISION,
    avg_erc_percentile DOUBLE PRECISION,
    avg_erc_trend TEXT,
    avg_erc_fcast DOUBLE PRECISION,
    avg_erc_fcast_percentile DOUBLE PRECISION,
    avg_erc_fcast_trend TEXT,
    avg_bi DOUBLE PRECISION,
    avg_bi_percentile DOUBLE PRECISION,
    avg_bi_trend TEXT,
    avg_bi_fcast DOUBLE PRECISION,
    avg_bi_fcast_percentile DOUBLE PRECISION,
    avg_bi_fcast_trend TEXT,
    stations INTEGER NOT NULL DEFAULT 0,
    update_date TEXT NOT NULL,
    update_time TEXT NOT NULL
);
`

const upsertStationSQL = `
INSERT INTO station_trends (
    station_id, station_name,
    erc, erc_percentile, erc_trend, erc_fcast, erc_fcast_percentile, erc_fcast_trend,
    bi, bi_percentile, bi_trend, bi_fcast, bi_fcast_percentile, bi_fcast_trend,
    update_date, update_time
) VALUES (
    :station_id, :station_name,
    :erc, :erc_percentile, :erc_trend, :erc_fcast, :erc_fcast_percentile, :erc_fcast_trend,
    :bi, :bi_percentile, :bi_trend, :bi_fcast, :bi_fcast_percentile, :bi_fcast_trend,
    :update_date, :update_time
)
ON CONFLICT (station_id) DO UPDATE SET
    station_name = EXCLUDED.station_name,
    erc = EXCLUDED.erc,
    erc_percentile = EXCLUDED.erc_percentile,
    erc_trend = EXCLUDED.erc_trend,
    erc_fcast = EXCLUDED.erc_fcast,
    erc_fcast_percentile = EXCLUDED.erc_fcast_percentile,
    erc_fcast_trend = EXCLUDED.erc_fcast_trend,
    bi = EXCLUDED.bi,
    bi_percentile = EXCLUDED.bi_percentile,
    bi_trend = EXCLUDED.bi_trend,
    bi_fcast = EXCLUDED.bi_fcast,
    bi_fcast_percentile = EXCLUDED.bi_fcast_percentile,
    bi_fcast_trend = EXCLUDED.bi_fcast_trend,
    update_date = EXCLUDED.update_date,
    update_time = EXCLUDED.update_time`

const upsertZoneSQL = `
INSERT INTO zone_trends (
    zone_id,
    avg_erc, avg_erc_percentile, avg_erc_trend, avg_erc_fcast, avg_erc_fcast_percentile, avg_erc_fcast_trend,
    avg_bi, avg_bi_percentile, avg_bi_trend, avg_bi_fcast, avg_bi_fcast_percentile, avg_bi_fcast_trend,
    stations, update_date, update_time
) VALUES (
    :zone_id,
    :avg_erc, :avg_erc_percentile, :avg_erc_trend, :avg_erc_fcast, :avg_erc_fcast_percentile, :avg_erc_fcast_trend,
    :avg_bi, :avg_bi_percentile, :avg_bi_trend, :avg_bi_fcast, :avg_bi_fcast_percentile, :avg_bi_fcast_trend,
    :stations, :update_date, :update_time
)
ON CONFLICT (zone_id) DO UPDATE SET
    avg_erc = EXCLUDED.avg_erc,
    avg_erc_percentile = EXCLUDED.avg_erc_percentile,
    avg_erc_trend = EXCLUDED.avg_erc_trend,
    avg_erc_fcast = EXCLUDED.avg_erc_fcast,
    avg_erc_fcast_percentile = EXCLUDED.avg_erc_fcast_percentile,
    avg_erc_fcast_trend = EXCLUDED.avg_erc_fcast_trend,
    avg_bi = EXCLUDED.avg_bi,
    avg_bi_percentile = EXCLUDED.avg_bi_percentile,
    avg_bi_trend = EXCLUDED.avg_bi_trend,
    avg_bi_fcast = EXCLUDED.avg_bi_fcast,
    avg_bi_fcast_percentile = EXCLUDED.avg_bi_fcast_percentile,
    avg_bi_fcast_trend = EXCLUDED.avg_bi_fcast_trend,
    stations = EXCLUDED.stations,
    update_date = EXCLUDED.update_date,
    update_time = EXCLUDED.update_time`

// Postgres upserts the result tables into a remote PostgreSQL database.
type Postgres struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// OpenPostgres connects, pings and ensures the result tables exist.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*Postgres, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	p := NewPostgres(db, logger)
	if err := p.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func NewPostgres(db *sqlx.DB, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{db: db, logger: logger}
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create postgres tables: %w", err)
	}
	return nil
}

func (p *Postgres) Name() string { return "postgres" }

func (p *Postgres) PublishStations(ctx context.Context, rows []models.StationRow) error {
	return p.upsert(ctx, StationTable, len(rows), func(tx *sqlx.Tx) error {
		for i := range rows {
			if _, err := tx.NamedExecContext(ctx, upsertStationSQL, rows[i]); err != nil {
				return fmt.Errorf("upsert station %s: %w", rows[i].StationID, err)
			}
		}
		return nil
	})
}

func (p *Postgres) PublishZones(ctx context.Context, rows []models.ZoneRow) error {
	return p.upsert(ctx, ZoneTable, len(rows), func(tx *sqlx.Tx) error {
		for i := range rows {
			if _, err := tx.NamedExecContext(ctx, upsertZoneSQL, rows[i]); err != nil {
				return fmt.Errorf("upsert zone %s: %w", rows[i].ZoneID, err)
			}
		}
		return nil
	})
}

func (p *Postgres) upsert(ctx context.Context, table string, n int, fn func(tx *sqlx.Tx) error) error {
	start := time.Now()
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", table, err)
	}
	p.logger.Info("postgres: table upserted", "table", table, "rows", n, "duration", time.Since(start))
	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
