package store

import (
	"context"
	"fmt"

	"github.com/lox/firetrends/internal/models"
)

// PublishStations upserts the station result table in a single transaction.
func (s *Store) PublishStations(ctx context.Context, rows []models.StationRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO station_trends (
			station_id, station_name,
			erc, erc_percentile, erc_trend, erc_fcast, erc_fcast_percentile, erc_fcast_trend,
			bi, bi_percentile, bi_trend, bi_fcast, bi_fcast_percentile, bi_fcast_trend,
			update_date, update_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(station_id) DO UPDATE SET
			station_name = excluded.station_name,
			erc = excluded.erc,
			erc_percentile = excluded.erc_percentile,
			erc_trend = excluded.erc_trend,
			erc_fcast = excluded.erc_fcast,
			erc_fcast_percentile = excluded.erc_fcast_percentile,
			erc_fcast_trend = excluded.erc_fcast_trend,
			bi = excluded.bi,
			bi_percentile = excluded.bi_percentile,
			bi_trend = excluded.bi_trend,
			bi_fcast = excluded.bi_fcast,
			bi_fcast_percentile = excluded.bi_fcast_percentile,
			bi_fcast_trend = excluded.bi_fcast_trend,
			update_date = excluded.update_date,
			update_time = excluded.update_time
	`)
	if err != nil {
		return fmt.Errorf("prepare station upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.StationID, r.StationName,
			r.ERC, r.ERCPercentile, r.ERCTrend, r.ERCFcast, r.ERCFcastPercentile, r.ERCFcastTrend,
			r.BI, r.BIPercentile, r.BITrend, r.BIFcast, r.BIFcastPercentile, r.BIFcastTrend,
			r.UpdateDate, r.UpdateTime,
		); err != nil {
			return fmt.Errorf("upsert station %s: %w", r.StationID, err)
		}
	}
	return tx.Commit()
}

// PublishZones upserts the zone result table in a single transaction.
func (s *Store) PublishZones(ctx context.Context, rows []models.ZoneRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO zone_trends (
			zone_id,
			avg_erc, avg_erc_percentile, avg_erc_trend, avg_erc_fcast, avg_erc_fcast_percentile, avg_erc_fcast_trend,
			avg_bi, avg_bi_percentile, avg_bi_trend, avg_bi_fcast, avg_bi_fcast_percentile, avg_bi_fcast_trend,
			stations, update_date, update_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(zone_id) DO UPDATE SET
			avg_erc = excluded.avg_erc,
			avg_erc_percentile = excluded.avg_erc_percentile,
			avg_erc_trend = excluded.avg_erc_trend,
			avg_erc_fcast = excluded.avg_erc_fcast,
			avg_erc_fcast_percentile = excluded.avg_erc_fcast_percentile,
			avg_erc_fcast_trend = excluded.avg_erc_fcast_trend,
			avg_bi = excluded.avg_bi,
			avg_bi_percentile = excluded.avg_bi_percentile,
			avg_bi_trend = excluded.avg_bi_trend,
			avg_bi_fcast = excluded.avg_bi_fcast,
			avg_bi_fcast_percentile = excluded.avg_bi_fcast_percentile,
			avg_bi_fcast_trend = excluded.avg_bi_fcast_trend,
			stations = excluded.stations,
			update_date = excluded.update_date,
			update_time = excluded.update_time
	`)
	if err != nil {
		return fmt.Errorf("prepare zone upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.ZoneID,
			r.AvgERC, r.AvgERCPercentile, r.AvgERCTrend, r.AvgERCFcast, r.AvgERCFcastPercentile, r.AvgERCFcastTrend,
			r.AvgBI, r.AvgBIPercentile, r.AvgBITrend, r.AvgBIFcast, r.AvgBIFcastPercentile, r.AvgBIFcastTrend,
			r.Stations, r.UpdateDate, r.UpdateTime,
		); err != nil {
			return fmt.Errorf("upsert zone %s: %w", r.ZoneID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) StationTrends(ctx context.Context) ([]models.StationRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT station_id, COALESCE(station_name, ''),
			erc, erc_percentile, erc_trend, erc_fcast, erc_fcast_percentile, erc_fcast_trend,
			bi, bi_percentile, bi_trend, bi_fcast, bi_fcast_percentile, bi_fcast_trend,
			update_date, update_time
		FROM station_trends
		ORDER BY station_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.StationRow
	for rows.Next() {
		var r models.StationRow
		if err := rows.Scan(
			&r.StationID, &r.StationName,
			&r.ERC, &r.ERCPercentile, &r.ERCTrend, &r.ERCFcast, &r.ERCFcastPercentile, &r.ERCFcastTrend,
			&r.BI, &r.BIPercentile, &r.BITrend, &r.BIFcast, &r.BIFcastPercentile, &r.BIFcastTrend,
			&r.UpdateDate, &r.UpdateTime,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ZoneTrends(ctx context.Context) ([]models.ZoneRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT zone_id,
			avg_erc, avg_erc_percentile, avg_erc_trend, avg_erc_fcast, avg_erc_fcast_percentile, avg_erc_fcast_trend,
			avg_bi, avg_bi_percentile, avg_bi_trend, avg_bi_fcast, avg_bi_fcast_percentile, avg_bi_fcast_trend,
			stations, update_date, update_time
		FROM zone_trends
		ORDER BY zone_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ZoneRow
	for rows.Next() {
		var r models.ZoneRow
		if err := rows.Scan(
			&r.ZoneID,
			&r.AvgERC, &r.AvgERCPercentile, &r.AvgERCTrend, &r.AvgERCFcast, &r.AvgERCFcastPercentile, &r.AvgERCFcastTrend,
			&r.AvgBI, &r.AvgBIPercentile, &r.AvgBITrend, &r.AvgBIFcast, &r.AvgBIFcastPercentile, &r.AvgBIFcastTrend,
			&r.Stations, &r.UpdateDate, &r.UpdateTime,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
