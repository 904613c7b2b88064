package models

import "database/sql"

// StationRow is the flat, published shape of a StationResult. Nil pointers
// are written as NULL / JSON null.
type StationRow struct {
	StationID          string   `db:"station_id" json:"station_id"`
	StationName        string   `db:"station_name" json:"station_name"`
	ERC                *float64 `db:"erc" json:"erc"`
	ERCPercentile      *float64 `db:"erc_percentile" json:"erc_percentile"`
	ERCTrend           *string  `db:"erc_trend" json:"erc_trend"`
	ERCFcast           *float64 `db:"erc_fcast" json:"erc_fcast"`
	ERCFcastPercentile *float64 `db:"erc_fcast_percentile" json:"erc_fcast_percentile"`
	ERCFcastTrend      *string  `db:"erc_fcast_trend" json:"erc_fcast_trend"`
	BI                 *float64 `db:"bi" json:"bi"`
	BIPercentile       *float64 `db:"bi_percentile" json:"bi_percentile"`
	BITrend            *string  `db:"bi_trend" json:"bi_trend"`
	BIFcast            *float64 `db:"bi_fcast" json:"bi_fcast"`
	BIFcastPercentile  *float64 `db:"bi_fcast_percentile" json:"bi_fcast_percentile"`
	BIFcastTrend       *string  `db:"bi_fcast_trend" json:"bi_fcast_trend"`
	UpdateDate         string   `db:"update_date" json:"update_date"`
	UpdateTime         string   `db:"update_time" json:"update_time"`
}

// ZoneRow is the flat, published shape of a ZoneResult.
type ZoneRow struct {
	ZoneID                string   `db:"zone_id" json:"zone_id"`
	AvgERC                *float64 `db:"avg_erc" json:"avg_erc"`
	AvgERCPercentile      *float64 `db:"avg_erc_percentile" json:"avg_erc_percentile"`
	AvgERCTrend           *string  `db:"avg_erc_trend" json:"avg_erc_trend"`
	AvgERCFcast           *float64 `db:"avg_erc_fcast" json:"avg_erc_fcast"`
	AvgERCFcastPercentile *float64 `db:"avg_erc_fcast_percentile" json:"avg_erc_fcast_percentile"`
	AvgERCFcastTrend      *string  `db:"avg_erc_fcast_trend" json:"avg_erc_fcast_trend"`
	AvgBI                 *float64 `db:"avg_bi" json:"avg_bi"`
	AvgBIPercentile       *float64 `db:"avg_bi_percentile" json:"avg_bi_percentile"`
	AvgBITrend            *string  `db:"avg_bi_trend" json:"avg_bi_trend"`
	AvgBIFcast            *float64 `db:"avg_bi_fcast" json:"avg_bi_fcast"`
	AvgBIFcastPercentile  *float64 `db:"avg_bi_fcast_percentile" json:"avg_bi_fcast_percentile"`
	AvgBIFcastTrend       *string  `db:"avg_bi_fcast_trend" json:"avg_bi_fcast_trend"`
	Stations              int      `db:"stations" json:"stations"`
	UpdateDate            string   `db:"update_date" json:"update_date"`
	UpdateTime            string   `db:"update_time" json:"update_time"`
}

// StationRows flattens results into publishable rows. The observed value is
// the last observed day and the forecast value is the first forecast day,
// matching the days the percentiles were looked up for.
func StationRows(results []StationResult, stamp Stamp) []StationRow {
	rows := make([]StationRow, 0, len(results))
	for _, r := range results {
		rows = append(rows, StationRow{
			StationID:          r.StationID,
			StationName:        r.Name,
			ERC:                floatPtr(r.ERC.ObsEnd),
			ERCPercentile:      floatPtr(r.ERC.ObsPercentile),
			ERCTrend:           trendPtr(r.ERC.ObsTrend),
			ERCFcast:           floatPtr(r.ERC.ForecastStart),
			ERCFcastPercentile: floatPtr(r.ERC.ForecastPercentile),
			ERCFcastTrend:      trendPtr(r.ERC.ForecastTrend),
			BI:                 floatPtr(r.BI.ObsEnd),
			BIPercentile:       floatPtr(r.BI.ObsPercentile),
			BITrend:            trendPtr(r.BI.ObsTrend),
			BIFcast:            floatPtr(r.BI.ForecastStart),
			BIFcastPercentile:  floatPtr(r.BI.ForecastPercentile),
			BIFcastTrend:       trendPtr(r.BI.ForecastTrend),
			UpdateDate:         stamp.Date,
			UpdateTime:         stamp.Time,
		})
	}
	return rows
}

func ZoneRows(results []ZoneResult, stamp Stamp) []ZoneRow {
	rows := make([]ZoneRow, 0, len(results))
	for _, r := range results {
		stations := r.ERC.Stations
		if r.BI.Stations > stations {
			stations = r.BI.Stations
		}
		rows = append(rows, ZoneRow{
			ZoneID:                r.ZoneID,
			AvgERC:                floatPtr(r.ERC.ObsEnd),
			AvgERCPercentile:      floatPtr(r.ERC.ObsPercentile),
			AvgERCTrend:           trendPtr(r.ERC.ObsTrend),
			AvgERCFcast:           floatPtr(r.ERC.ForecastStart),
			AvgERCFcastPercentile: floatPtr(r.ERC.ForecastPercentile),
			AvgERCFcastTrend:      trendPtr(r.ERC.ForecastTrend),
			AvgBI:                 floatPtr(r.BI.ObsEnd),
			AvgBIPercentile:       floatPtr(r.BI.ObsPercentile),
			AvgBITrend:            trendPtr(r.BI.ObsTrend),
			AvgBIFcast:            floatPtr(r.BI.ForecastStart),
			AvgBIFcastPercentile:  floatPtr(r.BI.ForecastPercentile),
			AvgBIFcastTrend:       trendPtr(r.BI.ForecastTrend),
			Stations:              stations,
			UpdateDate:            stamp.Date,
			UpdateTime:            stamp.Time,
		})
	}
	return rows
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func trendPtr(t Trend) *string {
	if t == TrendUnknown {
		return nil
	}
	s := string(t)
	return &s
}
