package analysis

import (
	"database/sql"
	"log/slog"
	"math"

	"github.com/lox/firetrends/internal/models"
)

// ZoneAggregator rolls station results up into zone means.
type ZoneAggregator struct {
	logger *slog.Logger
}

func NewZoneAggregator(logger *slog.Logger) *ZoneAggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ZoneAggregator{logger: logger}
}

// Aggregate averages each field over the members that have it. Zone trends are
// classified from the averaged start and end values, never from member trends,
// and zone percentiles are the mean of member percentiles.
func (a *ZoneAggregator) Aggregate(zoneID string, members []models.StationResult) models.ZoneResult {
	a.logger.Info("zone: processing", "zone", zoneID, "stations", len(members))

	zr := models.ZoneResult{ZoneID: zoneID}
	for _, idx := range models.Indexes {
		log := a.logger.With("zone", zoneID, "index", string(idx))

		var obsStart, obsEnd, obsPct, fcStart, fcEnd, fcPct []sql.NullFloat64
		for i := range members {
			r := members[i].Index(idx)
			obsStart = append(obsStart, r.ObsStart)
			obsEnd = append(obsEnd, r.ObsEnd)
			obsPct = append(obsPct, r.ObsPercentile)
			fcStart = append(fcStart, r.ForecastStart)
			fcEnd = append(fcEnd, r.ForecastEnd)
			fcPct = append(fcPct, r.ForecastPercentile)
		}

		z := models.ZoneIndexResult{
			ObsStart:           Mean(obsStart),
			ObsEnd:             Mean(obsEnd),
			ObsPercentile:      Mean(obsPct),
			ForecastStart:      Mean(fcStart),
			ForecastEnd:        Mean(fcEnd),
			ForecastPercentile: Mean(fcPct),
			Stations:           len(members),
		}
		logMean(log, "observation mean", z.ObsEnd)
		logMean(log, "observation percentile mean", z.ObsPercentile)
		z.ObsTrend = classify(log, "zone", "observation", idx, z.ObsStart, z.ObsEnd)
		logMean(log, "forecast mean", z.ForecastStart)
		logMean(log, "forecast percentile mean", z.ForecastPercentile)
		z.ForecastTrend = classify(log, "zone", "forecast", idx, z.ForecastStart, z.ForecastEnd)

		*zr.Index(idx) = z
	}
	return zr
}

// Mean is the arithmetic mean of the valid values rounded to two decimals.
// It is null when no value is valid.
func Mean(values []sql.NullFloat64) sql.NullFloat64 {
	var sum float64
	var n int
	for _, v := range values {
		if !v.Valid {
			continue
		}
		sum += v.Float64
		n++
	}
	if n == 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: round2(sum / float64(n)), Valid: true}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func logMean(log *slog.Logger, what string, v sql.NullFloat64) {
	if !v.Valid {
		log.Info("zone: "+what+": no observations")
		return
	}
	log.Info("zone: "+what, "value", v.Float64)
}
