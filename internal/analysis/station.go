package analysis

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lox/firetrends/internal/metrics"
	"github.com/lox/firetrends/internal/models"
)

// Diagnostic records a per-station, per-index failure that did not stop the run.
type Diagnostic struct {
	StationID string
	Index     models.Index
	Field     string
	Err       error
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s %s %s: %v", d.StationID, d.Index, d.Field, d.Err)
}

func (d Diagnostic) Unwrap() error { return d.Err }

// StationProcessor turns raw series values into percentiles and trends for one station.
type StationProcessor struct {
	logger *slog.Logger
}

func NewStationProcessor(logger *slog.Logger) *StationProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &StationProcessor{logger: logger}
}

// Process runs every index for the station. Missing bin tables and malformed
// bins come back as diagnostics; the result always has both indexes filled in.
func (p *StationProcessor) Process(st models.Station, series *models.Series, tables models.BinTables, w models.Window) (models.StationResult, []Diagnostic) {
	p.logger.Info("station: processing", "station", st.StationID, "name", st.Name)

	res := models.StationResult{StationID: st.StationID, Name: st.Name}
	var diags []Diagnostic
	for _, idx := range models.Indexes {
		bins := tables[models.BinKey{StationID: st.StationID, Index: idx}]
		ir, d := p.ProcessIndex(st.StationID, idx, series, bins, w)
		*res.Index(idx) = ir
		diags = append(diags, d...)
	}
	return res, diags
}

// ProcessIndex computes one index for one station. The observation percentile
// uses the end of the observation window and the forecast percentile uses the
// start of the forecast window.
func (p *StationProcessor) ProcessIndex(stationID string, idx models.Index, series *models.Series, bins []models.Bin, w models.Window) (models.IndexResult, []Diagnostic) {
	log := p.logger.With("station", stationID, "index", string(idx))

	r := models.IndexResult{
		ObsStart:      series.Value(stationID, idx, w.ObsStart),
		ObsEnd:        series.Value(stationID, idx, w.ObsEnd),
		ForecastStart: series.Value(stationID, idx, w.ForecastStart),
		ForecastEnd:   series.Value(stationID, idx, w.ForecastEnd),
	}

	var diags []Diagnostic
	if len(bins) == 0 {
		log.Warn("station: no percentile table, percentiles left empty")
		metrics.PercentileLookups.WithLabelValues(string(idx), "no_bins").Add(2)
		diags = append(diags, Diagnostic{StationID: stationID, Index: idx, Field: "percentile", Err: ErrNoBins})
	} else {
		var err error
		r.ObsPercentile, err = p.lookup(log, "observation", idx, r.ObsEnd, bins)
		if err != nil {
			diags = append(diags, Diagnostic{StationID: stationID, Index: idx, Field: "observation percentile", Err: err})
		}
		r.ForecastPercentile, err = p.lookup(log, "forecast", idx, r.ForecastStart, bins)
		if err != nil {
			diags = append(diags, Diagnostic{StationID: stationID, Index: idx, Field: "forecast percentile", Err: err})
		}
	}

	r.ObsTrend = classify(log, "station", "observation", idx, r.ObsStart, r.ObsEnd)
	r.ForecastTrend = classify(log, "station", "forecast", idx, r.ForecastStart, r.ForecastEnd)

	return r, diags
}

func (p *StationProcessor) lookup(log *slog.Logger, kind string, idx models.Index, value sql.NullFloat64, bins []models.Bin) (sql.NullFloat64, error) {
	if !value.Valid {
		log.Info("station: missing data for percentile", "kind", kind)
		metrics.PercentileLookups.WithLabelValues(string(idx), "missing_value").Inc()
		return sql.NullFloat64{}, nil
	}
	pct, err := Lookup(value, bins)
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrNoMatchingBin) {
			outcome = "no_matching_bin"
		}
		log.Error("station: percentile lookup failed", "kind", kind, "value", value.Float64, "error", err)
		metrics.PercentileLookups.WithLabelValues(string(idx), outcome).Inc()
		return sql.NullFloat64{}, err
	}
	log.Info("station: percentile", "kind", kind, "value", value.Float64, "percentile", pct.Float64)
	metrics.PercentileLookups.WithLabelValues(string(idx), "ok").Inc()
	return pct, nil
}

func classify(log *slog.Logger, scope, kind string, idx models.Index, start, end sql.NullFloat64) models.Trend {
	t := Classify(start, end)
	if t == models.TrendUnknown {
		log.Info(scope+": missing data for trend", "kind", kind)
	} else {
		log.Info(scope+": trend", "kind", kind, "start", start.Float64, "end", end.Float64, "trend", string(t))
	}
	metrics.TrendsClassified.WithLabelValues(scope, string(idx), t.String()).Inc()
	return t
}
