package analysis

import (
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/lox/firetrends/internal/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMean(t *testing.T) {
	null := sql.NullFloat64{}
	tests := []struct {
		name   string
		values []sql.NullFloat64
		want   sql.NullFloat64
	}{
		{"ignores nulls", []sql.NullFloat64{val(20), null, val(30)}, val(25)},
		{"all null", []sql.NullFloat64{null, null}, null},
		{"empty", nil, null},
		{"rounds to two decimals", []sql.NullFloat64{val(1), val(2), val(2)}, val(1.67)},
		{"single value", []sql.NullFloat64{val(42.5)}, val(42.5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Mean(tt.values)
			if got != tt.want {
				t.Errorf("Mean() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAggregate_ObservationEndMean(t *testing.T) {
	members := []models.StationResult{
		{StationID: "A", ERC: models.IndexResult{ObsEnd: val(20)}},
		{StationID: "B", ERC: models.IndexResult{}},
		{StationID: "C", ERC: models.IndexResult{ObsEnd: val(30)}},
	}

	zr := NewZoneAggregator(quietLogger()).Aggregate("NR01", members)

	if !zr.ERC.ObsEnd.Valid || zr.ERC.ObsEnd.Float64 != 25 {
		t.Errorf("ERC ObsEnd = %+v, want 25", zr.ERC.ObsEnd)
	}
	if zr.ERC.ObsTrend != models.TrendUnknown {
		t.Errorf("ERC ObsTrend = %q, want unknown without start values", zr.ERC.ObsTrend)
	}
	if zr.BI.ObsEnd.Valid || zr.BI.ObsPercentile.Valid || zr.BI.ForecastStart.Valid {
		t.Errorf("BI fields should be null when no member has data: %+v", zr.BI)
	}
	if zr.ERC.Stations != 3 {
		t.Errorf("Stations = %d, want 3", zr.ERC.Stations)
	}
}

func TestAggregate_TrendFromMeansNotVotes(t *testing.T) {
	members := []models.StationResult{
		{StationID: "A", ERC: models.IndexResult{ObsStart: val(10), ObsEnd: val(20), ObsTrend: models.TrendIncrease}},
		{StationID: "B", ERC: models.IndexResult{ObsStart: val(30), ObsEnd: val(26), ObsTrend: models.TrendDecrease}},
	}

	zr := NewZoneAggregator(quietLogger()).Aggregate("NR02", members)

	if zr.ERC.ObsStart.Float64 != 20 || zr.ERC.ObsEnd.Float64 != 23 {
		t.Fatalf("means = %v -> %v, want 20 -> 23", zr.ERC.ObsStart.Float64, zr.ERC.ObsEnd.Float64)
	}
	if zr.ERC.ObsTrend != models.TrendIncrease {
		t.Errorf("ObsTrend = %q, want Increase", zr.ERC.ObsTrend)
	}
}

func TestAggregate_PercentileIsMeanOfPercentiles(t *testing.T) {
	members := []models.StationResult{
		{StationID: "A", BI: models.IndexResult{ForecastStart: val(10), ForecastEnd: val(9), ForecastPercentile: val(50)}},
		{StationID: "B", BI: models.IndexResult{ForecastStart: val(70), ForecastEnd: val(60), ForecastPercentile: val(97)}},
	}

	zr := NewZoneAggregator(quietLogger()).Aggregate("NR03", members)

	if zr.BI.ForecastPercentile.Float64 != 73.5 {
		t.Errorf("ForecastPercentile = %v, want 73.5", zr.BI.ForecastPercentile.Float64)
	}
	if zr.BI.ForecastStart.Float64 != 40 || zr.BI.ForecastEnd.Float64 != 34.5 {
		t.Errorf("forecast means = %v -> %v, want 40 -> 34.5", zr.BI.ForecastStart.Float64, zr.BI.ForecastEnd.Float64)
	}
	if zr.BI.ForecastTrend != models.TrendDecrease {
		t.Errorf("ForecastTrend = %q, want Decrease", zr.BI.ForecastTrend)
	}
}
