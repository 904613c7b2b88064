package models

import (
	"database/sql"
	"time"
)

// Index identifies one of the NFDRS indexes tracked per station.
type Index string

const (
	ERC Index = "ERC" // Energy Release Component
	BI  Index = "BI"  // Burning Index
)

// Indexes lists the supported indexes in processing order.
var Indexes = []Index{ERC, BI}

// NonZone marks stations that are reported individually but never rolled up into a zone.
const NonZone = "Non-PSA"

type Station struct {
	StationID string
	Name      string
}

// Association maps a station to the zone (PSA) it belongs to.
type Association struct {
	StationID   string
	StationName string
	ZoneID      string
}

// Bin is one row of a station's historical percentile table: Lower <= v < Upper.
type Bin struct {
	Lower      float64
	Upper      float64
	Percentile float64
}

type BinKey struct {
	StationID string
	Index     Index
}

type BinTables map[BinKey][]Bin

// Reading is one daily record from the climatology feed.
type Reading struct {
	StationID string
	Date      time.Time
	NFDRType  string // "O" observed, "F" forecast
	FuelModel string
	ERC       sql.NullFloat64
	BI        sql.NullFloat64
}

func (r Reading) Value(idx Index) sql.NullFloat64 {
	switch idx {
	case ERC:
		return r.ERC
	case BI:
		return r.BI
	default:
		return sql.NullFloat64{}
	}
}

type seriesKey struct {
	stationID string
	date      string
}

// Series is the raw index series keyed by station and calendar date.
// The first reading added for a station/date wins.
type Series struct {
	readings map[seriesKey]Reading
}

func NewSeries(readings []Reading) *Series {
	s := &Series{readings: make(map[seriesKey]Reading, len(readings))}
	for _, r := range readings {
		s.Add(r)
	}
	return s
}

func (s *Series) Add(r Reading) {
	k := seriesKey{r.StationID, r.Date.Format("2006-01-02")}
	if _, ok := s.readings[k]; ok {
		return
	}
	s.readings[k] = r
}

// Value returns the index value for the station on the given date, or an
// invalid NullFloat64 when the feed had nothing for it.
func (s *Series) Value(stationID string, idx Index, date time.Time) sql.NullFloat64 {
	if s == nil {
		return sql.NullFloat64{}
	}
	r, ok := s.readings[seriesKey{stationID, date.Format("2006-01-02")}]
	if !ok {
		return sql.NullFloat64{}
	}
	return r.Value(idx)
}

func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.readings)
}

func (s *Series) Readings() []Reading {
	if s == nil {
		return nil
	}
	out := make([]Reading, 0, len(s.readings))
	for _, r := range s.readings {
		out = append(out, r)
	}
	return out
}

// Window holds the four dates a run reads from the series.
type Window struct {
	ObsStart      time.Time
	ObsEnd        time.Time
	ForecastStart time.Time
	ForecastEnd   time.Time
}

// WindowFor returns the observation window (3 days ago to yesterday) and the
// forecast window (today to 2 days ahead) for a run date.
func WindowFor(runDate time.Time) Window {
	d := time.Date(runDate.Year(), runDate.Month(), runDate.Day(), 0, 0, 0, 0, time.UTC)
	return Window{
		ObsStart:      d.AddDate(0, 0, -3),
		ObsEnd:        d.AddDate(0, 0, -1),
		ForecastStart: d,
		ForecastEnd:   d.AddDate(0, 0, 2),
	}
}

// Trend is a three-way change label. The zero value means unknown.
type Trend string

const (
	TrendUnknown  Trend = ""
	TrendIncrease Trend = "Increase"
	TrendDecrease Trend = "Decrease"
	TrendNoChange Trend = "No Change"
)

func (t Trend) NullString() sql.NullString {
	return sql.NullString{String: string(t), Valid: t != TrendUnknown}
}

func (t Trend) String() string {
	if t == TrendUnknown {
		return "Unknown"
	}
	return string(t)
}

// IndexResult is the per-station outcome for one index.
type IndexResult struct {
	ObsStart           sql.NullFloat64
	ObsEnd             sql.NullFloat64
	ObsPercentile      sql.NullFloat64
	ObsTrend           Trend
	ForecastStart      sql.NullFloat64
	ForecastEnd        sql.NullFloat64
	ForecastPercentile sql.NullFloat64
	ForecastTrend      Trend
}

type StationResult struct {
	StationID string
	Name      string
	ERC       IndexResult
	BI        IndexResult
}

func (r *StationResult) Index(idx Index) *IndexResult {
	if idx == BI {
		return &r.BI
	}
	return &r.ERC
}

// ZoneIndexResult holds the zone means for one index. ObsEnd and ForecastStart
// are the reported values; ObsStart and ForecastEnd feed the trends.
type ZoneIndexResult struct {
	ObsStart           sql.NullFloat64
	ObsEnd             sql.NullFloat64
	ObsPercentile      sql.NullFloat64
	ObsTrend           Trend
	ForecastStart      sql.NullFloat64
	ForecastEnd        sql.NullFloat64
	ForecastPercentile sql.NullFloat64
	ForecastTrend      Trend
	Stations           int
}

type ZoneResult struct {
	ZoneID string
	ERC    ZoneIndexResult
	BI     ZoneIndexResult
}

func (r *ZoneResult) Index(idx Index) *ZoneIndexResult {
	if idx == BI {
		return &r.BI
	}
	return &r.ERC
}

// Stamp is the update date and hour written alongside every published row.
type Stamp struct {
	Date string // YYYY-MM-DD
	Time string // HH00
}

func StampFor(t time.Time) Stamp {
	return Stamp{Date: t.Format("2006-01-02"), Time: t.Format("15") + "00"}
}
