// Package runner executes one daily analysis: load reference data, get the
// index series, compute station and zone results, and publish them.
package runner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lox/firetrends/internal/analysis"
	"github.com/lox/firetrends/internal/fems"
	"github.com/lox/firetrends/internal/metrics"
	"github.com/lox/firetrends/internal/models"
	"github.com/lox/firetrends/internal/publish"
	"github.com/lox/firetrends/internal/retry"
	"github.com/lox/firetrends/internal/store"
)

const (
	SourceFEMS  = "fems"
	SourceStore = "store"
)

var (
	// ErrNoReference means there are no percentile tables or no zone associations.
	ErrNoReference = errors.New("no reference data")
	// ErrNoSeries means the feed (or cache) returned nothing for the window.
	ErrNoSeries = errors.New("no index series for window")
)

// Store is what a run needs from the local database.
type Store interface {
	ActiveStations(ctx context.Context) ([]models.Station, error)
	Associations(ctx context.Context) ([]models.Association, error)
	BinTables(ctx context.Context) (models.BinTables, error)
	UpsertReadings(ctx context.Context, readings []models.Reading) (int, error)
	Readings(ctx context.Context, start, end time.Time) ([]models.Reading, error)
	StoreRawPayload(ctx context.Context, runID *int64, source, endpoint string, payload []byte) (int64, error)
	StartRun(ctx context.Context, runDate time.Time, source string) (*store.AnalysisRun, error)
	CompleteRun(ctx context.Context, run *store.AnalysisRun) error
}

type Fetcher interface {
	Fetch(ctx context.Context, start, end time.Time) (*fems.FetchResult, error)
}

type Config struct {
	Source   string
	Location *time.Location
	// Date overrides the clock's calendar date when non-zero.
	Date time.Time
	// Hour overrides the stamp hour when set.
	Hour    *int
	Workers int
	Retry   retry.Policy
}

// Summary describes a finished run.
type Summary struct {
	RunAt        time.Time
	Stamp        models.Stamp
	Window       models.Window
	Readings     int
	Stations     int
	Zones        int
	SkippedZones []string
	Diagnostics  int
	Published    []string
	Failed       []string
}

type Runner struct {
	store      Store
	fetcher    Fetcher
	publishers []publish.Publisher
	analyzer   *analysis.Analyzer
	clock      clockwork.Clock
	logger     *slog.Logger
	cfg        Config
}

func New(st Store, fetcher Fetcher, publishers []publish.Publisher, clock clockwork.Clock, logger *slog.Logger, cfg Config) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Source == "" {
		cfg.Source = SourceFEMS
	}
	if cfg.Retry.Logger == nil {
		cfg.Retry.Logger = logger
	}
	return &Runner{
		store:      st,
		fetcher:    fetcher,
		publishers: publishers,
		analyzer:   analysis.NewAnalyzer(logger, cfg.Workers),
		clock:      clock,
		logger:     logger,
		cfg:        cfg,
	}
}

// RunAt is the moment the run is stamped with: the clock in the configured
// location, with the date and hour overrides applied.
func (r *Runner) RunAt() time.Time {
	now := r.clock.Now().In(r.cfg.Location)
	y, m, d := now.Date()
	if !r.cfg.Date.IsZero() {
		y, m, d = r.cfg.Date.Date()
	}
	hour := now.Hour()
	if r.cfg.Hour != nil {
		hour = *r.cfg.Hour
	}
	return time.Date(y, m, d, hour, now.Minute(), 0, 0, r.cfg.Location)
}

// Run performs one analysis. A fetch or reference-data failure returns before
// anything is published. Publish failures are collected and joined.
func (r *Runner) Run(ctx context.Context) (sum *Summary, err error) {
	started := r.clock.Now()
	runAt := r.RunAt()
	sum = &Summary{
		RunAt:  runAt,
		Stamp:  models.StampFor(runAt),
		Window: models.WindowFor(runAt),
	}
	log := r.logger.With("run_date", sum.Stamp.Date)
	log.Info("runner: starting",
		"source", r.cfg.Source,
		"obs_start", sum.Window.ObsStart.Format("2006-01-02"),
		"obs_end", sum.Window.ObsEnd.Format("2006-01-02"),
		"forecast_start", sum.Window.ForecastStart.Format("2006-01-02"),
		"forecast_end", sum.Window.ForecastEnd.Format("2006-01-02"),
		"update_time", sum.Stamp.Time)

	run, startErr := r.store.StartRun(ctx, runAt, r.cfg.Source)
	if startErr != nil {
		log.Warn("runner: failed to record run start", "error", startErr)
	}
	var httpStatus int
	defer func() {
		metrics.RunDuration.Observe(r.clock.Since(started).Seconds())
		if err == nil {
			metrics.LastRunSuccess.Set(1)
		} else {
			metrics.LastRunSuccess.Set(0)
		}
		if run == nil {
			return
		}
		run.HTTPStatus = nullInt(httpStatus)
		run.Readings = nullInt(sum.Readings)
		run.Stations = nullInt(sum.Stations)
		run.Zones = nullInt(sum.Zones)
		run.Diagnostics = sql.NullInt64{Int64: int64(sum.Diagnostics), Valid: true}
		if len(sum.Published) > 0 {
			run.Published = sql.NullString{String: strings.Join(sum.Published, ","), Valid: true}
		}
		run.Success = err == nil
		if err != nil {
			run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
		}
		// The run context may already be cancelled; the audit row is still written.
		if cerr := r.store.CompleteRun(context.WithoutCancel(ctx), run); cerr != nil {
			log.Warn("runner: failed to record run completion", "error", cerr)
		}
	}()

	stations, assocs, bins, err := r.loadReference(ctx)
	if err != nil {
		return sum, err
	}

	series, err := r.loadSeries(ctx, run, sum.Window, &httpStatus)
	if err != nil {
		return sum, err
	}
	sum.Readings = series.Len()

	out, err := r.analyzer.Run(ctx, analysis.Input{
		Stations:     stations,
		Associations: assocs,
		Bins:         bins,
		Series:       series,
		Window:       sum.Window,
	})
	if err != nil {
		return sum, fmt.Errorf("analyze: %w", err)
	}
	sum.Stations = len(out.Stations)
	sum.Zones = len(out.Zones)
	sum.SkippedZones = out.SkippedZones
	sum.Diagnostics = len(out.Diagnostics)

	err = r.publish(ctx, sum,
		models.StationRows(out.Stations, sum.Stamp),
		models.ZoneRows(out.Zones, sum.Stamp))

	log.Info("runner: script complete",
		"stations", sum.Stations,
		"zones", sum.Zones,
		"skipped_zones", len(sum.SkippedZones),
		"diagnostics", sum.Diagnostics,
		"published", strings.Join(sum.Published, ","),
		"failed", strings.Join(sum.Failed, ","),
		"duration", r.clock.Since(started))
	return sum, err
}

func (r *Runner) loadReference(ctx context.Context) ([]models.Station, []models.Association, models.BinTables, error) {
	stations, err := r.store.ActiveStations(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load stations: %w", err)
	}
	assocs, err := r.store.Associations(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load associations: %w", err)
	}
	bins, err := r.store.BinTables(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load percentile bins: %w", err)
	}
	if len(assocs) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: station/zone associations are empty", ErrNoReference)
	}
	if len(bins) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: percentile bin tables are empty", ErrNoReference)
	}
	r.logger.Info("runner: reference data loaded",
		"stations", len(stations), "associations", len(assocs), "bin_tables", len(bins))
	return stations, assocs, bins, nil
}

func (r *Runner) loadSeries(ctx context.Context, run *store.AnalysisRun, w models.Window, httpStatus *int) (*models.Series, error) {
	var readings []models.Reading

	switch r.cfg.Source {
	case SourceStore:
		cached, err := r.store.Readings(ctx, w.ObsStart, w.ForecastEnd)
		if err != nil {
			return nil, fmt.Errorf("load cached readings: %w", err)
		}
		readings = cached

	case SourceFEMS:
		if r.fetcher == nil {
			return nil, fmt.Errorf("source %q: no feed client configured", SourceFEMS)
		}
		res, err := retry.Value(ctx, r.cfg.Retry, "fetch nfdr", func(ctx context.Context) (*fems.FetchResult, error) {
			res, err := r.fetcher.Fetch(ctx, w.ObsStart, w.ForecastEnd)
			if res != nil {
				*httpStatus = res.HTTPStatus
			}
			return res, err
		})
		if err != nil {
			return nil, err
		}
		if res.ParseErrors > 0 {
			r.logger.Warn("runner: feed records skipped", "count", res.ParseErrors, "first_error", res.ParseError)
		}
		readings = res.Readings
		r.archive(ctx, run, res.Raw)

	default:
		return nil, fmt.Errorf("unknown source %q", r.cfg.Source)
	}

	series := models.NewSeries(readings)
	if series.Len() == 0 {
		return nil, fmt.Errorf("%w %s..%s", ErrNoSeries, w.ObsStart.Format("2006-01-02"), w.ForecastEnd.Format("2006-01-02"))
	}

	if r.cfg.Source == SourceFEMS {
		if n, err := r.store.UpsertReadings(ctx, series.Readings()); err != nil {
			r.logger.Warn("runner: failed to cache readings", "error", err)
		} else {
			r.logger.Info("runner: readings cached", "count", n)
		}
	}
	return series, nil
}

func (r *Runner) archive(ctx context.Context, run *store.AnalysisRun, raw []byte) {
	if len(raw) == 0 {
		return
	}
	var runID *int64
	if run != nil {
		runID = &run.ID
	}
	id, err := r.store.StoreRawPayload(ctx, runID, SourceFEMS, fems.Endpoint, raw)
	if err != nil {
		r.logger.Warn("runner: failed to archive raw payload", "error", err)
		return
	}
	if id == 0 {
		r.logger.Info("runner: raw payload unchanged since last fetch")
	}
}

// publish writes both tables to every publisher. Each table is retried on its
// own; a failure does not stop the remaining publishes.
func (r *Runner) publish(ctx context.Context, sum *Summary, stations []models.StationRow, zones []models.ZoneRow) error {
	var errs []error
	for _, p := range r.publishers {
		tables := []struct {
			name string
			fn   func(ctx context.Context) error
		}{
			{publish.StationTable, func(ctx context.Context) error { return p.PublishStations(ctx, stations) }},
			{publish.ZoneTable, func(ctx context.Context) error { return p.PublishZones(ctx, zones) }},
		}
		for _, t := range tables {
			label := p.Name() + "/" + t.name
			if err := r.cfg.Retry.Do(ctx, "publish "+label, t.fn); err != nil {
				metrics.PublishTotal.WithLabelValues(p.Name(), t.name, "error").Inc()
				r.logger.Error("runner: publish failed", "sink", p.Name(), "table", t.name, "error", err)
				sum.Failed = append(sum.Failed, label)
				errs = append(errs, err)
				continue
			}
			metrics.PublishTotal.WithLabelValues(p.Name(), t.name, "ok").Inc()
			r.logger.Info("runner: published", "sink", p.Name(), "table", t.name)
			sum.Published = append(sum.Published, label)
		}
	}
	return errors.Join(errs...)
}

func nullInt(v int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(v), Valid: v != 0}
}
