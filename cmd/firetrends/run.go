package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lox/firetrends/internal/analysis"
	"github.com/lox/firetrends/internal/fems"
	"github.com/lox/firetrends/internal/metrics"
	"github.com/lox/firetrends/internal/publish"
	"github.com/lox/firetrends/internal/retry"
	"github.com/lox/firetrends/internal/runlog"
	"github.com/lox/firetrends/internal/runner"
	"github.com/lox/firetrends/internal/store"
)

type RunCmd struct {
	Source    string `default:"fems" enum:"fems,store" env:"FIRETRENDS_SOURCE" help:"Where the index series comes from: the FEMS feed or the local cache."`
	Date      string `env:"FIRETRENDS_DATE" help:"Run date (YYYY-MM-DD) instead of today."`
	Hour      int    `default:"-1" env:"FIRETRENDS_HOUR" help:"Hour (0-23) for the update stamp instead of the current hour."`
	LogDir    string `default:"logs" env:"FIRETRENDS_LOG_DIR" help:"Directory for the per-run log file (empty for console only)."`
	FEMSURL   string `name:"fems-url" default:"${fems_url}" env:"FIRETRENDS_FEMS_URL" help:"FEMS climatology GraphQL endpoint."`
	FuelModel string `default:"Y" env:"FIRETRENDS_FUEL_MODEL" help:"NFDRS fuel model to query."`
	Workers   int    `default:"4" env:"FIRETRENDS_WORKERS" help:"Concurrent station and zone tasks."`

	RetryAttempts int           `default:"5" env:"FIRETRENDS_RETRY_ATTEMPTS" help:"Attempts for each fetch and publish."`
	RetryInterval time.Duration `default:"30s" env:"FIRETRENDS_RETRY_INTERVAL" help:"Wait between attempts."`
	RawRetention  time.Duration `default:"2160h" env:"FIRETRENDS_RAW_RETENTION" help:"Delete archived feed payloads older than this (0 keeps everything)."`

	PostgresDSN   string   `name:"postgres-dsn" env:"FIRETRENDS_POSTGRES_DSN" help:"Also publish to this PostgreSQL database."`
	KafkaBrokers  []string `env:"FIRETRENDS_KAFKA_BROKERS" help:"Also publish to Kafka via these brokers."`
	KafkaTopic    string   `default:"fire-trends" env:"FIRETRENDS_KAFKA_TOPIC" help:"Kafka topic for result rows."`
	RedisAddr     string   `env:"FIRETRENDS_REDIS_ADDR" help:"Also publish to a Redis stream at this address."`
	RedisPassword string   `env:"FIRETRENDS_REDIS_PASSWORD" help:"Redis password."`
	RedisDB       int      `default:"0" env:"FIRETRENDS_REDIS_DB" help:"Redis database number."`
	RedisStream   string   `default:"fire_trends" env:"FIRETRENDS_REDIS_STREAM" help:"Redis stream for result rows."`

	PushgatewayURL string `env:"FIRETRENDS_PUSHGATEWAY_URL" help:"Push run metrics to this Prometheus Pushgateway."`
}

func (c *RunCmd) Run(g *Globals) error {
	loc := g.location()
	clock := clockwork.NewRealClock()

	cfg, err := c.runnerConfig(loc)
	if err != nil {
		return err
	}

	runDate := clock.Now().In(loc)
	if !cfg.Date.IsZero() {
		runDate = cfg.Date
	}
	rl, err := runlog.Open(c.LogDir, runDate, os.Stderr, g.LogLevel)
	if err != nil {
		return err
	}
	defer rl.Close()
	logger := rl.Logger
	slog.SetDefault(logger)
	if rl.Path() != "" {
		logger.Info("run log opened", "path", rl.Path())
	}
	cfg.Retry.Logger = logger

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, closeDB, err := g.openStore(loc)
	if err != nil {
		logger.Error("open database", "path", g.DB, "error", err)
		return err
	}
	defer closeDB()

	publishers, err := c.publishers(ctx, st, logger)
	defer func() {
		for _, p := range publishers {
			if cerr := p.Close(); cerr != nil {
				logger.Warn("close publisher", "sink", p.Name(), "error", cerr)
			}
		}
	}()
	if err != nil {
		logger.Error("configure publishers", "error", err)
		return err
	}

	var fetcher runner.Fetcher
	if c.Source == runner.SourceFEMS {
		fetcher = fems.NewClient(c.FEMSURL, c.FuelModel)
	}

	sum, runErr := runner.New(st, fetcher, publishers, clock, logger, cfg).Run(ctx)
	if runErr != nil {
		logger.Error("run failed", "error", runErr)
	}

	if c.RawRetention > 0 {
		deleted, err := st.CleanupOldRawPayloads(ctx, clock.Now().Add(-c.RawRetention))
		if err != nil {
			logger.Warn("cleanup raw payloads", "error", err)
		} else if deleted > 0 {
			logger.Info("cleaned up raw payloads", "deleted", deleted)
		}
	}

	if c.PushgatewayURL != "" {
		if err := metrics.Push(c.PushgatewayURL, "firetrends"); err != nil {
			logger.Warn("push metrics", "error", err)
		}
	}

	if sum != nil && len(sum.SkippedZones) > 0 {
		logger.Info("zones without stations in this run", "zones", sum.SkippedZones)
	}
	return runErr
}

func (c *RunCmd) runnerConfig(loc *time.Location) (runner.Config, error) {
	cfg := runner.Config{
		Source:   c.Source,
		Location: loc,
		Workers:  c.Workers,
		Retry:    retry.Policy{Attempts: c.RetryAttempts, Interval: c.RetryInterval},
	}
	if cfg.Workers <= 0 {
		cfg.Workers = analysis.DefaultWorkers
	}
	if c.Date != "" {
		d, err := time.ParseInLocation("2006-01-02", c.Date, loc)
		if err != nil {
			return cfg, fmt.Errorf("--date: %w", err)
		}
		cfg.Date = d
	}
	if c.Hour >= 0 {
		if c.Hour > 23 {
			return cfg, fmt.Errorf("--hour: %d is not an hour of the day", c.Hour)
		}
		hour := c.Hour
		cfg.Hour = &hour
	}
	return cfg, nil
}

// publishers returns the local sqlite publisher plus every remote sink that
// has been configured. Already-opened publishers are returned alongside an
// error so the caller can close them.
func (c *RunCmd) publishers(ctx context.Context, st *store.Store, logger *slog.Logger) ([]publish.Publisher, error) {
	pubs := []publish.Publisher{publish.NewSQLite(st)}
	var errs []error

	if c.PostgresDSN != "" {
		pg, err := publish.OpenPostgres(ctx, c.PostgresDSN, logger)
		if err != nil {
			errs = append(errs, err)
		} else {
			pubs = append(pubs, pg)
		}
	}
	if len(c.KafkaBrokers) > 0 {
		pubs = append(pubs, publish.NewKafka(c.KafkaBrokers, c.KafkaTopic, logger))
	}
	if c.RedisAddr != "" {
		pubs = append(pubs, publish.NewRedisStream(publish.RedisOptions{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
			Stream:   c.RedisStream,
		}, logger))
	}

	names := make([]string, len(pubs))
	for i, p := range pubs {
		names[i] = p.Name()
	}
	logger.Info("publishers configured", "sinks", names)
	return pubs, errors.Join(errs...)
}
