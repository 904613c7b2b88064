package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FeedCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firetrends_feed_calls_total",
			Help: "Total climatology feed calls",
		},
		[]string{"source", "status"},
	)

	FeedLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "firetrends_feed_latency_seconds",
			Help:    "Climatology feed call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	ReadingsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "firetrends_readings_fetched_total",
			Help: "Total station/day readings returned by the feed",
		},
	)

	PercentileLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firetrends_percentile_lookups_total",
			Help: "Percentile lookups by index and outcome",
		},
		[]string{"index", "outcome"},
	)

	TrendsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firetrends_trends_classified_total",
			Help: "Trend classifications by scope, index and label",
		},
		[]string{"scope", "index", "trend"},
	)

	StationsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "firetrends_stations_processed_total",
			Help: "Total station results computed",
		},
	)

	ZonesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "firetrends_zones_processed_total",
			Help: "Total zone results computed",
		},
	)

	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firetrends_retry_attempts_total",
			Help: "Failed attempts of external operations that were retried",
		},
		[]string{"operation"},
	)

	PublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firetrends_publish_total",
			Help: "Result table publishes by sink, table and outcome",
		},
		[]string{"sink", "table", "outcome"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "firetrends_run_duration_seconds",
			Help:    "Duration of a complete analysis run",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	LastRunSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "firetrends_last_run_success",
			Help: "1 when the last run published every table, 0 otherwise",
		},
	)
)
