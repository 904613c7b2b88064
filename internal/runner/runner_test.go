package runner

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/lox/firetrends/internal/fems"
	"github.com/lox/firetrends/internal/models"
	"github.com/lox/firetrends/internal/publish"
	"github.com/lox/firetrends/internal/retry"
	"github.com/lox/firetrends/internal/store"
)

var now = time.Date(2025, 9, 11, 12, 30, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastRetry() retry.Policy {
	return retry.Policy{Attempts: 3, Interval: time.Millisecond, Logger: quietLogger()}
}

func day(d int) time.Time { return time.Date(2025, 9, d, 0, 0, 0, 0, time.UTC) }

func nf(v float64) sql.NullFloat64 { return sql.NullFloat64{Float64: v, Valid: true} }

func setupStore(t *testing.T, seed bool) *store.Store {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := store.New(db, time.UTC)
	require.NoError(t, s.Migrate())
	if !seed {
		return s
	}

	ctx := context.Background()
	bins := []models.Bin{
		{Lower: 0, Upper: 10, Percentile: 10},
		{Lower: 10, Upper: 20, Percentile: 50},
		{Lower: 20, Upper: 30, Percentile: 90},
	}
	for _, id := range []string{"A", "B"} {
		require.NoError(t, s.UpsertStation(ctx, models.Station{StationID: id, Name: "Station " + id}, true))
		for _, idx := range models.Indexes {
			require.NoError(t, s.ReplaceBins(ctx, id, idx, bins))
		}
	}
	require.NoError(t, s.ReplaceAssociations(ctx, []models.Association{
		{StationID: "A", StationName: "Station A", ZoneID: "Z1"},
		{StationID: "B", StationName: "Station B", ZoneID: "Z1"},
	}))
	return s
}

func sampleReadings() []models.Reading {
	return []models.Reading{
		{StationID: "A", Date: day(8), NFDRType: "O", ERC: nf(10), BI: nf(5)},
		{StationID: "A", Date: day(10), NFDRType: "O", ERC: nf(15), BI: nf(6)},
		{StationID: "A", Date: day(11), NFDRType: "F", ERC: nf(25), BI: nf(7)},
		{StationID: "A", Date: day(13), NFDRType: "F", ERC: nf(26), BI: nf(2)},
	}
}

type fakeFetcher struct {
	calls    int
	failures int
	err      error
	res      *fems.FetchResult
	start    time.Time
	end      time.Time
}

func (f *fakeFetcher) Fetch(_ context.Context, start, end time.Time) (*fems.FetchResult, error) {
	f.calls++
	f.start, f.end = start, end
	if f.err != nil {
		return &fems.FetchResult{HTTPStatus: 400}, f.err
	}
	if f.calls <= f.failures {
		return &fems.FetchResult{HTTPStatus: 502}, errors.New("fetch nfdr: status 502")
	}
	return f.res, nil
}

type fakePublisher struct {
	name      string
	stations  []models.StationRow
	zones     []models.ZoneRow
	zoneErr   error
	zoneCalls int
}

func (p *fakePublisher) Name() string { return p.name }

func (p *fakePublisher) PublishStations(_ context.Context, rows []models.StationRow) error {
	p.stations = rows
	return nil
}

func (p *fakePublisher) PublishZones(_ context.Context, rows []models.ZoneRow) error {
	p.zoneCalls++
	if p.zoneErr != nil {
		return p.zoneErr
	}
	p.zones = rows
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func newRunner(st Store, f Fetcher, pubs []publish.Publisher, cfg Config) *Runner {
	cfg.Retry = fastRetry()
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return New(st, f, pubs, clockwork.NewFakeClockAt(now), quietLogger(), cfg)
}

func TestRun_FetchAnalyzePublish(t *testing.T) {
	s := setupStore(t, true)
	fetcher := &fakeFetcher{
		failures: 1,
		res:      &fems.FetchResult{Readings: sampleReadings(), Raw: []byte(`{"data":{}}`), HTTPStatus: 200},
	}
	pub := &fakePublisher{name: "fake"}

	r := newRunner(s, fetcher, []publish.Publisher{publish.NewSQLite(s), pub}, Config{Source: SourceFEMS})
	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, fetcher.calls, "one retry after a 502")
	assert.Equal(t, day(8), fetcher.start)
	assert.Equal(t, day(13), fetcher.end)

	assert.Equal(t, models.Stamp{Date: "2025-09-11", Time: "1200"}, sum.Stamp)
	assert.Equal(t, 4, sum.Readings)
	assert.Equal(t, 2, sum.Stations)
	assert.Equal(t, 1, sum.Zones)
	assert.ElementsMatch(t, []string{"sqlite/station_trends", "sqlite/zone_trends", "fake/station_trends", "fake/zone_trends"}, sum.Published)
	assert.Empty(t, sum.Failed)

	require.Len(t, pub.stations, 2)
	a := pub.stations[0]
	assert.Equal(t, "A", a.StationID)
	assert.Equal(t, "Station A", a.StationName)
	require.NotNil(t, a.ERC)
	assert.Equal(t, 15.0, *a.ERC)
	assert.Equal(t, 50.0, *a.ERCPercentile)
	assert.Equal(t, "Increase", *a.ERCTrend)
	assert.Equal(t, 25.0, *a.ERCFcast)
	assert.Equal(t, 90.0, *a.ERCFcastPercentile)
	assert.Equal(t, "No Change", *a.ERCFcastTrend)
	assert.Equal(t, "Decrease", *a.BIFcastTrend)

	b := pub.stations[1]
	assert.Nil(t, b.ERC)
	assert.Nil(t, b.ERCPercentile)
	assert.Nil(t, b.ERCTrend)

	require.Len(t, pub.zones, 1)
	z := pub.zones[0]
	assert.Equal(t, "Z1", z.ZoneID)
	assert.Equal(t, 15.0, *z.AvgERC, "nulls from B are skipped in the mean")
	assert.Equal(t, 2, z.Stations)

	rows, err := s.StationTrends(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	cached, err := s.Readings(context.Background(), day(8), day(13))
	require.NoError(t, err)
	assert.Len(t, cached, 4)

	payload, err := s.GetRawPayloadByHash(context.Background(), store.PayloadHash([]byte(`{"data":{}}`)))
	require.NoError(t, err)
	require.NotNil(t, payload)

	runs, err := s.RecentRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Success)
	assert.Equal(t, int64(200), runs[0].HTTPStatus.Int64)
	assert.Equal(t, payload.AnalysisRunID.Int64, runs[0].ID)
}

func TestRun_PublishFailureDoesNotStopOtherTables(t *testing.T) {
	s := setupStore(t, true)
	fetcher := &fakeFetcher{res: &fems.FetchResult{Readings: sampleReadings(), HTTPStatus: 200}}
	flaky := &fakePublisher{name: "flaky", zoneErr: errors.New("connection reset")}
	good := &fakePublisher{name: "good"}

	r := newRunner(s, fetcher, []publish.Publisher{flaky, good}, Config{})
	sum, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	assert.Equal(t, 3, flaky.zoneCalls, "zone publish retried up to the attempt limit")
	assert.Equal(t, []string{"flaky/zone_trends"}, sum.Failed)
	assert.Len(t, flaky.stations, 2)
	assert.Len(t, good.stations, 2)
	assert.Len(t, good.zones, 1)

	runs, err := s.RecentRuns(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, runs[0].Success)
	assert.Contains(t, runs[0].ErrorMessage.String, "flaky/zone_trends")
	assert.Contains(t, runs[0].Published.String, "good/zone_trends")
}

func TestRun_NoReferenceAbortsBeforeFetch(t *testing.T) {
	s := setupStore(t, false)
	fetcher := &fakeFetcher{res: &fems.FetchResult{Readings: sampleReadings()}}
	pub := &fakePublisher{name: "fake"}

	_, err := newRunner(s, fetcher, []publish.Publisher{pub}, Config{}).Run(context.Background())
	require.ErrorIs(t, err, ErrNoReference)
	assert.Zero(t, fetcher.calls)
	assert.Nil(t, pub.stations)
}

func TestRun_NoSeriesAbortsBeforePublish(t *testing.T) {
	s := setupStore(t, true)
	fetcher := &fakeFetcher{res: &fems.FetchResult{HTTPStatus: 200}}
	pub := &fakePublisher{name: "fake"}

	_, err := newRunner(s, fetcher, []publish.Publisher{pub}, Config{}).Run(context.Background())
	require.ErrorIs(t, err, ErrNoSeries)
	assert.Nil(t, pub.stations)
}

func TestRun_PermanentFetchErrorIsNotRetried(t *testing.T) {
	s := setupStore(t, true)
	fetcher := &fakeFetcher{err: backoff.Permanent(errors.New("fetch nfdr: status 400"))}

	_, err := newRunner(s, fetcher, nil, Config{}).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, fetcher.calls)

	runs, err := s.RecentRuns(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(400), runs[0].HTTPStatus.Int64)
}

func TestRun_ReplayFromStore(t *testing.T) {
	s := setupStore(t, true)
	_, err := s.UpsertReadings(context.Background(), sampleReadings())
	require.NoError(t, err)
	pub := &fakePublisher{name: "fake"}

	sum, err := newRunner(s, nil, []publish.Publisher{pub}, Config{Source: SourceStore}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Readings)
	require.Len(t, pub.stations, 2)
	assert.Equal(t, 50.0, *pub.stations[0].ERCPercentile)
}

func TestRun_UnknownSource(t *testing.T) {
	s := setupStore(t, true)
	_, err := newRunner(s, nil, nil, Config{Source: "ftp"}).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown source "ftp"`)
}

func TestRunAt_Overrides(t *testing.T) {
	denver, err := time.LoadLocation("America/Denver")
	require.NoError(t, err)
	hour := 6

	tests := []struct {
		name      string
		cfg       Config
		wantStamp models.Stamp
		wantObs   time.Time
	}{
		{"clock in UTC", Config{}, models.Stamp{Date: "2025-09-11", Time: "1200"}, day(10)},
		{"clock in Denver", Config{Location: denver}, models.Stamp{Date: "2025-09-11", Time: "0600"}, day(10)},
		{"date and hour override", Config{Date: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), Hour: &hour},
			models.Stamp{Date: "2025-07-01", Time: "0600"}, time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRunner(nil, nil, nil, tt.cfg)
			at := r.RunAt()
			assert.Equal(t, tt.wantStamp, models.StampFor(at))
			assert.Equal(t, tt.wantObs, models.WindowFor(at).ObsEnd)
		})
	}
}
