package publish

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/go-redis/redis/v8"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/firetrends/internal/models"
)

var stamp = models.Stamp{Date: "2025-09-11", Time: "0600"}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr(v float64) *float64 { return &v }

func sampleStations() []models.StationRow {
	inc := "Increase"
	return []models.StationRow{
		{StationID: "20226", StationName: "Aspen", ERC: ptr(44), ERCPercentile: ptr(90), ERCTrend: &inc, UpdateDate: stamp.Date, UpdateTime: stamp.Time},
		{StationID: "20227", StationName: "Bear Creek", UpdateDate: stamp.Date, UpdateTime: stamp.Time},
	}
}

func sampleZones() []models.ZoneRow {
	return []models.ZoneRow{{ZoneID: "NR01", AvgERC: ptr(25), Stations: 2, UpdateDate: stamp.Date, UpdateTime: stamp.Time}}
}

type fakeWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafka_PublishStations(t *testing.T) {
	w := &fakeWriter{}
	k := newKafka(w, quietLogger())

	require.NoError(t, k.PublishStations(context.Background(), sampleStations()))
	require.Len(t, w.msgs, 2)

	msg := w.msgs[0]
	assert.Equal(t, []byte("20226"), msg.Key)
	assert.Equal(t, "table", msg.Headers[0].Key)
	assert.Equal(t, []byte(StationTable), msg.Headers[0].Value)
	assert.Equal(t, []byte("2025-09-11"), msg.Headers[1].Value)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, 44.0, decoded["erc"])
	assert.Equal(t, "Increase", decoded["erc_trend"])
	assert.Nil(t, decoded["bi"])
	assert.Equal(t, "0600", decoded["update_time"])

	require.NoError(t, k.Close())
	assert.True(t, w.closed)
}

func TestKafka_PublishZonesAndErrors(t *testing.T) {
	w := &fakeWriter{}
	k := newKafka(w, quietLogger())

	require.NoError(t, k.PublishZones(context.Background(), sampleZones()))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("NR01"), w.msgs[0].Key)
	assert.Contains(t, string(w.msgs[0].Value), `"stations":2`)

	require.NoError(t, k.PublishZones(context.Background(), nil), "empty table writes nothing")

	w.err = errors.New("broker down")
	err := k.PublishZones(context.Background(), sampleZones())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zone_trends")
}

type fakePipe struct {
	redis.Pipeliner
	added []*redis.XAddArgs
}

func (p *fakePipe) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	p.added = append(p.added, a)
	return redis.NewStringCmd(ctx)
}

type fakeRedis struct {
	pipe  *fakePipe
	execs int
	err   error
}

func (f *fakeRedis) TxPipelined(_ context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	f.execs++
	if err := fn(f.pipe); err != nil {
		return nil, err
	}
	return nil, f.err
}

func (f *fakeRedis) Close() error { return nil }

func TestRedisStream_OneTransactionPerTable(t *testing.T) {
	client := &fakeRedis{pipe: &fakePipe{}}
	r := newRedisStream(client, "fire_trends", quietLogger())

	require.NoError(t, r.PublishStations(context.Background(), sampleStations()))
	require.NoError(t, r.PublishZones(context.Background(), sampleZones()))

	assert.Equal(t, 2, client.execs)
	require.Len(t, client.pipe.added, 3)

	first := client.pipe.added[0]
	assert.Equal(t, "fire_trends", first.Stream)
	values := first.Values.(map[string]interface{})
	assert.Equal(t, StationTable, values["table"])
	assert.Equal(t, "20226", values["key"])
	assert.Contains(t, values["data"], `"station_name":"Aspen"`)

	zone := client.pipe.added[2].Values.(map[string]interface{})
	assert.Equal(t, ZoneTable, zone["table"])
	assert.Equal(t, "NR01", zone["key"])
}

func TestRedisStream_ExecError(t *testing.T) {
	client := &fakeRedis{pipe: &fakePipe{}, err: errors.New("EXECABORT")}
	r := newRedisStream(client, "fire_trends", quietLogger())

	err := r.PublishStations(context.Background(), sampleStations())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EXECABORT")
}

type fakeTables struct {
	stations []models.StationRow
	zones    []models.ZoneRow
}

func (f *fakeTables) PublishStations(_ context.Context, rows []models.StationRow) error {
	f.stations = rows
	return nil
}

func (f *fakeTables) PublishZones(_ context.Context, rows []models.ZoneRow) error {
	f.zones = rows
	return nil
}

func TestSQLite_DelegatesToStore(t *testing.T) {
	tables := &fakeTables{}
	var p Publisher = NewSQLite(tables)

	assert.Equal(t, "sqlite", p.Name())
	require.NoError(t, p.PublishStations(context.Background(), sampleStations()))
	require.NoError(t, p.PublishZones(context.Background(), sampleZones()))
	assert.Len(t, tables.stations, 2)
	assert.Len(t, tables.zones, 1)
	assert.NoError(t, p.Close())
}

func dbTags(v any) []string {
	var tags []string
	typ := reflect.TypeOf(v)
	for i := 0; i < typ.NumField(); i++ {
		if tag := typ.Field(i).Tag.Get("db"); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func TestPostgresUpsertsBindEveryColumn(t *testing.T) {
	for _, tag := range dbTags(models.StationRow{}) {
		assert.Contains(t, upsertStationSQL, ":"+tag, "station upsert missing %s", tag)
		assert.Contains(t, postgresSchema, tag)
	}
	for _, tag := range dbTags(models.ZoneRow{}) {
		assert.Contains(t, upsertZoneSQL, ":"+tag, "zone upsert missing %s", tag)
		assert.Contains(t, postgresSchema, tag)
	}
}

func TestPostgres_Integration(t *testing.T) {
	dsn := os.Getenv("FIRETRENDS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FIRETRENDS_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	p, err := OpenPostgres(ctx, dsn, quietLogger())
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.PublishStations(ctx, sampleStations()))
	require.NoError(t, p.PublishZones(ctx, sampleZones()))

	var name string
	require.NoError(t, p.db.GetContext(ctx, &name, `SELECT station_name FROM station_trends WHERE station_id = $1`, "20226"))
	assert.Equal(t, "Aspen", name)

	var trend *string
	require.NoError(t, p.db.GetContext(ctx, &trend, `SELECT bi_trend FROM station_trends WHERE station_id = $1`, "20227"))
	assert.Nil(t, trend)
	assert.True(t, strings.HasPrefix(p.Name(), "postgres"))
}
