package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"

	"github.com/lox/firetrends/internal/models"
)

type txPipeliner interface {
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
	Close() error
}

// RedisStream appends one stream entry per result row. A table is written
// inside a single MULTI/EXEC so readers never see half of it.
type RedisStream struct {
	client txPipeliner
	stream string
	logger *slog.Logger
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

func NewRedisStream(opts RedisOptions, logger *slog.Logger) *RedisStream {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return newRedisStream(client, opts.Stream, logger)
}

func newRedisStream(client txPipeliner, stream string, logger *slog.Logger) *RedisStream {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStream{client: client, stream: stream, logger: logger}
}

func (r *RedisStream) Name() string { return "redis" }

func (r *RedisStream) PublishStations(ctx context.Context, rows []models.StationRow) error {
	entries := make([]*redis.XAddArgs, len(rows))
	for i := range rows {
		args, err := streamEntry(r.stream, StationTable, rows[i].StationID, rows[i])
		if err != nil {
			return err
		}
		entries[i] = args
	}
	return r.add(ctx, StationTable, entries)
}

func (r *RedisStream) PublishZones(ctx context.Context, rows []models.ZoneRow) error {
	entries := make([]*redis.XAddArgs, len(rows))
	for i := range rows {
		args, err := streamEntry(r.stream, ZoneTable, rows[i].ZoneID, rows[i])
		if err != nil {
			return err
		}
		entries[i] = args
	}
	return r.add(ctx, ZoneTable, entries)
}

func (r *RedisStream) add(ctx context.Context, table string, entries []*redis.XAddArgs) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, args := range entries {
			pipe.XAdd(ctx, args)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("xadd %s to %s: %w", table, r.stream, err)
	}
	r.logger.Info("redis: table published", "table", table, "stream", r.stream, "entries", len(entries))
	return nil
}

func (r *RedisStream) Close() error {
	return r.client.Close()
}

func streamEntry(stream, table, key string, row any) (*redis.XAddArgs, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("serialize %s row %s: %w", table, key, err)
	}
	return &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"table": table,
			"key":   key,
			"data":  string(data),
		},
	}, nil
}
