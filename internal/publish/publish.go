// Package publish writes the station and zone result tables to the
// configured sinks. Every sink applies a table as one unit: a transaction,
// a single batch write, or a MULTI/EXEC block.
package publish

import (
	"context"

	"github.com/lox/firetrends/internal/models"
)

const (
	StationTable = "station_trends"
	ZoneTable    = "zone_trends"
)

// Publisher is one output sink for the result tables.
type Publisher interface {
	Name() string
	PublishStations(ctx context.Context, rows []models.StationRow) error
	PublishZones(ctx context.Context, rows []models.ZoneRow) error
	Close() error
}

// TableStore is the local store's view of the result tables.
type TableStore interface {
	PublishStations(ctx context.Context, rows []models.StationRow) error
	PublishZones(ctx context.Context, rows []models.ZoneRow) error
}

// SQLite publishes into the job's own database. The caller owns the
// underlying connection, so Close is a no-op.
type SQLite struct {
	store TableStore
}

func NewSQLite(store TableStore) *SQLite {
	return &SQLite{store: store}
}

func (s *SQLite) Name() string { return "sqlite" }

func (s *SQLite) PublishStations(ctx context.Context, rows []models.StationRow) error {
	return s.store.PublishStations(ctx, rows)
}

func (s *SQLite) PublishZones(ctx context.Context, rows []models.ZoneRow) error {
	return s.store.PublishZones(ctx, rows)
}

func (s *SQLite) Close() error { return nil }
