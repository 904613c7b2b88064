package analysis

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lox/firetrends/internal/metrics"
	"github.com/lox/firetrends/internal/models"
)

const DefaultWorkers = 4

// Input is everything one analysis pass reads.
type Input struct {
	// Stations to process. When empty every associated station is processed.
	Stations     []models.Station
	Associations []models.Association
	Bins         models.BinTables
	Series       *models.Series
	Window       models.Window
}

// Output holds the result tables, ordered by station ID and zone ID.
type Output struct {
	Stations     []models.StationResult
	Zones        []models.ZoneResult
	SkippedZones []string
	Diagnostics  []Diagnostic
}

// Analyzer runs station processing and then zone aggregation. Both stages fan
// out across a bounded number of goroutines; each task writes only its own slot.
type Analyzer struct {
	stations *StationProcessor
	zones    *ZoneAggregator
	logger   *slog.Logger
	workers  int
}

func NewAnalyzer(logger *slog.Logger, workers int) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Analyzer{
		stations: NewStationProcessor(logger),
		zones:    NewZoneAggregator(logger),
		logger:   logger,
		workers:  workers,
	}
}

func (a *Analyzer) Run(ctx context.Context, in Input) (*Output, error) {
	stations := in.Stations
	if len(stations) == 0 {
		stations = StationsOf(in.Associations)
	} else {
		stations = append([]models.Station(nil), stations...)
		sort.Slice(stations, func(i, j int) bool { return stations[i].StationID < stations[j].StationID })
	}
	out := &Output{Stations: make([]models.StationResult, len(stations))}

	a.logger.Info("analysis: station percentiles and trends", "stations", len(stations))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, st := range stations {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, diags := a.stations.Process(st, in.Series, in.Bins, in.Window)
			out.Stations[i] = res
			if len(diags) > 0 {
				mu.Lock()
				out.Diagnostics = append(out.Diagnostics, diags...)
				mu.Unlock()
			}
			metrics.StationsProcessed.Inc()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.SliceStable(out.Diagnostics, func(i, j int) bool {
		return out.Diagnostics[i].StationID < out.Diagnostics[j].StationID
	})

	byStation := make(map[string]models.StationResult, len(out.Stations))
	for _, r := range out.Stations {
		byStation[r.StationID] = r
	}

	zoneIDs, members := ZoneMembers(in.Associations)
	a.logger.Info("analysis: zone percentiles and trends", "zones", len(zoneIDs))

	zones := make([]*models.ZoneResult, len(zoneIDs))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, zoneID := range zoneIDs {
		var results []models.StationResult
		for _, id := range members[zoneID] {
			if r, ok := byStation[id]; ok {
				results = append(results, r)
			}
		}
		if len(results) == 0 {
			a.logger.Warn("zone: no member stations in this run, skipping", "zone", zoneID)
			out.SkippedZones = append(out.SkippedZones, zoneID)
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			zr := a.zones.Aggregate(zoneID, results)
			zones[i] = &zr
			metrics.ZonesProcessed.Inc()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, z := range zones {
		if z != nil {
			out.Zones = append(out.Zones, *z)
		}
	}

	return out, nil
}

// StationsOf returns the distinct stations in the associations, sorted by ID.
func StationsOf(assocs []models.Association) []models.Station {
	seen := make(map[string]bool)
	var stations []models.Station
	for _, a := range assocs {
		if seen[a.StationID] {
			continue
		}
		seen[a.StationID] = true
		stations = append(stations, models.Station{StationID: a.StationID, Name: a.StationName})
	}
	sort.Slice(stations, func(i, j int) bool { return stations[i].StationID < stations[j].StationID })
	return stations
}

// ZoneMembers returns the sorted zone IDs, excluding the non-zone sentinel,
// and each zone's member station IDs.
func ZoneMembers(assocs []models.Association) ([]string, map[string][]string) {
	members := make(map[string][]string)
	seen := make(map[[2]string]bool)
	for _, a := range assocs {
		if a.ZoneID == "" || a.ZoneID == models.NonZone {
			continue
		}
		k := [2]string{a.ZoneID, a.StationID}
		if seen[k] {
			continue
		}
		seen[k] = true
		members[a.ZoneID] = append(members[a.ZoneID], a.StationID)
	}
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, members
}
