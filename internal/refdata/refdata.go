// Package refdata loads the station, zone and percentile-table reference
// data from a YAML file into the store.
package refdata

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lox/firetrends/internal/models"
)

type BinRow struct {
	GreaterThanEqualTo float64 `yaml:"gte"`
	LessThan           float64 `yaml:"lt"`
	Percentile         float64 `yaml:"percentile"`
}

type Station struct {
	ID     string              `yaml:"id"`
	Name   string              `yaml:"name"`
	Zone   string              `yaml:"zone"`
	Active *bool               `yaml:"active"`
	Bins   map[string][]BinRow `yaml:"bins"`
}

func (s Station) IsActive() bool {
	return s.Active == nil || *s.Active
}

// File is the top-level reference document.
type File struct {
	Stations []Station `yaml:"stations"`
}

// Target receives reference data. *store.Store satisfies it.
type Target interface {
	UpsertStation(ctx context.Context, st models.Station, active bool) error
	ReplaceAssociations(ctx context.Context, assocs []models.Association) error
	ReplaceBins(ctx context.Context, stationID string, idx models.Index, bins []models.Bin) error
}

// Summary counts what Apply wrote.
type Summary struct {
	Stations     int
	Associations int
	BinTables    int
	Bins         int
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference file %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse reference data: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	if len(f.Stations) == 0 {
		return fmt.Errorf("stations cannot be empty")
	}
	seen := make(map[string]bool, len(f.Stations))
	for i, st := range f.Stations {
		if st.ID == "" {
			return fmt.Errorf("stations[%d]: id is required", i)
		}
		if seen[st.ID] {
			return fmt.Errorf("station %s: duplicate id", st.ID)
		}
		seen[st.ID] = true
		for name, rows := range st.Bins {
			if !knownIndex(name) {
				return fmt.Errorf("station %s: unknown index %q (want ERC or BI)", st.ID, name)
			}
			for j, b := range rows {
				if b.LessThan <= b.GreaterThanEqualTo {
					return fmt.Errorf("station %s %s bin %d: lt %v must be above gte %v", st.ID, name, j, b.LessThan, b.GreaterThanEqualTo)
				}
				if b.Percentile < 0 || b.Percentile > 100 {
					return fmt.Errorf("station %s %s bin %d: percentile %v out of range", st.ID, name, j, b.Percentile)
				}
			}
		}
	}
	return nil
}

func knownIndex(name string) bool {
	for _, idx := range models.Indexes {
		if string(idx) == name {
			return true
		}
	}
	return false
}

// Associations returns the station-to-zone rows for stations that name a zone.
func (f *File) Associations() []models.Association {
	var out []models.Association
	for _, st := range f.Stations {
		if st.Zone == "" {
			continue
		}
		out = append(out, models.Association{StationID: st.ID, StationName: st.Name, ZoneID: st.Zone})
	}
	return out
}

// Apply writes the file into target. Bin tables are replaced per station and
// index; the association table is replaced wholesale.
func (f *File) Apply(ctx context.Context, target Target) (Summary, error) {
	var sum Summary
	for _, st := range f.Stations {
		if err := target.UpsertStation(ctx, models.Station{StationID: st.ID, Name: st.Name}, st.IsActive()); err != nil {
			return sum, fmt.Errorf("station %s: %w", st.ID, err)
		}
		sum.Stations++

		for _, idx := range models.Indexes {
			rows, ok := st.Bins[string(idx)]
			if !ok {
				continue
			}
			bins := make([]models.Bin, 0, len(rows))
			for _, b := range rows {
				bins = append(bins, models.Bin{Lower: b.GreaterThanEqualTo, Upper: b.LessThan, Percentile: b.Percentile})
			}
			if err := target.ReplaceBins(ctx, st.ID, idx, bins); err != nil {
				return sum, fmt.Errorf("station %s %s bins: %w", st.ID, idx, err)
			}
			sum.BinTables++
			sum.Bins += len(bins)
		}
	}

	assocs := f.Associations()
	if err := target.ReplaceAssociations(ctx, assocs); err != nil {
		return sum, fmt.Errorf("associations: %w", err)
	}
	sum.Associations = len(assocs)
	return sum, nil
}
