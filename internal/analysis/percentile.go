package analysis

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lox/firetrends/internal/models"
)

const (
	// MinPercentile is reported for values below the lowest bin. Zero is avoided on purpose.
	MinPercentile = 0.01
	// MaxPercentile is reported for values at or above the highest bin's upper bound.
	MaxPercentile = 100.0
)

var (
	ErrNoBins        = errors.New("no percentile bins")
	ErrNoMatchingBin = errors.New("no matching percentile bin")
)

// Lookup maps value onto the bin table. A null value yields a null percentile.
// Values inside the table range that hit no bin return ErrNoMatchingBin.
func Lookup(value sql.NullFloat64, bins []models.Bin) (sql.NullFloat64, error) {
	if !value.Valid {
		return sql.NullFloat64{}, nil
	}
	if len(bins) == 0 {
		return sql.NullFloat64{}, ErrNoBins
	}

	v := value.Float64
	lo, hi := bins[0].Lower, bins[0].Upper
	for _, b := range bins[1:] {
		lo = min(lo, b.Lower)
		hi = max(hi, b.Upper)
	}

	switch {
	case v < lo:
		return sql.NullFloat64{Float64: MinPercentile, Valid: true}, nil
	case v >= hi:
		return sql.NullFloat64{Float64: MaxPercentile, Valid: true}, nil
	}

	for _, b := range bins {
		if b.Lower <= v && v < b.Upper {
			return sql.NullFloat64{Float64: b.Percentile, Valid: true}, nil
		}
	}
	return sql.NullFloat64{}, fmt.Errorf("%w for %v in [%v, %v)", ErrNoMatchingBin, v, lo, hi)
}
