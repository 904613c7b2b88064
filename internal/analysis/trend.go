package analysis

import (
	"database/sql"

	"github.com/lox/firetrends/internal/models"
)

// TrendThreshold is the index-point change needed to call a trend, for both ERC and BI.
const TrendThreshold = 3.0

// Classify labels the change from start to end. Either side missing gives TrendUnknown.
func Classify(start, end sql.NullFloat64) models.Trend {
	if !start.Valid || !end.Valid {
		return models.TrendUnknown
	}
	delta := end.Float64 - start.Float64
	switch {
	case delta >= TrendThreshold:
		return models.TrendIncrease
	case delta <= -TrendThreshold:
		return models.TrendDecrease
	default:
		return models.TrendNoChange
	}
}
