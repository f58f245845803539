package cluster

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/amenity-cli/internal/model"
)

// Scaling selects how feature columns are normalized before clustering.
type Scaling string

// Supported scalings.
const (
	// ScalingNone clusters raw values, so the count columns dominate
	// geography for typical inputs.
	ScalingNone   Scaling = "none"
	ScalingMinMax Scaling = "minmax"
	ScalingZScore Scaling = "zscore"
)

// ParseScaling validates a scaling name. Empty selects ScalingZScore.
func ParseScaling(s string) (Scaling, error) {
	switch Scaling(s) {
	case "":
		return ScalingZScore, nil
	case ScalingNone, ScalingMinMax, ScalingZScore:
		return Scaling(s), nil
	default:
		return "", eris.Wrapf(model.ErrInvalidParameter, "cluster: unknown scaling %q", s)
	}
}

// features returns one row per record: latitude, longitude, restaurant
// count, provisions count.
func features(records []model.EnrichedRecord) [][]float64 {
	rows := make([][]float64, len(records))
	for i, r := range records {
		rows[i] = []float64{
			r.Coordinate.Latitude,
			r.Coordinate.Longitude,
			float64(r.RestaurantCount),
			float64(r.ProvisionsCount),
		}
	}
	return rows
}

// scale normalizes rows in place. Constant columns become 0.
func scale(rows [][]float64, s Scaling) {
	if len(rows) == 0 || s == ScalingNone {
		return
	}
	dims := len(rows[0])
	for j := 0; j < dims; j++ {
		switch s {
		case ScalingMinMax:
			lo, hi := math.Inf(1), math.Inf(-1)
			for _, r := range rows {
				lo = math.Min(lo, r[j])
				hi = math.Max(hi, r[j])
			}
			span := hi - lo
			for _, r := range rows {
				if span == 0 {
					r[j] = 0
				} else {
					r[j] = (r[j] - lo) / span
				}
			}
		case ScalingZScore:
			var mean float64
			for _, r := range rows {
				mean += r[j]
			}
			mean /= float64(len(rows))
			var variance float64
			for _, r := range rows {
				d := r[j] - mean
				variance += d * d
			}
			std := math.Sqrt(variance / float64(len(rows)))
			for _, r := range rows {
				if std == 0 {
					r[j] = 0
				} else {
					r[j] = (r[j] - mean) / std
				}
			}
		}
	}
}
