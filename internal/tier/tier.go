// Package tier labels clusters Low, Moderate or High by their mean
// restaurant count.
package tier

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/amenity-cli/internal/model"
)

// Default thresholds on cluster mean restaurant count.
const (
	DefaultLowMax      = 5.0
	DefaultModerateMax = 10.0
)

// Thresholds bound the tiers: mean <= LowMax is Low, mean <= ModerateMax is
// Moderate, anything above is High.
type Thresholds struct {
	LowMax      float64
	ModerateMax float64
}

// DefaultThresholds returns the 5 / 10 thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{LowMax: DefaultLowMax, ModerateMax: DefaultModerateMax}
}

// Validate checks that the thresholds are ordered.
func (t Thresholds) Validate() error {
	if t.LowMax < 0 || t.ModerateMax < t.LowMax {
		return eris.Wrapf(model.ErrInvalidParameter, "tier: thresholds low_max=%v moderate_max=%v", t.LowMax, t.ModerateMax)
	}
	return nil
}

// Level maps a cluster mean to its tier.
func (t Thresholds) Level(mean float64) model.AmenityLevel {
	switch {
	case mean <= t.LowMax:
		return model.AmenityLow
	case mean <= t.ModerateMax:
		return model.AmenityModerate
	default:
		return model.AmenityHigh
	}
}

// Classifier assigns every member of a cluster the tier of its cluster.
type Classifier struct {
	thresholds Thresholds
}

// NewClassifier creates a Classifier.
func NewClassifier(t Thresholds) *Classifier {
	return &Classifier{thresholds: t}
}

// Classify returns categorized records in input order.
func (c *Classifier) Classify(assignments []model.ClusterAssignment) []model.CategorizedRecord {
	levels := map[int]model.AmenityLevel{}
	for id, s := range aggregate(assignments) {
		levels[id] = c.thresholds.Level(s.meanRestaurants())
	}

	out := make([]model.CategorizedRecord, len(assignments))
	for i, a := range assignments {
		out[i] = model.CategorizedRecord{ClusterAssignment: a, AmenityLevel: levels[a.ClusterID]}
	}
	return out
}

// Summaries reports size, means, centroid and tier per cluster, ordered by
// cluster id.
func (c *Classifier) Summaries(assignments []model.ClusterAssignment) []model.ClusterSummary {
	stats := aggregate(assignments)
	out := make([]model.ClusterSummary, 0, len(stats))
	for id, s := range stats {
		n := float64(s.size)
		out = append(out, model.ClusterSummary{
			ClusterID:       id,
			Size:            s.size,
			MeanRestaurants: s.meanRestaurants(),
			MeanProvisions:  s.provisions / n,
			AmenityLevel:    c.thresholds.Level(s.meanRestaurants()),
			Centroid:        model.Coordinate{Latitude: s.lat / n, Longitude: s.lng / n},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClusterID < out[j].ClusterID })
	return out
}

type clusterStats struct {
	size        int
	restaurants float64
	provisions  float64
	lat, lng    float64
}

func (s clusterStats) meanRestaurants() float64 {
	return s.restaurants / float64(s.size)
}

func aggregate(assignments []model.ClusterAssignment) map[int]clusterStats {
	stats := map[int]clusterStats{}
	for _, a := range assignments {
		s := stats[a.ClusterID]
		s.size++
		s.restaurants += float64(a.RestaurantCount)
		s.provisions += float64(a.ProvisionsCount)
		s.lat += a.Coordinate.Latitude
		s.lng += a.Coordinate.Longitude
		stats[a.ClusterID] = s
	}
	return stats
}
