package model

import "strings"

// BusinessStatus is the provider-reported operating state of a place.
type BusinessStatus string

const (
	BusinessOperational       BusinessStatus = "operational"
	BusinessClosedTemporarily BusinessStatus = "closed_temporarily"
	BusinessClosedPermanently BusinessStatus = "closed_permanently"
	BusinessUnknown           BusinessStatus = "unknown"
)

// ParseBusinessStatus maps a Places API business_status value.
func ParseBusinessStatus(s string) BusinessStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OPERATIONAL":
		return BusinessOperational
	case "CLOSED_TEMPORARILY":
		return BusinessClosedTemporarily
	case "CLOSED_PERMANENTLY":
		return BusinessClosedPermanently
	default:
		return BusinessUnknown
	}
}

// CandidateRecord is a validated search hit. The extractor only builds
// records with every field present.
type CandidateRecord struct {
	PlaceID        string         `json:"place_id,omitempty" yaml:"place_id,omitempty"`
	Name           string         `json:"name" yaml:"name"`
	Coordinate     Coordinate     `json:"coordinate" yaml:"coordinate"`
	BusinessStatus BusinessStatus `json:"business_status" yaml:"business_status"`
}

// EnrichedRecord is a candidate with its auxiliary amenity counts attached.
// Partial is set when one of the counts fell back to zero after a failed
// auxiliary search.
type EnrichedRecord struct {
	CandidateRecord `yaml:",inline"`
	RestaurantCount int  `json:"restaurant_count" yaml:"restaurant_count"`
	ProvisionsCount int  `json:"provisions_count" yaml:"provisions_count"`
	Partial         bool `json:"partial,omitempty" yaml:"partial,omitempty"`
}

// ClusterAssignment places an enriched record in cluster [0, k-1].
type ClusterAssignment struct {
	EnrichedRecord `yaml:",inline"`
	ClusterID      int `json:"cluster_id" yaml:"cluster_id"`
}

// AmenityLevel is the tier derived from a cluster's mean restaurant count.
type AmenityLevel string

const (
	AmenityLow      AmenityLevel = "Low"
	AmenityModerate AmenityLevel = "Moderate"
	AmenityHigh     AmenityLevel = "High"
)

// Color is the marker color used when rendering the tier.
func (l AmenityLevel) Color() string {
	switch l {
	case AmenityHigh:
		return "green"
	case AmenityModerate:
		return "yellow"
	default:
		return "red"
	}
}

// CategorizedRecord is the terminal record handed to renderers.
type CategorizedRecord struct {
	ClusterAssignment `yaml:",inline"`
	AmenityLevel      AmenityLevel `json:"amenity_level" yaml:"amenity_level"`
}

// ClusterSummary describes one cluster after classification.
type ClusterSummary struct {
	ClusterID       int          `json:"cluster_id" yaml:"cluster_id"`
	Size            int          `json:"size" yaml:"size"`
	MeanRestaurants float64      `json:"mean_restaurants" yaml:"mean_restaurants"`
	MeanProvisions  float64      `json:"mean_provisions" yaml:"mean_provisions"`
	AmenityLevel    AmenityLevel `json:"amenity_level" yaml:"amenity_level"`
	Centroid        Coordinate   `json:"centroid" yaml:"centroid"`
}
