package cost

import "sync/atomic"

// API names reported by the provider clients.
const (
	APIPlacesNearby = "places_nearby"
	APIGeocode      = "geocode"
)

// Rates holds per-call provider pricing in USD.
type Rates struct {
	PlacesNearby float64 `yaml:"places_nearby" mapstructure:"places_nearby"`
	Geocode      float64 `yaml:"geocode" mapstructure:"geocode"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Nearby computes the cost of n Nearby Search requests.
func (c *Calculator) Nearby(n int64) float64 {
	return float64(n) * c.rates.PlacesNearby
}

// Geocode computes the cost of n geocoding requests.
func (c *Calculator) Geocode(n int64) float64 {
	return float64(n) * c.rates.Geocode
}

// Total computes the combined cost of a run's calls.
func (c *Calculator) Total(nearby, geocode int64) float64 {
	return c.Nearby(nearby) + c.Geocode(geocode)
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		PlacesNearby: 0.032,
		Geocode:      0.005,
	}
}

// Meter counts provider calls. It is safe for concurrent use and satisfies
// the recorder interfaces of the places and geocode clients.
type Meter struct {
	nearby  atomic.Int64
	geocode atomic.Int64
	other   atomic.Int64
}

// RecordCall increments the counter for api.
func (m *Meter) RecordCall(api string) {
	switch api {
	case APIPlacesNearby:
		m.nearby.Add(1)
	case APIGeocode:
		m.geocode.Add(1)
	default:
		m.other.Add(1)
	}
}

// Nearby returns the number of Nearby Search calls recorded.
func (m *Meter) Nearby() int64 { return m.nearby.Load() }

// Geocode returns the number of geocoding calls recorded.
func (m *Meter) Geocode() int64 { return m.geocode.Load() }

// Other returns calls recorded under an unrecognized api name.
func (m *Meter) Other() int64 { return m.other.Load() }
