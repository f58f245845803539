// Package model defines the records that flow through the amenity pipeline.
package model

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Coordinate is a WGS84 latitude/longitude pair.
type Coordinate struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// Valid reports whether the coordinate lies within the WGS84 bounds.
func (c Coordinate) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

// Validate returns ErrInvalidParameter when the coordinate is out of bounds.
func (c Coordinate) Validate() error {
	if !c.Valid() {
		return eris.Wrapf(ErrInvalidParameter, "coordinate %s out of range", c)
	}
	return nil
}

// String renders the coordinate as "lat,lng", the form the Places API expects.
func (c Coordinate) String() string {
	return strconv.FormatFloat(c.Latitude, 'f', -1, 64) + "," +
		strconv.FormatFloat(c.Longitude, 'f', -1, 64)
}

// ParseCoordinate recognizes a literal "lat,lng" pair. ok is false when s is
// free text. A well-formed pair that is out of range returns
// ErrInvalidParameter.
func ParseCoordinate(s string) (Coordinate, bool, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return Coordinate{}, false, nil
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coordinate{}, false, nil
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coordinate{}, false, nil
	}

	c := Coordinate{Latitude: lat, Longitude: lng}
	if err := c.Validate(); err != nil {
		return Coordinate{}, true, err
	}
	return c, true, nil
}
