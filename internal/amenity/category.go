// Package amenity counts amenities around candidate records and attaches the
// counts to them.
package amenity

import (
	"strings"
)

// Category is a named group of amenities counted together.
type Category struct {
	Name string
	// Keywords drive Places keyword searches; they are joined with "|".
	Keywords []string
	// OSMKey and OSMValues select matching OpenStreetMap features.
	OSMKey    string
	OSMValues []string
}

// Category names used in logs and cache keys.
const (
	CategoryDining     = "dining"
	CategoryProvisions = "provisions"
)

// DefaultDining counts restaurants and cafes.
func DefaultDining() Category {
	return Category{
		Name:      CategoryDining,
		Keywords:  []string{"Restaurant", "Cafe"},
		OSMKey:    "amenity",
		OSMValues: []string{"restaurant", "cafe"},
	}
}

// DefaultProvisions counts fruit and juice shops.
func DefaultProvisions() Category {
	return Category{
		Name:      CategoryProvisions,
		Keywords:  []string{"Fruit", "Juice"},
		OSMKey:    "shop",
		OSMValues: []string{"greengrocer", "juice"},
	}
}

// WithKeywords returns a copy of c searching for keywords instead. An empty
// list keeps the existing keywords.
func (c Category) WithKeywords(keywords []string) Category {
	if len(keywords) == 0 {
		return c
	}
	c.Keywords = append([]string(nil), keywords...)
	return c
}

// osmPattern returns an anchored regex matching any of the category's values.
func (c Category) osmPattern() string {
	return "^(" + strings.Join(c.OSMValues, "|") + ")$"
}
