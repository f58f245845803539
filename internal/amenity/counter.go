package amenity

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/amenity-cli/internal/model"
	"github.com/sells-group/amenity-cli/pkg/places"
)

// Counter returns the number of amenities of a category within radius
// meters of center.
type Counter interface {
	Count(ctx context.Context, center model.Coordinate, radius int, cat Category) (int, error)
}

// PlacesCounter counts Nearby Search results for the category keywords.
type PlacesCounter struct {
	searcher *places.Searcher
}

// NewPlacesCounter creates a PlacesCounter. s must not be nil. maxPages caps
// the pages fetched per count; values below 1 keep the searcher's own cap.
func NewPlacesCounter(s *places.Searcher, maxPages int) *PlacesCounter {
	if maxPages > 0 {
		s = s.WithMaxPages(maxPages)
	}
	return &PlacesCounter{searcher: s}
}

// Count implements Counter. ZERO_RESULTS counts as 0.
func (p *PlacesCounter) Count(ctx context.Context, center model.Coordinate, radius int, cat Category) (int, error) {
	res, err := p.searcher.Search(center, radius, cat.Keywords)
	if err != nil {
		return 0, eris.Wrapf(err, "amenity: search %s", cat.Name)
	}
	entries, err := res.Collect(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "amenity: count %s", cat.Name)
	}
	return len(entries), nil
}
