package amenity

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/serjvanilla/go-overpass"
	"go.uber.org/zap"

	"github.com/sells-group/amenity-cli/internal/model"
)

// DefaultOverpassURL is the public Overpass API interpreter.
const DefaultOverpassURL = "https://overpass-api.de/api/interpreter"

// OverpassCounter counts OpenStreetMap nodes and ways tagged with the
// category's OSM values.
type OverpassCounter struct {
	client overpass.Client
}

// NewOverpassCounter creates an OverpassCounter against endpoint, allowing at
// most maxParallel concurrent queries.
func NewOverpassCounter(endpoint string, maxParallel int, timeout time.Duration) *OverpassCounter {
	if endpoint == "" {
		endpoint = DefaultOverpassURL
	}
	if maxParallel < 1 {
		maxParallel = 1
	}
	httpClient := &http.Client{Timeout: timeout}
	return &OverpassCounter{
		client: overpass.NewWithSettings(endpoint, maxParallel, httpClient),
	}
}

// Count implements Counter.
func (o *OverpassCounter) Count(ctx context.Context, center model.Coordinate, radius int, cat Category) (int, error) {
	if cat.OSMKey == "" || len(cat.OSMValues) == 0 {
		return 0, eris.Wrapf(model.ErrInvalidParameter, "amenity: category %s has no OSM tags", cat.Name)
	}
	if err := center.Validate(); err != nil {
		return 0, eris.Wrap(err, "amenity: overpass center")
	}

	q := overpassQuery(center, radius, cat)

	// The overpass client takes no context, so cancellation abandons the call.
	type outcome struct {
		res overpass.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := o.client.Query(q)
		done <- outcome{res: res, err: err}
	}()

	select {
	case <-ctx.Done():
		return 0, eris.Wrap(ctx.Err(), "amenity: overpass query cancelled")
	case out := <-done:
		if out.err != nil {
			return 0, eris.Wrapf(model.ErrFetch, "amenity: overpass %s: %v", cat.Name, out.err)
		}
		n := countTagged(out.res, cat.OSMKey)
		zap.L().Debug("amenity: overpass count",
			zap.String("category", cat.Name),
			zap.Stringer("center", center),
			zap.Int("count", n),
		)
		return n, nil
	}
}

func overpassQuery(center model.Coordinate, radius int, cat Category) string {
	around := fmt.Sprintf("(around:%d,%s,%s)", radius,
		strconv.FormatFloat(center.Latitude, 'f', -1, 64),
		strconv.FormatFloat(center.Longitude, 'f', -1, 64))
	filter := fmt.Sprintf("[%q~%q]", cat.OSMKey, cat.osmPattern())
	return fmt.Sprintf("[out:json][timeout:25];(node%s%s;way%s%s;);out tags;",
		filter, around, filter, around)
}

// countTagged skips nodes the client materializes for way references, which
// carry no tags.
func countTagged(res overpass.Result, key string) int {
	n := 0
	for _, node := range res.Nodes {
		if _, ok := node.Tags[key]; ok {
			n++
		}
	}
	for _, way := range res.Ways {
		if _, ok := way.Tags[key]; ok {
			n++
		}
	}
	return n
}
