// Package geocode resolves a free-text location or a literal "lat,lng" pair
// to a single coordinate using the Google Geocoding API.
package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"googlemaps.github.io/maps"

	"github.com/sells-group/amenity-cli/internal/model"
)

// APIGeocode is the name passed to the Recorder for each lookup.
const APIGeocode = "geocode"

// Resolver turns a location query into a coordinate.
type Resolver interface {
	Resolve(ctx context.Context, query string) (model.Coordinate, error)
}

// Recorder is notified once per outgoing provider request.
type Recorder interface {
	RecordCall(api string)
}

// Option configures the resolver.
type Option func(*resolver)

// WithBaseURL overrides the Maps API host.
func WithBaseURL(u string) Option {
	return func(r *resolver) {
		r.baseURL = u
	}
}

// WithHTTPClient sets the HTTP client used for lookups.
func WithHTTPClient(hc *http.Client) Option {
	return func(r *resolver) {
		r.httpClient = hc
	}
}

// WithLimiter sets the shared provider rate limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(r *resolver) {
		r.limiter = l
	}
}

// WithRecorder registers a Recorder.
func WithRecorder(rec Recorder) Option {
	return func(r *resolver) {
		r.recorder = rec
	}
}

// WithCache enables result caching with the given TTL.
func WithCache(c Cache, ttl time.Duration) Option {
	return func(r *resolver) {
		r.cache = c
		r.cacheTTL = ttl
	}
}

type resolver struct {
	maps       *maps.Client
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	recorder   Recorder
	cache      Cache
	cacheTTL   time.Duration
}

// NewResolver creates a Resolver backed by the Google Geocoding API.
func NewResolver(apiKey string, opts ...Option) (Resolver, error) {
	r := &resolver{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(10, 1),
	}
	for _, opt := range opts {
		opt(r)
	}

	// The shared limiter governs pacing; the maps client's own limiter is off.
	mapsOpts := []maps.ClientOption{
		maps.WithAPIKey(apiKey),
		maps.WithHTTPClient(r.httpClient),
		maps.WithRateLimit(0),
	}
	if r.baseURL != "" {
		mapsOpts = append(mapsOpts, maps.WithBaseURL(r.baseURL))
	}

	mc, err := maps.NewClient(mapsOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: create maps client")
	}
	r.maps = mc
	return r, nil
}

// Resolve parses literal coordinate pairs locally and geocodes everything
// else, taking the first provider match. It does not retry.
func (r *resolver) Resolve(ctx context.Context, query string) (model.Coordinate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return model.Coordinate{}, eris.Wrap(model.ErrInvalidParameter, "geocode: empty query")
	}

	if c, ok, err := model.ParseCoordinate(query); ok {
		if err != nil {
			return model.Coordinate{}, eris.Wrapf(err, "geocode: literal pair %q", query)
		}
		return c, nil
	}

	key := cacheKey(query)
	if r.cache != nil {
		if cached, err := r.cache.GetGeocode(ctx, key); err != nil {
			zap.L().Debug("geocode: cache lookup failed", zap.Error(err))
		} else if cached != nil {
			return *cached, nil
		}
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return model.Coordinate{}, eris.Wrap(err, "geocode: rate limit wait")
	}
	if r.recorder != nil {
		r.recorder.RecordCall(APIGeocode)
	}

	results, err := r.maps.Geocode(ctx, &maps.GeocodingRequest{Address: query})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.Coordinate{}, eris.Wrap(ctxErr, "geocode: lookup cancelled")
		}
		// url.Error embeds the request URL, which carries the key.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return model.Coordinate{}, eris.Wrapf(model.ErrResolution, "geocode: lookup %q: %v", query, err)
	}
	if len(results) == 0 {
		return model.Coordinate{}, eris.Wrapf(model.ErrNotFound, "geocode: no match for %q", query)
	}

	loc := results[0].Geometry.Location
	c := model.Coordinate{Latitude: loc.Lat, Longitude: loc.Lng}
	if !c.Valid() {
		return model.Coordinate{}, eris.Wrapf(model.ErrResolution, "geocode: provider returned out-of-range coordinate %s", c)
	}

	if r.cache != nil {
		if err := r.cache.SetGeocode(ctx, key, c, r.cacheTTL); err != nil {
			zap.L().Warn("geocode: cache store failed", zap.Error(err))
		}
	}

	zap.L().Debug("geocode: resolved",
		zap.String("query", query),
		zap.Float64("lat", c.Latitude),
		zap.Float64("lng", c.Longitude),
		zap.String("formatted_address", results[0].FormattedAddress),
	)
	return c, nil
}
