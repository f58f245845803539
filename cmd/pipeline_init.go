package main

import (
	"context"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/amenity-cli/internal/amenity"
	"github.com/sells-group/amenity-cli/internal/cluster"
	"github.com/sells-group/amenity-cli/internal/config"
	"github.com/sells-group/amenity-cli/internal/cost"
	"github.com/sells-group/amenity-cli/internal/model"
	"github.com/sells-group/amenity-cli/internal/pipeline"
	"github.com/sells-group/amenity-cli/internal/resilience"
	"github.com/sells-group/amenity-cli/internal/store"
	"github.com/sells-group/amenity-cli/internal/tier"
	"github.com/sells-group/amenity-cli/pkg/geocode"
	"github.com/sells-group/amenity-cli/pkg/places"
)

// pipelineEnv holds the resources shared by every run: the store, the
// provider rate limiter and the HTTP client.
type pipelineEnv struct {
	Store   store.Store // may be nil
	cfg     *config.Config
	limiter *rate.Limiter
	http    *http.Client
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates config for mode and opens the store. Callers should
// defer env.Close().
func initPipeline(ctx context.Context, c *config.Config, mode string) (*pipelineEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, c.Store.Driver, c.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if st == nil {
		zap.L().Debug("store disabled, run history and caches off")
	} else {
		n, err := st.DeleteExpired(ctx)
		if err != nil {
			zap.L().Warn("failed to purge expired cache entries", zap.Error(err))
		} else if n > 0 {
			zap.L().Info("purged expired cache entries", zap.Int("count", n))
		}
	}

	return &pipelineEnv{
		Store:   st,
		cfg:     c,
		limiter: rate.NewLimiter(rate.Limit(c.Places.RateLimit), c.Places.Burst),
		http:    &http.Client{Timeout: c.Places.Timeout()},
	}, nil
}

// NewPipeline builds a pipeline for q. Each pipeline has its own cost meter
// so concurrent runs report their own usage; the limiter is shared.
func (pe *pipelineEnv) NewPipeline(q model.Query, progress amenity.ProgressFunc) (*pipeline.Pipeline, error) {
	c := pe.cfg
	meter := &cost.Meter{}

	placesOpts := []places.Option{
		places.WithHTTPClient(pe.http),
		places.WithLimiter(pe.limiter),
		places.WithRecorder(meter),
	}
	if c.Google.PlacesBaseURL != "" {
		placesOpts = append(placesOpts, places.WithBaseURL(c.Google.PlacesBaseURL))
	}
	searcher := places.NewSearcher(places.NewClient(c.Google.Key, placesOpts...), places.SearchConfig{
		MaxPages:   c.Places.MaxPages,
		TokenDelay: c.Places.TokenDelay(),
		Retry: resilience.FromConfig(
			c.Retry.MaxAttempts, c.Retry.InitialBackoffMs, c.Retry.MaxBackoffMs,
			c.Retry.Multiplier, c.Retry.Jitter,
		),
	})

	geoOpts := []geocode.Option{
		geocode.WithHTTPClient(pe.http),
		geocode.WithLimiter(pe.limiter),
		geocode.WithRecorder(meter),
	}
	if c.Google.GeocodeBaseURL != "" {
		geoOpts = append(geoOpts, geocode.WithBaseURL(c.Google.GeocodeBaseURL))
	}
	if pe.Store != nil {
		geoOpts = append(geoOpts, geocode.WithCache(pe.Store, c.Amenity.CacheTTL()))
	}
	resolver, err := geocode.NewResolver(c.Google.Key, geoOpts...)
	if err != nil {
		return nil, err
	}

	counter, err := pe.newCounter(searcher)
	if err != nil {
		return nil, err
	}
	enricher := amenity.NewEnricher(counter, amenity.Config{
		Radius:      q.AuxiliaryRadius,
		Concurrency: c.Amenity.Concurrency,
		Dining:      amenity.DefaultDining().WithKeywords(c.Amenity.Dining),
		Provisions:  amenity.DefaultProvisions().WithKeywords(c.Amenity.Provisions),
	})
	if progress != nil {
		enricher = enricher.WithProgress(progress)
	}

	scaling, err := cluster.ParseScaling(c.Cluster.Scaling)
	if err != nil {
		return nil, err
	}
	thresholds := tier.Thresholds{LowMax: c.Tier.LowMax, ModerateMax: c.Tier.ModerateMax}
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}

	return pipeline.New(pipeline.Deps{
		Resolver: resolver,
		Searcher: searcher,
		Enricher: enricher,
		Clusterer: cluster.New(cluster.Config{
			Seed:          c.Cluster.Seed,
			Scaling:       scaling,
			MaxIterations: c.Cluster.MaxIterations,
			NInit:         c.Cluster.NInit,
		}),
		Classifier: tier.NewClassifier(thresholds),
		Store:      pe.Store,
		Meter:      meter,
		Calculator: cost.NewCalculator(cost.Rates{
			PlacesNearby: c.Pricing.PlacesNearby,
			Geocode:      c.Pricing.Geocode,
		}),
	}), nil
}

// Rank builds a pipeline for q and runs it.
func (pe *pipelineEnv) Rank(ctx context.Context, q model.Query, progress amenity.ProgressFunc) (*pipeline.Result, error) {
	p, err := pe.NewPipeline(q, progress)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, q)
}

// newCounter picks the amenity source and wraps it in the store cache when
// one is configured.
func (pe *pipelineEnv) newCounter(searcher *places.Searcher) (amenity.Counter, error) {
	c := pe.cfg

	var (
		counter amenity.Counter
		source  string
	)
	switch c.Amenity.Source {
	case amenity.SourcePlaces, "":
		counter = amenity.NewPlacesCounter(searcher, c.Places.AuxMaxPages)
		source = amenity.SourcePlaces
	case amenity.SourceOverpass:
		counter = amenity.NewOverpassCounter(c.Amenity.OverpassURL, c.Amenity.Concurrency, c.Places.Timeout())
		source = amenity.SourceOverpass
	default:
		return nil, eris.Wrapf(model.ErrInvalidParameter, "unknown amenity source %q", c.Amenity.Source)
	}

	if pe.Store != nil && c.Amenity.CacheTTL() > 0 {
		counter = amenity.NewCachedCounter(counter, pe.Store, source, c.Amenity.CacheTTL())
	}
	return counter, nil
}

// queryFromConfig fills zero-valued query fields from config defaults.
func queryFromConfig(c *config.Config, q model.Query) model.Query {
	if q.Radius == 0 {
		q.Radius = c.Search.Radius
	}
	if len(q.Keywords) == 0 {
		q.Keywords = c.Search.Keywords()
	}
	if q.ClusterCount == 0 {
		q.ClusterCount = c.Cluster.K
	}
	if q.AuxiliaryRadius == 0 {
		q.AuxiliaryRadius = c.Search.AuxiliaryRadius
	}
	return q
}
