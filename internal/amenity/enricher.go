package amenity

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/amenity-cli/internal/model"
)

// Counter sources selectable by configuration.
const (
	SourcePlaces   = "places"
	SourceOverpass = "overpass"
)

// Defaults applied by NewEnricher.
const (
	DefaultRadius      = 1000
	DefaultConcurrency = 4
)

// Config controls enrichment.
type Config struct {
	Radius      int
	Concurrency int
	Dining      Category
	Provisions  Category
}

// ProgressFunc is called after each record completes. It may be called from
// several goroutines at once.
type ProgressFunc func(done, total int)

// Enricher attaches dining and provisions counts to candidate records.
type Enricher struct {
	counter  Counter
	cfg      Config
	progress ProgressFunc
}

// NewEnricher creates an Enricher. Zero-valued config fields take defaults.
func NewEnricher(counter Counter, cfg Config) *Enricher {
	if cfg.Radius <= 0 {
		cfg.Radius = DefaultRadius
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Dining.Name == "" {
		cfg.Dining = DefaultDining()
	}
	if cfg.Provisions.Name == "" {
		cfg.Provisions = DefaultProvisions()
	}
	return &Enricher{counter: counter, cfg: cfg}
}

// WithProgress returns a copy of e reporting progress to fn.
func (e *Enricher) WithProgress(fn ProgressFunc) *Enricher {
	cp := *e
	cp.progress = fn
	return &cp
}

// Radius returns the auxiliary search radius in meters.
func (e *Enricher) Radius() int {
	return e.cfg.Radius
}

// Enrich counts amenities around every record and returns the enriched
// records in input order. A failed count (other than cancellation) is stored
// as 0 and the record is marked Partial. Cancellation aborts the whole call.
func (e *Enricher) Enrich(ctx context.Context, records []model.CandidateRecord) ([]model.EnrichedRecord, error) {
	out := make([]model.EnrichedRecord, len(records))
	if len(records) == 0 {
		return out, nil
	}

	var done atomic.Int64
	total := len(records)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)

	for i, rec := range records {
		g.Go(func() error {
			enriched, err := e.enrichOne(gctx, rec)
			if err != nil {
				return err
			}
			out[i] = enriched
			if e.progress != nil {
				e.progress(int(done.Add(1)), total)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "amenity: enrichment cancelled")
	}
	return out, nil
}

func (e *Enricher) enrichOne(ctx context.Context, rec model.CandidateRecord) (model.EnrichedRecord, error) {
	var (
		wg                      sync.WaitGroup
		dining, provisions      int
		diningErr, provisionErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		dining, diningErr = e.counter.Count(ctx, rec.Coordinate, e.cfg.Radius, e.cfg.Dining)
	}()
	go func() {
		defer wg.Done()
		provisions, provisionErr = e.counter.Count(ctx, rec.Coordinate, e.cfg.Radius, e.cfg.Provisions)
	}()
	wg.Wait()

	// Limiter and token waits report their own errors on cancellation, so
	// the context is checked directly.
	if err := ctx.Err(); err != nil {
		return model.EnrichedRecord{}, eris.Wrap(err, "amenity: enrichment cancelled")
	}

	enriched := model.EnrichedRecord{
		CandidateRecord: rec,
		RestaurantCount: dining,
		ProvisionsCount: provisions,
	}
	log := zap.L().With(zap.String("place_id", rec.PlaceID), zap.String("name", rec.Name))
	if diningErr != nil {
		log.Warn("amenity: dining count failed, using 0", zap.Error(diningErr))
		enriched.RestaurantCount = 0
		enriched.Partial = true
	}
	if provisionErr != nil {
		log.Warn("amenity: provisions count failed, using 0", zap.Error(provisionErr))
		enriched.ProvisionsCount = 0
		enriched.Partial = true
	}
	return enriched, nil
}
