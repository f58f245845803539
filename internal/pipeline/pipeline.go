// Package pipeline runs a ranking query through resolve, search, extract,
// enrich, cluster and classify.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/amenity-cli/internal/cost"
	"github.com/sells-group/amenity-cli/internal/model"
	"github.com/sells-group/amenity-cli/internal/store"
	"github.com/sells-group/amenity-cli/pkg/geocode"
	"github.com/sells-group/amenity-cli/pkg/places"
)

// Enricher attaches amenity counts to candidates.
type Enricher interface {
	Enrich(ctx context.Context, records []model.CandidateRecord) ([]model.EnrichedRecord, error)
}

// Clusterer groups enriched records into k clusters.
type Clusterer interface {
	Cluster(records []model.EnrichedRecord, k int) ([]model.ClusterAssignment, error)
}

// Classifier labels clusters with amenity tiers.
type Classifier interface {
	Classify(assignments []model.ClusterAssignment) []model.CategorizedRecord
	Summaries(assignments []model.ClusterAssignment) []model.ClusterSummary
}

// Deps are the collaborators of a Pipeline. Store, Meter and Calculator are
// optional.
type Deps struct {
	Resolver   geocode.Resolver
	Searcher   *places.Searcher
	Enricher   Enricher
	Clusterer  Clusterer
	Classifier Classifier
	Store      store.Store
	Meter      *cost.Meter
	Calculator *cost.Calculator
}

// Result is the outcome of one run.
type Result struct {
	RunID           string `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	model.RunResult `yaml:",inline"`
}

// Pipeline orchestrates the ranking stages.
type Pipeline struct {
	deps Deps
}

// New creates a Pipeline.
func New(deps Deps) *Pipeline {
	if deps.Calculator == nil {
		deps.Calculator = cost.NewCalculator(cost.DefaultRates())
	}
	return &Pipeline{deps: deps}
}

// Run executes every stage for q. Fatal errors are returned as
// *model.StageError naming the failing stage. Nothing is returned on failure.
func (p *Pipeline) Run(ctx context.Context, q model.Query) (*Result, error) {
	log := zap.L().With(
		zap.String("query", q.Text),
		zap.Int("radius", q.Radius),
		zap.Int("k", q.ClusterCount),
	)
	log.Info("pipeline: starting run")
	start := time.Now()

	nearby0, geocode0 := p.callCounts()

	var runID string
	if p.deps.Store != nil {
		run, err := p.deps.Store.CreateRun(ctx, q)
		if err != nil {
			log.Warn("pipeline: failed to record run", zap.Error(err))
		} else {
			runID = run.ID
			log = log.With(zap.String("run_id", runID))
		}
	}

	res, err := p.run(ctx, q, log)

	nearby1, geocode1 := p.callCounts()
	usage := model.Usage{
		NearbyCalls:  nearby1 - nearby0,
		GeocodeCalls: geocode1 - geocode0,
	}
	usage.CostUSD = p.deps.Calculator.Total(usage.NearbyCalls, usage.GeocodeCalls)

	// History is written even when the caller's context is done.
	histCtx := context.WithoutCancel(ctx)
	if err != nil {
		if runID != "" {
			if ferr := p.deps.Store.FailRun(histCtx, runID, err, usage); ferr != nil {
				log.Warn("pipeline: failed to record failure", zap.Error(ferr))
			}
		}
		log.Error("pipeline: run failed",
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int64("nearby_calls", usage.NearbyCalls),
			zap.Error(err),
		)
		return nil, err
	}

	res.Usage = usage
	if runID != "" {
		if cerr := p.deps.Store.CompleteRun(histCtx, runID, res); cerr != nil {
			log.Warn("pipeline: failed to record result", zap.Error(cerr))
		}
	}

	log.Info("pipeline: run complete",
		zap.Int("records", len(res.Records)),
		zap.Int64("nearby_calls", usage.NearbyCalls),
		zap.Int64("geocode_calls", usage.GeocodeCalls),
		zap.Float64("cost_usd", usage.CostUSD),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return &Result{RunID: runID, RunResult: *res}, nil
}

func (p *Pipeline) run(ctx context.Context, q model.Query, log *zap.Logger) (*model.RunResult, error) {
	params := q.Params()
	if err := validate(q, params); err != nil {
		return nil, err
	}

	var (
		center      model.Coordinate
		entries     []places.RawEntry
		candidates  []model.CandidateRecord
		enriched    []model.EnrichedRecord
		assignments []model.ClusterAssignment
		records     []model.CategorizedRecord
	)

	err := p.stage(log, model.StageResolve, params, func() error {
		c, err := p.deps.Resolver.Resolve(ctx, q.Text)
		center = c
		return err
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(log, model.StageSearch, params, func() error {
		results, err := p.deps.Searcher.Search(center, q.Radius, q.Keywords)
		if err != nil {
			return err
		}
		entries, err = results.Collect(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	p.timed(log, model.StageExtract, func() {
		candidates = Extract(entries)
		log.Debug("pipeline: extracted candidates",
			zap.Int("entries", len(entries)),
			zap.Int("candidates", len(candidates)),
		)
	})

	// Checked before enrichment so no auxiliary calls are spent on a run
	// that cannot be clustered.
	if len(candidates) < q.ClusterCount {
		return nil, &model.StageError{
			Stage:  model.StageCluster,
			Params: params,
			Err: eris.Wrapf(model.ErrInsufficientData,
				"pipeline: %d candidates for %d clusters", len(candidates), q.ClusterCount),
		}
	}

	err = p.stage(log, model.StageEnrich, params, func() error {
		var err error
		enriched, err = p.deps.Enricher.Enrich(ctx, candidates)
		if err != nil {
			return err
		}
		partial := 0
		for _, r := range enriched {
			if r.Partial {
				partial++
			}
		}
		if partial > 0 {
			log.Warn("pipeline: partial enrichment", zap.Int("partial_records", partial))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = p.stage(log, model.StageCluster, params, func() error {
		var err error
		assignments, err = p.deps.Clusterer.Cluster(enriched, q.ClusterCount)
		return err
	})
	if err != nil {
		return nil, err
	}

	p.timed(log, model.StageClassify, func() {
		records = p.deps.Classifier.Classify(assignments)
	})

	return &model.RunResult{
		Center:   center,
		Records:  records,
		Clusters: p.deps.Classifier.Summaries(assignments),
	}, nil
}

// stage times fn, logs the outcome and wraps a failure in a StageError.
func (p *Pipeline) stage(log *zap.Logger, name string, params map[string]any, fn func() error) error {
	start := time.Now()
	err := fn()
	duration := time.Since(start).Milliseconds()

	if err != nil {
		log.Error("pipeline: stage failed",
			zap.String("stage", name),
			zap.Int64("duration_ms", duration),
			zap.Error(err),
		)
		return &model.StageError{Stage: name, Params: params, Err: err}
	}
	log.Info("pipeline: stage complete",
		zap.String("stage", name),
		zap.Int64("duration_ms", duration),
	)
	return nil
}

// timed runs a stage that cannot fail and logs its duration.
func (p *Pipeline) timed(log *zap.Logger, name string, fn func()) {
	start := time.Now()
	fn()
	log.Info("pipeline: stage complete",
		zap.String("stage", name),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
}

func (p *Pipeline) callCounts() (nearby, geocode int64) {
	if p.deps.Meter == nil {
		return 0, 0
	}
	return p.deps.Meter.Nearby(), p.deps.Meter.Geocode()
}

// validate rejects bad parameters before any provider call, attributing each
// to the stage that consumes it.
func validate(q model.Query, params map[string]any) error {
	fail := func(stage, format string, args ...any) error {
		return &model.StageError{
			Stage:  stage,
			Params: params,
			Err:    eris.Wrapf(model.ErrInvalidParameter, format, args...),
		}
	}
	switch {
	case q.Text == "":
		return fail(model.StageResolve, "pipeline: empty query")
	case q.Radius < places.MinRadius || q.Radius > places.MaxRadius:
		return fail(model.StageSearch, "pipeline: radius %d outside [%d, %d]", q.Radius, places.MinRadius, places.MaxRadius)
	case len(places.JoinKeywords(q.Keywords)) == 0:
		return fail(model.StageSearch, "pipeline: empty keyword set")
	case q.AuxiliaryRadius < places.MinRadius || q.AuxiliaryRadius > places.MaxRadius:
		return fail(model.StageEnrich, "pipeline: auxiliary radius %d outside [%d, %d]", q.AuxiliaryRadius, places.MinRadius, places.MaxRadius)
	case q.ClusterCount < 1:
		return fail(model.StageCluster, "pipeline: cluster count must be at least 1, got %d", q.ClusterCount)
	}
	return nil
}
