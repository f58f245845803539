package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/amenity-cli/internal/cluster"
	"github.com/sells-group/amenity-cli/internal/cost"
	"github.com/sells-group/amenity-cli/internal/model"
	"github.com/sells-group/amenity-cli/internal/store"
	"github.com/sells-group/amenity-cli/internal/tier"
	"github.com/sells-group/amenity-cli/pkg/places"
)

var bangalore = model.Coordinate{Latitude: 12.9716, Longitude: 77.5946}

func testQuery() model.Query {
	return model.Query{
		Text:            "Bangalore",
		Radius:          5000,
		Keywords:        []string{"Hostel", "PG"},
		ClusterCount:    3,
		AuxiliaryRadius: 1000,
	}
}

// threeHostels are far enough apart that each forms its own cluster.
func threeHostels() []places.RawEntry {
	return []places.RawEntry{
		entry("Quiet Stay", 12.90, 77.50),
		entry("Midtown PG", 12.97, 77.59),
		entry("Central Hostel", 13.05, 77.70),
	}
}

func threeHostelCounts() countsEnricher {
	return countsEnricher{counts: map[string]int{
		"Quiet Stay":     2,
		"Midtown PG":     7,
		"Central Hostel": 15,
	}}
}

type fixture struct {
	resolver *mockResolver
	places   *fakePlaces
	meter    *cost.Meter
	deps     Deps
}

func newFixture(t *testing.T, entries []places.RawEntry, enricher Enricher) *fixture {
	t.Helper()
	meter := &cost.Meter{}
	fp := &fakePlaces{entries: entries, recorder: meter}
	r := &mockResolver{}

	return &fixture{
		resolver: r,
		places:   fp,
		meter:    meter,
		deps: Deps{
			Resolver:   r,
			Searcher:   places.NewSearcher(fp, places.SearchConfig{}),
			Enricher:   enricher,
			Clusterer:  cluster.New(cluster.Config{Seed: 42}),
			Classifier: tier.NewClassifier(tier.DefaultThresholds()),
			Meter:      meter,
			Calculator: cost.NewCalculator(cost.DefaultRates()),
		},
	}
}

func levelsByName(records []model.CategorizedRecord) map[string]model.AmenityLevel {
	out := make(map[string]model.AmenityLevel, len(records))
	for _, r := range records {
		out[r.Name] = r.AmenityLevel
	}
	return out
}

func TestRun_TiersByRestaurantCount(t *testing.T) {
	f := newFixture(t, threeHostels(), threeHostelCounts())
	f.resolver.On("Resolve", mock.Anything, "Bangalore").Return(bangalore, nil)

	res, err := New(f.deps).Run(context.Background(), testQuery())
	require.NoError(t, err)

	assert.Equal(t, bangalore, res.Center)
	require.Len(t, res.Records, 3)
	assert.Equal(t, map[string]model.AmenityLevel{
		"Quiet Stay":     model.AmenityLow,
		"Midtown PG":     model.AmenityModerate,
		"Central Hostel": model.AmenityHigh,
	}, levelsByName(res.Records))
	assert.Len(t, res.Clusters, 3)

	// Input order survives every stage.
	assert.Equal(t, "Quiet Stay", res.Records[0].Name)
	assert.Equal(t, "Central Hostel", res.Records[2].Name)

	f.resolver.AssertExpectations(t)
}

func TestRun_UsageAndCost(t *testing.T) {
	f := newFixture(t, threeHostels(), threeHostelCounts())
	f.resolver.On("Resolve", mock.Anything, "Bangalore").Return(bangalore, nil)

	res, err := New(f.deps).Run(context.Background(), testQuery())
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.Usage.NearbyCalls)
	assert.Equal(t, int64(0), res.Usage.GeocodeCalls)
	assert.InDelta(t, 0.032, res.Usage.CostUSD, 1e-9)
}

func TestRun_UsageIsPerRun(t *testing.T) {
	f := newFixture(t, threeHostels(), threeHostelCounts())
	f.resolver.On("Resolve", mock.Anything, "Bangalore").Return(bangalore, nil)
	p := New(f.deps)

	_, err := p.Run(context.Background(), testQuery())
	require.NoError(t, err)
	res, err := p.Run(context.Background(), testQuery())
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.Usage.NearbyCalls)
	assert.Equal(t, int64(2), f.meter.Nearby())
}

func TestRun_SameClusterSameTier(t *testing.T) {
	entries := []places.RawEntry{
		entry("North A", 13.100, 77.600),
		entry("North B", 13.101, 77.601),
		entry("South A", 12.800, 77.500),
		entry("South B", 12.801, 77.501),
	}
	enricher := countsEnricher{counts: map[string]int{
		"North A": 12, "North B": 14,
		"South A": 1, "South B": 3,
	}}
	f := newFixture(t, entries, enricher)
	f.resolver.On("Resolve", mock.Anything, "Bangalore").Return(bangalore, nil)

	q := testQuery()
	q.ClusterCount = 2
	res, err := New(f.deps).Run(context.Background(), q)
	require.NoError(t, err)

	byCluster := map[int]model.AmenityLevel{}
	for _, r := range res.Records {
		if lvl, ok := byCluster[r.ClusterID]; ok {
			assert.Equal(t, lvl, r.AmenityLevel)
		}
		byCluster[r.ClusterID] = r.AmenityLevel
	}
	levels := levelsByName(res.Records)
	assert.Equal(t, model.AmenityHigh, levels["North A"])
	assert.Equal(t, model.AmenityLow, levels["South B"])
}

func TestRun_ResolveNotFoundAborts(t *testing.T) {
	f := newFixture(t, threeHostels(), threeHostelCounts())
	f.resolver.On("Resolve", mock.Anything, "Bangalore").Return(model.Coordinate{}, model.ErrNotFound)

	res, err := New(f.deps).Run(context.Background(), testQuery())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, model.ErrNotFound)

	var se *model.StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, model.StageResolve, se.Stage)
	assert.Equal(t, "Bangalore", se.Params["query"])
	assert.Equal(t, int32(0), f.places.calls.Load())
}

func TestRun_InsufficientData(t *testing.T) {
	f := newFixture(t, threeHostels()[:2], threeHostelCounts())
	f.resolver.On("Resolve", mock.Anything, "Bangalore").Return(bangalore, nil)
	enricher := &mockEnricher{}
	f.deps.Enricher = enricher

	_, err := New(f.deps).Run(context.Background(), testQuery())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInsufficientData)

	var se *model.StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, model.StageCluster, se.Stage)
	enricher.AssertNotCalled(t, "Enrich", mock.Anything, mock.Anything)
}

func TestRun_ZeroResultsIsInsufficientData(t *testing.T) {
	f := newFixture(t, nil, threeHostelCounts())
	f.places.status = "ZERO_RESULTS"
	f.resolver.On("Resolve", mock.Anything, "Bangalore").Return(bangalore, nil)

	_, err := New(f.deps).Run(context.Background(), testQuery())
	assert.ErrorIs(t, err, model.ErrInsufficientData)
}

func TestRun_MalformedEntriesDroppedBeforeClustering(t *testing.T) {
	bad := entry("No Status", 12.95, 77.55)
	bad.BusinessStatus = nil
	entries := append(threeHostels(), bad)

	f := newFixture(t, entries, threeHostelCounts())
	f.resolver.On("Resolve", mock.Anything, "Bangalore").Return(bangalore, nil)

	res, err := New(f.deps).Run(context.Background(), testQuery())
	require.NoError(t, err)
	assert.Len(t, res.Records, 3)
}

func TestRun_SearchDenied(t *testing.T) {
	f := newFixture(t, nil, threeHostelCounts())
	f.places.status = "REQUEST_DENIED"
	f.resolver.On("Resolve", mock.Anything, "Bangalore").Return(bangalore, nil)

	_, err := New(f.deps).Run(context.Background(), testQuery())
	assert.ErrorIs(t, err, model.ErrFetch)

	var se *model.StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, model.StageSearch, se.Stage)
}

func TestRun_PartialEnrichmentStillRanks(t *testing.T) {
	enricher := threeHostelCounts()
	enricher.partial = map[string]bool{"Midtown PG": true}
	f := newFixture(t, threeHostels(), enricher)
	f.resolver.On("Resolve", mock.Anything, "Bangalore").Return(bangalore, nil)

	res, err := New(f.deps).Run(context.Background(), testQuery())
	require.NoError(t, err)
	require.Len(t, res.Records, 3)
	assert.True(t, res.Records[1].Partial)
	assert.False(t, res.Records[0].Partial)
}

func TestRun_EnrichCancelled(t *testing.T) {
	f := newFixture(t, threeHostels(), nil)
	f.resolver.On("Resolve", mock.Anything, "Bangalore").Return(bangalore, nil)
	enricher := &mockEnricher{}
	enricher.On("Enrich", mock.Anything, mock.Anything).Return(nil, context.Canceled)
	f.deps.Enricher = enricher

	res, err := New(f.deps).Run(context.Background(), testQuery())
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)

	var se *model.StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, model.StageEnrich, se.Stage)
}

func TestRun_InvalidParameters(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(q *model.Query)
		stage string
	}{
		{"empty query", func(q *model.Query) { q.Text = "" }, model.StageResolve},
		{"radius zero", func(q *model.Query) { q.Radius = 0 }, model.StageSearch},
		{"radius too large", func(q *model.Query) { q.Radius = 50001 }, model.StageSearch},
		{"no keywords", func(q *model.Query) { q.Keywords = nil }, model.StageSearch},
		{"aux radius zero", func(q *model.Query) { q.AuxiliaryRadius = 0 }, model.StageEnrich},
		{"k zero", func(q *model.Query) { q.ClusterCount = 0 }, model.StageCluster},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, threeHostels(), threeHostelCounts())
			q := testQuery()
			tt.edit(&q)

			_, err := New(f.deps).Run(context.Background(), q)
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrInvalidParameter)

			var se *model.StageError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.stage, se.Stage)
			f.resolver.AssertNotCalled(t, "Resolve", mock.Anything, mock.Anything)
			assert.Equal(t, int32(0), f.places.calls.Load())
		})
	}
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRun_RecordsHistory(t *testing.T) {
	f := newFixture(t, threeHostels(), threeHostelCounts())
	f.resolver.On("Resolve", mock.Anything, "Bangalore").Return(bangalore, nil)
	st := newTestStore(t)
	f.deps.Store = st

	res, err := New(f.deps).Run(context.Background(), testQuery())
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)

	run, err := st.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, 3, run.RecordCount)
	assert.Equal(t, int64(1), run.Usage.NearbyCalls)
	require.NotNil(t, run.Result)
	assert.Len(t, run.Result.Records, 3)
	assert.Equal(t, res.Center, run.Result.Center)
	assert.Equal(t, res.Usage, run.Result.Usage)
	assert.Len(t, run.Result.Clusters, len(res.Clusters))
}

func TestRun_LogsEveryStage(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	f := newFixture(t, threeHostels(), threeHostelCounts())
	f.resolver.On("Resolve", mock.Anything, "Bangalore").Return(bangalore, nil)

	_, err := New(f.deps).Run(context.Background(), testQuery())
	require.NoError(t, err)

	var stages []string
	for _, e := range logs.FilterMessage("pipeline: stage complete").All() {
		stages = append(stages, e.ContextMap()["stage"].(string))
	}
	assert.Equal(t, []string{
		model.StageResolve, model.StageSearch, model.StageExtract,
		model.StageEnrich, model.StageCluster, model.StageClassify,
	}, stages)
}

func TestRun_RecordsFailure(t *testing.T) {
	f := newFixture(t, threeHostels(), threeHostelCounts())
	f.resolver.On("Resolve", mock.Anything, "Bangalore").Return(model.Coordinate{}, model.ErrNotFound)
	st := newTestStore(t)
	f.deps.Store = st

	_, err := New(f.deps).Run(context.Background(), testQuery())
	require.Error(t, err)

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "resolve")
}

func TestStageError_Message(t *testing.T) {
	err := &model.StageError{Stage: model.StageSearch, Params: map[string]any{"radius": 0}, Err: model.ErrInvalidParameter}
	assert.Contains(t, err.Error(), "search")
	assert.ErrorIs(t, err, model.ErrInvalidParameter)
}
