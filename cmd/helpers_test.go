package main

import (
	"context"
	"sync"

	"github.com/sells-group/amenity-cli/internal/amenity"
	"github.com/sells-group/amenity-cli/internal/config"
	"github.com/sells-group/amenity-cli/internal/model"
	"github.com/sells-group/amenity-cli/internal/pipeline"
)

func testConfig() *config.Config {
	return &config.Config{
		Google: config.GoogleConfig{Key: "test-key"},
		Places: config.PlacesConfig{
			RateLimit: 10, Burst: 1, MaxPages: 3, AuxMaxPages: 1,
			TokenDelayMs: 2000, TimeoutSecs: 10,
		},
		Retry:   config.RetryConfig{MaxAttempts: 4, InitialBackoffMs: 1000, MaxBackoffMs: 16000, Multiplier: 2, Jitter: 0.25},
		Search:  config.SearchConfig{Radius: 5000, Keyword: config.DefaultKeyword, AuxiliaryRadius: 1000},
		Amenity: config.AmenityConfig{Source: "places", Concurrency: 4, CacheTTLHours: 168},
		Cluster: config.ClusterConfig{K: 3, Scaling: "zscore", MaxIterations: 300, NInit: 10},
		Tier:    config.TierConfig{LowMax: 5, ModerateMax: 10},
		Store:   config.StoreConfig{Driver: "none"},
		Pricing: config.PricingConfig{PlacesNearby: 0.032, Geocode: 0.005},
		Server:  config.ServerConfig{Port: 8080, RequestTimeoutSecs: 120},
		Log:     config.LogConfig{Level: "info", Format: "json"},
	}
}

func sampleResult() *pipeline.Result {
	center := model.Coordinate{Latitude: 12.9716, Longitude: 77.5946}
	rec := func(name, id string, lat, lng float64, restaurants, clusterID int, lvl model.AmenityLevel) model.CategorizedRecord {
		return model.CategorizedRecord{
			ClusterAssignment: model.ClusterAssignment{
				EnrichedRecord: model.EnrichedRecord{
					CandidateRecord: model.CandidateRecord{
						PlaceID:        id,
						Name:           name,
						Coordinate:     model.Coordinate{Latitude: lat, Longitude: lng},
						BusinessStatus: model.BusinessOperational,
					},
					RestaurantCount: restaurants,
					ProvisionsCount: 1,
				},
				ClusterID: clusterID,
			},
			AmenityLevel: lvl,
		}
	}
	return &pipeline.Result{
		RunID: "run-1",
		RunResult: model.RunResult{
			Center: center,
			Records: []model.CategorizedRecord{
				rec("Quiet Stay", "p1", 12.90, 77.50, 2, 0, model.AmenityLow),
				rec("Central Hostel", "p2", 13.05, 77.70, 15, 1, model.AmenityHigh),
			},
			Clusters: []model.ClusterSummary{
				{ClusterID: 0, Size: 1, MeanRestaurants: 2, MeanProvisions: 1, AmenityLevel: model.AmenityLow, Centroid: model.Coordinate{Latitude: 12.90, Longitude: 77.50}},
				{ClusterID: 1, Size: 1, MeanRestaurants: 15, MeanProvisions: 1, AmenityLevel: model.AmenityHigh, Centroid: model.Coordinate{Latitude: 13.05, Longitude: 77.70}},
			},
			Usage: model.Usage{NearbyCalls: 5, GeocodeCalls: 1, CostUSD: 0.165},
		},
	}
}

type fakeRanker struct {
	mu     sync.Mutex
	result *pipeline.Result
	err    error
	got    []model.Query
}

func (f *fakeRanker) Rank(ctx context.Context, q model.Query, _ amenity.ProgressFunc) (*pipeline.Result, error) {
	f.mu.Lock()
	f.got = append(f.got, q)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeRanker) queries() []model.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Query(nil), f.got...)
}
