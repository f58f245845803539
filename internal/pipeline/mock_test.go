package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/amenity-cli/internal/model"
	"github.com/sells-group/amenity-cli/pkg/places"
)

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) Resolve(ctx context.Context, query string) (model.Coordinate, error) {
	args := m.Called(ctx, query)
	return args.Get(0).(model.Coordinate), args.Error(1)
}

type mockEnricher struct {
	mock.Mock
}

func (m *mockEnricher) Enrich(ctx context.Context, records []model.CandidateRecord) ([]model.EnrichedRecord, error) {
	args := m.Called(ctx, records)
	if v := args.Get(0); v != nil {
		return v.([]model.EnrichedRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

// countsEnricher attaches counts looked up by record name.
type countsEnricher struct {
	counts  map[string]int
	partial map[string]bool
}

func (e countsEnricher) Enrich(ctx context.Context, records []model.CandidateRecord) ([]model.EnrichedRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]model.EnrichedRecord, len(records))
	for i, r := range records {
		out[i] = model.EnrichedRecord{
			CandidateRecord: r,
			RestaurantCount: e.counts[r.Name],
			Partial:         e.partial[r.Name],
		}
	}
	return out, nil
}

// fakePlaces serves a single page of entries.
type fakePlaces struct {
	entries  []places.RawEntry
	status   string
	err      error
	recorder interface{ RecordCall(string) }
	calls    atomic.Int32
}

func (f *fakePlaces) NearbySearch(ctx context.Context, req places.NearbyRequest) (*places.NearbyResponse, error) {
	f.calls.Add(1)
	if f.recorder != nil {
		f.recorder.RecordCall(places.APINearby)
	}
	if f.err != nil {
		return nil, f.err
	}
	status := f.status
	if status == "" {
		status = "OK"
	}
	return &places.NearbyResponse{Status: status, Results: f.entries}, nil
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func entry(name string, lat, lng float64) places.RawEntry {
	return places.RawEntry{
		Name:           strPtr(name),
		BusinessStatus: strPtr("OPERATIONAL"),
		Geometry: &places.Geometry{Location: &places.LatLng{
			Lat: floatPtr(lat),
			Lng: floatPtr(lng),
		}},
	}
}
