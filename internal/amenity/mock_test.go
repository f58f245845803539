package amenity

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/amenity-cli/internal/model"
)

// mockCounter is a testify mock for Counter.
type mockCounter struct {
	mock.Mock
}

func (m *mockCounter) Count(ctx context.Context, center model.Coordinate, radius int, cat Category) (int, error) {
	args := m.Called(ctx, center, radius, cat)
	return args.Int(0), args.Error(1)
}

// funcCounter adapts a function to Counter for concurrent tests.
type funcCounter func(ctx context.Context, center model.Coordinate, radius int, cat Category) (int, error)

func (f funcCounter) Count(ctx context.Context, center model.Coordinate, radius int, cat Category) (int, error) {
	return f(ctx, center, radius, cat)
}

// mockCache is a testify mock for Cache.
type mockCache struct {
	mock.Mock
}

func (m *mockCache) GetAmenityCount(ctx context.Context, key string) (int, bool, error) {
	args := m.Called(ctx, key)
	return args.Int(0), args.Bool(1), args.Error(2)
}

func (m *mockCache) SetAmenityCount(ctx context.Context, key string, count int, ttl time.Duration) error {
	args := m.Called(ctx, key, count, ttl)
	return args.Error(0)
}

// memCache is an in-memory Cache.
type memCache struct {
	mu   sync.Mutex
	data map[string]int
}

func (m *memCache) GetAmenityCount(_ context.Context, key string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.data[key]
	return n, ok, nil
}

func (m *memCache) SetAmenityCount(_ context.Context, key string, count int, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string]int{}
	}
	m.data[key] = count
	return nil
}

func candidate(id string, lat, lng float64) model.CandidateRecord {
	return model.CandidateRecord{
		PlaceID:        id,
		Name:           "Hostel " + id,
		Coordinate:     model.Coordinate{Latitude: lat, Longitude: lng},
		BusinessStatus: model.BusinessOperational,
	}
}
