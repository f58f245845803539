package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/amenity-cli/internal/model"
)

// newTestLimiter creates a rate limiter that effectively does not limit for tests.
func newTestLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

// newTestResolver serves body for every geocode request and counts hits.
func newTestResolver(t *testing.T, body string, opts ...Option) (Resolver, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	opts = append([]Option{WithBaseURL(srv.URL), WithLimiter(newTestLimiter())}, opts...)
	r, err := NewResolver("test-key", opts...)
	require.NoError(t, err)
	return r, &hits
}

type memCache struct {
	mu   sync.Mutex
	data map[string]model.Coordinate
}

func (m *memCache) GetGeocode(_ context.Context, key string) (*model.Coordinate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *memCache) SetGeocode(_ context.Context, key string, c model.Coordinate, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string]model.Coordinate{}
	}
	m.data[key] = c
	return nil
}
