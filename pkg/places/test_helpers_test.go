package places

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/sells-group/amenity-cli/internal/resilience"
)

// newTestLimiter creates a rate limiter that effectively does not limit for tests.
func newTestLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

func fastRetry(attempts int) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2,
	}
}

// recordedRequest captures what the fake provider saw.
type recordedRequest struct {
	query    map[string]string
	received time.Time
}

// fakeProvider serves a scripted sequence of JSON bodies, one per request.
type fakeProvider struct {
	mu       sync.Mutex
	bodies   []string
	requests []recordedRequest
}

func (f *fakeProvider) handler(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	q := map[string]string{}
	for k, v := range r.URL.Query() {
		q[k] = v[0]
	}
	f.requests = append(f.requests, recordedRequest{query: q, received: time.Now()})

	idx := len(f.requests) - 1
	if idx >= len(f.bodies) {
		idx = len(f.bodies) - 1
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(f.bodies[idx]))
}

func (f *fakeProvider) calls() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func newFakeProvider(t *testing.T, bodies ...string) (*fakeProvider, Client) {
	t.Helper()
	fp := &fakeProvider{bodies: bodies}
	srv := httptest.NewServer(http.HandlerFunc(fp.handler))
	t.Cleanup(srv.Close)
	return fp, NewClient("test-key", WithBaseURL(srv.URL), WithLimiter(newTestLimiter()))
}
