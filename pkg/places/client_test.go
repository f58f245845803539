package places

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/amenity-cli/internal/model"
	"github.com/sells-group/amenity-cli/internal/resilience"
)

type countingRecorder struct {
	n atomic.Int64
}

func (c *countingRecorder) RecordCall(api string) {
	if api == APINearby {
		c.n.Add(1)
	}
}

func TestNearbySearch_Success(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"status": "OK",
			"results": [
				{"place_id": "p1", "name": "Zostel", "business_status": "OPERATIONAL",
				 "geometry": {"location": {"lat": 12.97, "lng": 77.59}}},
				{"place_id": "p2", "geometry": {"location": {"lat": 12.98}}}
			],
			"next_page_token": "tok-1"
		}`)
	}))
	defer srv.Close()

	rec := &countingRecorder{}
	c := NewClient("test-key", WithBaseURL(srv.URL), WithLimiter(newTestLimiter()), WithRecorder(rec))

	resp, err := c.NearbySearch(context.Background(), NearbyRequest{
		Location: model.Coordinate{Latitude: 12.97, Longitude: 77.59},
		Radius:   5000,
		Keyword:  "Hostel|PG",
	})
	require.NoError(t, err)

	assert.Equal(t, "/nearbysearch/json", gotPath)
	assert.Equal(t, "12.97,77.59", gotQuery["location"][0])
	assert.Equal(t, "5000", gotQuery["radius"][0])
	assert.Equal(t, "Hostel|PG", gotQuery["keyword"][0])
	assert.Equal(t, "test-key", gotQuery["key"][0])
	assert.NotContains(t, gotQuery, "pagetoken")

	assert.Equal(t, "OK", resp.Status)
	assert.Equal(t, "tok-1", resp.NextPageToken)
	require.Len(t, resp.Results, 2)
	require.NotNil(t, resp.Results[0].Name)
	assert.Equal(t, "Zostel", *resp.Results[0].Name)
	assert.Nil(t, resp.Results[1].Name)
	assert.Nil(t, resp.Results[1].Geometry.Location.Lng)
	assert.Equal(t, int64(1), rec.n.Load())
}

func TestNearbySearch_SendsPageToken(t *testing.T) {
	fp, c := newFakeProvider(t, `{"status":"OK","results":[]}`)

	_, err := c.NearbySearch(context.Background(), NearbyRequest{
		Location:  model.Coordinate{Latitude: 1, Longitude: 2},
		Radius:    100,
		Keyword:   "Cafe",
		PageToken: "abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "abc", fp.calls()[0].query["pagetoken"])
}

func TestNearbySearch_HTTPErrors(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		transient bool
	}{
		{"forbidden", http.StatusForbidden, false},
		{"bad request", http.StatusBadRequest, false},
		{"too many requests", http.StatusTooManyRequests, true},
		{"unavailable", http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.code)
			}))
			defer srv.Close()

			c := NewClient("test-key", WithBaseURL(srv.URL), WithLimiter(newTestLimiter()))
			_, err := c.NearbySearch(context.Background(), NearbyRequest{Radius: 10, Keyword: "x"})
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrFetch)
			assert.Equal(t, tt.transient, resilience.IsTransient(err))
		})
	}
}

func TestNearbySearch_MalformedJSON(t *testing.T) {
	_, c := newFakeProvider(t, `{"status": "OK", "results": [`)

	_, err := c.NearbySearch(context.Background(), NearbyRequest{Radius: 10, Keyword: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrFetch)
	assert.Contains(t, err.Error(), "malformed response")
}

func TestNearbySearch_MissingStatus(t *testing.T) {
	_, c := newFakeProvider(t, `{"results": []}`)

	_, err := c.NearbySearch(context.Background(), NearbyRequest{Radius: 10, Keyword: "x"})
	assert.ErrorIs(t, err, model.ErrFetch)
}

func TestNearbySearch_TransportErrorDoesNotLeakKey(t *testing.T) {
	c := NewClient("super-secret", WithBaseURL("http://127.0.0.1:1"), WithLimiter(newTestLimiter()))

	_, err := c.NearbySearch(context.Background(), NearbyRequest{Radius: 10, Keyword: "x"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "super-secret")
}

func TestNearbySearch_LimiterCancelled(t *testing.T) {
	_, c := newFakeProvider(t, `{"status":"OK","results":[]}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.NearbySearch(ctx, NearbyRequest{Radius: 10, Keyword: "x"})
	require.Error(t, err)
}
