// Package places implements the Google Places Nearby Search contract: a raw
// HTTP client plus a paginated, rate-limited Searcher.
package places

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/amenity-cli/internal/model"
	"github.com/sells-group/amenity-cli/internal/resilience"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api/place"

// APINearby is the name passed to CallRecorder for each nearby request.
const APINearby = "places_nearby"

// Status is the provider status field of a Nearby Search response.
type Status string

const (
	StatusOK             Status = "OK"
	StatusZeroResults    Status = "ZERO_RESULTS"
	StatusOverQueryLimit Status = "OVER_QUERY_LIMIT"
	StatusRequestDenied  Status = "REQUEST_DENIED"
	StatusInvalidRequest Status = "INVALID_REQUEST"
	StatusUnknownError   Status = "UNKNOWN_ERROR"
)

// Client performs a single Nearby Search request.
type Client interface {
	NearbySearch(ctx context.Context, req NearbyRequest) (*NearbyResponse, error)
}

// NearbyRequest is one page request.
type NearbyRequest struct {
	Location  model.Coordinate
	Radius    int
	Keyword   string
	PageToken string
}

// NearbyResponse is the raw provider response. Status is not interpreted by
// the Client; the Searcher maps it.
type NearbyResponse struct {
	Status        string     `json:"status"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	Results       []RawEntry `json:"results"`
	NextPageToken string     `json:"next_page_token,omitempty"`
}

// RawEntry is a search hit as returned by the provider. Fields the pipeline
// requires are pointers so that absence is observable.
type RawEntry struct {
	PlaceID        string    `json:"place_id,omitempty"`
	Name           *string   `json:"name,omitempty"`
	BusinessStatus *string   `json:"business_status,omitempty"`
	Geometry       *Geometry `json:"geometry,omitempty"`
	Vicinity       string    `json:"vicinity,omitempty"`
	Types          []string  `json:"types,omitempty"`
}

// Geometry holds the entry location.
type Geometry struct {
	Location *LatLng `json:"location,omitempty"`
}

// LatLng is an optional coordinate pair.
type LatLng struct {
	Lat *float64 `json:"lat,omitempty"`
	Lng *float64 `json:"lng,omitempty"`
}

// CallRecorder is notified once per outgoing provider request.
type CallRecorder interface {
	RecordCall(api string)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithLimiter sets the limiter every request waits on. Share one limiter
// across all clients that call the same provider.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *httpClient) {
		c.limiter = l
	}
}

// WithRecorder registers a CallRecorder.
func WithRecorder(r CallRecorder) Option {
	return func(c *httpClient) {
		c.recorder = r
	}
}

type httpClient struct {
	apiKey   string
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	recorder CallRecorder
}

// NewClient creates a Nearby Search client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(10, 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) NearbySearch(ctx context.Context, req NearbyRequest) (*NearbyResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "places: rate limit wait")
	}

	params := url.Values{
		"location": {req.Location.String()},
		"radius":   {strconv.Itoa(req.Radius)},
		"keyword":  {req.Keyword},
		"key":      {c.apiKey},
	}
	if req.PageToken != "" {
		params.Set("pagetoken", req.PageToken)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/nearbysearch/json?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "places: create request")
	}

	if c.recorder != nil {
		c.recorder.RecordCall(APINearby)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		// url.Error embeds the request URL, which carries the key.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, eris.Wrap(err, "places: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "places: read response")
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Wrapf(model.ErrFetch, "places: unexpected http status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode, "")
		}
		return nil, statusErr
	}

	var out NearbyResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrapf(model.ErrFetch, "places: malformed response: %v", err)
	}
	if out.Status == "" {
		return nil, eris.Wrap(model.ErrFetch, "places: response missing status")
	}

	return &out, nil
}
