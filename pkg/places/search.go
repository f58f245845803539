package places

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/amenity-cli/internal/model"
	"github.com/sells-group/amenity-cli/internal/resilience"
)

const (
	// MinRadius and MaxRadius bound the radius the provider accepts, in meters.
	MinRadius = 1
	MaxRadius = 50000

	// DefaultTokenDelay is how long a next_page_token must age before the
	// provider accepts it.
	DefaultTokenDelay = 2 * time.Second

	// DefaultMaxPages caps pagination. The provider serves at most three
	// pages of twenty.
	DefaultMaxPages = 3
)

// Done is returned by Results.Next when the sequence is exhausted.
var Done = eris.New("places: no more pages")

// SearchConfig tunes pagination and quota retries.
type SearchConfig struct {
	MaxPages   int
	TokenDelay time.Duration
	Retry      resilience.RetryConfig
}

// Searcher turns a Client into finite, paginated result sequences.
type Searcher struct {
	client Client
	cfg    SearchConfig
}

// NewSearcher creates a Searcher. Zero config fields take defaults.
func NewSearcher(client Client, cfg SearchConfig) *Searcher {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.TokenDelay <= 0 {
		cfg.TokenDelay = DefaultTokenDelay
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}
	return &Searcher{client: client, cfg: cfg}
}

// WithMaxPages returns a copy of the Searcher with a different page cap.
func (s *Searcher) WithMaxPages(n int) *Searcher {
	cp := *s
	if n > 0 {
		cp.cfg.MaxPages = n
	}
	return &cp
}

// Search validates the parameters and returns a lazy result sequence. No
// request is sent until the first call to Next.
func (s *Searcher) Search(center model.Coordinate, radius int, keywords []string) (*Results, error) {
	if err := center.Validate(); err != nil {
		return nil, eris.Wrap(err, "places: search center")
	}
	if radius < MinRadius || radius > MaxRadius {
		return nil, eris.Wrapf(model.ErrInvalidParameter, "places: radius %d outside [%d, %d]", radius, MinRadius, MaxRadius)
	}
	keyword := JoinKeywords(keywords)
	if keyword == "" {
		return nil, eris.Wrap(model.ErrInvalidParameter, "places: keyword filter is empty")
	}

	return &Results{
		s: s,
		req: NearbyRequest{
			Location: center,
			Radius:   radius,
			Keyword:  keyword,
		},
	}, nil
}

// JoinKeywords trims, de-duplicates and joins keyword alternatives with "|".
func JoinKeywords(keywords []string) string {
	seen := make(map[string]bool, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		for _, part := range strings.Split(k, "|") {
			part = strings.TrimSpace(part)
			if part == "" || seen[strings.ToLower(part)] {
				continue
			}
			seen[strings.ToLower(part)] = true
			out = append(out, part)
		}
	}
	return strings.Join(out, "|")
}

// Results is a finite, non-restartable sequence of result pages.
type Results struct {
	s       *Searcher
	req     NearbyRequest
	token   string
	tokenAt time.Time
	pages   int
	done    bool
}

// Pages returns the number of pages fetched so far.
func (r *Results) Pages() int {
	return r.pages
}

// Next fetches the next page. It returns Done once the provider stops
// issuing tokens, MaxPages is reached, or the search had zero results.
func (r *Results) Next(ctx context.Context) ([]RawEntry, error) {
	if r.done {
		return nil, Done
	}

	req := r.req
	if r.token != "" {
		if err := waitUntil(ctx, r.tokenAt.Add(r.s.cfg.TokenDelay)); err != nil {
			r.done = true
			return nil, eris.Wrap(err, "places: waiting for page token")
		}
		req.PageToken = r.token
	}

	resp, err := r.fetch(ctx, req)
	if err != nil {
		r.done = true
		return nil, err
	}
	r.pages++

	switch Status(resp.Status) {
	case StatusOK:
		if resp.NextPageToken != "" && r.pages < r.s.cfg.MaxPages {
			r.token = resp.NextPageToken
			r.tokenAt = time.Now()
		} else {
			r.done = true
		}
		return resp.Results, nil

	case StatusZeroResults:
		r.done = true
		return nil, Done

	case StatusRequestDenied, StatusInvalidRequest:
		r.done = true
		return nil, eris.Wrapf(model.ErrFetch, "places: status %s: %s", resp.Status, resp.ErrorMessage)

	default:
		r.done = true
		zap.L().Warn("places: unexpected status",
			zap.String("status", resp.Status),
			zap.String("error_message", resp.ErrorMessage),
			zap.String("keyword", req.Keyword),
			zap.Int("page", r.pages),
		)
		return nil, eris.Wrapf(model.ErrFetch, "places: status %s", resp.Status)
	}
}

// All yields every entry across pages, stopping at the first error.
func (r *Results) All(ctx context.Context) iter.Seq2[RawEntry, error] {
	return func(yield func(RawEntry, error) bool) {
		for {
			page, err := r.Next(ctx)
			if errors.Is(err, Done) {
				return
			}
			if err != nil {
				yield(RawEntry{}, err)
				return
			}
			for _, e := range page {
				if !yield(e, nil) {
					return
				}
			}
		}
	}
}

// Collect drains the sequence.
func (r *Results) Collect(ctx context.Context) ([]RawEntry, error) {
	var out []RawEntry
	for e, err := range r.All(ctx) {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// fetch sends one page request, retrying OVER_QUERY_LIMIT and transient
// transport failures with backoff.
func (r *Results) fetch(ctx context.Context, req NearbyRequest) (*NearbyResponse, error) {
	cfg := r.s.cfg.Retry
	cfg.ShouldRetry = resilience.IsTransient
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("places", "nearby_search")
	}

	resp, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (*NearbyResponse, error) {
		resp, err := r.s.client.NearbySearch(ctx, req)
		if err != nil {
			return nil, err
		}
		if Status(resp.Status) == StatusOverQueryLimit {
			return nil, resilience.NewTransientError(eris.New("places: OVER_QUERY_LIMIT"), 0, resp.Status)
		}
		return resp, nil
	})
	if err == nil {
		return resp, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, eris.Wrap(ctxErr, "places: nearby search cancelled")
	}

	var te *resilience.TransientError
	if errors.As(err, &te) {
		if Status(te.Status) == StatusOverQueryLimit || te.StatusCode == 429 {
			return nil, eris.Wrapf(model.ErrRateLimitExceeded, "places: quota retries exhausted after %d attempts", cfg.MaxAttempts)
		}
		return nil, eris.Wrapf(model.ErrFetch, "places: retries exhausted: %v", err)
	}
	if errors.Is(err, model.ErrFetch) {
		return nil, err
	}
	return nil, eris.Wrapf(model.ErrFetch, "places: %v", err)
}

func waitUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
