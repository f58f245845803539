package places

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/amenity-cli/internal/model"
)

var center = model.Coordinate{Latitude: 12.9716, Longitude: 77.5946}

func page(names []string, token string) string {
	body := `{"status":"OK","results":[`
	for i, n := range names {
		if i > 0 {
			body += ","
		}
		body += fmt.Sprintf(`{"name":%q,"business_status":"OPERATIONAL","geometry":{"location":{"lat":12.9,"lng":77.5}}}`, n)
	}
	body += `]`
	if token != "" {
		body += fmt.Sprintf(`,"next_page_token":%q`, token)
	}
	return body + `}`
}

func TestSearch_InvalidParameters(t *testing.T) {
	_, c := newFakeProvider(t, page(nil, ""))
	s := NewSearcher(c, SearchConfig{})

	tests := []struct {
		name     string
		center   model.Coordinate
		radius   int
		keywords []string
	}{
		{"radius zero", center, 0, []string{"Hostel"}},
		{"radius too large", center, 50001, []string{"Hostel"}},
		{"no keywords", center, 1000, nil},
		{"blank keywords", center, 1000, []string{" ", "|"}},
		{"bad center", model.Coordinate{Latitude: 100}, 1000, []string{"Hostel"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Search(tt.center, tt.radius, tt.keywords)
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrInvalidParameter)
		})
	}
}

func TestSearch_RadiusBoundsInclusive(t *testing.T) {
	_, c := newFakeProvider(t, page(nil, ""))
	s := NewSearcher(c, SearchConfig{})

	_, err := s.Search(center, MinRadius, []string{"Hostel"})
	assert.NoError(t, err)
	_, err = s.Search(center, MaxRadius, []string{"Hostel"})
	assert.NoError(t, err)
}

func TestJoinKeywords(t *testing.T) {
	assert.Equal(t, "Restaurant|Cafe", JoinKeywords([]string{"Restaurant", " Cafe "}))
	assert.Equal(t, "Hostel|PG|Home", JoinKeywords([]string{"Hostel|PG", "hostel", "Home"}))
	assert.Equal(t, "", JoinKeywords(nil))
}

func TestSearch_LazyUntilNext(t *testing.T) {
	fp, c := newFakeProvider(t, page([]string{"a"}, ""))
	s := NewSearcher(c, SearchConfig{})

	res, err := s.Search(center, 1000, []string{"Hostel"})
	require.NoError(t, err)
	assert.Empty(t, fp.calls())

	_, err = res.Collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, fp.calls(), 1)
}

func TestSearch_ZeroResultsIsEmptySequence(t *testing.T) {
	_, c := newFakeProvider(t, `{"status":"ZERO_RESULTS","results":[]}`)
	s := NewSearcher(c, SearchConfig{})

	res, err := s.Search(center, 1000, []string{"Hostel"})
	require.NoError(t, err)

	entries, err := res.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSearch_PaginatesAfterTokenDelay(t *testing.T) {
	delay := 150 * time.Millisecond
	fp, c := newFakeProvider(t,
		page([]string{"a", "b"}, "tok-1"),
		page([]string{"c"}, "tok-2"),
		page([]string{"d"}, ""),
	)
	s := NewSearcher(c, SearchConfig{TokenDelay: delay, MaxPages: 5})

	res, err := s.Search(center, 2000, []string{"Hostel"})
	require.NoError(t, err)

	entries, err := res.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.Equal(t, "d", *entries[3].Name)
	assert.Equal(t, 3, res.Pages())

	calls := fp.calls()
	require.Len(t, calls, 3)
	assert.Empty(t, calls[0].query["pagetoken"])
	assert.Equal(t, "tok-1", calls[1].query["pagetoken"])
	assert.Equal(t, "tok-2", calls[2].query["pagetoken"])

	// A token must never be sent before it has aged past the delay.
	assert.GreaterOrEqual(t, calls[1].received.Sub(calls[0].received), delay)
	assert.GreaterOrEqual(t, calls[2].received.Sub(calls[1].received), delay)
}

func TestSearch_StopsAtMaxPages(t *testing.T) {
	fp, c := newFakeProvider(t,
		page([]string{"a"}, "tok-1"),
		page([]string{"b"}, "tok-2"),
		page([]string{"c"}, "tok-3"),
	)
	s := NewSearcher(c, SearchConfig{TokenDelay: time.Millisecond, MaxPages: 2})

	res, err := s.Search(center, 2000, []string{"Hostel"})
	require.NoError(t, err)

	entries, err := res.Collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Len(t, fp.calls(), 2)
}

func TestSearch_WithMaxPagesCopy(t *testing.T) {
	_, c := newFakeProvider(t, page(nil, ""))
	s := NewSearcher(c, SearchConfig{MaxPages: 3})
	one := s.WithMaxPages(1)

	assert.Equal(t, 3, s.cfg.MaxPages)
	assert.Equal(t, 1, one.cfg.MaxPages)
}

func TestSearch_NonRestartable(t *testing.T) {
	fp, c := newFakeProvider(t, page([]string{"a"}, ""))
	s := NewSearcher(c, SearchConfig{})

	res, err := s.Search(center, 1000, []string{"Hostel"})
	require.NoError(t, err)

	first, err := res.Collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, first, 1)

	second, err := res.Collect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second)

	_, err = res.Next(context.Background())
	assert.True(t, errors.Is(err, Done))
	assert.Len(t, fp.calls(), 1)
}

func TestSearch_OverQueryLimitRetriesThenSucceeds(t *testing.T) {
	fp, c := newFakeProvider(t,
		`{"status":"OVER_QUERY_LIMIT","results":[]}`,
		`{"status":"OVER_QUERY_LIMIT","results":[]}`,
		page([]string{"a"}, ""),
	)
	s := NewSearcher(c, SearchConfig{Retry: fastRetry(4)})

	res, err := s.Search(center, 1000, []string{"Hostel"})
	require.NoError(t, err)

	entries, err := res.Collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Len(t, fp.calls(), 3)
}

func TestSearch_OverQueryLimitExhausted(t *testing.T) {
	fp, c := newFakeProvider(t, `{"status":"OVER_QUERY_LIMIT","results":[]}`)
	s := NewSearcher(c, SearchConfig{Retry: fastRetry(3)})

	res, err := s.Search(center, 1000, []string{"Hostel"})
	require.NoError(t, err)

	_, err = res.Collect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrRateLimitExceeded)
	assert.Len(t, fp.calls(), 3)
}

func TestSearch_DeniedFailsImmediately(t *testing.T) {
	for _, status := range []string{"REQUEST_DENIED", "INVALID_REQUEST"} {
		t.Run(status, func(t *testing.T) {
			fp, c := newFakeProvider(t, fmt.Sprintf(`{"status":%q,"error_message":"nope","results":[]}`, status))
			s := NewSearcher(c, SearchConfig{Retry: fastRetry(3)})

			res, err := s.Search(center, 1000, []string{"Hostel"})
			require.NoError(t, err)

			_, err = res.Collect(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, model.ErrFetch)
			assert.Contains(t, err.Error(), status)
			assert.Len(t, fp.calls(), 1)
		})
	}
}

func TestSearch_UnknownStatusIsFetchError(t *testing.T) {
	_, c := newFakeProvider(t, `{"status":"UNKNOWN_ERROR","results":[]}`)
	s := NewSearcher(c, SearchConfig{Retry: fastRetry(3)})

	res, err := s.Search(center, 1000, []string{"Hostel"})
	require.NoError(t, err)

	_, err = res.Collect(context.Background())
	assert.ErrorIs(t, err, model.ErrFetch)
	assert.Contains(t, err.Error(), "UNKNOWN_ERROR")
}

func TestSearch_CancelledWhileWaitingForToken(t *testing.T) {
	fp, c := newFakeProvider(t, page([]string{"a"}, "tok-1"), page([]string{"b"}, ""))
	s := NewSearcher(c, SearchConfig{TokenDelay: time.Hour})

	res, err := s.Search(center, 1000, []string{"Hostel"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	first, err := res.Next(ctx)
	require.NoError(t, err)
	assert.Len(t, first, 1)

	_, err = res.Next(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, fp.calls(), 1)
}

func TestResults_AllStopsEarly(t *testing.T) {
	_, c := newFakeProvider(t, page([]string{"a", "b", "c"}, ""))
	s := NewSearcher(c, SearchConfig{})

	res, err := s.Search(center, 1000, []string{"Hostel"})
	require.NoError(t, err)

	var seen int
	for _, err := range res.All(context.Background()) {
		require.NoError(t, err)
		seen++
		if seen == 2 {
			break
		}
	}
	assert.Equal(t, 2, seen)
}
