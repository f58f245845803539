package amenity

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/amenity-cli/internal/model"
)

// Cache stores amenity counts. GetAmenityCount reports ok=false on a miss or
// an expired entry.
type Cache interface {
	GetAmenityCount(ctx context.Context, key string) (count int, ok bool, err error)
	SetAmenityCount(ctx context.Context, key string, count int, ttl time.Duration) error
}

// CachedCounter serves counts from a Cache and fills it from the wrapped
// Counter. Cache failures fall through to the wrapped Counter.
type CachedCounter struct {
	next   Counter
	cache  Cache
	source string
	ttl    time.Duration
}

// NewCachedCounter wraps next. source namespaces keys so counts from
// different providers never mix.
func NewCachedCounter(next Counter, cache Cache, source string, ttl time.Duration) *CachedCounter {
	return &CachedCounter{next: next, cache: cache, source: source, ttl: ttl}
}

// Count implements Counter.
func (c *CachedCounter) Count(ctx context.Context, center model.Coordinate, radius int, cat Category) (int, error) {
	key := CacheKey(c.source, center, radius, cat)

	n, ok, err := c.cache.GetAmenityCount(ctx, key)
	switch {
	case err != nil:
		zap.L().Debug("amenity: cache lookup failed", zap.String("key", key), zap.Error(err))
	case ok:
		return n, nil
	}

	n, err = c.next.Count(ctx, center, radius, cat)
	if err != nil {
		return 0, err
	}
	if err := c.cache.SetAmenityCount(ctx, key, n, c.ttl); err != nil {
		zap.L().Warn("amenity: cache store failed", zap.String("key", key), zap.Error(err))
	}
	return n, nil
}

// CacheKey identifies a count by source, category terms, radius and the
// center rounded to about 1 m.
func CacheKey(source string, center model.Coordinate, radius int, cat Category) string {
	return fmt.Sprintf("%s|%s|%s|%d|%.5f,%.5f",
		source, cat.Name, cacheTerms(source, cat), radius, center.Latitude, center.Longitude)
}

func cacheTerms(source string, cat Category) string {
	if source == SourceOverpass {
		return cat.OSMKey + "=" + cat.osmPattern()
	}
	return fmt.Sprint(cat.Keywords)
}
