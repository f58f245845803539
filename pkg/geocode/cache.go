package geocode

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/amenity-cli/internal/model"
)

// Cache stores resolved coordinates by query hash. GetGeocode returns nil, nil
// on a miss.
type Cache interface {
	GetGeocode(ctx context.Context, key string) (*model.Coordinate, error)
	SetGeocode(ctx context.Context, key string, c model.Coordinate, ttl time.Duration) error
}

// cacheKey returns SHA-256 hex of the normalized query.
func cacheKey(query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}
