// Package monitoring summarizes stored run history and raises alerts when
// failure rate, quota exhaustion or spend cross configured thresholds.
package monitoring

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/amenity-cli/internal/model"
	"github.com/sells-group/amenity-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of run health.
type MetricsSnapshot struct {
	RunsTotal     int     `json:"runs_total"`
	RunsComplete  int     `json:"runs_complete"`
	RunsFailed    int     `json:"runs_failed"`
	RunsRunning   int     `json:"runs_running"`
	FailRate      float64 `json:"fail_rate"`
	QuotaFailures int     `json:"quota_failures"`

	NearbyCalls  int64   `json:"nearby_calls"`
	GeocodeCalls int64   `json:"geocode_calls"`
	CostUSD      float64 `json:"cost_usd"`
	AvgRecords   float64 `json:"avg_records"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the slice of store.Store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers metrics from run history.
type Collector struct {
	runs RunLister
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs}
}

// Collect gathers a snapshot of run metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{
		CreatedAfter: cutoff,
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	quotaMsg := model.ErrRateLimitExceeded.Error()
	var totalRecords int

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
			totalRecords += r.RecordCount
		case model.RunStatusFailed:
			snap.RunsFailed++
			if strings.Contains(r.Error, quotaMsg) {
				snap.QuotaFailures++
			}
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
		snap.NearbyCalls += r.Usage.NearbyCalls
		snap.GeocodeCalls += r.Usage.GeocodeCalls
		snap.CostUSD += r.Usage.CostUSD
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if snap.RunsComplete > 0 {
		snap.AvgRecords = float64(totalRecords) / float64(snap.RunsComplete)
	}

	return snap, nil
}
