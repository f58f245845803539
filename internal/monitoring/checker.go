package monitoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/amenity-cli/internal/config"
)

// alertCooldown is how long an alert type stays muted after it was sent.
const alertCooldown = time.Hour

// Checker periodically snapshots run history and forwards new alerts.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
	now       func() time.Time

	mu       sync.Mutex
	lastSent map[AlertType]time.Time
}

// NewChecker creates a background alert checker.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		now:       time.Now,
		lastSent:  make(map[AlertType]time.Time),
	}
}

// Run checks once immediately, then on every interval until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("monitoring: checker started",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
		zap.Float64("failure_rate_threshold", c.cfg.FailureRateThreshold),
		zap.Float64("cost_threshold_usd", c.cfg.CostThresholdUSD),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		c.Check(ctx)
		select {
		case <-ctx.Done():
			log.Info("monitoring: checker stopped")
			return
		case <-ticker.C:
		}
	}
}

// Check collects one snapshot and sends the alerts that are not cooling
// down. It returns the alerts sent to the webhook, or that would have been
// sent when no webhook is configured.
func (c *Checker) Check(ctx context.Context) []Alert {
	if ctx.Err() != nil {
		return nil
	}
	log := zap.L().With(zap.String("component", "monitoring.checker"))

	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		log.Error("monitoring: failed to collect metrics", zap.Error(err))
		return nil
	}

	log.Info("monitoring: run health",
		zap.Int("runs", snap.RunsTotal),
		zap.Int("failed", snap.RunsFailed),
		zap.Float64("fail_rate", snap.FailRate),
		zap.Int("quota_failures", snap.QuotaFailures),
		zap.Int64("nearby_calls", snap.NearbyCalls),
		zap.Int64("geocode_calls", snap.GeocodeCalls),
		zap.Float64("cost_usd", snap.CostUSD),
		zap.Float64("avg_records", snap.AvgRecords),
	)

	due := c.due(c.alerter.Evaluate(snap))
	if len(due) == 0 {
		return nil
	}

	sent := c.alerter.SendAlerts(ctx, due)
	log.Info("monitoring: alerts raised",
		zap.Int("alerts", len(due)),
		zap.Int("delivered", sent),
	)
	return due
}

// due drops alerts whose type fired within the cooldown and stamps the rest.
func (c *Checker) due(alerts []Alert) []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var out []Alert
	for _, a := range alerts {
		if last, ok := c.lastSent[a.Type]; ok && now.Sub(last) < alertCooldown {
			continue
		}
		c.lastSent[a.Type] = now
		out = append(out, a)
	}
	return out
}
