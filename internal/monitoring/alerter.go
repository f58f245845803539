package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/amenity-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFailureRate    AlertType = "failure_rate"
	AlertQuotaExhausted AlertType = "quota_exhausted"
	AlertCostOverrun    AlertType = "cost_overrun"
)

// minFinishedRuns is the sample size below which the failure rate is ignored.
const minFinishedRuns = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// rule inspects a snapshot and returns an alert when its threshold is crossed.
type rule func(snap *MetricsSnapshot) *Alert

// Evaluate runs every rule against snap and returns the alerts raised, in
// rule order.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	now := time.Now().UTC()
	var alerts []Alert
	for _, r := range []rule{a.failureRate, a.quotaExhausted, a.costOverrun} {
		if alert := r(snap); alert != nil {
			alert.Timestamp = now
			alerts = append(alerts, *alert)
		}
	}
	return alerts
}

func (a *Alerter) failureRate(snap *MetricsSnapshot) *Alert {
	finished := snap.RunsComplete + snap.RunsFailed
	if finished < minFinishedRuns || snap.FailRate <= a.cfg.FailureRateThreshold {
		return nil
	}
	return &Alert{
		Type:     AlertFailureRate,
		Severity: "high",
		Message: fmt.Sprintf("%.1f%% of ranking runs failed in last %dh (%d of %d), threshold %.1f%%",
			snap.FailRate*100, snap.LookbackHours, snap.RunsFailed, finished, a.cfg.FailureRateThreshold*100),
		Details: map[string]any{
			"failure_rate": snap.FailRate,
			"threshold":    a.cfg.FailureRateThreshold,
			"failed":       snap.RunsFailed,
			"finished":     finished,
		},
	}
}

// quotaExhausted fires on any run that stopped on OVER_QUERY_LIMIT.
func (a *Alerter) quotaExhausted(snap *MetricsSnapshot) *Alert {
	if snap.QuotaFailures == 0 {
		return nil
	}
	return &Alert{
		Type:     AlertQuotaExhausted,
		Severity: "critical",
		Message: fmt.Sprintf("%d run(s) exhausted the Places quota in last %dh after %d nearby searches",
			snap.QuotaFailures, snap.LookbackHours, snap.NearbyCalls),
		Details: map[string]any{
			"quota_failures": snap.QuotaFailures,
			"nearby_calls":   snap.NearbyCalls,
			"geocode_calls":  snap.GeocodeCalls,
		},
	}
}

func (a *Alerter) costOverrun(snap *MetricsSnapshot) *Alert {
	if a.cfg.CostThresholdUSD <= 0 || snap.CostUSD <= a.cfg.CostThresholdUSD {
		return nil
	}
	return &Alert{
		Type:     AlertCostOverrun,
		Severity: "high",
		Message: fmt.Sprintf("Places and geocoding spend $%.2f exceeds $%.2f in last %dh",
			snap.CostUSD, a.cfg.CostThresholdUSD, snap.LookbackHours),
		Details: map[string]any{
			"cost_usd":      snap.CostUSD,
			"threshold_usd": a.cfg.CostThresholdUSD,
			"runs_total":    snap.RunsTotal,
		},
	}
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
