package config

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Validation modes, one per command that needs a subset of the config.
const (
	ModeRank  = "rank"
	ModeServe = "serve"
	ModeRuns  = "runs"
)

// Search radius bounds accepted from users.
const (
	MinSearchRadius = 1000
	MaxSearchRadius = 10000
)

// Validate checks the fields mode depends on and reports every problem at
// once.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case ModeRank, ModeServe:
		errs = append(errs, c.validatePipeline()...)
		if mode == ModeServe {
			if c.Server.Port <= 0 {
				errs = append(errs, "server.port must be > 0")
			}
			errs = append(errs, c.validateMonitoring()...)
		}
	case ModeRuns:
		if c.Store.Driver == "" || c.Store.Driver == "none" {
			errs = append(errs, "store.driver must be sqlite or postgres")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}
	errs = append(errs, c.validateStore()...)

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validatePipeline() []string {
	var errs []string
	if c.Google.Key == "" {
		errs = append(errs, "google.key is required")
	}
	if c.Places.RateLimit <= 0 {
		errs = append(errs, "places.rate_limit must be > 0")
	}
	if c.Places.Burst < 1 {
		errs = append(errs, "places.burst must be >= 1")
	}
	if c.Places.MaxPages < 1 || c.Places.AuxMaxPages < 1 {
		errs = append(errs, "places.max_pages and places.aux_max_pages must be >= 1")
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry.max_attempts must be >= 1")
	}
	if c.Search.Radius < MinSearchRadius || c.Search.Radius > MaxSearchRadius {
		errs = append(errs, "search.radius must be between 1000 and 10000")
	}
	if len(c.Search.Keywords()) == 0 {
		errs = append(errs, "search.keyword is required")
	}
	if c.Search.AuxiliaryRadius < 1 {
		errs = append(errs, "search.auxiliary_radius must be >= 1")
	}
	switch c.Amenity.Source {
	case "places", "overpass":
	default:
		errs = append(errs, "amenity.source must be places or overpass")
	}
	if c.Amenity.Concurrency < 1 || c.Amenity.Concurrency > 64 {
		errs = append(errs, "amenity.concurrency must be between 1 and 64")
	}
	if c.Cluster.K < 1 {
		errs = append(errs, "cluster.k must be >= 1")
	}
	switch c.Cluster.Scaling {
	case "none", "minmax", "zscore":
	default:
		errs = append(errs, "cluster.scaling must be none, minmax or zscore")
	}
	if c.Tier.LowMax < 0 || c.Tier.ModerateMax < c.Tier.LowMax {
		errs = append(errs, "tier thresholds must satisfy 0 <= low_max <= moderate_max")
	}
	return errs
}

func (c *Config) validateMonitoring() []string {
	if !c.Monitoring.Enabled {
		return nil
	}
	var errs []string
	if c.Store.Driver == "" || c.Store.Driver == "none" {
		errs = append(errs, "monitoring.enabled requires store.driver sqlite or postgres")
	}
	if c.Monitoring.LookbackWindowHours < 1 {
		errs = append(errs, "monitoring.lookback_window_hours must be >= 1")
	}
	if c.Monitoring.FailureRateThreshold < 0 || c.Monitoring.FailureRateThreshold > 1 {
		errs = append(errs, "monitoring.failure_rate_threshold must be between 0 and 1")
	}
	return errs
}

func (c *Config) validateStore() []string {
	switch c.Store.Driver {
	case "", "none":
		return nil
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
		return nil
	default:
		return []string{"store.driver must be none, sqlite or postgres"}
	}
}
