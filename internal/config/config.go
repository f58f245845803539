package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Google     GoogleConfig     `yaml:"google" mapstructure:"google"`
	Places     PlacesConfig     `yaml:"places" mapstructure:"places"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Amenity    AmenityConfig    `yaml:"amenity" mapstructure:"amenity"`
	Cluster    ClusterConfig    `yaml:"cluster" mapstructure:"cluster"`
	Tier       TierConfig       `yaml:"tier" mapstructure:"tier"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// GoogleConfig holds the Maps Platform credential and endpoint overrides.
type GoogleConfig struct {
	Key            string `yaml:"key" mapstructure:"key"`
	PlacesBaseURL  string `yaml:"places_base_url" mapstructure:"places_base_url"`
	GeocodeBaseURL string `yaml:"geocode_base_url" mapstructure:"geocode_base_url"`
}

// PlacesConfig configures request pacing and pagination.
type PlacesConfig struct {
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst        int     `yaml:"burst" mapstructure:"burst"`
	MaxPages     int     `yaml:"max_pages" mapstructure:"max_pages"`
	AuxMaxPages  int     `yaml:"aux_max_pages" mapstructure:"aux_max_pages"`
	TokenDelayMs int     `yaml:"token_delay_ms" mapstructure:"token_delay_ms"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// TokenDelay returns the continuation token delay.
func (p PlacesConfig) TokenDelay() time.Duration {
	return time.Duration(p.TokenDelayMs) * time.Millisecond
}

// Timeout returns the per-request HTTP timeout.
func (p PlacesConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSecs) * time.Second
}

// RetryConfig configures backoff for quota-limited searches.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	Jitter           float64 `yaml:"jitter" mapstructure:"jitter"`
}

// SearchConfig holds the default ranking parameters.
type SearchConfig struct {
	Radius          int    `yaml:"radius" mapstructure:"radius"`
	Keyword         string `yaml:"keyword" mapstructure:"keyword"`
	AuxiliaryRadius int    `yaml:"auxiliary_radius" mapstructure:"auxiliary_radius"`
}

// Keywords splits the configured keyword filter on "|".
func (s SearchConfig) Keywords() []string {
	var out []string
	for _, k := range strings.Split(s.Keyword, "|") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// AmenityConfig configures enrichment.
type AmenityConfig struct {
	Source        string   `yaml:"source" mapstructure:"source"`
	Concurrency   int      `yaml:"concurrency" mapstructure:"concurrency"`
	Dining        []string `yaml:"dining" mapstructure:"dining"`
	Provisions    []string `yaml:"provisions" mapstructure:"provisions"`
	OverpassURL   string   `yaml:"overpass_url" mapstructure:"overpass_url"`
	CacheTTLHours int      `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// CacheTTL returns the amenity and geocode cache lifetime.
func (a AmenityConfig) CacheTTL() time.Duration {
	return time.Duration(a.CacheTTLHours) * time.Hour
}

// ClusterConfig configures k-means.
type ClusterConfig struct {
	K             int    `yaml:"k" mapstructure:"k"`
	Seed          uint64 `yaml:"seed" mapstructure:"seed"`
	Scaling       string `yaml:"scaling" mapstructure:"scaling"`
	MaxIterations int    `yaml:"max_iterations" mapstructure:"max_iterations"`
	NInit         int    `yaml:"n_init" mapstructure:"n_init"`
}

// TierConfig holds the tier thresholds on cluster mean restaurant count.
type TierConfig struct {
	LowMax      float64 `yaml:"low_max" mapstructure:"low_max"`
	ModerateMax float64 `yaml:"moderate_max" mapstructure:"moderate_max"`
}

// StoreConfig configures run history and cache persistence.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// PricingConfig holds per-call USD prices.
type PricingConfig struct {
	PlacesNearby float64 `yaml:"places_nearby" mapstructure:"places_nearby"`
	Geocode      float64 `yaml:"geocode" mapstructure:"geocode"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port               int `yaml:"port" mapstructure:"port"`
	RequestTimeoutSecs int `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// RequestTimeout bounds a single /v1/rank request.
func (s ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSecs) * time.Second
}

// MonitoringConfig configures the run health checker started by serve.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultKeyword is the hostel keyword filter.
const DefaultKeyword = "BoysHostel|GirlsHostel|Residency|Hostel|PG|House|Home"

// Load reads configuration from .env, file and environment.
func Load() (*Config, error) {
	// A missing .env is fine; a malformed one is not.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("AMENITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("google.key", "")
	v.SetDefault("google.places_base_url", "")
	v.SetDefault("google.geocode_base_url", "")
	v.SetDefault("places.rate_limit", 10)
	v.SetDefault("places.burst", 1)
	v.SetDefault("places.max_pages", 3)
	v.SetDefault("places.aux_max_pages", 1)
	v.SetDefault("places.token_delay_ms", 2000)
	v.SetDefault("places.timeout_secs", 10)
	v.SetDefault("retry.max_attempts", 4)
	v.SetDefault("retry.initial_backoff_ms", 1000)
	v.SetDefault("retry.max_backoff_ms", 16000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter", 0.25)
	v.SetDefault("search.radius", 5000)
	v.SetDefault("search.keyword", DefaultKeyword)
	v.SetDefault("search.auxiliary_radius", 1000)
	v.SetDefault("amenity.source", "places")
	v.SetDefault("amenity.concurrency", 4)
	v.SetDefault("amenity.dining", []string{"Restaurant", "Cafe"})
	v.SetDefault("amenity.provisions", []string{"Fruit", "Juice"})
	v.SetDefault("amenity.overpass_url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("amenity.cache_ttl_hours", 168)
	v.SetDefault("cluster.k", 3)
	v.SetDefault("cluster.seed", 0)
	v.SetDefault("cluster.scaling", "zscore")
	v.SetDefault("cluster.max_iterations", 300)
	v.SetDefault("cluster.n_init", 10)
	v.SetDefault("tier.low_max", 5.0)
	v.SetDefault("tier.moderate_max", 10.0)
	v.SetDefault("store.driver", "none")
	v.SetDefault("store.database_url", "")
	v.SetDefault("pricing.places_nearby", 0.032)
	v.SetDefault("pricing.geocode", 0.005)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_secs", 120)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.cost_threshold_usd", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
