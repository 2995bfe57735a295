// Package config loads and validates paperscout configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/paperscout/internal/anomaly"
	"github.com/JakeFAU/paperscout/internal/filter"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig            `mapstructure:"server"`
	Auth       AuthConfig              `mapstructure:"auth"`
	Upstream   UpstreamConfig          `mapstructure:"upstream"`
	Politeness PolitenessConfig        `mapstructure:"politeness"`
	HTTP       HTTPConfig              `mapstructure:"http"`
	Headless   HeadlessConfig          `mapstructure:"headless"`
	Pipeline   PipelineConfig          `mapstructure:"pipeline"`
	Storage    StorageConfig           `mapstructure:"storage"`
	PubSub     PubSubConfig            `mapstructure:"pubsub"`
	Logging    LoggingConfig           `mapstructure:"logging"`
	Anomaly    anomaly.Markers         `mapstructure:"anomaly"`
	Themes     map[string]filter.Theme `mapstructure:"themes"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// UpstreamConfig describes the search service being crawled.
type UpstreamConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	SearchPath      string `mapstructure:"search_path"`
	PageSize        int    `mapstructure:"page_size"`
	HardLimit       int    `mapstructure:"hard_limit"`
	MaxStartOffset  int    `mapstructure:"max_start_offset"`
	DefaultMaxItems int    `mapstructure:"default_max_results"`
}

// PolitenessConfig bounds how often live requests may leave the process.
type PolitenessConfig struct {
	MinDelaySeconds float64 `mapstructure:"min_delay_seconds"`
	MaxDelaySeconds float64 `mapstructure:"max_delay_seconds"`
	MaxRPS          float64 `mapstructure:"max_rps"`
	Burst           int     `mapstructure:"burst"`
}

// HTTPConfig configures the HTTP client and its retry behavior.
type HTTPConfig struct {
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	MaxRetries      int    `mapstructure:"max_retries"`
	BackoffMs       int    `mapstructure:"backoff_ms"`
	UserAgent       string `mapstructure:"user_agent"`
	AcceptLanguage  string `mapstructure:"accept_language"`
	RespectRobots   bool   `mapstructure:"respect_robots"`
	MaxBodyBytes    int    `mapstructure:"max_body_bytes"`
	CacheSize       int    `mapstructure:"cache_size"`
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds"`
}

// HeadlessConfig configures the optional headless rendering fallback.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// PipelineConfig tunes the orchestrator.
type PipelineConfig struct {
	EnrichConcurrency int `mapstructure:"enrich_concurrency"`
	RunTimeoutSeconds int `mapstructure:"run_timeout_seconds"`
	ContextMaxChars   int `mapstructure:"context_max_chars"`
}

// StorageConfig selects and configures the artifact blob store.
type StorageConfig struct {
	Backend         string `mapstructure:"backend"`
	BaseDir         string `mapstructure:"base_dir"`
	GCSBucket       string `mapstructure:"gcs_bucket"`
	Prefix          string `mapstructure:"prefix"`
	BundlePageBytes int    `mapstructure:"bundle_page_bytes"`
}

// PubSubConfig holds metadata for run notifications.
type PubSubConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PAPERSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 600)
	v.SetDefault("upstream.base_url", "https://arxiv.org")
	v.SetDefault("upstream.search_path", "/search/cs")
	v.SetDefault("upstream.page_size", 50)
	v.SetDefault("upstream.hard_limit", 100)
	v.SetDefault("upstream.max_start_offset", 1000)
	v.SetDefault("upstream.default_max_results", 20)
	v.SetDefault("politeness.min_delay_seconds", 1.2)
	v.SetDefault("politeness.max_delay_seconds", 2.0)
	v.SetDefault("politeness.max_rps", 1.0)
	v.SetDefault("politeness.burst", 1)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_ms", 1000)
	v.SetDefault("http.user_agent", "Mozilla/5.0 paperscout/1.0 (+https://github.com/JakeFAU/paperscout)")
	v.SetDefault("http.accept_language", "en-US,en;q=0.9")
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("http.max_body_bytes", 10*1024*1024)
	v.SetDefault("http.cache_size", 200)
	v.SetDefault("http.cache_ttl_seconds", 900)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("pipeline.enrich_concurrency", 1)
	v.SetDefault("pipeline.run_timeout_seconds", 900)
	v.SetDefault("pipeline.context_max_chars", 12000)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.base_dir", "data/raw")
	v.SetDefault("storage.prefix", "runs")
	v.SetDefault("storage.bundle_page_bytes", 200000)
	v.SetDefault("pubsub.backend", "none")
	v.SetDefault("pubsub.topic_name", "paperscout-runs")
	v.SetDefault("logging.development", true)
	markers := anomaly.DefaultMarkers()
	v.SetDefault("anomaly.we_are_sorry", markers.WeAreSorry)
	v.SetDefault("anomaly.robot", markers.Robot)
	v.SetDefault("anomaly.captcha", markers.Captcha)
	v.SetDefault("anomaly.consent", markers.Consent)
	v.SetDefault("anomaly.no_results", markers.NoResults)
	v.SetDefault("themes", themeDefaults())
}

func themeDefaults() map[string]any {
	out := make(map[string]any)
	for name, theme := range filter.DefaultThemes() {
		out[name] = map[string]any{
			"categories": theme.Categories,
			"keywords":   theme.Keywords,
		}
	}
	return out
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if strings.TrimSpace(c.Upstream.BaseURL) == "" {
		return fmt.Errorf("upstream.base_url must be set")
	}
	if c.Upstream.PageSize <= 0 {
		return fmt.Errorf("upstream.page_size must be > 0")
	}
	if c.Upstream.HardLimit <= 0 {
		return fmt.Errorf("upstream.hard_limit must be > 0")
	}
	if c.Politeness.MinDelaySeconds < 0 || c.Politeness.MaxDelaySeconds < c.Politeness.MinDelaySeconds {
		return fmt.Errorf("politeness delays must satisfy 0 <= min_delay_seconds <= max_delay_seconds")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Pipeline.EnrichConcurrency <= 0 {
		return fmt.Errorf("pipeline.enrich_concurrency must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Storage.Backend {
	case "local":
		if strings.TrimSpace(c.Storage.BaseDir) == "" {
			return fmt.Errorf("storage.base_dir must be set for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	switch c.PubSub.Backend {
	case "none", "memory":
	case "pubsub":
		if c.PubSub.ProjectID == "" || c.PubSub.TopicName == "" {
			return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set for the pubsub backend")
		}
	default:
		return fmt.Errorf("unknown pubsub.backend %q", c.PubSub.Backend)
	}
	return nil
}

// DefaultPoliteness converts the configured jitter window into durations.
func (c Config) DefaultPoliteness() (time.Duration, time.Duration) {
	return secondsToDuration(c.Politeness.MinDelaySeconds), secondsToDuration(c.Politeness.MaxDelaySeconds)
}

// RequestTimeout is the per-request HTTP budget.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RunTimeout bounds a whole pipeline run; zero disables the bound.
func (c Config) RunTimeout() time.Duration {
	return time.Duration(c.Pipeline.RunTimeoutSeconds) * time.Second
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
