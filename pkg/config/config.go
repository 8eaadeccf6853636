// Package config defines all configuration for the matching backend. Config
// is loaded from an optional YAML file (default: configs/matching.yaml) with
// every field overridable via COTTON_* environment variables.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration.
type Config struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	HTTPPort  string `mapstructure:"http_port"`

	Scoring      ScoringConfig      `mapstructure:"scoring"`
	Dedup        DedupConfig        `mapstructure:"dedup"`
	Notification NotificationConfig `mapstructure:"notification"`
	Matching     MatchingConfig     `mapstructure:"matching"`
	Location     LocationConfig     `mapstructure:"location"`
	Risk         RiskConfig         `mapstructure:"risk"`
	Safety       SafetyConfig       `mapstructure:"safety"`
	Webhook      WebhookConfig      `mapstructure:"webhook"`
	Storage      StorageConfig      `mapstructure:"storage"`
}

// Weights are the four scoring weights. They must sum to 1.0 within 1e-3.
type Weights struct {
	Quality  float64 `mapstructure:"quality"`
	Price    float64 `mapstructure:"price"`
	Delivery float64 `mapstructure:"delivery"`
	Risk     float64 `mapstructure:"risk"`
}

// Sum returns the total of the four weights.
func (w Weights) Sum() float64 {
	return w.Quality + w.Price + w.Delivery + w.Risk
}

// ScoringConfig holds composite-score weights and per-commodity thresholds.
type ScoringConfig struct {
	DefaultWeights    Weights            `mapstructure:"default_weights"`
	CommodityWeights  map[string]Weights `mapstructure:"commodity_weights"`
	DefaultMinScore   float64            `mapstructure:"default_min_score"`
	CommodityMinScore map[string]float64 `mapstructure:"commodity_min_score"`
}

// WeightsFor returns the weights for a commodity code, falling back to the
// defaults when no override exists.
func (s *ScoringConfig) WeightsFor(code string) Weights {
	if w, ok := s.CommodityWeights[strings.ToLower(code)]; ok {
		return w
	}
	return s.DefaultWeights
}

// MinScoreFor returns the minimum match score for a commodity code.
func (s *ScoringConfig) MinScoreFor(code string) float64 {
	if t, ok := s.CommodityMinScore[strings.ToLower(code)]; ok {
		return t
	}
	return s.DefaultMinScore
}

// DedupConfig controls duplicate match suppression.
type DedupConfig struct {
	TimeWindowMinutes   int     `mapstructure:"time_window_minutes"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
}

// Window returns the suppression window as a duration.
func (d DedupConfig) Window() time.Duration {
	return time.Duration(d.TimeWindowMinutes) * time.Minute
}

// NotificationConfig controls match notifications.
type NotificationConfig struct {
	MaxMatchesToNotify int `mapstructure:"max_matches_to_notify"`
	RateLimitSeconds   int `mapstructure:"rate_limit_seconds"`
}

// MatchingConfig controls the engine and the dispatch service.
type MatchingConfig struct {
	EnablePartialMatching     bool    `mapstructure:"enable_partial_matching"`
	MinPartialQuantityPercent float64 `mapstructure:"min_partial_quantity_percent"`
	MaxResults                int     `mapstructure:"max_results"`
	BatchSize                 int     `mapstructure:"batch_size"`
	BatchDelayMs              int     `mapstructure:"batch_delay_ms"`
	MaxConcurrentMatches      int64   `mapstructure:"max_concurrent_matches"`
	TaskMaxRetries            int     `mapstructure:"task_max_retries"`
	BlockInternalTrading      bool    `mapstructure:"block_internal_branch_trading"`
}

// LocationConfig controls the location hard filter.
type LocationConfig struct {
	AllowCrossState bool    `mapstructure:"allow_cross_state_matching"`
	AllowSameState  bool    `mapstructure:"allow_same_state_matching"`
	MaxDistanceKm   float64 `mapstructure:"max_distance_km"`
}

// RiskConfig controls the risk orchestrator and the score adjustments it drives.
type RiskConfig struct {
	WarnGlobalPenalty       float64 `mapstructure:"warn_global_penalty"`
	AIScoreBoost            float64 `mapstructure:"ai_recommendation_score_boost"`
	EnableAIScoreBoost      bool    `mapstructure:"enable_ai_score_boost"`
	MinAIConfidence         float64 `mapstructure:"min_ai_confidence_threshold"`
	AIPriceDeviationWarnPct float64 `mapstructure:"ai_price_deviation_warn_percent"`
	Tier1TimeoutMs          int     `mapstructure:"tier1_timeout_ms"`
	Tier2TimeoutMs          int     `mapstructure:"tier2_timeout_ms"`
	BreakerFailureThreshold int     `mapstructure:"breaker_failure_threshold"`
	PassThreshold           float64 `mapstructure:"pass_threshold"`
	WarnThreshold           float64 `mapstructure:"warn_threshold"`
	RuleScoreDefault        float64 `mapstructure:"rule_score_default"`
	FusionRuleWeight        float64 `mapstructure:"fusion_rule_weight"`
	FusionMLWeight          float64 `mapstructure:"fusion_ml_weight"`
}

// Tier1Timeout returns the deterministic-rules budget.
func (r RiskConfig) Tier1Timeout() time.Duration {
	return time.Duration(r.Tier1TimeoutMs) * time.Millisecond
}

// Tier2Timeout returns the ML budget.
func (r RiskConfig) Tier2Timeout() time.Duration {
	return time.Duration(r.Tier2TimeoutMs) * time.Millisecond
}

// SafetyConfig controls the safety sweep that re-enqueues recent entities.
type SafetyConfig struct {
	Enable          bool `mapstructure:"enable_safety_cron"`
	IntervalSeconds int  `mapstructure:"interval_seconds"`
	LookbackMinutes int  `mapstructure:"lookback_minutes"`
}

// WebhookConfig controls the delivery subsystem.
type WebhookConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxWorkers     int `mapstructure:"max_workers"`
	RetryBaseSecs  int `mapstructure:"retry_base_seconds"`
	RetryMaxSecs   int `mapstructure:"retry_max_seconds"`
	MaxRetries     int `mapstructure:"max_retries"`
	PollSleepMs    int `mapstructure:"poll_sleep_ms"`
}

// Timeout returns the per-request delivery timeout.
func (w WebhookConfig) Timeout() time.Duration {
	return time.Duration(w.TimeoutSeconds) * time.Second
}

// StorageConfig selects and configures the storage gateway backend.
type StorageConfig struct {
	Mode         string `mapstructure:"mode"` // "postgres" or "memory"
	PostgresHost string `mapstructure:"postgres_host"`
	PostgresPort string `mapstructure:"postgres_port"`
	PostgresUser string `mapstructure:"postgres_user"`
	PostgresPass string `mapstructure:"postgres_password"`
	PostgresDB   string `mapstructure:"postgres_db"`
	PostgresSSL  string `mapstructure:"postgres_sslmode"`
}

// Load reads configuration from the given YAML file (optional) and COTTON_*
// environment variables, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("COTTON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("http_port", "8080")

	v.SetDefault("scoring.default_weights.quality", 0.40)
	v.SetDefault("scoring.default_weights.price", 0.30)
	v.SetDefault("scoring.default_weights.delivery", 0.15)
	v.SetDefault("scoring.default_weights.risk", 0.15)
	v.SetDefault("scoring.default_min_score", 0.60)
	v.SetDefault("scoring.commodity_min_score", map[string]float64{
		"cotton": 0.6,
		"gold":   0.7,
		"wheat":  0.5,
		"rice":   0.5,
		"oil":    0.6,
	})

	v.SetDefault("dedup.time_window_minutes", 5)
	v.SetDefault("dedup.similarity_threshold", 0.95)

	v.SetDefault("notification.max_matches_to_notify", 5)
	v.SetDefault("notification.rate_limit_seconds", 60)

	v.SetDefault("matching.enable_partial_matching", true)
	v.SetDefault("matching.min_partial_quantity_percent", 0.10)
	v.SetDefault("matching.max_results", 50)
	v.SetDefault("matching.batch_size", 100)
	v.SetDefault("matching.batch_delay_ms", 1000)
	v.SetDefault("matching.max_concurrent_matches", 50)
	v.SetDefault("matching.task_max_retries", 3)
	v.SetDefault("matching.block_internal_branch_trading", true)

	v.SetDefault("location.allow_cross_state_matching", false)
	v.SetDefault("location.allow_same_state_matching", true)
	v.SetDefault("location.max_distance_km", 50.0)

	v.SetDefault("risk.warn_global_penalty", 0.10)
	v.SetDefault("risk.ai_recommendation_score_boost", 0.05)
	v.SetDefault("risk.enable_ai_score_boost", true)
	v.SetDefault("risk.min_ai_confidence_threshold", 60.0)
	v.SetDefault("risk.ai_price_deviation_warn_percent", 10.0)
	v.SetDefault("risk.tier1_timeout_ms", 200)
	v.SetDefault("risk.tier2_timeout_ms", 500)
	v.SetDefault("risk.breaker_failure_threshold", 5)
	v.SetDefault("risk.pass_threshold", 80.0)
	v.SetDefault("risk.warn_threshold", 60.0)
	v.SetDefault("risk.rule_score_default", 85.0)
	v.SetDefault("risk.fusion_rule_weight", 0.7)
	v.SetDefault("risk.fusion_ml_weight", 0.3)

	v.SetDefault("safety.enable_safety_cron", true)
	v.SetDefault("safety.interval_seconds", 30)
	v.SetDefault("safety.lookback_minutes", 5)

	v.SetDefault("webhook.timeout_seconds", 30)
	v.SetDefault("webhook.max_workers", 10)
	v.SetDefault("webhook.retry_base_seconds", 60)
	v.SetDefault("webhook.retry_max_seconds", 3600)
	v.SetDefault("webhook.max_retries", 3)
	v.SetDefault("webhook.poll_sleep_ms", 100)

	v.SetDefault("storage.mode", "memory")
	v.SetDefault("storage.postgres_host", "localhost")
	v.SetDefault("storage.postgres_port", "5432")
	v.SetDefault("storage.postgres_user", "matching")
	v.SetDefault("storage.postgres_password", "matching")
	v.SetDefault("storage.postgres_db", "matching")
	v.SetDefault("storage.postgres_sslmode", "disable")
}

// Validate checks that configuration values are valid. Weight sets that do
// not sum to 1.0 within 1e-3 are rejected here, on load.
func (c *Config) Validate() error {
	const weightEps = 1e-3

	if c.HTTPPort == "" {
		return fmt.Errorf("http_port cannot be empty")
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("log_format must be 'json' or 'console', got %q", c.LogFormat)
	}

	if diff := math.Abs(c.Scoring.DefaultWeights.Sum() - 1.0); diff > weightEps {
		return fmt.Errorf("default scoring weights must sum to 1.0, got %f", c.Scoring.DefaultWeights.Sum())
	}
	for code, w := range c.Scoring.CommodityWeights {
		if diff := math.Abs(w.Sum() - 1.0); diff > weightEps {
			return fmt.Errorf("scoring weights for %q must sum to 1.0, got %f", code, w.Sum())
		}
	}

	if c.Scoring.DefaultMinScore < 0 || c.Scoring.DefaultMinScore > 1 {
		return fmt.Errorf("default_min_score must be in [0,1], got %f", c.Scoring.DefaultMinScore)
	}
	if c.Risk.WarnGlobalPenalty < 0 || c.Risk.WarnGlobalPenalty >= 1 {
		return fmt.Errorf("warn_global_penalty must be in [0,1), got %f", c.Risk.WarnGlobalPenalty)
	}
	if c.Risk.WarnThreshold > c.Risk.PassThreshold {
		return fmt.Errorf("warn_threshold %f above pass_threshold %f", c.Risk.WarnThreshold, c.Risk.PassThreshold)
	}
	if c.Matching.MaxResults < 1 {
		return fmt.Errorf("matching.max_results must be >= 1, got %d", c.Matching.MaxResults)
	}
	if c.Matching.MinPartialQuantityPercent < 0 || c.Matching.MinPartialQuantityPercent > 1 {
		return fmt.Errorf("min_partial_quantity_percent must be in [0,1], got %f", c.Matching.MinPartialQuantityPercent)
	}
	if c.Webhook.TimeoutSeconds <= 0 {
		return fmt.Errorf("webhook.timeout_seconds must be positive, got %d", c.Webhook.TimeoutSeconds)
	}
	if c.Webhook.MaxWorkers <= 0 {
		return fmt.Errorf("webhook.max_workers must be positive, got %d", c.Webhook.MaxWorkers)
	}
	if c.Storage.Mode != "postgres" && c.Storage.Mode != "memory" {
		return fmt.Errorf("storage.mode must be 'postgres' or 'memory', got %q", c.Storage.Mode)
	}

	return nil
}
