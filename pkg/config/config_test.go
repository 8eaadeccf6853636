package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("failed to load default config: %v", err)
	}
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := defaultConfig(t)

	if cfg.LogLevel != "info" || cfg.LogFormat != "json" || cfg.HTTPPort != "8080" {
		t.Errorf("unexpected base defaults %s/%s/%s", cfg.LogLevel, cfg.LogFormat, cfg.HTTPPort)
	}
	if w := cfg.Scoring.DefaultWeights; w.Quality != 0.40 || w.Price != 0.30 || w.Delivery != 0.15 || w.Risk != 0.15 {
		t.Errorf("unexpected default weights %+v", w)
	}
	if cfg.Scoring.DefaultMinScore != 0.60 {
		t.Errorf("unexpected default min score %f", cfg.Scoring.DefaultMinScore)
	}
	if cfg.Risk.WarnGlobalPenalty != 0.10 || cfg.Risk.AIScoreBoost != 0.05 || !cfg.Risk.EnableAIScoreBoost {
		t.Errorf("unexpected risk defaults %+v", cfg.Risk)
	}
	if cfg.Risk.FusionRuleWeight != 0.7 || cfg.Risk.FusionMLWeight != 0.3 {
		t.Errorf("unexpected fusion weights %+v", cfg.Risk)
	}
	if cfg.Location.AllowCrossState || !cfg.Location.AllowSameState || cfg.Location.MaxDistanceKm != 50.0 {
		t.Errorf("unexpected location defaults %+v", cfg.Location)
	}
	if cfg.Dedup.Window().Minutes() != 5 {
		t.Errorf("unexpected dedup window %v", cfg.Dedup.Window())
	}
	if cfg.Webhook.MaxWorkers != 10 || cfg.Webhook.RetryBaseSecs != 60 || cfg.Webhook.RetryMaxSecs != 3600 {
		t.Errorf("unexpected webhook defaults %+v", cfg.Webhook)
	}
	if cfg.Storage.Mode != "memory" {
		t.Errorf("unexpected storage mode %s", cfg.Storage.Mode)
	}
}

func TestLoad_YAMLFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matching.yaml")
	yaml := `
log_level: debug
scoring:
  default_min_score: 0.75
matching:
  max_results: 10
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log_level debug, got %s", cfg.LogLevel)
	}
	if cfg.Scoring.DefaultMinScore != 0.75 {
		t.Errorf("expected min score 0.75, got %f", cfg.Scoring.DefaultMinScore)
	}
	if cfg.Matching.MaxResults != 10 {
		t.Errorf("expected max_results 10, got %d", cfg.Matching.MaxResults)
	}
	// Untouched keys keep their defaults.
	if cfg.Webhook.MaxWorkers != 10 {
		t.Errorf("expected default webhook workers, got %d", cfg.Webhook.MaxWorkers)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("COTTON_LOG_LEVEL", "warn")
	t.Setenv("COTTON_STORAGE_MODE", "postgres")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("expected env log level, got %s", cfg.LogLevel)
	}
	if cfg.Storage.Mode != "postgres" {
		t.Errorf("expected env storage mode, got %s", cfg.Storage.Mode)
	}
}

func TestLoad_MissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "empty-http-port",
			mutate:  func(c *Config) { c.HTTPPort = "" },
			wantErr: "http_port",
		},
		{
			name:    "unknown-log-format",
			mutate:  func(c *Config) { c.LogFormat = "logfmt" },
			wantErr: "log_format",
		},
		{
			name:    "default-weights-not-normalized",
			mutate:  func(c *Config) { c.Scoring.DefaultWeights.Quality = 0.50 },
			wantErr: "sum to 1.0",
		},
		{
			name: "commodity-weights-not-normalized",
			mutate: func(c *Config) {
				c.Scoring.CommodityWeights = map[string]Weights{
					"gold": {Quality: 0.9, Price: 0.3},
				}
			},
			wantErr: `weights for "gold"`,
		},
		{
			name:    "min-score-out-of-range",
			mutate:  func(c *Config) { c.Scoring.DefaultMinScore = 1.5 },
			wantErr: "default_min_score",
		},
		{
			name:    "warn-penalty-at-one",
			mutate:  func(c *Config) { c.Risk.WarnGlobalPenalty = 1.0 },
			wantErr: "warn_global_penalty",
		},
		{
			name: "warn-threshold-above-pass",
			mutate: func(c *Config) {
				c.Risk.WarnThreshold = 90
				c.Risk.PassThreshold = 80
			},
			wantErr: "warn_threshold",
		},
		{
			name:    "zero-max-results",
			mutate:  func(c *Config) { c.Matching.MaxResults = 0 },
			wantErr: "max_results",
		},
		{
			name:    "partial-percent-out-of-range",
			mutate:  func(c *Config) { c.Matching.MinPartialQuantityPercent = 1.2 },
			wantErr: "min_partial_quantity_percent",
		},
		{
			name:    "zero-webhook-timeout",
			mutate:  func(c *Config) { c.Webhook.TimeoutSeconds = 0 },
			wantErr: "timeout_seconds",
		},
		{
			name:    "unknown-storage-mode",
			mutate:  func(c *Config) { c.Storage.Mode = "sqlite" },
			wantErr: "storage.mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestWeightsFor_CommodityOverride(t *testing.T) {
	s := ScoringConfig{
		DefaultWeights: Weights{Quality: 0.40, Price: 0.30, Delivery: 0.15, Risk: 0.15},
		CommodityWeights: map[string]Weights{
			"gold": {Quality: 0.25, Price: 0.45, Delivery: 0.15, Risk: 0.15},
		},
	}

	if w := s.WeightsFor("gold"); w.Price != 0.45 {
		t.Errorf("expected gold override, got %+v", w)
	}
	if w := s.WeightsFor("GOLD"); w.Price != 0.45 {
		t.Errorf("lookup must be case-insensitive, got %+v", w)
	}
	if w := s.WeightsFor("cotton"); w.Price != 0.30 {
		t.Errorf("expected default fallback, got %+v", w)
	}
}

func TestMinScoreFor_CommodityOverride(t *testing.T) {
	s := ScoringConfig{
		DefaultMinScore:   0.60,
		CommodityMinScore: map[string]float64{"gold": 0.7, "wheat": 0.5},
	}

	if got := s.MinScoreFor("gold"); got != 0.7 {
		t.Errorf("expected 0.7, got %f", got)
	}
	if got := s.MinScoreFor("Wheat"); got != 0.5 {
		t.Errorf("lookup must be case-insensitive, got %f", got)
	}
	if got := s.MinScoreFor("copper"); got != 0.60 {
		t.Errorf("expected default fallback, got %f", got)
	}
}
