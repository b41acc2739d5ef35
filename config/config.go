// Package config loads the service configuration from a YAML file with
// sensible defaults, plus environment variables for secrets.
package config

import (
	"flag"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	WALDir     string `yaml:"wal_dir"`

	CacheTTL time.Duration `yaml:"cache_ttl"`

	History    HistoryConfig    `yaml:"history"`
	Stream     StreamConfig     `yaml:"stream"`
	Indexer    IndexerConfig    `yaml:"indexer"`
	Pricing    PricingConfig    `yaml:"pricing"`
	Prediction PredictionConfig `yaml:"prediction"`
	Conviction ConvictionConfig `yaml:"conviction"`
}

// HistoryConfig configures the backfill REST client.
type HistoryConfig struct {
	BaseURL string `yaml:"base_url"`
	// APIKey is taken from the HISTORY_API_KEY env var when empty.
	APIKey       string        `yaml:"api_key"`
	Lookback     time.Duration `yaml:"lookback"`
	RateLimitRPS float64       `yaml:"rate_limit_rps"`
}

// StreamConfig configures the live websocket feed.
type StreamConfig struct {
	URL               string `yaml:"url"`
	ReconnectAttempts int    `yaml:"reconnect_attempts"`
}

// IndexerConfig bounds the per-wallet ingestion pipeline.
type IndexerConfig struct {
	LiveWindow    time.Duration `yaml:"live_window"`
	MaxLiveEvents int           `yaml:"max_live_events"`
	StopGrace     time.Duration `yaml:"stop_grace"`
}

// PricingConfig selects the price backends, tried in order.
type PricingConfig struct {
	Platforms []string `yaml:"platforms"`
}

// PredictionConfig configures the prediction-market source.
type PredictionConfig struct {
	PolymarketURL string `yaml:"polymarket_url"`
}

// ConvictionConfig sets the informed-trader thresholds.
type ConvictionConfig struct {
	ScoreFloor      float64 `yaml:"score_floor"`
	ConfidenceFloor float64 `yaml:"confidence_floor"`
}

func defaults() Config {
	return Config{
		ListenAddr: ":8080",
		WALDir:     "./wal",
		CacheTTL:   60 * time.Second,
		History: HistoryConfig{
			BaseURL:      "https://api.helius.xyz",
			Lookback:     30 * 24 * time.Hour,
			RateLimitRPS: 10,
		},
		Stream: StreamConfig{
			ReconnectAttempts: 10,
		},
		Indexer: IndexerConfig{
			LiveWindow:    60 * time.Second,
			MaxLiveEvents: 1000,
			StopGrace:     5 * time.Second,
		},
		Pricing: PricingConfig{
			Platforms: []string{"binance", "bybit"},
		},
		Conviction: ConvictionConfig{
			ScoreFloor:      0.8,
			ConfidenceFloor: 0.3,
		},
	}
}

// Get parses the --config flag and loads the configuration.
func Get() (Config, error) {
	path := flag.String("config", "", "path to yaml config")
	flag.Parse()
	return Load(*path)
}

// Load reads the YAML file at path over the defaults; an empty path keeps the
// defaults. Secrets come from the environment.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "read config file")
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, errors.Wrap(err, "parse config file")
		}
	}

	if cfg.History.APIKey == "" {
		cfg.History.APIKey = os.Getenv("HISTORY_API_KEY")
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen_addr is required")
	}
	if c.WALDir == "" {
		return errors.New("wal_dir is required")
	}
	if c.Indexer.LiveWindow <= 0 {
		return errors.New("indexer.live_window must be positive")
	}
	if c.Conviction.ScoreFloor < 0 || c.Conviction.ScoreFloor > 1 {
		return errors.New("conviction.score_floor must be in [0,1]")
	}
	if c.Conviction.ConfidenceFloor < 0 || c.Conviction.ConfidenceFloor > 1 {
		return errors.New("conviction.confidence_floor must be in [0,1]")
	}
	for _, p := range c.Pricing.Platforms {
		if p != "binance" && p != "bybit" && p != "static" {
			return errors.Errorf("unsupported pricing platform %q", p)
		}
	}
	return nil
}
