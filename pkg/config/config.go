package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string   `yaml:"environment"`
	DataDir     string   `yaml:"data_dir"`
	Timeframes  []string `yaml:"timeframes"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		CORS            bool          `yaml:"cors"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Store struct {
		BusyTimeout  time.Duration `yaml:"busy_timeout"`
		QueryTimeout time.Duration `yaml:"query_timeout"`
	} `yaml:"store"`
	Learning LearningConfig `yaml:"learning"`
	Verifier VerifierConfig `yaml:"verifier"`
	Oracle   struct {
		RequestsPerSec float64 `yaml:"requests_per_sec"`
		MaxTokens      struct {
			Predict  int `yaml:"predict"`
			Learning int `yaml:"learning"`
			Meta     int `yaml:"meta"`
		} `yaml:"max_tokens"`
		Breaker struct {
			ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
			OpenTimeout         time.Duration `yaml:"open_timeout"`
		} `yaml:"breaker"`
		Anthropic struct {
			APIKey  string        `yaml:"api_key"`
			BaseURL string        `yaml:"base_url"`
			Model   string        `yaml:"model"`
			Version string        `yaml:"version"`
			Timeout time.Duration `yaml:"timeout"`
		} `yaml:"anthropic"`
		OpenAI struct {
			APIKey  string        `yaml:"api_key"`
			BaseURL string        `yaml:"base_url"`
			Timeout time.Duration `yaml:"timeout"`
		} `yaml:"openai"`
	} `yaml:"oracle"`
	Binance struct {
		Symbol         string        `yaml:"symbol"`
		KlineInterval  string        `yaml:"kline_interval"`
		KlineLimit     int           `yaml:"kline_limit"`
		BaseURL        string        `yaml:"base_url"`
		Timeout        time.Duration `yaml:"timeout"`
		RequestsPerSec float64       `yaml:"requests_per_sec"`
	} `yaml:"binance"`
	Ingest struct {
		APIKey           string  `yaml:"api_key"`
		RateCapacity     float64 `yaml:"rate_capacity"`
		RateRefillPerSec float64 `yaml:"rate_refill_per_sec"`
	} `yaml:"ingest"`
	Cache struct {
		TTL   time.Duration `yaml:"ttl"`
		Redis struct {
			Enabled  bool   `yaml:"enabled"`
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Kafka struct {
		Enabled        bool     `yaml:"enabled"`
		Brokers        []string `yaml:"brokers"`
		ResolvedTopic  string   `yaml:"resolved_topic"`
		ConsensusTopic string   `yaml:"consensus_topic"`
		IngestTopic    string   `yaml:"ingest_topic"`
		RequiredAcks   int      `yaml:"required_acks"`
		Compression    string   `yaml:"compression"`
		Consumer       struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled     bool          `yaml:"enabled"`
		Host        string        `yaml:"host"`
		Port        int           `yaml:"port"`
		Database    string        `yaml:"database"`
		User        string        `yaml:"user"`
		Password    string        `yaml:"password"`
		DialTimeout time.Duration `yaml:"dial_timeout"`
		ReadTimeout time.Duration `yaml:"read_timeout"`
	} `yaml:"clickhouse"`
}

// LearningConfig holds the thresholds of the primary feedback loop.
type LearningConfig struct {
	BatchSize              int           `yaml:"batch_size"`
	ExtremePercentile      float64       `yaml:"extreme_percentile"`
	HighConfidence         int           `yaml:"high_confidence"`
	LowConfidence          int           `yaml:"low_confidence"`
	AccuracyThreshold      float64       `yaml:"accuracy_threshold"`
	ContextExamples        int           `yaml:"context_examples"`
	MetaIntervalMultiplier int           `yaml:"meta_interval_multiplier"`
	MetaMinExtremes        int           `yaml:"meta_min_extremes"`
	PromptRuleCap          int           `yaml:"prompt_rule_cap"`
	ErrorBackoff           time.Duration `yaml:"error_backoff"`
}

// VerifierConfig holds the verifier role settings and its own rule thresholds.
type VerifierConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Model          string `yaml:"model"`
	BatchSize      int    `yaml:"batch_size"`
	HighConfidence int    `yaml:"high_confidence"`
	LowConfidence  int    `yaml:"low_confidence"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	c := &Config{
		Environment: "local",
		DataDir:     ".",
		Timeframes:  []string{"5", "15", "60"},
	}
	c.Server.Port = 8080
	c.Server.ReadTimeout = 10 * time.Second
	c.Server.WriteTimeout = 10 * time.Second
	c.Server.ShutdownTimeout = 10 * time.Second
	c.Server.CORS = true
	c.Log.Level = "info"
	c.Log.Format = "console"
	c.Log.Output = "stdout"
	c.Metrics.Enabled = true
	c.Metrics.Path = "/metrics"
	c.Store.BusyTimeout = 5 * time.Second
	c.Store.QueryTimeout = 10 * time.Second

	c.Learning = LearningConfig{
		BatchSize:              20,
		ExtremePercentile:      10,
		HighConfidence:         75,
		LowConfidence:          35,
		AccuracyThreshold:      0.05,
		ContextExamples:        10,
		MetaIntervalMultiplier: 5,
		MetaMinExtremes:        20,
		PromptRuleCap:          5,
		ErrorBackoff:           60 * time.Second,
	}
	c.Verifier = VerifierConfig{
		Enabled:        true,
		Model:          "gpt-4o",
		BatchSize:      8,
		HighConfidence: 80,
		LowConfidence:  20,
	}

	c.Oracle.RequestsPerSec = 1
	c.Oracle.MaxTokens.Predict = 800
	c.Oracle.MaxTokens.Learning = 150
	c.Oracle.MaxTokens.Meta = 1500
	c.Oracle.Breaker.ConsecutiveFailures = 3
	c.Oracle.Breaker.OpenTimeout = 60 * time.Second
	c.Oracle.Anthropic.BaseURL = "https://api.anthropic.com"
	c.Oracle.Anthropic.Model = "claude-sonnet-4-20250514"
	c.Oracle.Anthropic.Version = "2023-06-01"
	c.Oracle.Anthropic.Timeout = 60 * time.Second
	c.Oracle.OpenAI.Timeout = 60 * time.Second

	c.Binance.Symbol = "BTCUSDT"
	c.Binance.KlineInterval = "5m"
	c.Binance.KlineLimit = 288
	c.Binance.Timeout = 10 * time.Second
	c.Binance.RequestsPerSec = 5

	c.Ingest.RateCapacity = 30
	c.Ingest.RateRefillPerSec = 0.5

	c.Cache.TTL = 5 * time.Second
	c.Cache.Redis.Host = "localhost"
	c.Cache.Redis.Port = 6379
	c.Cache.Redis.Prefix = "recursive"

	c.Kafka.ResolvedTopic = "prediction.resolved"
	c.Kafka.ConsensusTopic = "consensus.outcome"
	c.Kafka.IngestTopic = "prediction.ingest"
	c.Kafka.RequiredAcks = -1
	c.Kafka.Compression = "gzip"
	c.Kafka.Consumer.GroupID = "recursive-ingest"
	c.Kafka.Consumer.Workers = 2
	c.Kafka.Consumer.RetryMax = 3
	c.Kafka.Consumer.BackoffMin = 200 * time.Millisecond
	c.Kafka.Consumer.BackoffMax = 5 * time.Second

	c.ClickHouse.Port = 9000
	c.ClickHouse.Database = "recursive"
	c.ClickHouse.User = "default"
	c.ClickHouse.DialTimeout = 5 * time.Second
	c.ClickHouse.ReadTimeout = 10 * time.Second
	return c
}

// Load reads and parses a YAML configuration file on top of Default.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// LoadWithEnv loads .env, the YAML file (defaults if it does not exist) and
// applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	c, err := Load(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		c = Default()
	}

	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.Oracle.Anthropic.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Oracle.OpenAI.APIKey = v
	}
	if v := os.Getenv("VERIFIER_ENABLED"); v != "" {
		c.Verifier.Enabled = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("VERIFIER_MODEL"); v != "" {
		c.Verifier.Model = v
	}
	if v := os.Getenv("RAILWAY_API_KEY"); v != "" {
		c.Ingest.APIKey = v
	}
	if v := os.Getenv("RAILWAY_VOLUME_MOUNT_PATH"); v != "" {
		if st, err := os.Stat(v); err == nil && st.IsDir() {
			c.DataDir = v
		}
	}
	if v := os.Getenv("PREDICTION_TIMEFRAME"); v != "" {
		c.Timeframes = strings.Split(v, ",")
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Cache.Redis.Enabled = true
		c.Cache.Redis.Host = host
		if ok {
			if p, err := strconv.Atoi(port); err == nil {
				c.Cache.Redis.Port = p
			}
		}
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Enabled = true
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Enabled = true
		c.ClickHouse.Host = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Timeframes) == 0 {
		return fmt.Errorf("timeframes cannot be empty")
	}
	for _, tf := range c.Timeframes {
		switch strings.TrimSpace(tf) {
		case "5", "15", "60":
		default:
			return fmt.Errorf("timeframes: unknown timeframe '%s'", tf)
		}
	}
	if c.Learning.BatchSize <= 0 {
		return fmt.Errorf("learning.batch_size must be positive")
	}
	if c.Learning.ExtremePercentile <= 0 || c.Learning.ExtremePercentile >= 100 {
		return fmt.Errorf("learning.extreme_percentile must be in (0, 100), got %v", c.Learning.ExtremePercentile)
	}
	if c.Learning.MetaIntervalMultiplier <= 0 {
		return fmt.Errorf("learning.meta_interval_multiplier must be positive")
	}
	if c.Learning.PromptRuleCap <= 0 {
		return fmt.Errorf("learning.prompt_rule_cap must be positive")
	}
	if c.Verifier.BatchSize <= 0 {
		return fmt.Errorf("verifier.batch_size must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse is enabled")
	}
	return nil
}
