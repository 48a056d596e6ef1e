package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
environment: prod
timeframes: ["15"]
learning:
  batch_size: 10
  error_backoff: 30s
verifier:
  enabled: false
`)

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", c.Environment)
	assert.Equal(t, []string{"15"}, c.Timeframes)
	assert.Equal(t, 10, c.Learning.BatchSize)
	assert.Equal(t, 30*time.Second, c.Learning.ErrorBackoff)
	assert.False(t, c.Verifier.Enabled)
	// untouched values keep their defaults
	assert.Equal(t, 10.0, c.Learning.ExtremePercentile)
	assert.Equal(t, 8, c.Verifier.BatchSize)
	assert.Equal(t, "claude-sonnet-4-20250514", c.Oracle.Anthropic.Model)
}

func TestLoadWithEnvMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("RAILWAY_API_KEY", "secret")
	t.Setenv("VERIFIER_ENABLED", "false")
	t.Setenv("VERIFIER_MODEL", "gpt-4o-mini")
	t.Setenv("PREDICTION_TIMEFRAME", "60")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	c, err := LoadWithEnv(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "secret", c.Ingest.APIKey)
	assert.False(t, c.Verifier.Enabled)
	assert.Equal(t, "gpt-4o-mini", c.Verifier.Model)
	assert.Equal(t, []string{"60"}, c.Timeframes)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
}

func TestLoadWithEnvDataDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("RAILWAY_VOLUME_MOUNT_PATH", dir)

	c, err := LoadWithEnv(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, dir, c.DataDir)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty environment", func(c *Config) { c.Environment = "" }},
		{"unknown timeframe", func(c *Config) { c.Timeframes = []string{"7"} }},
		{"no timeframes", func(c *Config) { c.Timeframes = nil }},
		{"zero batch", func(c *Config) { c.Learning.BatchSize = 0 }},
		{"percentile too high", func(c *Config) { c.Learning.ExtremePercentile = 100 }},
		{"zero verifier batch", func(c *Config) { c.Verifier.BatchSize = 0 }},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Brokers = nil }},
		{"clickhouse without host", func(c *Config) { c.ClickHouse.Enabled = true; c.ClickHouse.Host = "" }},
	}

	require.NoError(t, Default().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
