package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"HEMOLINK_ADDR", "REDIS_URL", "DATABASE_URL", "KAFKA_BROKERS", "MATCHING_CONFIG_FILE", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.Redis.URL)
	assert.False(t, cfg.Kafka.Enabled())
	assert.Equal(t, "hemolink-matching", cfg.Kafka.ConsumerGroup)
	assert.Zero(t, cfg.Matching.StalenessThreshold, "zero keeps the component default")
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("MATCHING_CONFIG_FILE", "")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("MATCHING_STALENESS_THRESHOLD", "20m")
	t.Setenv("MATCHING_CELL_DEGREES", "0.05")
	t.Setenv("KAFKA_BOOTSTRAP_TOPICS", "false")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
	assert.False(t, cfg.Kafka.BootstrapTopics)
	assert.Equal(t, 20*time.Minute, cfg.Matching.StalenessThreshold)
	assert.InDelta(t, 0.05, cfg.Matching.CellDegrees, 1e-12)
}

func TestFromEnvRejectsMalformedValues(t *testing.T) {
	t.Setenv("MATCHING_CONFIG_FILE", "")
	t.Setenv("REDIS_POOL_SIZE", "many")
	t.Setenv("SHUTDOWN_TIMEOUT", "soon")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_POOL_SIZE", "first parse error is reported")
}

func TestMatchingFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matching.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
staleness_threshold: 45m
max_candidates: 20
weights:
  distance: 0.4
  availability: 0.2
  history: 0.2
  compatibility: 0.15
  urgency: 0.05
policies:
  critical:
    initial_radius_km: 10
    max_radius_km: 150
    expansion_factor: 2
    max_steps: 5
    min_pool: 8
response_budgets:
  critical: 30s
  low: 20m
`), 0o600))
	t.Setenv("MATCHING_CONFIG_FILE", path)
	t.Setenv("MATCHING_MAX_CANDIDATES", "10")

	cfg, err := FromEnv()
	require.NoError(t, err)
	m := cfg.Matching
	assert.Equal(t, 45*time.Minute, m.StalenessThreshold)
	assert.Equal(t, 10, m.MaxCandidates)
	require.NotNil(t, m.Weights)
	assert.InDelta(t, 0.4, m.Weights.Distance, 1e-12)
	assert.Equal(t, Policy{InitialRadiusKm: 10, MaxRadiusKm: 150, ExpansionFactor: 2, MaxSteps: 5, MinPool: 8}, m.Policies["critical"])
	assert.Equal(t, 30*time.Second, m.ResponseBudgets["critical"])
	assert.Equal(t, 20*time.Minute, m.ResponseBudgets["low"])
}

func TestLoadMatchingFileErrors(t *testing.T) {
	_, err := LoadMatchingFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("staleness_threshold: [1, 2"), 0o600))
	_, err = LoadMatchingFile(path)
	assert.Error(t, err)
}
