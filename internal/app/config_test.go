package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("KAFKA_BROKERS", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 10*time.Minute, cfg.ReportCacheTTL)
	assert.Equal(t, 120, cfg.RateLimitPerMinute)
	assert.Equal(t, "pos.sales", cfg.KafkaSalesTopic)
	assert.False(t, cfg.KafkaEnabled())
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("REPORT_CACHE_TTL", "90s")
	t.Setenv("WORKER_CONCURRENCY", "12")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, 90*time.Second, cfg.ReportCacheTTL)
	assert.Equal(t, 12, cfg.WorkerConcurrency)
}

func TestLoadConfigRejectsInvalidRateLimit(t *testing.T) {
	t.Setenv("RATE_LIMIT_PER_MINUTE", "0")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("RATE_LIMIT_PER_MINUTE", "many")
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &Config{LogFormat: "json", LogLevel: "warn"})
	logger.Info("dropped")
	logger.Warn("kept", slog.String("sale_id", "abc"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "abc", entry["sale_id"])

	buf.Reset()
	newLogger(&buf, nil).Info("plain")
	assert.Contains(t, buf.String(), "msg=plain")
}
