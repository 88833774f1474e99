package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempcast/tempcast/internal/config"
	"github.com/tempcast/tempcast/internal/model"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, config.QueueRabbitMQ, cfg.QueueBackend)
	assert.Equal(t, "forecast_requests", cfg.QueueName)
	assert.Equal(t, model.StrategyLinear, cfg.ModelStrategy)
	assert.Equal(t, 7, cfg.HistoryDays)
	assert.Equal(t, 7, cfg.ForecastHorizonDays)
	assert.Equal(t, 24*time.Hour, cfg.WeatherCacheTTL)
	assert.Zero(t, cfg.ResultTTL)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("QUEUE_BACKEND", "memory")
	t.Setenv("QUEUE_NAME", "jobs")
	t.Setenv("MODEL_STRATEGY", "gbdt")
	t.Setenv("HISTORY_DAYS", "14")
	t.Setenv("RESULT_TTL", "720h")
	t.Setenv("WORKER_PREFETCH", "not-a-number")
	t.Setenv("OTEL_ENABLED", "true")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.QueueMemory, cfg.QueueBackend)
	assert.Equal(t, "jobs", cfg.QueueName)
	assert.Equal(t, model.StrategyGBDT, cfg.ModelStrategy)
	assert.Equal(t, 14, cfg.HistoryDays)
	assert.Equal(t, 720*time.Hour, cfg.ResultTTL)
	assert.Equal(t, 4, cfg.WorkerPrefetch, "unparsable values fall back to the default")
	assert.True(t, cfg.OTelEnabled)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown backend", "QUEUE_BACKEND", "kafka"},
		{"unknown strategy", "MODEL_STRATEGY", "forest"},
		{"short history", "HISTORY_DAYS", "2"},
		{"zero horizon", "FORECAST_HORIZON_DAYS", "0"},
		{"negative ttl", "RESULT_TTL", "-1h"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}

func TestValidate_PubSubRequiresProject(t *testing.T) {
	t.Setenv("QUEUE_BACKEND", "pubsub")
	_, err := config.Load()
	assert.Error(t, err)

	t.Setenv("PUBSUB_PROJECT_ID", "tempcast-dev")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "tempcast-dev", cfg.PubSubProjectID)
}
