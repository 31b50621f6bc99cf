package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, ":8000", cfg.Addr())
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, 50, cfg.BufferCapacity)
	assert.Equal(t, 256, cfg.QueueSize)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "quakeboard/telemetry", cfg.MQTTTopic)
	assert.False(t, cfg.Influx.Enabled())
	assert.Equal(t, 5*time.Second, cfg.Influx.PollInterval)
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:5173,https://quakes.example")
	t.Setenv("BUFFER_CAPACITY", "120")
	t.Setenv("UPSTREAM_WS_URL", "ws://hub.local/stream")
	t.Setenv("INFLUXDB_URL", "http://localhost:8086")
	t.Setenv("INFLUXDB_TOKEN", "secret")
	t.Setenv("INFLUXDB_ORG", "Technopure")
	t.Setenv("INFLUXDB_BUCKET", "quakes")
	t.Setenv("INFLUXDB_POLL_INTERVAL", "2s")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr())
	assert.Equal(t, []string{"http://localhost:5173", "https://quakes.example"}, cfg.AllowedOrigins)
	assert.Equal(t, 120, cfg.BufferCapacity)
	assert.Equal(t, "ws://hub.local/stream", cfg.UpstreamURL)
	assert.True(t, cfg.Influx.Enabled())
	assert.Equal(t, "quakes", cfg.Influx.Bucket)
	assert.Equal(t, 2*time.Second, cfg.Influx.PollInterval)
}

func TestParseRejectsIncompleteInflux(t *testing.T) {
	t.Setenv("INFLUXDB_URL", "http://localhost:8086")

	_, err := Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "InfluxDB configuration is incomplete")
}

func TestParseRejectsBadCapacity(t *testing.T) {
	t.Setenv("BUFFER_CAPACITY", "0")

	_, err := Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BUFFER_CAPACITY")
}

func TestParseRejectsMalformedValue(t *testing.T) {
	t.Setenv("QUEUE_SIZE", "lots")

	_, err := Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}
