package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
database:
  host: db.local
  port: 6543
  user: "geo"
  password: 'p#ss'   # quoted hash is kept
  database: geofence

rabbitmq:
  enabled: true
  user: guest
  password: guest
  prefetch: 8

mqtt:
  enabled: true
  broker: tcp://mqtt:1883
  qos: 1

redis:
  enabled: true
  addr: redis:6379

jwt:
  secret_key: "topsecret"
  ttl: 2h

tracker:
  idle_threshold: 10m

engine:
  cache_ttl: 3s
  parallelism: 4
  timezone: UTC

hub:
  ping_interval: 10s
  sweep_interval: 20s
  send_queue: 8
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := LoadFromFile(writeTemp(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "db.local", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "geo", cfg.Database.User)
	assert.Equal(t, "p#ss", cfg.Database.Password)
	assert.Equal(t, 10, cfg.Database.MaxConns)

	assert.True(t, cfg.RabbitMQ.Enabled)
	assert.Equal(t, 5672, cfg.RabbitMQ.Port)
	assert.Equal(t, 8, cfg.RabbitMQ.Prefetch)
	assert.Equal(t, "vehicle_positions", cfg.RabbitMQ.PositionQueue)

	assert.Equal(t, "tcp://mqtt:1883", cfg.MQTT.Broker)
	assert.Equal(t, 1, cfg.MQTT.QoS)
	assert.Equal(t, "/fleet/vehicle/+/location", cfg.MQTT.Topic)

	assert.Equal(t, "topsecret", cfg.JWT.SecretKey)
	assert.Equal(t, 2*time.Hour, cfg.JWT.TTL)

	assert.Equal(t, 10*time.Minute, cfg.Tracker.IdleThreshold)
	assert.Equal(t, 2*time.Second, cfg.Tracker.OracleTimeout)

	assert.Equal(t, 3*time.Second, cfg.Engine.CacheTTL)
	assert.Equal(t, 5*time.Minute, cfg.Engine.CacheMaxAge)
	assert.Equal(t, 4, cfg.Engine.Parallelism)
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	assert.Equal(t, 10*time.Second, cfg.Hub.PingInterval)
	assert.Equal(t, 20*time.Second, cfg.Hub.SweepInterval)
	assert.Equal(t, 8, cfg.Hub.SendQueue)
	assert.Equal(t, 3010, cfg.Services.GeofenceServicePort)
}

func TestLoadFromFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown section", "foo:\n  a: b\n", "unknown top-level key"},
		{"duplicate section", "jwt:\n  ttl: 1h\njwt:\n  ttl: 2h\n", "duplicate 'jwt' section"},
		{"bad int", "database:\n  port: abc\n", "database.port must be int"},
		{"bad duration", "hub:\n  ping_interval: soon\n", "hub.ping_interval must be a duration"},
		{"unknown key", "redis:\n  cluster: yes\n", `unknown key in redis: "cluster"`},
		{"key without section", "  host: x\n", "key without a section"},
		{"missing required", "database:\n  host: x\n", "database.user is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeTemp(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateAggregatesProblems(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)
	cfg.Engine.Parallelism = -1
	cfg.Hub.SweepInterval = time.Second

	err := cfg.validate()
	require.Error(t, err)
	parts := strings.Split(err.Error(), "; ")
	assert.Contains(t, parts, "engine.parallelism must be >= 1")
	assert.Contains(t, parts, "hub.sweep_interval must be >= hub.ping_interval")
	assert.Contains(t, parts, "database.user is required")
}

func TestApplyDefaultsGeneratesSecret(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)
	assert.NotEmpty(t, cfg.JWT.SecretKey)
	assert.Equal(t, 30*time.Minute, cfg.Tracker.IdleThreshold)
	assert.Equal(t, 30*time.Second, cfg.Hub.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.Hub.SweepInterval)
	assert.Equal(t, 64, cfg.Hub.SendQueue)
}
