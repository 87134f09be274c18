package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "/events", cfg.Server.Path)
	assert.Equal(t, int64(65536), cfg.Server.MaxMessageSize)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, 2*time.Second, cfg.Socket.Interval.Duration())
	assert.Equal(t, "bye", cfg.Socket.CloseKeyword)
	assert.Equal(t, "Thanks", cfg.Socket.CloseReason)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "eventsock", cfg.Events.SubjectPrefix)
	assert.Empty(t, cfg.Events.NATSURL)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr())

	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile_ValidYAML(t *testing.T) {
	path := writeFile(t, "eventsock.yaml", `
server:
  port: 9090
  path: /ws
  idleTimeout: 1m
  heartbeat:
    enabled: true
    interval: 15s
socket:
  interval: 500ms
  closeKeyword: quit
logging:
  level: debug
  format: json
events:
  natsURL: nats://127.0.0.1:4222
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/ws", cfg.Server.Path)
	assert.Equal(t, time.Minute, cfg.Server.IdleTimeout.Duration())
	assert.True(t, cfg.Server.Heartbeat.Enabled)
	assert.Equal(t, 15*time.Second, cfg.Server.Heartbeat.Interval.Duration())
	assert.Equal(t, 500*time.Millisecond, cfg.Socket.Interval.Duration())
	assert.Equal(t, "quit", cfg.Socket.CloseKeyword)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.Events.NATSURL)

	// Absent values keep their defaults.
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, "Thanks", cfg.Socket.CloseReason)
	assert.Equal(t, 10*time.Second, cfg.Server.Heartbeat.Timeout.Duration())
	assert.Equal(t, "eventsock", cfg.Events.SubjectPrefix)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadFromFile_ValidJSON(t *testing.T) {
	path := writeFile(t, "eventsock.json", `{
		"server": {"port": 0, "maxConnections": 10, "shutdownTimeout": 2500},
		"socket": {"interval": "3s"},
		"metrics": {"enabled": false}
	}`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Server.MaxConnections)
	assert.Equal(t, 2500*time.Millisecond, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, 3*time.Second, cfg.Socket.Interval.Duration())
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/events", cfg.Server.Path)
}

func TestLoadFromFile_YAMLIntegerMilliseconds(t *testing.T) {
	path := writeFile(t, "ms.yml", "socket:\n  interval: 250\n")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Socket.Interval.Duration())
}

func TestLoadFromFile_InvalidJSON(t *testing.T) {
	path := writeFile(t, "invalid.json", `{ invalid json }`)

	cfg, err := LoadFromFile(path)
	assert.Nil(t, cfg)
	assert.ErrorIs(t, err, ErrInvalidJSON)
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	path := writeFile(t, "invalid.yaml", "server:\n  port: [unterminated\n")

	cfg, err := LoadFromFile(path)
	assert.Nil(t, cfg)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestLoadFromFile_BadDuration(t *testing.T) {
	path := writeFile(t, "duration.yaml", "socket:\n  interval: soon\n")

	cfg, err := LoadFromFile(path)
	assert.Nil(t, cfg)
	assert.ErrorIs(t, err, ErrInvalidYAML)
	assert.Contains(t, err.Error(), "line 2")
}

func TestLoadFromFile_FileNotFound(t *testing.T) {
	cfg, err := LoadFromFile("/nonexistent/path/eventsock.yaml")
	assert.Nil(t, cfg)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestLoadFromFile_Directory(t *testing.T) {
	cfg, err := LoadFromFile(t.TempDir())
	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "directory")
}

func TestLoadFromFile_EmptyFile(t *testing.T) {
	for _, content := range []string{"", "  \n\t\n"} {
		path := writeFile(t, "empty.yaml", content)

		cfg, err := LoadFromFile(path)
		assert.Nil(t, cfg)
		assert.ErrorIs(t, err, ErrEmptyFile)
	}
}

func TestLoadFromFile_ValidationError(t *testing.T) {
	path := writeFile(t, "bad.yaml", "server:\n  port: 70000\n")

	cfg, err := LoadFromFile(path)
	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "server.port", verr.Field)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvPort:     "9999",
		EnvLogLevel: "debug",
		EnvNATSURL:  "nats://broker:4222",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "nats://broker:4222", cfg.Events.NATSURL)
}

func TestApplyEnv_EmptyAndMissing(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == EnvPort {
			return "", true
		}
		return "", false
	}

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv_InvalidPort(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == EnvPort {
			return "eighty", true
		}
		return "", false
	}

	cfg := Default()
	err := cfg.ApplyEnv(lookup)
	assert.ErrorIs(t, err, ErrInvalidEnv)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
}

func TestConfig_ToYAMLRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Socket.Interval = Duration(750 * time.Millisecond)

	data, err := cfg.ToYAML()
	require.NoError(t, err)
	assert.Contains(t, string(data), "interval: 750ms")

	parsed, err := ParseYAML(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, parsed)
}

func TestLoadFromFile_RateLimit(t *testing.T) {
	path := writeFile(t, "limit.yaml", `
server:
  rateLimit:
    rate: 0.5
    burst: 3
    trustedProxies: [10.0.0.0/8]
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	rl := cfg.Server.RateLimit
	assert.True(t, rl.Enabled())
	lc := rl.LimiterConfig()
	assert.Equal(t, 0.5, lc.Rate)
	assert.Equal(t, 3, lc.Burst)
	assert.Equal(t, []string{"10.0.0.0/8"}, lc.TrustedProxies)

	assert.False(t, Default().Server.RateLimit.Enabled())
}
