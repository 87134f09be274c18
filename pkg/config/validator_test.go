package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		field  string
	}{
		{"negative port", func(c *Config) { c.Server.Port = -1 }, "server.port"},
		{"port too large", func(c *Config) { c.Server.Port = 65536 }, "server.port"},
		{"relative path", func(c *Config) { c.Server.Path = "events" }, "server.path"},
		{"empty path", func(c *Config) { c.Server.Path = "" }, "server.path"},
		{"reserved path", func(c *Config) { c.Server.Path = "/healthz" }, "server.path"},
		{"negative message size", func(c *Config) { c.Server.MaxMessageSize = -1 }, "server.maxMessageSize"},
		{"negative max connections", func(c *Config) { c.Server.MaxConnections = -1 }, "server.maxConnections"},
		{"negative idle timeout", func(c *Config) { c.Server.IdleTimeout = Duration(-time.Second) }, "server.idleTimeout"},
		{"negative shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = Duration(-time.Second) }, "server.shutdownTimeout"},
		{"heartbeat without interval", func(c *Config) {
			c.Server.Heartbeat.Enabled = true
			c.Server.Heartbeat.Interval = 0
		}, "server.heartbeat.interval"},
		{"negative rate limit", func(c *Config) { c.Server.RateLimit.Rate = -1 }, "server.rateLimit.rate"},
		{"negative burst", func(c *Config) { c.Server.RateLimit.Burst = -1 }, "server.rateLimit.burst"},
		{"bad trusted proxy", func(c *Config) { c.Server.RateLimit.TrustedProxies = []string{"10.0.0.0/33"} }, "server.rateLimit.trustedProxies"},
		{"zero interval", func(c *Config) { c.Socket.Interval = 0 }, "socket.interval"},
		{"negative interval", func(c *Config) { c.Socket.Interval = Duration(-time.Second) }, "socket.interval"},
		{"blank keyword", func(c *Config) { c.Socket.CloseKeyword = "  " }, "socket.closeKeyword"},
		{"long close reason", func(c *Config) { c.Socket.CloseReason = strings.Repeat("x", 124) }, "socket.closeReason"},
		{"unknown level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"unknown format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"wildcard prefix", func(c *Config) {
			c.Events.NATSURL = "nats://localhost:4222"
			c.Events.SubjectPrefix = "events.>"
		}, "events.subjectPrefix"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestConfig_Validate_Accepts(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"max port", func(c *Config) { c.Server.Port = 65535 }},
		{"mixed case level", func(c *Config) { c.Logging.Level = "WARN" }},
		{"json format", func(c *Config) { c.Logging.Format = "JSON" }},
		{"empty level", func(c *Config) { c.Logging.Level = "" }},
		{"wildcard prefix without nats", func(c *Config) { c.Events.SubjectPrefix = "a b" }},
		{"close reason at limit", func(c *Config) { c.Socket.CloseReason = strings.Repeat("x", 123) }},
		{"rate limit with proxies", func(c *Config) {
			c.Server.RateLimit = RateLimitConfig{Rate: 2, Burst: 4, TrustedProxies: []string{"10.0.0.0/8", "::1"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.NoError(t, cfg.Validate())
		})
	}
}

func TestConfig_Validate_ReportsAll(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 99999
	cfg.Socket.Interval = 0
	cfg.Socket.CloseKeyword = ""

	err := cfg.Validate()
	require.Error(t, err)

	var fields []string
	var joined interface{ Unwrap() []error }
	require.True(t, errors.As(err, &joined))
	for _, e := range joined.Unwrap() {
		var verr *ValidationError
		if errors.As(e, &verr) {
			fields = append(fields, verr.Field)
		}
	}
	assert.ElementsMatch(t, []string{"server.port", "socket.interval", "socket.closeKeyword"}, fields)
}

func TestServerConfig_EndpointConfig(t *testing.T) {
	cfg := Default()
	cfg.Server.Path = "/ws"
	cfg.Server.MaxConnections = 4
	cfg.Server.IdleTimeout = Duration(time.Minute)

	ep := cfg.Server.EndpointConfig()
	assert.Equal(t, "/ws", ep.Path)
	assert.Equal(t, 4, ep.MaxConnections)
	assert.Equal(t, int64(65536), ep.MaxMessageSize)
	assert.Equal(t, time.Minute, ep.IdleTimeout.Duration())
	assert.Nil(t, ep.Heartbeat)

	cfg.Server.Heartbeat.Enabled = true
	ep = cfg.Server.EndpointConfig()
	require.NotNil(t, ep.Heartbeat)
	assert.True(t, ep.Heartbeat.Enabled)
	assert.Equal(t, 30*time.Second, ep.Heartbeat.Interval.Duration())
	assert.Equal(t, 10*time.Second, ep.Heartbeat.Timeout.Duration())
}

func TestLoggingConfig_LogConfig(t *testing.T) {
	l := LoggingConfig{Level: "Debug", Format: "json"}
	cfg := l.LogConfig()
	assert.Equal(t, "DEBUG", cfg.Level.String())
	assert.Equal(t, "json", string(cfg.Format))
	assert.NotNil(t, cfg.Output)
}
