package config

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/getmockd/eventsock/pkg/events"
	"github.com/getmockd/eventsock/pkg/eventsocket"
	"github.com/getmockd/eventsock/pkg/logging"
	"github.com/getmockd/eventsock/pkg/ratelimit"
	"github.com/getmockd/eventsock/pkg/websocket"
)

// Default values.
const (
	DefaultHost            = "127.0.0.1"
	DefaultPort            = 8080
	DefaultPath            = "/events"
	DefaultShutdownTimeout = 5 * time.Second
)

// Config is the complete server configuration.
type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server"`
	Socket  SocketConfig  `json:"socket" yaml:"socket"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Events  EventsConfig  `json:"events" yaml:"events"`
}

// ServerConfig configures the HTTP listener and the WebSocket endpoint.
type ServerConfig struct {
	// Host is the interface to bind (default: 127.0.0.1).
	Host string `json:"host" yaml:"host"`
	// Port is the TCP port to bind. 0 picks a free port.
	Port int `json:"port" yaml:"port"`
	// Path is the WebSocket endpoint path (default: /events).
	Path string `json:"path" yaml:"path"`
	// MaxMessageSize is the inbound message limit in bytes (default: 65536).
	MaxMessageSize int64 `json:"maxMessageSize,omitempty" yaml:"maxMessageSize,omitempty"`
	// MaxConnections limits concurrent sessions (0 = unlimited).
	MaxConnections int `json:"maxConnections,omitempty" yaml:"maxConnections,omitempty"`
	// SkipOriginVerify disables the Origin check during the handshake (default: true).
	SkipOriginVerify *bool `json:"skipOriginVerify,omitempty" yaml:"skipOriginVerify,omitempty"`
	// IdleTimeout closes sessions whose client has sent nothing for this long;
	// status pushes do not count (0 = disabled).
	IdleTimeout Duration `json:"idleTimeout,omitempty" yaml:"idleTimeout,omitempty"`
	// Heartbeat configures server pings.
	Heartbeat HeartbeatConfig `json:"heartbeat" yaml:"heartbeat"`
	// ShutdownTimeout bounds graceful shutdown (default: 5s).
	ShutdownTimeout Duration `json:"shutdownTimeout" yaml:"shutdownTimeout"`
	// RateLimit throttles handshakes per client IP.
	RateLimit RateLimitConfig `json:"rateLimit,omitempty" yaml:"rateLimit,omitempty"`
}

// RateLimitConfig configures the per-client handshake limit.
// A zero Rate disables it.
type RateLimitConfig struct {
	Rate           float64  `json:"rate,omitempty" yaml:"rate,omitempty"`
	Burst          int      `json:"burst,omitempty" yaml:"burst,omitempty"`
	TrustedProxies []string `json:"trustedProxies,omitempty" yaml:"trustedProxies,omitempty"`
}

// Enabled reports whether handshakes are limited.
func (r *RateLimitConfig) Enabled() bool {
	return r.Rate > 0
}

// LimiterConfig converts the settings into a ratelimit.Config.
func (r *RateLimitConfig) LimiterConfig() ratelimit.Config {
	return ratelimit.Config{
		Rate:           r.Rate,
		Burst:          r.Burst,
		TrustedProxies: r.TrustedProxies,
	}
}

// HeartbeatConfig configures WebSocket ping/pong keepalive.
type HeartbeatConfig struct {
	Enabled  bool     `json:"enabled" yaml:"enabled"`
	Interval Duration `json:"interval,omitempty" yaml:"interval,omitempty"`
	Timeout  Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// SocketConfig configures the per-connection event socket.
type SocketConfig struct {
	// Interval between status messages (default: 2s).
	Interval Duration `json:"interval" yaml:"interval"`
	// CloseKeyword closes the session when contained in an inbound message (default: bye).
	CloseKeyword string `json:"closeKeyword" yaml:"closeKeyword"`
	// CloseReason is sent with the 1000 close frame (default: Thanks).
	CloseReason string `json:"closeReason" yaml:"closeReason"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// MetricsConfig configures the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// EventsConfig configures lifecycle event publishing.
type EventsConfig struct {
	// NATSURL enables NATS publishing when set.
	NATSURL string `json:"natsURL,omitempty" yaml:"natsURL,omitempty"`
	// SubjectPrefix is the first subject token (default: eventsock).
	SubjectPrefix string `json:"subjectPrefix,omitempty" yaml:"subjectPrefix,omitempty"`
}

// Default returns a Config populated with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			Path:            DefaultPath,
			MaxMessageSize:  websocket.DefaultMaxMessageSize,
			ShutdownTimeout: Duration(DefaultShutdownTimeout),
			Heartbeat: HeartbeatConfig{
				Interval: Duration(30 * time.Second),
				Timeout:  Duration(10 * time.Second),
			},
		},
		Socket: SocketConfig{
			Interval:     Duration(eventsocket.DefaultInterval),
			CloseKeyword: eventsocket.DefaultCloseKeyword,
			CloseReason:  eventsocket.DefaultCloseReason,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: string(logging.FormatText),
		},
		Metrics: MetricsConfig{Enabled: true},
		Events: EventsConfig{
			SubjectPrefix: events.DefaultSubjectPrefix,
		},
	}
}

// Addr returns the host:port listen address.
func (s *ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// EndpointConfig converts the server settings into a websocket endpoint configuration.
func (s *ServerConfig) EndpointConfig() *websocket.EndpointConfig {
	cfg := &websocket.EndpointConfig{
		Path:             s.Path,
		MaxMessageSize:   s.MaxMessageSize,
		IdleTimeout:      websocket.Duration(s.IdleTimeout),
		MaxConnections:   s.MaxConnections,
		SkipOriginVerify: s.SkipOriginVerify,
	}
	if s.Heartbeat.Enabled {
		cfg.Heartbeat = &websocket.HeartbeatConfig{
			Enabled:  true,
			Interval: websocket.Duration(s.Heartbeat.Interval),
			Timeout:  websocket.Duration(s.Heartbeat.Timeout),
		}
	}
	return cfg
}

// LogConfig converts the logging settings into a logging.Config.
func (l *LoggingConfig) LogConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(l.Level)
	cfg.Format = logging.ParseFormat(l.Format)
	return cfg
}

// Duration is a time.Duration that reads and writes as a duration string.
// Integers are read as milliseconds.
type Duration time.Duration

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String implements fmt.Stringer.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON marshals the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts a duration string or integer milliseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var ms int64
		if err := json.Unmarshal(data, &ms); err != nil {
			return fmt.Errorf("duration must be a string or integer milliseconds: %w", err)
		}
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	return d.parse(s)
}

// MarshalYAML marshals the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalYAML accepts a duration string or integer milliseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}
	if value.Tag == "!!int" {
		ms, err := strconv.ParseInt(value.Value, 10, 64)
		if err != nil {
			return fmt.Errorf("line %d: %w", value.Line, err)
		}
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	if err := d.parse(value.Value); err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	return nil
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}
