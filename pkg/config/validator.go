package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/getmockd/eventsock/pkg/ratelimit"
)

// maxCloseReasonBytes is the room left for a reason in a close frame payload.
const maxCloseReasonBytes = 123

// reservedPaths are served by the HTTP server itself.
var reservedPaths = map[string]bool{
	"/healthz": true,
	"/metrics": true,
}

// validLogLevels are the accepted logging.level values.
var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// ValidationError describes one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// Validate checks the configuration and reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	errs = append(errs, c.Server.validate()...)
	errs = append(errs, c.Socket.validate()...)
	errs = append(errs, c.Logging.validate()...)
	errs = append(errs, c.Events.validate()...)
	return errors.Join(errs...)
}

func (s *ServerConfig) validate() []error {
	var errs []error

	if s.Port < 0 || s.Port > 65535 {
		errs = append(errs, &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 0 and 65535, got %d", s.Port),
		})
	}

	switch {
	case !strings.HasPrefix(s.Path, "/"):
		errs = append(errs, &ValidationError{
			Field:   "server.path",
			Message: fmt.Sprintf("path must start with /, got %q", s.Path),
		})
	case reservedPaths[s.Path]:
		errs = append(errs, &ValidationError{
			Field:   "server.path",
			Message: fmt.Sprintf("path %s is reserved", s.Path),
		})
	}

	if s.MaxMessageSize < 0 {
		errs = append(errs, &ValidationError{Field: "server.maxMessageSize", Message: "must not be negative"})
	}
	if s.MaxConnections < 0 {
		errs = append(errs, &ValidationError{Field: "server.maxConnections", Message: "must not be negative"})
	}
	if s.IdleTimeout < 0 {
		errs = append(errs, &ValidationError{Field: "server.idleTimeout", Message: "must not be negative"})
	}
	if s.ShutdownTimeout < 0 {
		errs = append(errs, &ValidationError{Field: "server.shutdownTimeout", Message: "must not be negative"})
	}

	if s.Heartbeat.Enabled {
		if s.Heartbeat.Interval <= 0 {
			errs = append(errs, &ValidationError{Field: "server.heartbeat.interval", Message: "must be positive when heartbeat is enabled"})
		}
		if s.Heartbeat.Timeout < 0 {
			errs = append(errs, &ValidationError{Field: "server.heartbeat.timeout", Message: "must not be negative"})
		}
	}

	if s.RateLimit.Rate < 0 {
		errs = append(errs, &ValidationError{Field: "server.rateLimit.rate", Message: "must not be negative"})
	}
	if s.RateLimit.Burst < 0 {
		errs = append(errs, &ValidationError{Field: "server.rateLimit.burst", Message: "must not be negative"})
	}
	if _, err := ratelimit.ParseProxies(s.RateLimit.TrustedProxies); err != nil {
		errs = append(errs, &ValidationError{Field: "server.rateLimit.trustedProxies", Message: err.Error()})
	}

	return errs
}

func (s *SocketConfig) validate() []error {
	var errs []error

	if s.Interval <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "socket.interval",
			Message: fmt.Sprintf("interval must be positive, got %s", s.Interval),
		})
	}
	if strings.TrimSpace(s.CloseKeyword) == "" {
		errs = append(errs, &ValidationError{Field: "socket.closeKeyword", Message: "must not be empty"})
	}
	if len(s.CloseReason) > maxCloseReasonBytes {
		errs = append(errs, &ValidationError{
			Field:   "socket.closeReason",
			Message: fmt.Sprintf("must be at most %d bytes, got %d", maxCloseReasonBytes, len(s.CloseReason)),
		})
	}

	return errs
}

func (l *LoggingConfig) validate() []error {
	if l.Level != "" && !validLogLevels[strings.ToLower(l.Level)] {
		return []error{&ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level %q (must be one of: debug, info, warn, error)", l.Level),
		}}
	}
	if l.Format != "" && !strings.EqualFold(l.Format, "text") && !strings.EqualFold(l.Format, "json") {
		return []error{&ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid format %q (must be text or json)", l.Format),
		}}
	}
	return nil
}

func (e *EventsConfig) validate() []error {
	if e.NATSURL == "" {
		return nil
	}
	if strings.ContainsAny(e.SubjectPrefix, " \t*>") {
		return []error{&ValidationError{
			Field:   "events.subjectPrefix",
			Message: fmt.Sprintf("subject prefix %q must not contain whitespace or wildcards", e.SubjectPrefix),
		}}
	}
	return nil
}
