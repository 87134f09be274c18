package websocket

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/getmockd/eventsock/pkg/logging"
)

// DefaultMaxMessageSize is the read limit applied when none is configured.
const DefaultMaxMessageSize = 65536

// EndpointConfig defines the configuration for a WebSocket endpoint.
type EndpointConfig struct {
	// Path is the URL path for WebSocket upgrade (e.g., "/events").
	Path string `json:"path"`
	// Heartbeat configures ping/pong keepalive.
	Heartbeat *HeartbeatConfig `json:"heartbeat,omitempty"`
	// MaxMessageSize is the maximum message size in bytes (default: 65536).
	MaxMessageSize int64 `json:"maxMessageSize,omitempty"`
	// IdleTimeout closes connections after inactivity (default: 0 = disabled).
	IdleTimeout Duration `json:"idleTimeout,omitempty"`
	// MaxConnections limits concurrent connections (default: 0 = unlimited).
	MaxConnections int `json:"maxConnections,omitempty"`
	// SkipOriginVerify skips verification of the Origin header during the handshake.
	// Default: true. Set to false to enforce that Origin matches the Host header.
	SkipOriginVerify *bool `json:"skipOriginVerify,omitempty"`
}

// HeartbeatConfig configures WebSocket ping/pong keepalive.
type HeartbeatConfig struct {
	// Enabled enables heartbeat pings.
	Enabled bool `json:"enabled"`
	// Interval is the time between pings (default: 30s).
	Interval Duration `json:"interval,omitempty"`
	// Timeout is the maximum wait for pong response (default: 10s).
	Timeout Duration `json:"timeout,omitempty"`
}

// Endpoint accepts WebSocket connections on one path and runs a fresh
// Handler for each of them.
type Endpoint struct {
	path             string
	heartbeat        *HeartbeatConfig
	maxMessageSize   int64
	idleTimeout      time.Duration
	maxConnections   int
	skipOriginVerify bool
	enabled          bool

	factory     HandlerFactory
	observer    Observer
	log         *slog.Logger
	connections map[string]*Connection
	wg          sync.WaitGroup
	mu          sync.RWMutex
}

// NewEndpoint creates a new WebSocket endpoint with the given configuration.
func NewEndpoint(cfg *EndpointConfig, factory HandlerFactory) (*Endpoint, error) {
	if cfg == nil {
		cfg = &EndpointConfig{Path: "/"}
	}
	if factory == nil {
		return nil, ErrNoHandlerFactory
	}
	if !strings.HasPrefix(cfg.Path, "/") {
		return nil, ErrInvalidPath
	}

	maxMsgSize := cfg.MaxMessageSize
	if maxMsgSize <= 0 {
		maxMsgSize = DefaultMaxMessageSize
	}

	skipOriginVerify := true
	if cfg.SkipOriginVerify != nil {
		skipOriginVerify = *cfg.SkipOriginVerify
	}

	return &Endpoint{
		path:             cfg.Path,
		heartbeat:        cfg.Heartbeat,
		maxMessageSize:   maxMsgSize,
		idleTimeout:      cfg.IdleTimeout.Duration(),
		maxConnections:   cfg.MaxConnections,
		skipOriginVerify: skipOriginVerify,
		enabled:          true,
		factory:          factory,
		observer:         nopObserver{},
		log:              logging.Nop(),
		connections:      make(map[string]*Connection),
	}, nil
}

// Path returns the endpoint path.
func (e *Endpoint) Path() string {
	return e.path
}

// MaxMessageSize returns the maximum message size.
func (e *Endpoint) MaxMessageSize() int64 {
	return e.maxMessageSize
}

// IdleTimeout returns the idle timeout duration.
func (e *Endpoint) IdleTimeout() time.Duration {
	return e.idleTimeout
}

// MaxConnections returns the maximum connections limit.
func (e *Endpoint) MaxConnections() int {
	return e.maxConnections
}

// SkipOriginVerify returns whether origin verification should be skipped.
func (e *Endpoint) SkipOriginVerify() bool {
	return e.skipOriginVerify
}

// Heartbeat returns the heartbeat configuration.
func (e *Endpoint) Heartbeat() *HeartbeatConfig {
	return e.heartbeat
}

// Enabled returns whether the endpoint is enabled.
func (e *Endpoint) Enabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.enabled
}

// SetEnabled sets the enabled state of the endpoint.
func (e *Endpoint) SetEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = enabled
}

// SetObserver sets the observer notified of session activity.
func (e *Endpoint) SetObserver(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if o == nil {
		o = nopObserver{}
	}
	e.observer = o
}

// SetLogger sets the logger used for connection lifecycle messages.
func (e *Endpoint) SetLogger(log *slog.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = logging.OrNop(log)
}

func (e *Endpoint) snapshot() (Observer, *slog.Logger) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.observer, e.log
}

// TryAccept atomically checks whether a new connection can be accepted and,
// if so, adds it to the endpoint. Returns true if the connection was added.
func (e *Endpoint) TryAccept(conn *Connection) bool {
	return e.accept(conn) == nil
}

// accept registers conn unless the endpoint was disabled or filled up since
// the pre-handshake checks. Checking enabled under e.mu keeps a late upgrade
// from slipping past CloseAll.
func (e *Endpoint) accept(conn *Connection) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.enabled {
		return ErrEndpointDisabled
	}
	if e.maxConnections > 0 && len(e.connections) >= e.maxConnections {
		return ErrMaxConnectionsReached
	}
	e.connections[conn.ID()] = conn
	return nil
}

// CanAccept reports whether the endpoint currently has room for a connection.
// Use TryAccept for the atomic check-and-add.
func (e *Endpoint) CanAccept() bool {
	if e.maxConnections <= 0 {
		return true
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.connections) < e.maxConnections
}

// ConnectionCount returns the number of active connections.
func (e *Endpoint) ConnectionCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.connections)
}

// RemoveConnection removes a connection from this endpoint.
func (e *Endpoint) RemoveConnection(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.connections, id)
}

// GetConnection returns a connection by ID.
func (e *Endpoint) GetConnection(id string) *Connection {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connections[id]
}

// Connections returns all connections for this endpoint.
func (e *Endpoint) Connections() []*Connection {
	e.mu.RLock()
	defer e.mu.RUnlock()
	conns := make([]*Connection, 0, len(e.connections))
	for _, c := range e.connections {
		conns = append(conns, c)
	}
	return conns
}

// CloseAll closes every live connection with the given status and returns
// how many close handshakes were started.
func (e *Endpoint) CloseAll(code CloseCode, reason string) int {
	// Copy first: Close blocks on the handshake and must not hold e.mu.
	conns := e.Connections()

	var wg sync.WaitGroup
	closed := 0
	var mu sync.Mutex
	for _, c := range conns {
		wg.Add(1)
		go func(c *Connection) {
			defer wg.Done()
			if err := c.Close(code, reason); err == nil {
				mu.Lock()
				closed++
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()
	return closed
}

// Wait blocks until every connection's read loop has delivered OnClose,
// or ctx ends.
func (e *Endpoint) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Info returns public information about this endpoint.
func (e *Endpoint) Info() *EndpointInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()

	info := &EndpointInfo{
		Path:            e.path,
		ConnectionCount: len(e.connections),
		MaxConnections:  e.maxConnections,
		MaxMessageSize:  e.maxMessageSize,
		Enabled:         e.enabled,
	}

	if e.heartbeat != nil && e.heartbeat.Enabled {
		info.HeartbeatEnabled = true
		info.HeartbeatInterval = e.heartbeat.Interval.Duration().String()
	}

	if e.idleTimeout > 0 {
		info.IdleTimeout = e.idleTimeout.String()
	}

	return info
}
