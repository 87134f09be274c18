// Package server hosts the event socket endpoint over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getmockd/eventsock/pkg/config"
	"github.com/getmockd/eventsock/pkg/events"
	"github.com/getmockd/eventsock/pkg/eventsocket"
	"github.com/getmockd/eventsock/pkg/httputil"
	"github.com/getmockd/eventsock/pkg/logging"
	"github.com/getmockd/eventsock/pkg/metrics"
	"github.com/getmockd/eventsock/pkg/ratelimit"
	"github.com/getmockd/eventsock/pkg/websocket"
)

// Reserved HTTP paths.
const (
	HealthPath  = "/healthz"
	MetricsPath = "/metrics"
)

// ShutdownReason is sent to every live session when the server stops.
const ShutdownReason = "server shutting down"

// ErrAlreadyRunning is returned by Start on a running server.
var ErrAlreadyRunning = errors.New("server is already running")

// Server serves event sockets, health and metrics on one listener.
type Server struct {
	cfg       *config.Config
	log       *slog.Logger
	publisher events.Publisher
	metrics   *metrics.Collector
	endpoint  *websocket.Endpoint
	limiter   *ratelimit.Limiter
	mux       *http.ServeMux

	httpServer *http.Server
	serveErr   chan error
	mu         sync.Mutex
	running    bool

	// Read by HTTP handlers, which must not wait on mu during Stop.
	addr      atomic.Value // string
	startedAt atomic.Int64 // unix nanoseconds, 0 when not running
	stopping  atomic.Bool
}

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithLogger sets the operational logger for the server.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithPublisher sets the lifecycle event publisher. The server closes it on Stop.
func WithPublisher(p events.Publisher) Option {
	return func(s *Server) {
		if p != nil {
			s.publisher = p
		}
	}
}

// New creates a Server from cfg. A nil cfg uses config.Default().
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	s := &Server{
		cfg:       cfg,
		log:       logging.Nop(),
		publisher: events.Nop{},
		mux:       http.NewServeMux(),
		serveErr:  make(chan error, 1),
	}
	for _, opt := range opts {
		opt(s)
	}

	factory := eventsocket.Factory(eventsocket.Options{
		Interval:     cfg.Socket.Interval.Duration(),
		CloseKeyword: cfg.Socket.CloseKeyword,
		CloseReason:  cfg.Socket.CloseReason,
		Logger:       s.log.With(logging.KeyComponent, "eventsocket"),
		Publisher:    s.publisher,
	})

	endpoint, err := websocket.NewEndpoint(cfg.Server.EndpointConfig(), factory)
	if err != nil {
		return nil, fmt.Errorf("create endpoint: %w", err)
	}
	endpoint.SetLogger(s.log.With(logging.KeyComponent, "websocket"))
	s.endpoint = endpoint

	if cfg.Server.RateLimit.Enabled() {
		limiter, err := ratelimit.New(cfg.Server.RateLimit.LimiterConfig())
		if err != nil {
			return nil, fmt.Errorf("create rate limiter: %w", err)
		}
		s.limiter = limiter
	}

	s.mux.Handle(cfg.Server.Path, ratelimit.Middleware(s.limiter, endpoint))
	s.mux.HandleFunc(HealthPath, s.handleHealth)

	if cfg.Metrics.Enabled {
		s.metrics = metrics.New()
		endpoint.SetObserver(s.metrics)
		s.mux.Handle(MetricsPath, s.metrics.Handler())
	}

	return s, nil
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Endpoint returns the WebSocket endpoint.
func (s *Server) Endpoint() *websocket.Endpoint {
	return s.endpoint
}

// Metrics returns the metrics collector, or nil when metrics are disabled.
func (s *Server) Metrics() *metrics.Collector {
	return s.metrics
}

// Start binds the listener and serves in the background.
// Port 0 binds a free port; Addr reports the result.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	addr := s.cfg.Server.Addr()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.addr.Store(listener.Addr().String())
	s.startedAt.Store(time.Now().UnixNano())
	s.stopping.Store(false)
	s.endpoint.SetEnabled(true)
	s.running = true

	s.log.Info("server started",
		"addr", listener.Addr().String(),
		"path", s.cfg.Server.Path,
		"metrics", s.metrics != nil,
	)

	go func(srv *http.Server) {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server error", "error", err)
			s.serveErr <- err
		}
	}(s.httpServer)

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	addr, _ := s.addr.Load().(string)
	return addr
}

// URL returns the ws:// URL of the event socket endpoint, or "" before Start.
func (s *Server) URL() string {
	addr := s.Addr()
	if addr == "" {
		return ""
	}
	return "ws://" + addr + s.cfg.Server.Path
}

// Err reports a failure of the background HTTP server.
func (s *Server) Err() <-chan error {
	return s.serveErr
}

// Sessions returns info snapshots of the live sessions.
func (s *Server) Sessions() []*websocket.ConnectionInfo {
	conns := s.endpoint.Connections()
	infos := make([]*websocket.ConnectionInfo, 0, len(conns))
	for _, c := range conns {
		infos = append(infos, c.Info())
	}
	return infos
}

// Uptime returns the time since Start, or 0 when not running.
func (s *Server) Uptime() time.Duration {
	started := s.startedAt.Load()
	if started == 0 {
		return 0
	}
	return time.Since(time.Unix(0, started))
}

// Stop closes every session with 1001, waits for their handlers to finish,
// then shuts the HTTP server down. ctx bounds the whole sequence.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.stopping.Store(true)

	var errs []error

	s.endpoint.SetEnabled(false)
	closed := s.endpoint.CloseAll(websocket.CloseGoingAway, ShutdownReason)
	s.log.Info("stopping server", "sessions", closed)

	if err := s.endpoint.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("wait for sessions: %w", err))
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	if err := s.publisher.Close(); err != nil && !errors.Is(err, events.ErrPublisherClosed) {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}

	if s.limiter != nil {
		s.limiter.Stop()
	}

	s.running = false
	s.startedAt.Store(0)
	s.log.Info("server stopped")

	return errors.Join(errs...)
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Uptime   string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		httputil.WriteMethodNotAllowed(w, http.MethodGet, http.MethodHead)
		return
	}

	resp := healthResponse{
		Status:   "ok",
		Sessions: s.endpoint.ConnectionCount(),
		Uptime:   s.Uptime().Truncate(time.Second).String(),
	}

	if s.stopping.Load() {
		resp.Status = "stopping"
		httputil.WriteJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	httputil.WriteOK(w, resp)
}
