package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/getmockd/eventsock/pkg/websocket"
)

const namespace = "eventsock"

// Collector records session activity reported by a websocket.Endpoint.
type Collector struct {
	registry *prometheus.Registry

	SessionsActive prometheus.Gauge
	SessionsTotal  prometheus.Counter
	MessagesTotal  *prometheus.CounterVec
	ClosesTotal    *prometheus.CounterVec
	ErrorsTotal    prometheus.Counter
}

var _ websocket.Observer = (*Collector)(nil)

// New creates a Collector with its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Number of open event socket sessions",
			},
		),

		SessionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_total",
				Help:      "Total number of accepted event socket sessions",
			},
		),

		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_total",
				Help:      "Total number of WebSocket messages",
			},
			[]string{"direction"},
		),

		ClosesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "closes_total",
				Help:      "Total number of finished sessions by close code",
			},
			[]string{"code"},
		),

		ErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of sessions that failed without a close handshake",
			},
		),
	}

	c.registry.MustRegister(
		c.SessionsActive,
		c.SessionsTotal,
		c.MessagesTotal,
		c.ClosesTotal,
		c.ErrorsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Registry returns the registry backing this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// SessionOpened implements websocket.Observer.
func (c *Collector) SessionOpened(websocket.Session) {
	c.SessionsTotal.Inc()
	c.SessionsActive.Inc()
}

// MessageObserved implements websocket.Observer.
func (c *Collector) MessageObserved(_ websocket.Session, dir websocket.Direction, _ websocket.MessageType, _ int) {
	c.MessagesTotal.WithLabelValues(string(dir)).Inc()
}

// SessionClosed implements websocket.Observer.
func (c *Collector) SessionClosed(_ websocket.Session, code websocket.CloseCode, _ string) {
	c.SessionsActive.Dec()
	c.ClosesTotal.WithLabelValues(strconv.Itoa(int(code))).Inc()
}

// SessionFailed implements websocket.Observer.
func (c *Collector) SessionFailed(websocket.Session, error) {
	c.ErrorsTotal.Inc()
}
