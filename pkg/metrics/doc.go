// Package metrics exposes event socket activity as Prometheus metrics.
//
// A Collector implements websocket.Observer, so attaching it to an Endpoint
// is enough to populate every series:
//
//   - eventsock_sessions_active: gauge of open sessions
//   - eventsock_sessions_total: counter of accepted sessions
//   - eventsock_messages_total: counter of messages (labels: direction)
//   - eventsock_closes_total: counter of finished sessions (labels: code)
//   - eventsock_errors_total: counter of sessions that ended without a close handshake
//
// Each Collector owns its registry, which also carries the Go runtime and
// process collectors.
//
// # Usage
//
//	m := metrics.New()
//	endpoint.SetObserver(m)
//	mux.Handle("/metrics", m.Handler())
package metrics
