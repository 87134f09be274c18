// Package events publishes session lifecycle events (connected, text, closed)
// so other systems can follow what event sockets are doing.
//
// The default publisher is Nop. When a NATS URL is configured the server uses
// NATSPublisher, which publishes JSON events on "<prefix>.<session>.<kind>".
// Publishing is best effort: callers log failures and never let them affect
// the WebSocket session.
package events
