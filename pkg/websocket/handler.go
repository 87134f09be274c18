package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	ws "github.com/coder/websocket"

	"github.com/getmockd/eventsock/pkg/logging"
)

// HandleUpgrade handles an HTTP request upgrade to WebSocket.
// This is the main entry point for WebSocket connections.
func (e *Endpoint) HandleUpgrade(w http.ResponseWriter, r *http.Request) error {
	if !e.Enabled() {
		http.Error(w, "endpoint is disabled", http.StatusServiceUnavailable)
		return ErrEndpointDisabled
	}

	// Early rejection before the handshake; TryAccept below is authoritative.
	if !e.CanAccept() {
		http.Error(w, "maximum connections reached", http.StatusServiceUnavailable)
		return ErrMaxConnectionsReached
	}

	acceptOpts := &ws.AcceptOptions{
		InsecureSkipVerify: e.skipOriginVerify,
		CompressionMode:    ws.CompressionDisabled,
	}

	wsConn, err := ws.Accept(w, r, acceptOpts)
	if err != nil {
		// Accept has already written the HTTP error response.
		return fmt.Errorf("websocket accept: %w", err)
	}

	wsConn.SetReadLimit(e.maxMessageSize)

	observer, log := e.snapshot()
	conn := NewConnection(wsConn, e.path, r, observer)

	if err := e.accept(conn); err != nil {
		if errors.Is(err, ErrEndpointDisabled) {
			_ = wsConn.Close(ws.StatusGoingAway, "endpoint is disabled")
		} else {
			_ = wsConn.Close(ws.StatusTryAgainLater, "maximum connections reached")
		}
		return err
	}

	handler := e.factory()
	log.Debug("websocket accepted",
		logging.KeySession, conn.ID(),
		logging.KeyRemote, r.RemoteAddr,
		"path", e.path,
	)
	observer.SessionOpened(conn)

	e.wg.Add(1)
	go e.handleConnection(conn, handler)

	return nil
}

// handleConnection runs the lifecycle of one WebSocket connection.
func (e *Endpoint) handleConnection(conn *Connection, handler Handler) {
	defer e.wg.Done()

	observer, log := e.snapshot()

	handler.OnConnect(conn)

	if e.heartbeat != nil && e.heartbeat.Enabled {
		go e.runHeartbeat(conn.Context(), conn)
	}
	if e.idleTimeout > 0 {
		go e.watchIdleTimeout(conn.Context(), conn)
	}

	var readErr error
	for {
		msgType, data, err := conn.read()
		if err != nil {
			readErr = err
			break
		}

		// Binary frames are counted but not dispatched.
		if msgType == MessageText {
			handler.OnText(string(data))
		}
	}

	code, reason, abnormal := resolveServerClose(conn, readErr)
	if abnormal {
		observer.SessionFailed(conn, readErr)
		handler.OnError(readErr)
	}

	conn.terminate()
	e.RemoveConnection(conn.ID())

	log.Debug("websocket finished",
		logging.KeySession, conn.ID(),
		"code", int(code),
		"reason", reason,
	)
	observer.SessionClosed(conn, code, reason)
	handler.OnClose(code, reason)
}

// resolveServerClose decides the status reported to OnClose after the read
// loop ended with err. abnormal is true when no close handshake took place.
func resolveServerClose(conn *Connection, err error) (code CloseCode, reason string, abnormal bool) {
	if code, reason, local := conn.status.get(); local {
		return code, reason, false
	}

	var ce ws.CloseError
	if errors.As(err, &ce) {
		return CloseCode(ce.Code), ce.Reason, false
	}

	return CloseAbnormalClosure, "", true
}

// runHeartbeat sends periodic pings to keep the connection alive.
func (e *Endpoint) runHeartbeat(ctx context.Context, conn *Connection) {
	interval := e.heartbeat.Interval.Duration()
	if interval == 0 {
		interval = 30 * time.Second
	}

	timeout := e.heartbeat.Timeout.Duration()
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, timeout)
			err := conn.Ping(pingCtx)
			cancel()

			if err != nil {
				_ = conn.Close(CloseGoingAway, "ping timeout")
				return
			}
		}
	}
}

// watchIdleTimeout closes the connection once the peer has sent nothing for
// the idle timeout. Outbound traffic does not count as activity.
func (e *Endpoint) watchIdleTimeout(ctx context.Context, conn *Connection) {
	tick := time.Second
	if e.idleTimeout < tick {
		tick = e.idleTimeout
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Since(conn.LastInboundAt()) > e.idleTimeout {
				_ = conn.Close(CloseGoingAway, "idle timeout")
				return
			}
		}
	}
}

// ServeHTTP implements http.Handler.
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !isWebSocketUpgrade(r) {
		http.Error(w, "WebSocket upgrade required", http.StatusBadRequest)
		return
	}

	if err := e.HandleUpgrade(w, r); err != nil {
		_, log := e.snapshot()
		log.Warn("websocket upgrade failed", logging.KeyRemote, r.RemoteAddr, "error", err)
	}
}

// isWebSocketUpgrade checks if the request is a WebSocket upgrade request.
func isWebSocketUpgrade(r *http.Request) bool {
	conn := r.Header.Get("Connection")
	if !strings.Contains(strings.ToLower(conn), "upgrade") {
		return false
	}

	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// IsWebSocketRequest returns true if the request is a WebSocket upgrade request.
func IsWebSocketRequest(r *http.Request) bool {
	return isWebSocketUpgrade(r)
}
