package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/getmockd/eventsock/internal/id"
)

// DefaultCloseTimeout bounds how long a client waits for the peer's close frame.
const DefaultCloseTimeout = 5 * time.Second

// DialOptions configures Dial.
type DialOptions struct {
	// Header is sent with the upgrade request.
	Header http.Header
	// Subprotocols requested from the server.
	Subprotocols []string
	// HandshakeTimeout bounds the opening handshake (default: 30s).
	HandshakeTimeout time.Duration
	// CloseTimeout bounds the closing handshake (default: 5s).
	CloseTimeout time.Duration
}

// ClientConn is the client side of a WebSocket session.
type ClientConn struct {
	id           string
	url          string
	conn         *websocket.Conn
	closeTimeout time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	writeMu sync.Mutex // gorilla allows one concurrent writer
	closed  atomic.Bool
	status  closeState
}

var _ Session = (*ClientConn)(nil)

// Dial opens a client session to url.
// The returned response is non-nil whenever the server answered the upgrade.
func Dial(ctx context.Context, url string, opts DialOptions) (*ClientConn, *http.Response, error) {
	handshakeTimeout := opts.HandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 30 * time.Second
	}
	closeTimeout := opts.CloseTimeout
	if closeTimeout <= 0 {
		closeTimeout = DefaultCloseTimeout
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
		Subprotocols:     opts.Subprotocols,
	}

	conn, resp, err := dialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		if resp != nil {
			return nil, resp, fmt.Errorf("connection failed: %w (HTTP %d)", err, resp.StatusCode)
		}
		return nil, nil, fmt.Errorf("connection failed: %w", err)
	}

	cctx, cancel := context.WithCancel(context.Background())
	return &ClientConn{
		id:           id.Session(),
		url:          url,
		conn:         conn,
		closeTimeout: closeTimeout,
		ctx:          cctx,
		cancel:       cancel,
	}, resp, nil
}

// ID returns the local session ID.
func (c *ClientConn) ID() string {
	return c.id
}

// URL returns the dialed URL.
func (c *ClientConn) URL() string {
	return c.url
}

// RemoteAddr returns the server address.
func (c *ClientConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Subprotocol returns the negotiated subprotocol.
func (c *ClientConn) Subprotocol() string {
	return c.conn.Subprotocol()
}

// IsOpen reports whether the session has not started closing.
func (c *ClientConn) IsOpen() bool {
	return !c.closed.Load()
}

// Context is cancelled once the session has closed.
func (c *ClientConn) Context() context.Context {
	return c.ctx
}

// SendText sends a text message. A deadline on ctx becomes the write deadline.
func (c *ClientConn) SendText(ctx context.Context, text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return ErrConnectionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline, _ := ctx.Deadline()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// Close sends a close frame and gives the peer CloseTimeout to answer.
// The session's Run loop reports the closure.
func (c *ClientConn) Close(code CloseCode, reason string) error {
	if c.closed.Swap(true) {
		return ErrConnectionClosed
	}
	c.status.setLocal(code, reason)

	deadline := time.Now().Add(c.closeTimeout)
	msg := websocket.FormatCloseMessage(int(code), reason)
	err := c.conn.WriteControl(websocket.CloseMessage, msg, deadline)

	// Bound the wait for the peer's close frame.
	_ = c.conn.SetReadDeadline(deadline)

	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return err
	}
	return nil
}

// Run delivers the session to h: OnConnect first, OnText for each text
// message, and OnClose exactly once when the session ends. Cancelling ctx
// closes the session with 1001.
//
// Run returns nil after a close handshake and the read error otherwise.
func (c *ClientConn) Run(ctx context.Context, h Handler) error {
	h.OnConnect(c)

	stop := context.AfterFunc(ctx, func() {
		_ = c.Close(CloseGoingAway, "client shutting down")
	})
	defer stop()

	var readErr error
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		if msgType == websocket.TextMessage {
			h.OnText(string(data))
		}
	}

	code, reason, abnormal := c.resolveClose(readErr)
	if abnormal {
		h.OnError(readErr)
	}

	c.closed.Store(true)
	c.cancel()
	_ = c.conn.Close()

	h.OnClose(code, reason)

	if abnormal {
		return readErr
	}
	return nil
}

func (c *ClientConn) resolveClose(err error) (code CloseCode, reason string, abnormal bool) {
	if code, reason, local := c.status.get(); local {
		return code, reason, false
	}

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return CloseCode(ce.Code), ce.Text, false
	}

	return CloseAbnormalClosure, "", true
}
