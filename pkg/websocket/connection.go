package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/coder/websocket"

	"github.com/getmockd/eventsock/internal/id"
)

// Connection is the server side of an accepted WebSocket session.
type Connection struct {
	id            string
	endpointPath  string
	conn          *ws.Conn
	connectedAt   time.Time
	lastMessageAt atomic.Value // time.Time, either direction
	lastInboundAt atomic.Value // time.Time, peer messages only
	messagesSent  atomic.Int64
	messagesRecv  atomic.Int64
	metadata      map[string]any

	observer Observer
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.RWMutex
	sendMu   sync.RWMutex // Coordinates Send with Close so a write never races the socket teardown
	closed   atomic.Bool
	status   closeState
}

var _ Session = (*Connection)(nil)

// NewConnection creates a new Connection wrapping a websocket.Conn.
// The observer may be nil.
func NewConnection(wsConn *ws.Conn, endpointPath string, r *http.Request, observer Observer) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	if observer == nil {
		observer = nopObserver{}
	}

	c := &Connection{
		id:           id.Session(),
		endpointPath: endpointPath,
		conn:         wsConn,
		connectedAt:  time.Now(),
		metadata:     make(map[string]any),
		observer:     observer,
		ctx:          ctx,
		cancel:       cancel,
	}

	if r != nil {
		c.metadata["remoteAddr"] = r.RemoteAddr
		c.metadata["userAgent"] = r.UserAgent()
		if host := r.Host; host != "" {
			c.metadata["host"] = host
		}
	}

	c.lastMessageAt.Store(c.connectedAt)
	c.lastInboundAt.Store(c.connectedAt)

	return c
}

// ID returns the unique connection ID.
func (c *Connection) ID() string {
	return c.id
}

// EndpointPath returns the endpoint path this connection belongs to.
func (c *Connection) EndpointPath() string {
	return c.endpointPath
}

// RemoteAddr returns the remote address captured at upgrade time.
func (c *Connection) RemoteAddr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	addr, _ := c.metadata["remoteAddr"].(string)
	return addr
}

// ConnectedAt returns the connection establishment time.
func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}

// LastMessageAt returns the last message time.
func (c *Connection) LastMessageAt() time.Time {
	t, ok := c.lastMessageAt.Load().(time.Time)
	if !ok {
		return c.connectedAt
	}
	return t
}

// LastInboundAt returns when the peer last sent a message, or the connect
// time if it never has.
func (c *Connection) LastInboundAt() time.Time {
	t, ok := c.lastInboundAt.Load().(time.Time)
	if !ok {
		return c.connectedAt
	}
	return t
}

// MessagesSent returns the total messages sent.
func (c *Connection) MessagesSent() int64 {
	return c.messagesSent.Load()
}

// MessagesReceived returns the total messages received.
func (c *Connection) MessagesReceived() int64 {
	return c.messagesRecv.Load()
}

// Metadata returns a copy of the connection metadata.
func (c *Connection) Metadata() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	meta := make(map[string]any, len(c.metadata))
	for k, v := range c.metadata {
		meta[k] = v
	}
	return meta
}

// SetMetadata sets a metadata value.
func (c *Connection) SetMetadata(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metadata[key] = value
}

// Context returns the connection context. It is cancelled once the connection closes.
func (c *Connection) Context() context.Context {
	return c.ctx
}

// IsOpen reports whether the connection has not started closing.
func (c *Connection) IsOpen() bool {
	return !c.closed.Load()
}

// IsClosed returns whether the connection is closed or closing.
func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}

// Send sends a message to the client.
func (c *Connection) Send(ctx context.Context, msgType MessageType, data []byte) error {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()

	if c.closed.Load() {
		return ErrConnectionClosed
	}

	wsType := ws.MessageText
	if msgType == MessageBinary {
		wsType = ws.MessageBinary
	}

	if err := c.conn.Write(ctx, wsType, data); err != nil {
		return err
	}

	c.messagesSent.Add(1)
	c.lastMessageAt.Store(time.Now())
	c.observer.MessageObserved(c, DirectionOutbound, msgType, len(data))

	return nil
}

// SendText sends a text message.
func (c *Connection) SendText(ctx context.Context, text string) error {
	return c.Send(ctx, MessageText, []byte(text))
}

// SendJSON sends v marshaled as a JSON text message.
func (c *Connection) SendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Send(ctx, MessageText, data)
}

// read reads the next message from the connection.
func (c *Connection) read() (MessageType, []byte, error) {
	// sendMu is not taken here because Read blocks on I/O.
	// Close unblocks it by completing the close handshake.
	wsType, data, err := c.conn.Read(c.ctx)
	if err != nil {
		return 0, nil, err
	}

	now := time.Now()
	c.messagesRecv.Add(1)
	c.lastMessageAt.Store(now)
	c.lastInboundAt.Store(now)

	msgType := MessageText
	if wsType == ws.MessageBinary {
		msgType = MessageBinary
	}
	c.observer.MessageObserved(c, DirectionInbound, msgType, len(data))

	return msgType, data, nil
}

// Close closes the connection with the given close code and reason.
// It performs the close handshake and may block until the peer answers
// or the library's handshake timeout elapses.
func (c *Connection) Close(code CloseCode, reason string) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed.Swap(true) {
		return ErrConnectionClosed
	}
	c.status.setLocal(code, reason)

	// Cancelling before the handshake would make the pending Read tear the
	// socket down, so the context is released afterwards.
	err := c.conn.Close(ws.StatusCode(code), reason)
	c.cancel()
	return err
}

// CloseNormal closes the connection with normal closure.
func (c *Connection) CloseNormal() error {
	return c.Close(CloseNormalClosure, "")
}

// terminate marks the connection closed after the read loop has ended and
// releases the underlying socket.
func (c *Connection) terminate() {
	c.closed.Store(true)
	// Cancel first so in-flight Send calls give up their read lock.
	c.cancel()

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	_ = c.conn.CloseNow()
}

// Ping sends a ping frame to the client and waits for the pong.
// sendMu is not held while waiting, so Close is never delayed by a
// missing pong.
func (c *Connection) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	return c.conn.Ping(ctx)
}

// Info returns public information about this connection.
func (c *Connection) Info() *ConnectionInfo {
	return &ConnectionInfo{
		ID:               c.id,
		EndpointPath:     c.endpointPath,
		ConnectedAt:      c.connectedAt,
		LastMessageAt:    c.LastMessageAt(),
		MessagesSent:     c.messagesSent.Load(),
		MessagesReceived: c.messagesRecv.Load(),
		Metadata:         c.Metadata(),
	}
}
