package websocket

import (
	"context"
	"sync"
)

// Session is one live WebSocket connection as seen by a Handler.
type Session interface {
	// ID returns the unique session ID.
	ID() string
	// RemoteAddr returns the peer address, if known.
	RemoteAddr() string
	// IsOpen reports whether the session can still send.
	// It turns false as soon as either side starts closing.
	IsOpen() bool
	// Context is cancelled once the session has closed.
	Context() context.Context
	// SendText sends a text message.
	SendText(ctx context.Context, text string) error
	// Close starts the close handshake with the given status.
	// Calling Close again returns ErrConnectionClosed.
	Close(code CloseCode, reason string) error
}

// Handler receives the lifecycle callbacks of a single session.
//
// OnConnect is called first, OnText once per inbound text message, and OnClose
// exactly once at the end. OnError may precede OnClose when the connection
// fails without a close handshake.
type Handler interface {
	OnConnect(s Session)
	OnText(msg string)
	OnClose(code CloseCode, reason string)
	OnError(err error)
}

// HandlerFactory creates a fresh Handler for each accepted connection.
type HandlerFactory func() Handler

// Adapter is a Handler with no-op callbacks that remembers its session.
// Embed it and override the callbacks you need; overriding OnConnect
// should still call Adapter.OnConnect.
type Adapter struct {
	mu      sync.RWMutex
	session Session
}

// OnConnect stores the session.
func (a *Adapter) OnConnect(s Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session = s
}

// OnText does nothing.
func (a *Adapter) OnText(string) {}

// OnClose does nothing.
func (a *Adapter) OnClose(CloseCode, string) {}

// OnError does nothing.
func (a *Adapter) OnError(error) {}

// Session returns the session passed to OnConnect, or nil before connect.
func (a *Adapter) Session() Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session
}

// IsConnected reports whether a session is attached and still open.
func (a *Adapter) IsConnected() bool {
	s := a.Session()
	return s != nil && s.IsOpen()
}

// Observer is notified of session activity on an Endpoint.
// Implementations must be safe for concurrent use.
type Observer interface {
	SessionOpened(s Session)
	MessageObserved(s Session, dir Direction, msgType MessageType, size int)
	SessionClosed(s Session, code CloseCode, reason string)
	SessionFailed(s Session, err error)
}

type nopObserver struct{}

func (nopObserver) SessionOpened(Session)                                {}
func (nopObserver) MessageObserved(Session, Direction, MessageType, int) {}
func (nopObserver) SessionClosed(Session, CloseCode, string)             {}
func (nopObserver) SessionFailed(Session, error)                         {}

// closeState records who started closing a session and with what status.
type closeState struct {
	mu     sync.Mutex
	local  bool
	code   CloseCode
	reason string
}

func (cs *closeState) setLocal(code CloseCode, reason string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.local {
		return
	}
	cs.local = true
	cs.code = code
	cs.reason = reason
}

func (cs *closeState) get() (code CloseCode, reason string, local bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.code, cs.reason, cs.local
}
