package eventsocket

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getmockd/eventsock/internal/id"
	"github.com/getmockd/eventsock/pkg/events"
	"github.com/getmockd/eventsock/pkg/logging"
	"github.com/getmockd/eventsock/pkg/websocket"
)

// Defaults for Options.
const (
	DefaultInterval     = 2 * time.Second
	DefaultCloseKeyword = "bye"
	DefaultCloseReason  = "Thanks"

	publishTimeout = 2 * time.Second
)

// Options configures an EventSocket.
type Options struct {
	// Interval between status messages (default: 2s).
	Interval time.Duration
	// CloseKeyword closes the session when found in an inbound text message,
	// compared case-insensitively (default: "bye").
	CloseKeyword string
	// CloseReason is sent with the 1000 close frame (default: "Thanks").
	CloseReason string
	// Logger receives lifecycle logs (default: discard).
	Logger *slog.Logger
	// Publisher receives lifecycle events (default: events.Nop).
	Publisher events.Publisher
}

// EventSocket is the handler created for each connection.
type EventSocket struct {
	websocket.Adapter

	id        string
	interval  time.Duration
	keyword   string
	reason    string
	log       *slog.Logger
	publisher events.Publisher

	closure  *Latch
	sent     atomic.Int64
	received atomic.Int64
	senders  sync.WaitGroup
}

var _ websocket.Handler = (*EventSocket)(nil)

// New creates an EventSocket. Zero Options fields take their defaults.
func New(opts Options) *EventSocket {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.CloseKeyword == "" {
		opts.CloseKeyword = DefaultCloseKeyword
	}
	if opts.CloseReason == "" {
		opts.CloseReason = DefaultCloseReason
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}

	sockID := id.Socket()
	return &EventSocket{
		id:        sockID,
		interval:  opts.Interval,
		keyword:   strings.ToLower(opts.CloseKeyword),
		reason:    opts.CloseReason,
		log:       logging.OrNop(opts.Logger).With(logging.KeySocket, sockID),
		publisher: opts.Publisher,
		closure:   NewLatch(),
	}
}

// Factory returns a websocket.HandlerFactory producing EventSockets with opts.
func Factory(opts Options) websocket.HandlerFactory {
	return func() websocket.Handler {
		return New(opts)
	}
}

// ID returns the socket ID carried in every status message.
func (e *EventSocket) ID() string {
	return e.id
}

// MessagesSent returns the number of status messages sent.
func (e *EventSocket) MessagesSent() int64 {
	return e.sent.Load()
}

// MessagesReceived returns the number of text messages received.
func (e *EventSocket) MessagesReceived() int64 {
	return e.received.Load()
}

// OnConnect stores the session and starts the status push loop.
func (e *EventSocket) OnConnect(s websocket.Session) {
	e.Adapter.OnConnect(s)

	e.log.Info("socket connected",
		logging.KeySession, s.ID(),
		logging.KeyRemote, s.RemoteAddr(),
	)
	e.publish(events.Event{Kind: events.KindConnected, Session: s.ID(), Remote: s.RemoteAddr()})

	e.SendPeriodically(s)
}

// OnText logs msg and closes the session when it contains the close keyword.
func (e *EventSocket) OnText(msg string) {
	e.received.Add(1)

	s := e.Session()
	sessID := ""
	if s != nil {
		sessID = s.ID()
	}

	e.log.Info("text received", logging.KeySession, sessID, "message", msg)
	e.publish(events.Event{Kind: events.KindText, Session: sessID, Text: msg})

	if s == nil || !strings.Contains(strings.ToLower(msg), e.keyword) {
		return
	}

	if err := s.Close(websocket.CloseNormalClosure, e.reason); err != nil && !errors.Is(err, websocket.ErrConnectionClosed) {
		e.log.Warn("close failed", logging.KeySession, sessID, "error", err)
	}
}

// OnClose logs the close status and releases the closure latch.
func (e *EventSocket) OnClose(code websocket.CloseCode, reason string) {
	sessID := ""
	if s := e.Session(); s != nil {
		sessID = s.ID()
	}

	e.log.Info("socket closed",
		logging.KeySession, sessID,
		"code", int(code),
		"reason", reason,
	)
	e.publish(events.Event{Kind: events.KindClosed, Session: sessID, Code: int(code), Reason: reason})

	e.closure.Release()
}

// OnError logs err.
func (e *EventSocket) OnError(err error) {
	sessID := ""
	if s := e.Session(); s != nil {
		sessID = s.ID()
	}
	e.log.Error("socket error", logging.KeySession, sessID, "error", err)
}

// AwaitClosure blocks until the session has closed or ctx ends.
func (e *EventSocket) AwaitClosure(ctx context.Context) error {
	e.log.Info("awaiting closure from remote")
	return e.closure.Wait(ctx)
}

// Closed returns a channel that is closed once the session has closed.
func (e *EventSocket) Closed() <-chan struct{} {
	return e.closure.Done()
}

// SendPeriodically starts a goroutine that sends a Status to s every
// interval, beginning immediately, until s is no longer open.
func (e *EventSocket) SendPeriodically(s websocket.Session) {
	e.senders.Add(1)
	go func() {
		defer e.senders.Done()
		e.runSender(s)
	}()
}

// WaitSenders blocks until every push loop started by SendPeriodically has returned.
func (e *EventSocket) WaitSenders() {
	e.senders.Wait()
}

func (e *EventSocket) runSender(s websocket.Session) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("status sender panicked", logging.KeySession, s.ID(), "panic", r)
		}
	}()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	ctx := s.Context()
	var count int64
	for {
		if !s.IsOpen() {
			return
		}

		count++
		text, err := NewStatus(e.id, s.ID(), count).Encode()
		if err != nil {
			e.log.Error("encode status", logging.KeySession, s.ID(), "error", err)
			return
		}

		e.log.Info("sending status", logging.KeySession, s.ID(), "status", text)
		if err := s.SendText(ctx, text); err != nil {
			if !errors.Is(err, websocket.ErrConnectionClosed) && ctx.Err() == nil {
				e.log.Error("status send failed", logging.KeySession, s.ID(), "error", err)
			}
			return
		}
		e.sent.Add(1)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		case <-e.closure.Done():
			return
		}
	}
}

func (e *EventSocket) publish(ev events.Event) {
	ev.Socket = e.id
	ev.Time = time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := e.publisher.Publish(ctx, ev); err != nil {
		e.log.Warn("publish event failed", "kind", ev.Kind, "error", err)
	}
}
