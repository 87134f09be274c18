package events

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Kind is the lifecycle stage an Event describes.
type Kind string

const (
	KindConnected Kind = "connected"
	KindText      Kind = "text"
	KindClosed    Kind = "closed"
)

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("publisher closed")

// Event is one lifecycle event of an event socket.
type Event struct {
	Kind    Kind      `json:"kind"`
	Socket  string    `json:"socket"`
	Session string    `json:"session"`
	Time    time.Time `json:"time"`
	Remote  string    `json:"remote,omitempty"`
	Text    string    `json:"text,omitempty"`
	Code    int       `json:"code,omitempty"`
	Reason  string    `json:"reason,omitempty"`
}

// Publisher delivers events to an external sink.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }

// Memory keeps published events in order. Safe for concurrent use.
type Memory struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

// NewMemory creates an empty in-memory publisher.
func NewMemory() *Memory {
	return &Memory{}
}

// Publish implements Publisher.
func (m *Memory) Publish(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrPublisherClosed
	}
	m.events = append(m.events, ev)
	return nil
}

// Close implements Publisher.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Events returns a copy of everything published so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Kinds returns the kinds of the published events, in order.
func (m *Memory) Kinds() []Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Kind, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.Kind
	}
	return out
}
