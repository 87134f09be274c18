package eventsocket

import (
	"context"
	"sync"
)

// Latch is a one-shot signal. Release may be called any number of times;
// the first call opens the latch and every waiter, current or future, passes.
type Latch struct {
	once sync.Once
	ch   chan struct{}
}

// NewLatch returns a latch that has not been released.
func NewLatch() *Latch {
	return &Latch{ch: make(chan struct{})}
}

// Release opens the latch.
func (l *Latch) Release() {
	l.once.Do(func() { close(l.ch) })
}

// Done returns a channel that is closed once the latch is released.
func (l *Latch) Done() <-chan struct{} {
	return l.ch
}

// Released reports whether Release has been called.
func (l *Latch) Released() bool {
	select {
	case <-l.ch:
		return true
	default:
		return false
	}
}

// Wait blocks until the latch is released or ctx ends.
func (l *Latch) Wait(ctx context.Context) error {
	select {
	case <-l.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
