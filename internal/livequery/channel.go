package livequery

import (
	"context"
	"sync"
)

// channel is a single-producer/single-consumer pull queue with a one-slot
// buffer, modeled on the connection-pool idiom in grpctp/transport.go
// (buffered channel + sync.Once + close flag, here a mutex-guarded bool)
// generalized to carry arbitrary values instead of pooled connections.
type channel[T any] struct {
	buf    chan T
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	closed bool
}

func newChannel[T any]() *channel[T] {
	return &channel[T]{
		buf:  make(chan T, 1),
		done: make(chan struct{}),
	}
}

// push enqueues a value. If the channel is closed the value is discarded.
// Once the buffer's single slot is full, push blocks until the consumer
// pulls or the channel is closed — this is the "implementation dependent" back-pressure
// point called out in spec.md §5.
func (c *channel[T]) push(v T) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	select {
	case c.buf <- v:
		// A close() landing concurrently with this send can still win the
		// race and leave v sitting in buf; undo the send so a later pull
		// can't observe a post-close push as a live result (spec.md §4.2).
		c.mu.Lock()
		closedAfterSend := c.closed
		c.mu.Unlock()
		if closedAfterSend {
			select {
			case <-c.buf:
			default:
			}
		}
	case <-c.done:
	}
}

// pull returns the next pushed value, or (zero, false) once the channel is
// closed. A value still buffered when close runs is discarded, not delivered.
func (c *channel[T]) pull(ctx context.Context) (T, bool) {
	var zero T
	// Check done first: select picks among ready cases at random, so a
	// buffered value could otherwise win over an already-closed channel.
	select {
	case <-c.done:
		return zero, false
	default:
	}
	select {
	case v := <-c.buf:
		return v, true
	case <-c.done:
		return zero, false
	case <-ctx.Done():
		return zero, false
	}
}

// close causes any pending and future pull to resolve terminal, and makes
// subsequent push calls no-ops. Safe to call more than once.
func (c *channel[T]) close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	})
}
