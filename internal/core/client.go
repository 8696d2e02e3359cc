package core

import (
	"sync"
	"sync/atomic"
)

// Client is one transport connection as seen by the core layer. Outbound
// frames are queued and written by the transport's write loop.
type Client struct {
	ID string

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once

	userID  atomic.Int64
	roomID  atomic.Int64
	evicted atomic.Bool
}

// NewClient constructs a client with an outbound queue of the given size.
func NewClient(id string, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Client{
		ID:   id,
		out:  make(chan []byte, queueSize),
		done: make(chan struct{}),
	}
}

// Send queues a frame without blocking. It returns false when the client is
// closed or its queue is full.
func (c *Client) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- frame:
		return true
	default:
		return false
	}
}

// Outbound returns the queue drained by the write loop.
func (c *Client) Outbound() <-chan []byte {
	return c.out
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close marks the client closed. Frames already queued are still written.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Closed reports whether Close was called.
func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Evicted reports whether a newer connection of the same user replaced c.
// An evicted client can never join a room again.
func (c *Client) Evicted() bool {
	return c.evicted.Load()
}

// UserID returns the authenticated user, 0 before a join.
func (c *Client) UserID() int64 {
	return c.userID.Load()
}

// RoomID returns the current room, 0 when not a member of any.
func (c *Client) RoomID() int64 {
	return c.roomID.Load()
}
