package realtime

import "github.com/google/uuid"

// Conn is one live subscriber connection. The hub owns its lifecycle: events
// are enqueued only while the hub still tracks the connection, and the event
// channel is closed exactly once on disconnect.
type Conn struct {
	id     string
	events chan Event
	closed bool
}

// NewConn allocates a connection with the given outbound buffer size.
func NewConn(bufferSize int) *Conn {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Conn{
		id:     uuid.NewString(),
		events: make(chan Event, bufferSize),
	}
}

// ID returns the connection identity.
func (c *Conn) ID() string {
	return c.id
}

// Events is the outbound stream for this connection. It is closed when the
// connection is disconnected from the hub.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// enqueue attempts a non-blocking delivery. A full buffer drops the event
// for this connection only; the subscriber recovers by re-fetching the
// ticket. Callers must hold the hub lock.
func (c *Conn) enqueue(ev Event) bool {
	if c.closed {
		return false
	}
	select {
	case c.events <- ev:
		return true
	default:
		return false
	}
}

// close marks the connection dead and closes the stream. Callers must hold
// the hub lock.
func (c *Conn) close() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.events)
}
