package threadview

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event types as broadcast to ticket rooms.
const (
	EventCommentCreated = "comment-created"
	EventCommentDeleted = "comment-deleted"
)

// Event is a room broadcast envelope. Comment is set for comment-created
// events, CommentID for comment-deleted.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	TicketID  string    `json:"ticket_id"`
	Comment   *Comment  `json:"comment,omitempty"`
	CommentID string    `json:"comment_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type roomCommand struct {
	Action   string `json:"action"`
	TicketID string `json:"ticket_id"`
}

// Subscriber is a websocket client for the realtime rooms endpoint. It
// joins ticket rooms and delivers their events to a handler. Events are
// best-effort: after a disconnect the caller re-fetches the thread rather
// than expecting a replay.
type Subscriber struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

// Dial connects to the rooms endpoint, authenticating with the given access
// token. endpoint is a ws:// or wss:// URL.
func Dial(ctx context.Context, endpoint, token string) (*Subscriber, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return &Subscriber{conn: conn}, nil
}

// Join subscribes to a ticket's room.
func (s *Subscriber) Join(ticketID string) error {
	return s.writeJSON(roomCommand{Action: "join", TicketID: ticketID})
}

// Leave unsubscribes from a ticket's room.
func (s *Subscriber) Leave(ticketID string) error {
	return s.writeJSON(roomCommand{Action: "leave", TicketID: ticketID})
}

// Listen reads events until the connection closes or ctx is done, invoking
// handle for each. Frames that are not events, such as join refusals, are
// skipped. Returns the read error that ended the loop.
func (s *Subscriber) Listen(ctx context.Context, handle func(Event)) error {
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetReadDeadline(deadline)
	}
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.conn.Close()
		case <-done:
		}
	}()

	for {
		var ev Event
		if err := s.conn.ReadJSON(&ev); err != nil {
			return err
		}
		if ev.Type == "" {
			continue
		}
		handle(ev)
	}
}

// Feed returns a handler that applies a ticket's events to a thread view,
// ignoring events for other tickets.
func Feed(thread *Thread, ticketID string) func(Event) {
	return func(ev Event) {
		if ev.TicketID != ticketID {
			return
		}
		switch ev.Type {
		case EventCommentCreated:
			if ev.Comment != nil {
				thread.ApplyCreated(*ev.Comment)
			}
		case EventCommentDeleted:
			thread.ApplyDeleted(ev.CommentID)
		}
	}
}

// Close tears down the connection. The server detaches the connection from
// every joined room.
func (s *Subscriber) Close() error {
	return s.conn.Close()
}

func (s *Subscriber) writeJSON(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}
