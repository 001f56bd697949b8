package realtime

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// EventType enumerates room event identifiers.
type EventType string

const (
	EventCommentCreated EventType = "comment-created"
	EventCommentDeleted EventType = "comment-deleted"
)

// CommentPayload is the wire representation of a persisted comment. Every
// subscriber of a room receives this exact shape, including the writer's
// other sessions.
type CommentPayload struct {
	ID        string      `json:"id"`
	TicketID  string      `json:"ticket_id"`
	Author    string      `json:"author"`
	Role      domain.Role `json:"role"`
	Message   string      `json:"message"`
	ReplyTo   *string     `json:"reply_to,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Event is a room broadcast envelope. Comment is set for comment-created,
// CommentID for comment-deleted.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	TicketID  string          `json:"ticket_id"`
	Comment   *CommentPayload `json:"comment,omitempty"`
	CommentID string          `json:"comment_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewCommentCreated wraps an already-persisted comment for fan-out.
// Broadcasts never describe speculative state.
func NewCommentCreated(c *domain.Comment) Event {
	return Event{
		ID:       uuid.NewString(),
		Type:     EventCommentCreated,
		TicketID: c.TicketID,
		Comment: &CommentPayload{
			ID:        c.ID,
			TicketID:  c.TicketID,
			Author:    c.Author,
			Role:      c.AuthorRole,
			Message:   c.Message,
			ReplyTo:   c.ReplyTo,
			CreatedAt: c.CreatedAt,
		},
		Timestamp: time.Now(),
	}
}

// NewCommentDeleted announces removal of a comment from a ticket's thread.
func NewCommentDeleted(ticketID, commentID string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      EventCommentDeleted,
		TicketID:  ticketID,
		CommentID: commentID,
		Timestamp: time.Now(),
	}
}
