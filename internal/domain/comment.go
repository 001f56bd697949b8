package domain

import "time"

// Comment is a single entry in a ticket's conversation thread. Comments are
// immutable once persisted; deletion is the only mutation. The thread is a
// flat sequence ordered by Seq, with replies expressed as back-references to
// an earlier comment id in the same ticket.
type Comment struct {
	ID         string
	TicketID   string
	Author     string
	AuthorRole Role
	Message    string
	ReplyTo    *string
	CreatedAt  time.Time
	// Seq is assigned by the store and establishes the global append order
	// within a ticket.
	Seq int64
}

// IsReply reports whether the comment references an earlier one.
func (c *Comment) IsReply() bool {
	return c.ReplyTo != nil && *c.ReplyTo != ""
}
