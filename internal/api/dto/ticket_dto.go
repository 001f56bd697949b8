package dto

import (
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// AssignTicketRequest payload. A null assignee unassigns.
type AssignTicketRequest struct {
	AssignedTo *string `json:"assigned_to"`
}

// TicketSummary response.
type TicketSummary struct {
	ID         string              `json:"id"`
	Title      string              `json:"title"`
	CreatedBy  string              `json:"created_by"`
	AssignedTo *string             `json:"assigned_to"`
	Status     domain.TicketStatus `json:"status"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info including the thread.
type TicketDetailResponse struct {
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	CreatedBy   string              `json:"created_by"`
	AssignedTo  *string             `json:"assigned_to"`
	Status      domain.TicketStatus `json:"status"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	Comments    []CommentResponse   `json:"comments"`
}

// CreateCommentRequest payload. Author and role come from the token, not
// the body; a client-supplied timestamp is never accepted.
type CreateCommentRequest struct {
	Message string  `json:"message"`
	ReplyTo *string `json:"reply_to,omitempty"`
}

// CommentResponse is the stable persisted representation of a comment.
type CommentResponse struct {
	ID        string      `json:"id"`
	TicketID  string      `json:"ticket_id"`
	Author    string      `json:"author"`
	Role      domain.Role `json:"role"`
	Message   string      `json:"message"`
	ReplyTo   *string     `json:"reply_to,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}
