package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// TicketsHandler serves ticket CRUD plus the comment thread endpoints.
type TicketsHandler struct {
	ticketService  *service.TicketService
	commentService *service.CommentService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, comments *service.CommentService) *TicketsHandler {
	return &TicketsHandler{ticketService: tickets, commentService: comments}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	viewer, err := viewerFromContext(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.ticketService.Create(c.UserContext(), viewer, service.TicketCreateInput{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// ListTickets GET /tickets. Visibility is role-scoped by the service.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	viewer, err := viewerFromContext(c)
	if err != nil {
		return err
	}
	var status *domain.TicketStatus
	if raw := c.Query("status"); raw != "" {
		s := domain.TicketStatus(raw)
		status = &s
	}
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	tickets, err := h.ticketService.List(c.UserContext(), viewer, status, limit, offset)
	if err != nil {
		return err
	}
	out := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		out = append(out, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": out})
}

// GetTicket GET /tickets/:id. Returns the ticket with its full comment
// thread in persisted order.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	viewer, err := viewerFromContext(c)
	if err != nil {
		return err
	}
	ticket, err := h.ticketService.Get(c.UserContext(), viewer, c.Params("id"))
	if err != nil {
		return err
	}
	comments, err := h.commentService.ListByTicket(c.UserContext(), ticket.ID)
	if err != nil {
		return err
	}
	detail := dto.TicketDetailResponse{
		ID:          ticket.ID,
		Title:       ticket.Title,
		Description: ticket.Description,
		CreatedBy:   ticket.CreatedBy,
		AssignedTo:  ticket.AssignedTo,
		Status:      ticket.Status,
		CreatedAt:   ticket.CreatedAt,
		UpdatedAt:   ticket.UpdatedAt,
		Comments:    make([]dto.CommentResponse, 0, len(comments)),
	}
	for i := range comments {
		detail.Comments = append(detail.Comments, commentResponse(&comments[i]))
	}
	return c.JSON(fiber.Map{"data": detail})
}

// UpdateStatus PATCH /tickets/:id/status.
func (h *TicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	viewer, err := viewerFromContext(c)
	if err != nil {
		return err
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.ticketService.UpdateStatus(c.UserContext(), viewer, c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Assign PATCH /tickets/:id/assignee.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	viewer, err := viewerFromContext(c)
	if err != nil {
		return err
	}
	var req dto.AssignTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.ticketService.Assign(c.UserContext(), viewer, c.Params("id"), req.AssignedTo)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// DeleteTicket DELETE /tickets/:id.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	viewer, err := viewerFromContext(c)
	if err != nil {
		return err
	}
	if err := h.ticketService.Delete(c.UserContext(), viewer, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// AddComment POST /tickets/:id/comments. The response body is the canonical
// persisted comment; the same payload is broadcast to the ticket room.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	viewer, err := viewerFromContext(c)
	if err != nil {
		return err
	}
	ticketID := c.Params("id")
	if _, err := h.ticketService.Get(c.UserContext(), viewer, ticketID); err != nil {
		return err
	}
	var req dto.CreateCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	comment, err := h.commentService.Append(c.UserContext(), service.AppendInput{
		TicketID: ticketID,
		Author:   viewer.Username,
		Role:     viewer.Role,
		Message:  req.Message,
		ReplyTo:  req.ReplyTo,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": commentResponse(comment)})
}

// DeleteComment DELETE /tickets/:id/comments/:commentId.
func (h *TicketsHandler) DeleteComment(c *fiber.Ctx) error {
	viewer, err := viewerFromContext(c)
	if err != nil {
		return err
	}
	if err := h.commentService.Delete(c.UserContext(), viewer, c.Params("id"), c.Params("commentId")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func viewerFromContext(c *fiber.Ctx) (service.Viewer, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return service.Viewer{}, apperrors.NewUnauthorized("missing principal")
	}
	return service.Viewer{Username: principal.Username(), Role: principal.Role()}, nil
}

func queryInt(c *fiber.Ctx, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:         ticket.ID,
		Title:      ticket.Title,
		CreatedBy:  ticket.CreatedBy,
		AssignedTo: ticket.AssignedTo,
		Status:     ticket.Status,
		CreatedAt:  ticket.CreatedAt,
		UpdatedAt:  ticket.UpdatedAt,
	}
}

func commentResponse(comment *domain.Comment) dto.CommentResponse {
	return dto.CommentResponse{
		ID:        comment.ID,
		TicketID:  comment.TicketID,
		Author:    comment.Author,
		Role:      comment.AuthorRole,
		Message:   comment.Message,
		ReplyTo:   comment.ReplyTo,
		CreatedAt: comment.CreatedAt,
	}
}
