package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// Viewer is the authenticated caller as seen by the service layer. The role
// always comes from the identity provider, never from request payloads.
type Viewer struct {
	Username string
	Role     domain.Role
}

// TicketService coordinates ticket lifecycle and visibility.
type TicketService struct {
	tickets repository.TicketRepository
	logger  *zap.Logger
}

// NewTicketService constructs the service.
func NewTicketService(tickets repository.TicketRepository, logger *zap.Logger) *TicketService {
	return &TicketService{tickets: tickets, logger: logger}
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
}

// Create opens a new ticket for a customer.
func (s *TicketService) Create(ctx context.Context, viewer Viewer, input TicketCreateInput) (*domain.Ticket, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("title required", nil)
	}

	ticket := &domain.Ticket{
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		CreatedBy:   viewer.Username,
		Status:      domain.TicketStatusOpen,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("ticket created", zap.String("ticket_id", ticket.ID), zap.String("created_by", viewer.Username))
	return ticket, nil
}

// List returns tickets visible to the viewer: customers see their own,
// support agents see tickets assigned to them, admins see everything.
func (s *TicketService) List(ctx context.Context, viewer Viewer, status *domain.TicketStatus, limit, offset int) ([]domain.Ticket, error) {
	filter := repository.TicketFilter{Status: status, Limit: limit, Offset: offset}
	switch viewer.Role {
	case domain.RoleCustomer:
		filter.CreatedBy = &viewer.Username
	case domain.RoleSupport:
		filter.AssignedTo = &viewer.Username
	case domain.RoleAdmin:
	default:
		return nil, apperrors.NewForbidden("unknown role")
	}
	tickets, err := s.tickets.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// Get fetches one ticket, enforcing the same visibility rule as List.
func (s *TicketService) Get(ctx context.Context, viewer Viewer, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.getByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !CanViewTicket(viewer, ticket) {
		return nil, apperrors.NewForbidden("no access to this ticket")
	}
	return ticket, nil
}

// UpdateStatus moves a ticket to a new lifecycle state. Support and admin
// only.
func (s *TicketService) UpdateStatus(ctx context.Context, viewer Viewer, ticketID string, status domain.TicketStatus) (*domain.Ticket, error) {
	if viewer.Role != domain.RoleSupport && viewer.Role != domain.RoleAdmin {
		return nil, apperrors.NewForbidden("only support or admins can update status")
	}
	if !domain.ValidTicketStatus(status) {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": status})
	}
	ticket, err := s.tickets.UpdateStatus(ctx, ticketID, status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", nil)
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// Assign sets or clears the ticket's assignee. Admin only.
func (s *TicketService) Assign(ctx context.Context, viewer Viewer, ticketID string, assignee *string) (*domain.Ticket, error) {
	if viewer.Role != domain.RoleAdmin {
		return nil, apperrors.NewForbidden("only admins can assign tickets")
	}
	ticket, err := s.tickets.UpdateAssignee(ctx, ticketID, assignee)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", nil)
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// Delete removes a ticket and, through the schema, its comment log. Admin
// only.
func (s *TicketService) Delete(ctx context.Context, viewer Viewer, ticketID string) error {
	if viewer.Role != domain.RoleAdmin {
		return apperrors.NewForbidden("only admins can delete tickets")
	}
	if err := s.tickets.Delete(ctx, ticketID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("ticket", nil)
		}
		return apperrors.MapError(err)
	}
	s.logger.Info("ticket deleted", zap.String("ticket_id", ticketID), zap.String("by", viewer.Username))
	return nil
}

// CanViewTicket applies role-based visibility to one ticket.
func CanViewTicket(viewer Viewer, ticket *domain.Ticket) bool {
	switch viewer.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleSupport:
		return ticket.AssignedTo != nil && *ticket.AssignedTo == viewer.Username
	case domain.RoleCustomer:
		return ticket.CreatedBy == viewer.Username
	}
	return false
}

func (s *TicketService) getByID(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}
