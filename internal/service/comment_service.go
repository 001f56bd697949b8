package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/realtime"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// CommentService is the single writer of a ticket's comment log. It
// validates and persists new comments, then fans them out to the ticket's
// room. The durable write gates the broadcast, never the reverse.
type CommentService struct {
	tickets     repository.TicketRepository
	comments    repository.CommentRepository
	broadcaster realtime.Broadcaster
	logger      *zap.Logger

	// appendMu serializes appends per ticket. Appends to different
	// tickets proceed in parallel.
	appendMu sync.Map // ticket id -> *sync.Mutex
}

// CommentDependencies bundles collaborators for the comment service.
type CommentDependencies struct {
	TicketRepo  repository.TicketRepository
	CommentRepo repository.CommentRepository
	Broadcaster realtime.Broadcaster
	Logger      *zap.Logger
}

// AppendInput describes a comment append request. Author and Role come from
// the authenticated principal, never from the request body.
type AppendInput struct {
	TicketID string
	Author   string
	Role     domain.Role
	Message  string
	ReplyTo  *string
}

// NewCommentService constructs the service.
func NewCommentService(deps CommentDependencies) *CommentService {
	return &CommentService{
		tickets:     deps.TicketRepo,
		comments:    deps.CommentRepo,
		broadcaster: deps.Broadcaster,
		logger:      deps.Logger,
	}
}

// Append validates, persists and broadcasts a new comment, returning the
// canonical persisted representation. The comment identity and timestamp
// are assigned server-side; client-supplied values are ignored.
func (s *CommentService) Append(ctx context.Context, input AppendInput) (*domain.Comment, error) {
	message := strings.TrimSpace(input.Message)
	if message == "" {
		return nil, apperrors.NewValidationError("message required", nil)
	}

	unlock := s.lockTicket(input.TicketID)
	defer unlock()

	if _, err := s.tickets.GetByID(ctx, input.TicketID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": input.TicketID})
		}
		return nil, apperrors.MapError(err)
	}

	var replyTo *string
	if input.ReplyTo != nil && *input.ReplyTo != "" {
		ref := domain.NormalizeReplyRef(input.ReplyTo)
		if _, err := s.comments.GetForTicket(ctx, input.TicketID, ref); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewInvalidReference(ref)
			}
			return nil, apperrors.MapError(err)
		}
		replyTo = &ref
	}

	comment := &domain.Comment{
		ID:         uuid.NewString(),
		TicketID:   input.TicketID,
		Author:     input.Author,
		AuthorRole: input.Role,
		Message:    message,
		ReplyTo:    replyTo,
	}

	if err := s.comments.Append(ctx, comment); err != nil {
		return nil, apperrors.NewPersistenceFailure(err)
	}

	// Broadcast carries the persisted comment so every subscriber,
	// including the writer's other sessions, sees the identical canonical
	// representation. Fire-and-forget: the writer does not wait for
	// delivery.
	s.broadcaster.Broadcast(comment.TicketID, realtime.NewCommentCreated(comment))

	s.logger.Debug("comment appended",
		zap.String("ticket_id", comment.TicketID),
		zap.String("comment_id", comment.ID),
	)
	return comment, nil
}

// ListByTicket returns the full comment sequence of a ticket in append
// order. It does not coordinate with in-flight appends; clients converge
// through room events.
func (s *CommentService) ListByTicket(ctx context.Context, ticketID string) ([]domain.Comment, error) {
	comments, err := s.comments.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return comments, nil
}

// Delete removes a comment (admin moderation) and notifies the room.
func (s *CommentService) Delete(ctx context.Context, actor Viewer, ticketID, commentID string) error {
	if actor.Role != domain.RoleAdmin {
		return apperrors.NewForbidden("only admins can delete comments")
	}

	unlock := s.lockTicket(ticketID)
	defer unlock()

	if err := s.comments.Delete(ctx, ticketID, commentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("comment", map[string]any{"comment_id": commentID})
		}
		return apperrors.MapError(err)
	}

	s.broadcaster.Broadcast(ticketID, realtime.NewCommentDeleted(ticketID, commentID))
	return nil
}

func (s *CommentService) lockTicket(ticketID string) func() {
	muAny, _ := s.appendMu.LoadOrStore(ticketID, &sync.Mutex{})
	mu := muAny.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
