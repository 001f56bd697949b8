package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/realtime"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// --- fakes ---

type fakeTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
}

func newFakeTicketRepo(tickets ...*domain.Ticket) *fakeTicketRepo {
	repo := &fakeTicketRepo{tickets: map[string]*domain.Ticket{}}
	for _, ticket := range tickets {
		repo.tickets[ticket.ID] = ticket
	}
	return repo
}

func (r *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ticket.ID == "" {
		ticket.ID = fmt.Sprintf("ticket-%d", len(r.tickets)+1)
	}
	r.tickets[ticket.ID] = ticket
	return nil
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return ticket, nil
}

func (r *fakeTicketRepo) List(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Ticket
	for _, ticket := range r.tickets {
		if filter.CreatedBy != nil && ticket.CreatedBy != *filter.CreatedBy {
			continue
		}
		if filter.AssignedTo != nil && (ticket.AssignedTo == nil || *ticket.AssignedTo != *filter.AssignedTo) {
			continue
		}
		if filter.Status != nil && ticket.Status != *filter.Status {
			continue
		}
		out = append(out, *ticket)
	}
	return out, nil
}

func (r *fakeTicketRepo) UpdateStatus(ctx context.Context, id string, status domain.TicketStatus) (*domain.Ticket, error) {
	ticket, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ticket.Status = status
	return ticket, nil
}

func (r *fakeTicketRepo) UpdateAssignee(ctx context.Context, id string, assignee *string) (*domain.Ticket, error) {
	ticket, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ticket.AssignedTo = assignee
	return ticket, nil
}

func (r *fakeTicketRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(r.tickets, id)
	return nil
}

type fakeCommentRepo struct {
	mu        sync.Mutex
	comments  []domain.Comment
	nextSeq   int64
	appendErr error
}

func (r *fakeCommentRepo) Append(_ context.Context, comment *domain.Comment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	r.nextSeq++
	comment.Seq = r.nextSeq
	comment.CreatedAt = time.Now()
	r.comments = append(r.comments, *comment)
	return nil
}

func (r *fakeCommentRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Comment
	for _, c := range r.comments {
		if c.TicketID == ticketID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeCommentRepo) GetForTicket(_ context.Context, ticketID, commentID string) (*domain.Comment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.comments {
		if r.comments[i].TicketID == ticketID && r.comments[i].ID == commentID {
			return &r.comments[i], nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeCommentRepo) Delete(_ context.Context, ticketID, commentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.comments {
		if r.comments[i].TicketID == ticketID && r.comments[i].ID == commentID {
			r.comments = append(r.comments[:i], r.comments[i+1:]...)
			return nil
		}
	}
	return pgx.ErrNoRows
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (b *recordingBroadcaster) Broadcast(_ string, event realtime.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBroadcaster) all() []realtime.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]realtime.Event{}, b.events...)
}

func newCommentFixture(t *testing.T) (*CommentService, *fakeCommentRepo, *recordingBroadcaster) {
	t.Helper()
	tickets := newFakeTicketRepo(&domain.Ticket{ID: "t1", Title: "printer on fire", CreatedBy: "alice", Status: domain.TicketStatusOpen})
	comments := &fakeCommentRepo{}
	broadcaster := &recordingBroadcaster{}
	svc := NewCommentService(CommentDependencies{
		TicketRepo:  tickets,
		CommentRepo: comments,
		Broadcaster: broadcaster,
		Logger:      zap.NewNop(),
	})
	return svc, comments, broadcaster
}

// --- tests ---

func TestAppendPersistsThenBroadcasts(t *testing.T) {
	svc, comments, broadcaster := newCommentFixture(t)

	comment, err := svc.Append(context.Background(), AppendInput{
		TicketID: "t1",
		Author:   "alice",
		Role:     domain.RoleCustomer,
		Message:  "hello",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, comment.ID)
	assert.False(t, comment.CreatedAt.IsZero())
	assert.Nil(t, comment.ReplyTo)
	assert.Equal(t, domain.RoleCustomer, comment.AuthorRole)

	stored, err := comments.ListByTicket(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, stored, 1)

	events := broadcaster.all()
	require.Len(t, events, 1)
	assert.Equal(t, realtime.EventCommentCreated, events[0].Type)
	// The broadcast carries the persisted comment, not the raw request.
	assert.Equal(t, comment.ID, events[0].Comment.ID)
	assert.Equal(t, comment.Message, events[0].Comment.Message)
}

func TestAppendRejectsBlankMessage(t *testing.T) {
	svc, _, broadcaster := newCommentFixture(t)

	for _, msg := range []string{"", "   ", "\n\t"} {
		_, err := svc.Append(context.Background(), AppendInput{TicketID: "t1", Author: "alice", Role: domain.RoleCustomer, Message: msg})
		assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"), "message %q", msg)
	}
	assert.Empty(t, broadcaster.all())
}

func TestAppendUnknownTicket(t *testing.T) {
	svc, _, broadcaster := newCommentFixture(t)

	_, err := svc.Append(context.Background(), AppendInput{TicketID: "missing", Author: "alice", Role: domain.RoleCustomer, Message: "hi"})
	assert.True(t, apperrors.IsCode(err, "NOT_FOUND"))
	assert.Empty(t, broadcaster.all())
}

func TestAppendResolvesReplyReference(t *testing.T) {
	svc, _, _ := newCommentFixture(t)

	parent, err := svc.Append(context.Background(), AppendInput{TicketID: "t1", Author: "alice", Role: domain.RoleCustomer, Message: "hello"})
	require.NoError(t, err)

	reply, err := svc.Append(context.Background(), AppendInput{
		TicketID: "t1",
		Author:   "bob",
		Role:     domain.RoleSupport,
		Message:  "re: hello",
		ReplyTo:  &parent.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, parent.ID, *reply.ReplyTo)
}

func TestAppendRejectsUnresolvableReply(t *testing.T) {
	svc, _, broadcaster := newCommentFixture(t)

	bogus := "no-such-comment"
	_, err := svc.Append(context.Background(), AppendInput{TicketID: "t1", Author: "alice", Role: domain.RoleCustomer, Message: "re:", ReplyTo: &bogus})
	assert.True(t, apperrors.IsCode(err, "INVALID_REFERENCE"))
	assert.Empty(t, broadcaster.all())
}

func TestAppendRejectsCrossTicketReply(t *testing.T) {
	tickets := newFakeTicketRepo(
		&domain.Ticket{ID: "t1", CreatedBy: "alice", Status: domain.TicketStatusOpen},
		&domain.Ticket{ID: "t2", CreatedBy: "carol", Status: domain.TicketStatusOpen},
	)
	comments := &fakeCommentRepo{}
	svc := NewCommentService(CommentDependencies{
		TicketRepo:  tickets,
		CommentRepo: comments,
		Broadcaster: &recordingBroadcaster{},
		Logger:      zap.NewNop(),
	})

	onT1, err := svc.Append(context.Background(), AppendInput{TicketID: "t1", Author: "alice", Role: domain.RoleCustomer, Message: "hello"})
	require.NoError(t, err)

	_, err = svc.Append(context.Background(), AppendInput{TicketID: "t2", Author: "carol", Role: domain.RoleCustomer, Message: "reply", ReplyTo: &onT1.ID})
	assert.True(t, apperrors.IsCode(err, "INVALID_REFERENCE"))
}

func TestPersistenceFailureSuppressesBroadcast(t *testing.T) {
	svc, comments, broadcaster := newCommentFixture(t)
	comments.appendErr = errors.New("disk gone")

	_, err := svc.Append(context.Background(), AppendInput{TicketID: "t1", Author: "alice", Role: domain.RoleCustomer, Message: "hello"})
	assert.True(t, apperrors.IsCode(err, "PERSISTENCE_FAILURE"))
	assert.Empty(t, broadcaster.all())
}

func TestIdenticalMessagesPersistSeparately(t *testing.T) {
	svc, comments, _ := newCommentFixture(t)

	first, err := svc.Append(context.Background(), AppendInput{TicketID: "t1", Author: "alice", Role: domain.RoleCustomer, Message: "same text"})
	require.NoError(t, err)
	second, err := svc.Append(context.Background(), AppendInput{TicketID: "t1", Author: "alice", Role: domain.RoleCustomer, Message: "same text"})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)

	stored, err := comments.ListByTicket(context.Background(), "t1")
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestConcurrentAppendsKeepSequentialOrder(t *testing.T) {
	svc, comments, _ := newCommentFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.Append(context.Background(), AppendInput{
				TicketID: "t1",
				Author:   "alice",
				Role:     domain.RoleCustomer,
				Message:  fmt.Sprintf("message %d", n),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	stored, err := comments.ListByTicket(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, stored, 20)
	for i := 1; i < len(stored); i++ {
		assert.Greater(t, stored[i].Seq, stored[i-1].Seq)
	}
}

func TestDeleteRequiresAdminAndBroadcasts(t *testing.T) {
	svc, _, broadcaster := newCommentFixture(t)

	comment, err := svc.Append(context.Background(), AppendInput{TicketID: "t1", Author: "alice", Role: domain.RoleCustomer, Message: "hello"})
	require.NoError(t, err)

	err = svc.Delete(context.Background(), Viewer{Username: "bob", Role: domain.RoleSupport}, "t1", comment.ID)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))

	err = svc.Delete(context.Background(), Viewer{Username: "root", Role: domain.RoleAdmin}, "t1", comment.ID)
	require.NoError(t, err)

	events := broadcaster.all()
	require.Len(t, events, 2)
	assert.Equal(t, realtime.EventCommentDeleted, events[1].Type)
	assert.Equal(t, comment.ID, events[1].CommentID)
}
