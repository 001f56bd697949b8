package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// CommentRepository manages the append-only comment log of a ticket.
type CommentRepository interface {
	Append(ctx context.Context, comment *domain.Comment) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Comment, error)
	// GetForTicket fetches a comment only when it belongs to the given
	// ticket, so cross-ticket references never resolve.
	GetForTicket(ctx context.Context, ticketID, commentID string) (*domain.Comment, error)
	Delete(ctx context.Context, ticketID, commentID string) error
}

type commentRepository struct {
	pool *pgxpool.Pool
}

// NewCommentRepository builds repository.
func NewCommentRepository(pool *pgxpool.Pool) CommentRepository {
	return &commentRepository{pool: pool}
}

const commentColumns = `id, ticket_id, author, author_role, message, reply_to, created_at, seq`

func (r *commentRepository) Append(ctx context.Context, comment *domain.Comment) error {
	const query = `
        INSERT INTO comments (id, ticket_id, author, author_role, message, reply_to)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING created_at, seq`
	return r.pool.QueryRow(ctx, query,
		comment.ID,
		comment.TicketID,
		comment.Author,
		comment.AuthorRole,
		comment.Message,
		comment.ReplyTo,
	).Scan(&comment.CreatedAt, &comment.Seq)
}

func (r *commentRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments WHERE ticket_id=$1 ORDER BY seq ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := scanComment(rows, &c); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *commentRepository) GetForTicket(ctx context.Context, ticketID, commentID string) (*domain.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments WHERE ticket_id=$1 AND id=$2`
	var c domain.Comment
	if err := scanComment(r.pool.QueryRow(ctx, query, ticketID, commentID), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *commentRepository) Delete(ctx context.Context, ticketID, commentID string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM comments WHERE ticket_id=$1 AND id=$2`, ticketID, commentID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanComment(row pgx.Row, c *domain.Comment) error {
	return row.Scan(
		&c.ID,
		&c.TicketID,
		&c.Author,
		&c.AuthorRole,
		&c.Message,
		&c.ReplyTo,
		&c.CreatedAt,
		&c.Seq,
	)
}
