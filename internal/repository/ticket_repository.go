package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/triage-engine/internal/domain"
)

// DB is the subset of pgx execution methods the repository needs. Both
// *pgxpool.Pool and pgx.Tx satisfy it, which lets batch runs operate inside a
// single transaction while interactive workers use pooled connections.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListByStatus(ctx context.Context, status domain.TicketStatus) ([]domain.Ticket, error)
	// FindClassifiedByFingerprint returns the most recently classified
	// ticket sharing the fingerprint, excluding failed passes and the
	// sentinel category so that failed classifications are retried rather
	// than propagated. Returns nil when no eligible ticket exists.
	FindClassifiedByFingerprint(ctx context.Context, digest string) (*domain.Ticket, error)
}

type ticketRepository struct {
	db DB
}

// NewTicketRepository instantiates the repository over a pool or transaction.
func NewTicketRepository(db DB) TicketRepository {
	return &ticketRepository{db: db}
}

const ticketColumns = `id, user_id, description, urgency, content_hash, category, status, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, user_id, description, urgency, content_hash, category, status)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		ticket.ID,
		ticket.UserID,
		ticket.Description,
		ticket.Urgency,
		ticket.ContentHash,
		ticket.Category,
		ticket.Status,
	).Scan(&ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET content_hash=$1, category=$2, status=$3, updated_at=NOW()
        WHERE id=$4`
	cmd, err := r.db.Exec(ctx, query,
		ticket.ContentHash,
		ticket.Category,
		ticket.Status,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) FindClassifiedByFingerprint(ctx context.Context, digest string) (*domain.Ticket, error) {
	// The content_hash index keeps this lookup O(1); the status filter keeps
	// failed and sentinel results out of the exact cache.
	query := `SELECT ` + ticketColumns + ` FROM tickets
        WHERE content_hash=$1
          AND status IN ('Classified','Classified_By_Cache','Classified_By_AI','Human_Corrected')
          AND category IS NOT NULL
          AND category <> $2
        ORDER BY updated_at DESC
        LIMIT 1`
	ticket, err := r.fetchSingle(ctx, query, digest, domain.CategoryUnclassified)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return ticket, err
}

func (r *ticketRepository) ListByStatus(ctx context.Context, status domain.TicketStatus) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE status=$1 ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := r.db.QueryRow(ctx, query, args...).Scan(
		&ticket.ID,
		&ticket.UserID,
		&ticket.Description,
		&ticket.Urgency,
		&ticket.ContentHash,
		&ticket.Category,
		&ticket.Status,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.UserID,
			&ticket.Description,
			&ticket.Urgency,
			&ticket.ContentHash,
			&ticket.Category,
			&ticket.Status,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
