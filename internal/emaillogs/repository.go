package emaillogs

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/psg2/level-30-birthday/internal/models"
)

// DefaultLimit caps listings when the caller asks for none.
const DefaultLimit = 100

// DB is the subset of *pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository handles email_logs persistence.
type Repository struct {
	pool DB
}

// NewRepository creates an email logs repository.
func NewRepository(pool DB) *Repository {
	return &Repository{pool: pool}
}

// Record inserts one delivery attempt.
func (r *Repository) Record(ctx context.Context, e *models.EmailLog) error {
	const q = `INSERT INTO email_logs (id, rsvp_id, email_type, recipient_email, subject, provider, status, sent_at, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.pool.Exec(ctx, q,
		e.ID, e.RsvpID, e.EmailType, e.RecipientEmail, optional(e.Subject),
		e.Provider, e.Status, e.SentAt, optional(e.ErrorMessage), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert email log: %w", err)
	}
	return nil
}

// ListRecent returns the newest logs, optionally for one RSVP.
func (r *Repository) ListRecent(ctx context.Context, rsvpID string, limit int) ([]*models.EmailLog, error) {
	if limit <= 0 || limit > DefaultLimit {
		limit = DefaultLimit
	}
	const cols = `SELECT id, rsvp_id, email_type, recipient_email, subject, provider, status, sent_at, error_message, created_at
		FROM email_logs`
	var (
		rows pgx.Rows
		err  error
	)
	if rsvpID == "" {
		rows, err = r.pool.Query(ctx, cols+` ORDER BY created_at DESC LIMIT $1`, limit)
	} else {
		rows, err = r.pool.Query(ctx, cols+` WHERE rsvp_id = $1 ORDER BY created_at DESC LIMIT $2`, rsvpID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list email logs: %w", err)
	}
	defer rows.Close()

	list := []*models.EmailLog{}
	for rows.Next() {
		var el models.EmailLog
		var subject, errMsg *string
		if err := rows.Scan(&el.ID, &el.RsvpID, &el.EmailType, &el.RecipientEmail, &subject, &el.Provider, &el.Status, &el.SentAt, &errMsg, &el.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan email log: %w", err)
		}
		if subject != nil {
			el.Subject = *subject
		}
		if errMsg != nil {
			el.ErrorMessage = *errMsg
		}
		list = append(list, &el)
	}
	return list, rows.Err()
}

// optional maps "" to NULL.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
