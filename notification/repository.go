package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound  = errors.New("notification: not found")
	ErrDuplicate = errors.New("notification: already delivered")
)

// Repository stores the per-user inbox.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (Notification, error)
	ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, userID, id string) (Notification, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const notificationColumns = `id::text, recipient_id::text, kind, subject, message, reference_id, read_at, created_at`

func (r *PGRepository) Create(ctx context.Context, params CreateParams) (Notification, error) {
	const query = `
		INSERT INTO notifications (recipient_id, kind, subject, message, reference_id, dedupe_key)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		ON CONFLICT (dedupe_key) DO NOTHING
		RETURNING ` + notificationColumns

	n, err := scan(r.pool.QueryRow(ctx, query,
		params.RecipientID, params.Kind, params.Subject, params.Message, params.ReferenceID, params.DedupeKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Notification{}, ErrDuplicate
		}
		return Notification{}, fmt.Errorf("notification: create: %w", err)
	}
	return n, nil
}

func (r *PGRepository) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id = $1`
	if unreadOnly {
		query += " AND read_at IS NULL"
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT $2"

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("notification: list: %w", err)
	}
	defer rows.Close()

	out := make([]Notification, 0, 8)
	for rows.Next() {
		n, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("notification: scan: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("notification: iterate: %w", err)
	}
	return out, nil
}

func (r *PGRepository) MarkRead(ctx context.Context, userID, id string) (Notification, error) {
	const query = `
		UPDATE notifications
		SET read_at = COALESCE(read_at, now())
		WHERE id = $1 AND recipient_id = $2
		RETURNING ` + notificationColumns

	if uuid.Validate(id) != nil {
		return Notification{}, ErrNotFound
	}
	n, err := scan(r.pool.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Notification{}, ErrNotFound
		}
		return Notification{}, fmt.Errorf("notification: mark read: %w", err)
	}
	return n, nil
}

func scan(row pgx.Row) (Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.RecipientID, &n.Kind, &n.Subject, &n.Message, &n.ReferenceID, &n.ReadAt, &n.CreatedAt)
	return n, err
}
