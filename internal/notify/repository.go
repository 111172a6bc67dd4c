package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NgouanKoffi/fullmargin-sub007/internal/models"
)

// Repository persists notification delivery logs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a notification log repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a pending notification log and fills in its id.
func (r *Repository) Create(ctx context.Context, log *models.NotificationLog) error {
	const q = `INSERT INTO notification_logs (user_id, kind, payload, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	payload := log.Payload
	if payload == nil {
		payload = json.RawMessage("{}")
	}
	return r.pool.QueryRow(ctx, q, log.UserID, log.Kind, payload, models.NotificationStatusPending).
		Scan(&log.ID, &log.CreatedAt)
}

// MarkSent records successful delivery.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE notification_logs SET status = $2, sent_at = $3, error_message = '' WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, models.NotificationStatusSent, time.Now().UTC())
	return err
}

// MarkFailed records a terminal delivery failure.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	const q = `UPDATE notification_logs SET status = $2, error_message = $3 WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, models.NotificationStatusFailed, errMsg)
	return err
}

// ListByUser returns a user's notification logs, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.NotificationLog, error) {
	const q = `SELECT id, user_id, kind, payload, status, error_message, sent_at, created_at
		FROM notification_logs WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, q, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]models.NotificationLog, 0)
	for rows.Next() {
		var l models.NotificationLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.Kind, &l.Payload, &l.Status, &l.ErrorMessage, &l.SentAt, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// GetByID returns a single log row, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.NotificationLog, error) {
	const q = `SELECT id, user_id, kind, payload, status, error_message, sent_at, created_at
		FROM notification_logs WHERE id = $1`
	var l models.NotificationLog
	err := r.pool.QueryRow(ctx, q, id).Scan(&l.ID, &l.UserID, &l.Kind, &l.Payload, &l.Status, &l.ErrorMessage, &l.SentAt, &l.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}
