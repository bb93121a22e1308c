package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/solana-agent/backend/internal/models"
)

type NotificationRepo struct {
	pool *pgxpool.Pool
}

func NewNotificationRepo(pool *pgxpool.Pool) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

const jobColumns = `j.id, j.intent_id, j.recipient_user_id, u.telegram_user_id, j.role, j.status,
	j.attempts, j.last_error, j.created_at, j.delivered_at`

func scanJob(row interface{ Scan(...any) error }) (*models.NotificationJob, error) {
	var j models.NotificationJob
	err := row.Scan(&j.ID, &j.IntentID, &j.RecipientUserID, &j.TelegramUserID, &j.Role, &j.Status,
		&j.Attempts, &j.LastError, &j.CreatedAt, &j.DeliveredAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &j, nil
}

// Enqueue creates the job for (intent, role). If it already exists the
// existing row is returned with ErrDuplicate.
func (r *NotificationRepo) Enqueue(ctx context.Context, intentID, recipient uuid.UUID, role models.NotificationRole) (*models.NotificationJob, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO notification_jobs (intent_id, recipient_user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (intent_id, role) DO NOTHING
		RETURNING id
	`, intentID, recipient, role).Scan(&id)
	if err != nil {
		if notFound(err) != ErrNotFound {
			return nil, err
		}
		existing, gerr := r.getByIntentRole(ctx, intentID, role)
		if gerr != nil {
			return nil, gerr
		}
		return existing, ErrDuplicate
	}
	return r.GetByID(ctx, id)
}

func (r *NotificationRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.NotificationJob, error) {
	return scanJob(r.pool.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM notification_jobs j JOIN users u ON u.id = j.recipient_user_id
		WHERE j.id = $1
	`, id))
}

func (r *NotificationRepo) getByIntentRole(ctx context.Context, intentID uuid.UUID, role models.NotificationRole) (*models.NotificationJob, error) {
	return scanJob(r.pool.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM notification_jobs j JOIN users u ON u.id = j.recipient_user_id
		WHERE j.intent_id = $1 AND j.role = $2
	`, intentID, role))
}

// Claim leases a pending job to one dispatcher. A job already delivered,
// failed, or leased by someone else returns ErrConflict.
func (r *NotificationRepo) Claim(ctx context.Context, id uuid.UUID, lease time.Duration) (*models.NotificationJob, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notification_jobs SET claimed_until = now() + make_interval(secs => $2)
		WHERE id = $1 AND status = 'pending' AND (claimed_until IS NULL OR claimed_until < now())
	`, id, lease.Seconds())
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrConflict
	}
	return r.GetByID(ctx, id)
}

// MarkDelivered sets the delivered flag once. A second call returns ErrConflict.
func (r *NotificationRepo) MarkDelivered(ctx context.Context, id uuid.UUID, attempts int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notification_jobs SET status = 'delivered', attempts = attempts + $2,
			delivered_at = now(), last_error = NULL, claimed_until = NULL
		WHERE id = $1 AND status = 'pending'
	`, id, attempts)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (r *NotificationRepo) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastErr string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notification_jobs SET status = 'failed', attempts = attempts + $2,
			last_error = $3, claimed_until = NULL
		WHERE id = $1 AND status = 'pending'
	`, id, attempts, lastErr)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// ListPending returns unleased pending jobs older than minAge, oldest first.
func (r *NotificationRepo) ListPending(ctx context.Context, minAge time.Duration, limit int) ([]models.NotificationJob, error) {
	return r.list(ctx, `
		SELECT `+jobColumns+` FROM notification_jobs j JOIN users u ON u.id = j.recipient_user_id
		WHERE j.status = 'pending' AND (j.claimed_until IS NULL OR j.claimed_until < now())
		  AND j.created_at < now() - make_interval(secs => $1)
		ORDER BY j.created_at LIMIT $2
	`, minAge.Seconds(), limit)
}

func (r *NotificationRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.NotificationJob, error) {
	if limit <= 0 {
		limit = 20
	}
	return r.list(ctx, `
		SELECT `+jobColumns+` FROM notification_jobs j JOIN users u ON u.id = j.recipient_user_id
		WHERE j.recipient_user_id = $1
		ORDER BY j.created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
}

func (r *NotificationRepo) list(ctx context.Context, query string, args ...any) ([]models.NotificationJob, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.NotificationJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}
