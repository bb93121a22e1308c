package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/solana-agent/backend/internal/models"
)

type PaymentRequestRepo struct {
	pool *pgxpool.Pool
}

func NewPaymentRequestRepo(pool *pgxpool.Pool) *PaymentRequestRepo {
	return &PaymentRequestRepo{pool: pool}
}

const paymentRequestColumns = `id, payee_user_id, wallet_address, token, amount, is_private, status,
	payer_user_id, intent_id, attempts, claimed_at, created_at, expires_at, sent_at`

func scanPaymentRequest(row interface{ Scan(...any) error }) (*models.PaymentRequest, error) {
	var p models.PaymentRequest
	err := row.Scan(&p.ID, &p.PayeeUserID, &p.WalletAddress, &p.Token, &p.Amount, &p.IsPrivate,
		&p.Status, &p.PayerUserID, &p.IntentID, &p.Attempts, &p.ClaimedAt, &p.CreatedAt, &p.ExpiresAt, &p.SentAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *PaymentRequestRepo) Create(ctx context.Context, p *models.PaymentRequest) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO payment_requests (id, payee_user_id, wallet_address, token, amount, is_private, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, p.ID, p.PayeeUserID, p.WalletAddress, p.Token, p.Amount, p.IsPrivate, p.Status, p.ExpiresAt).Scan(&p.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *PaymentRequestRepo) GetByID(ctx context.Context, id string) (*models.PaymentRequest, error) {
	return scanPaymentRequest(r.pool.QueryRow(ctx, `SELECT `+paymentRequestColumns+` FROM payment_requests WHERE id = $1`, id))
}

// Claim hands a pending, unexpired request to payer. attempt must be one past
// the stored attempt count, so two payers racing on the same read cannot both
// win.
func (r *PaymentRequestRepo) Claim(ctx context.Context, id string, payer, intentID uuid.UUID, attempt int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payment_requests
		SET status = 'paying', payer_user_id = $2, intent_id = $3, attempts = $4, claimed_at = now()
		WHERE id = $1 AND status = 'pending' AND attempts = $4 - 1 AND expires_at > now()
	`, id, payer, intentID, attempt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// Release reopens a request whose claim under intentID did not pay.
func (r *PaymentRequestRepo) Release(ctx context.Context, id string, intentID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payment_requests
		SET status = 'pending', payer_user_id = NULL, intent_id = NULL, claimed_at = NULL
		WHERE id = $1 AND status = 'paying' AND intent_id = $2
	`, id, intentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// MarkSent completes the claim held under intentID.
func (r *PaymentRequestRepo) MarkSent(ctx context.Context, id string, intentID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payment_requests SET status = 'sent', sent_at = now()
		WHERE id = $1 AND status = 'paying' AND intent_id = $2
	`, id, intentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// ListPaying returns claims older than olderThan, oldest first.
func (r *PaymentRequestRepo) ListPaying(ctx context.Context, olderThan time.Duration, limit int) ([]models.PaymentRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentRequestColumns+` FROM payment_requests
		WHERE status = 'paying' AND claimed_at < now() - make_interval(secs => $1)
		ORDER BY claimed_at
		LIMIT $2
	`, olderThan.Seconds(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PaymentRequest
	for rows.Next() {
		p, err := scanPaymentRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ExpireOverdue flips every overdue pending request to expired.
func (r *PaymentRequestRepo) ExpireOverdue(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payment_requests SET status = 'expired'
		WHERE status = 'pending' AND expires_at < now()
	`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
