package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/solana-agent/backend/internal/models"
)

// LedgerRepo is the durable source of truth for transfer intents and inbound
// webhook events. Every state change is a single-row compare-and-set.
type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

const intentColumns = `id, kind, token, amount, payer_wallet_id, payee_wallet_id, payer_address, payee_address,
	status, stage, tx_signature, receipt_ref, fee_amount, failure_reason, created_at, updated_at`

func scanIntent(row interface{ Scan(...any) error }) (*models.TransferIntent, error) {
	var i models.TransferIntent
	err := row.Scan(&i.ID, &i.Kind, &i.Token, &i.Amount, &i.PayerWalletID, &i.PayeeWalletID,
		&i.PayerAddress, &i.PayeeAddress, &i.Status, &i.Stage, &i.TxSignature, &i.ReceiptRef,
		&i.FeeAmount, &i.FailureReason, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &i, nil
}

// CreateIntent inserts the intent keyed on its id. An existing row is left
// untouched and DuplicateIgnored is returned.
func (r *LedgerRepo) CreateIntent(ctx context.Context, in *models.TransferIntent) (models.CreateResult, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO transfer_intents (id, kind, token, amount, payer_wallet_id, payee_wallet_id,
			payer_address, payee_address, status, stage, tx_signature, receipt_ref, fee_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
		RETURNING created_at, updated_at
	`, in.ID, in.Kind, in.Token, in.Amount, in.PayerWalletID, in.PayeeWalletID,
		in.PayerAddress, in.PayeeAddress, in.Status, in.Stage, in.TxSignature, in.ReceiptRef, in.FeeAmount,
	).Scan(&in.CreatedAt, &in.UpdatedAt)
	if err != nil {
		if notFound(err) == ErrNotFound {
			return models.DuplicateIgnored, nil
		}
		return 0, fmt.Errorf("insert intent: %w", err)
	}
	return models.Created, nil
}

func (r *LedgerRepo) GetIntent(ctx context.Context, id uuid.UUID) (*models.TransferIntent, error) {
	return scanIntent(r.pool.QueryRow(ctx, `SELECT `+intentColumns+` FROM transfer_intents WHERE id = $1`, id))
}

func (r *LedgerRepo) GetIntentBySignature(ctx context.Context, sig string) (*models.TransferIntent, error) {
	return scanIntent(r.pool.QueryRow(ctx, `
		SELECT `+intentColumns+` FROM transfer_intents
		WHERE tx_signature = $1 ORDER BY created_at LIMIT 1
	`, sig))
}

// Transition moves status from -> to and records the outcome. The row's
// stage must be one that can move to out.Stage, so a settle only lands from
// settling. It returns ErrConflict when either check fails.
func (r *LedgerRepo) Transition(ctx context.Context, id uuid.UUID, from, to models.IntentStatus, out models.Outcome) error {
	if !models.IsValidIntentTransition(from, to) {
		return fmt.Errorf("invalid intent transition %s -> %s", from, to)
	}
	stages := stageNames(models.StagesInto(out.Stage))
	if len(stages) == 0 {
		return fmt.Errorf("no stage leads to %s", out.Stage)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE transfer_intents SET
			status = $3,
			stage = $4,
			tx_signature = COALESCE(NULLIF($5, ''), tx_signature),
			receipt_ref = COALESCE(NULLIF($6, ''), receipt_ref),
			fee_amount = CASE WHEN $7::bigint > 0 THEN $7::bigint ELSE fee_amount END,
			failure_reason = NULLIF($8, ''),
			updated_at = now()
		WHERE id = $1 AND status = $2 AND stage = ANY($9)
	`, id, from, to, out.Stage, out.TxSignature, out.ReceiptRef, out.FeeAmount, out.FailureReason, stages)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func stageNames(stages []models.IntentStage) []string {
	out := make([]string, len(stages))
	for i, st := range stages {
		out[i] = string(st)
	}
	return out
}

// AdvanceStage moves the orchestrator stage from -> to without touching status.
func (r *LedgerRepo) AdvanceStage(ctx context.Context, id uuid.UUID, from, to models.IntentStage) error {
	if !models.IsValidStageTransition(from, to) {
		return fmt.Errorf("invalid stage transition %s -> %s", from, to)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE transfer_intents SET stage = $3, updated_at = now()
		WHERE id = $1 AND stage = $2
	`, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// CancelPending fails an intent that has not started submission yet.
func (r *LedgerRepo) CancelPending(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE transfer_intents SET status = 'failed', stage = 'failed', failure_reason = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending' AND stage = 'validating'
	`, id, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// AttachSignature stores the on-chain signature of a submitted public transfer.
// Re-attaching the same signature is a no-op.
func (r *LedgerRepo) AttachSignature(ctx context.Context, id uuid.UUID, sig string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE transfer_intents SET tx_signature = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending' AND (tx_signature IS NULL OR tx_signature = $2)
	`, id, sig)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// RecordWebhook claims a provider event. The first delivery, or a redelivery
// of an event whose previous claim expired before it was processed, is
// FirstSeen. Everything else is AlreadySeen.
func (r *LedgerRepo) RecordWebhook(ctx context.Context, eventID string, raw []byte, lease time.Duration) (models.WebhookRecord, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO webhook_events (provider_event_id, raw_payload)
		VALUES ($1, $2)
		ON CONFLICT (provider_event_id) DO UPDATE SET claimed_at = now()
		WHERE webhook_events.processed = false
		  AND webhook_events.claimed_at < now() - make_interval(secs => $3)
		RETURNING provider_event_id
	`, eventID, raw, lease.Seconds()).Scan(&id)
	if err != nil {
		if notFound(err) == ErrNotFound {
			return models.AlreadySeen, nil
		}
		return 0, fmt.Errorf("record webhook: %w", err)
	}
	return models.FirstSeen, nil
}

func (r *LedgerRepo) MarkWebhookProcessed(ctx context.Context, eventID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE webhook_events SET processed = true, processed_at = now()
		WHERE provider_event_id = $1
	`, eventID)
	return err
}

// ReleaseWebhook drops the claim on an unprocessed event so the next
// redelivery can process it immediately.
func (r *LedgerRepo) ReleaseWebhook(ctx context.Context, eventID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE webhook_events SET claimed_at = 'epoch'
		WHERE provider_event_id = $1 AND processed = false
	`, eventID)
	return err
}

// ListStalePending returns pending intents untouched for longer than olderThan.
func (r *LedgerRepo) ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]models.TransferIntent, error) {
	return r.list(ctx, `
		SELECT `+intentColumns+` FROM transfer_intents
		WHERE status = 'pending' AND updated_at < now() - make_interval(secs => $1)
		ORDER BY updated_at LIMIT $2
	`, olderThan.Seconds(), limit)
}

// ListStaleNotifying returns settled intents whose notification jobs were
// never confirmed as enqueued.
func (r *LedgerRepo) ListStaleNotifying(ctx context.Context, olderThan time.Duration, limit int) ([]models.TransferIntent, error) {
	return r.list(ctx, `
		SELECT `+intentColumns+` FROM transfer_intents
		WHERE status = 'settled' AND stage = 'notifying' AND updated_at < now() - make_interval(secs => $1)
		ORDER BY updated_at LIMIT $2
	`, olderThan.Seconds(), limit)
}

// ListSubmittedPublic returns public intents waiting for on-chain confirmation.
func (r *LedgerRepo) ListSubmittedPublic(ctx context.Context, limit int) ([]models.TransferIntent, error) {
	return r.list(ctx, `
		SELECT `+intentColumns+` FROM transfer_intents
		WHERE kind = 'public' AND status = 'pending' AND stage IN ('submitting', 'settling') AND tx_signature IS NOT NULL
		ORDER BY updated_at LIMIT $1
	`, limit)
}

func (r *LedgerRepo) ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]models.TransferIntent, error) {
	if limit <= 0 {
		limit = 20
	}
	return r.list(ctx, `
		SELECT `+intentColumns+` FROM transfer_intents
		WHERE payer_wallet_id = $1 OR payee_wallet_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, walletID, limit, offset)
}

func (r *LedgerRepo) list(ctx context.Context, query string, args ...any) ([]models.TransferIntent, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TransferIntent
	for rows.Next() {
		i, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *i)
	}
	return out, rows.Err()
}
