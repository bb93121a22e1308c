package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/solana-agent/backend/internal/models"
)

func TestNotificationJobLifecycle(t *testing.T) {
	ctx := context.Background()
	pool := testPool(t)
	ledger := NewLedgerRepo(pool)
	jobs := NewNotificationRepo(pool)
	payerUser, payer := newWalletOwner(t, pool)
	_, payee := newWalletOwner(t, pool)
	in := newPendingIntent(t, ledger, payer, payee)

	job, err := jobs.Enqueue(ctx, in.ID, payerUser.ID, models.RolePayer)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if job.TelegramUserID != payerUser.TelegramUserID {
		t.Errorf("telegram id = %d, want %d", job.TelegramUserID, payerUser.TelegramUserID)
	}

	dup, err := jobs.Enqueue(ctx, in.ID, payerUser.ID, models.RolePayer)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second enqueue = %v, want ErrDuplicate", err)
	}
	if dup == nil || dup.ID != job.ID {
		t.Fatalf("duplicate enqueue returned %v, want job %s", dup, job.ID)
	}

	if _, err := jobs.Claim(ctx, job.ID, time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := jobs.Claim(ctx, job.ID, time.Minute); !errors.Is(err, ErrConflict) {
		t.Fatalf("claim under lease = %v, want ErrConflict", err)
	}

	if err := jobs.MarkDelivered(ctx, job.ID, 1); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	if err := jobs.MarkDelivered(ctx, job.ID, 1); !errors.Is(err, ErrConflict) {
		t.Fatalf("second mark delivered = %v, want ErrConflict", err)
	}
	if err := jobs.MarkFailed(ctx, job.ID, 1, "late"); !errors.Is(err, ErrConflict) {
		t.Fatalf("mark failed after delivery = %v, want ErrConflict", err)
	}

	got, err := jobs.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Delivered() || got.Attempts != 1 || got.DeliveredAt == nil {
		t.Errorf("job = %+v, want delivered once", got)
	}
	if _, err := jobs.Claim(ctx, job.ID, time.Minute); !errors.Is(err, ErrConflict) {
		t.Fatalf("claim after delivery = %v, want ErrConflict", err)
	}
}
