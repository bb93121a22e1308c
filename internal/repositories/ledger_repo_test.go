package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/solana-agent/backend/internal/models"
)

func TestLedgerCreateIntentDuplicate(t *testing.T) {
	pool := testPool(t)
	ledger := NewLedgerRepo(pool)
	_, payer := newWalletOwner(t, pool)
	_, payee := newWalletOwner(t, pool)
	in := newPendingIntent(t, ledger, payer, payee)

	again := *in
	again.Amount = 5
	res, err := ledger.CreateIntent(context.Background(), &again)
	if err != nil {
		t.Fatalf("create again: %v", err)
	}
	if res != models.DuplicateIgnored {
		t.Fatalf("result = %v, want DuplicateIgnored", res)
	}
	got, err := ledger.GetIntent(context.Background(), in.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Amount != in.Amount {
		t.Errorf("amount = %d, the first row must win", got.Amount)
	}
}

func TestLedgerTransitionChecksStage(t *testing.T) {
	ctx := context.Background()
	pool := testPool(t)
	ledger := NewLedgerRepo(pool)
	_, payer := newWalletOwner(t, pool)
	_, payee := newWalletOwner(t, pool)
	in := newPendingIntent(t, ledger, payer, payee)

	settle := models.Outcome{Stage: models.StageNotifying, TxSignature: "sig-" + in.ID.String(), FeeAmount: 5000}
	err := ledger.Transition(ctx, in.ID, models.IntentStatusPending, models.IntentStatusSettled, settle)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("settle from validating = %v, want ErrConflict", err)
	}

	if err := ledger.AdvanceStage(ctx, in.ID, models.StageValidating, models.StageSubmitting); err != nil {
		t.Fatalf("advance to submitting: %v", err)
	}
	if err := ledger.AdvanceStage(ctx, in.ID, models.StageValidating, models.StageSubmitting); !errors.Is(err, ErrConflict) {
		t.Fatalf("second advance = %v, want ErrConflict", err)
	}
	if err := ledger.AdvanceStage(ctx, in.ID, models.StageSubmitting, models.StageSettling); err != nil {
		t.Fatalf("advance to settling: %v", err)
	}
	if err := ledger.Transition(ctx, in.ID, models.IntentStatusPending, models.IntentStatusSettled, settle); err != nil {
		t.Fatalf("settle: %v", err)
	}
	fail := models.Outcome{Stage: models.StageFailed, FailureReason: "late"}
	if err := ledger.Transition(ctx, in.ID, models.IntentStatusPending, models.IntentStatusFailed, fail); !errors.Is(err, ErrConflict) {
		t.Fatalf("fail after settle = %v, want ErrConflict", err)
	}

	got, err := ledger.GetIntent(ctx, in.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.IntentStatusSettled || got.Stage != models.StageNotifying {
		t.Fatalf("got %s/%s, want settled/notifying", got.Status, got.Stage)
	}
	if got.TxSignature == nil || *got.TxSignature != settle.TxSignature || got.FeeAmount != 5000 {
		t.Errorf("outcome not recorded: sig=%v fee=%d", got.TxSignature, got.FeeAmount)
	}
	if got.FailureReason != nil {
		t.Errorf("failure reason = %q on a settled intent", *got.FailureReason)
	}

	bySig, err := ledger.GetIntentBySignature(ctx, settle.TxSignature)
	if err != nil || bySig.ID != in.ID {
		t.Fatalf("by signature = %v, %v", bySig, err)
	}

	if !containsIntent(t, ledger, in.ID) {
		t.Fatal("settled intent in notifying is not listed as stale")
	}
	if err := ledger.AdvanceStage(ctx, in.ID, models.StageNotifying, models.StageDone); err != nil {
		t.Fatalf("advance to done: %v", err)
	}
	if containsIntent(t, ledger, in.ID) {
		t.Fatal("done intent is still listed as stale")
	}
}

func containsIntent(t *testing.T, ledger *LedgerRepo, id uuid.UUID) bool {
	t.Helper()
	stale, err := ledger.ListStaleNotifying(context.Background(), 0, 1000)
	if err != nil {
		t.Fatalf("list stale notifying: %v", err)
	}
	for _, i := range stale {
		if i.ID == id {
			return true
		}
	}
	return false
}

func TestLedgerFailAndCancel(t *testing.T) {
	ctx := context.Background()
	pool := testPool(t)
	ledger := NewLedgerRepo(pool)
	_, payer := newWalletOwner(t, pool)
	_, payee := newWalletOwner(t, pool)

	failed := newPendingIntent(t, ledger, payer, payee)
	out := models.Outcome{Stage: models.StageFailed, FailureReason: "insufficient funds"}
	if err := ledger.Transition(ctx, failed.ID, models.IntentStatusPending, models.IntentStatusFailed, out); err != nil {
		t.Fatalf("fail from validating: %v", err)
	}
	got, err := ledger.GetIntent(ctx, failed.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.FailureReason == nil || *got.FailureReason != "insufficient funds" {
		t.Errorf("failure reason = %v", got.FailureReason)
	}

	cancelled := newPendingIntent(t, ledger, payer, payee)
	if err := ledger.AdvanceStage(ctx, cancelled.ID, models.StageValidating, models.StageSubmitting); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := ledger.CancelPending(ctx, cancelled.ID, "user cancelled"); !errors.Is(err, ErrConflict) {
		t.Fatalf("cancel after submission = %v, want ErrConflict", err)
	}
}

func TestLedgerRecordWebhookReclaim(t *testing.T) {
	ctx := context.Background()
	ledger := NewLedgerRepo(testPool(t))
	event := "evt-" + uuid.NewString()
	raw := []byte(`{"type":"transfer"}`)

	record := func(want models.WebhookRecord) {
		t.Helper()
		got, err := ledger.RecordWebhook(ctx, event, raw, time.Hour)
		if err != nil {
			t.Fatalf("record: %v", err)
		}
		if got != want {
			t.Fatalf("record = %v, want %v", got, want)
		}
	}

	record(models.FirstSeen)
	record(models.AlreadySeen)

	if err := ledger.ReleaseWebhook(ctx, event); err != nil {
		t.Fatalf("release: %v", err)
	}
	record(models.FirstSeen)

	if err := ledger.MarkWebhookProcessed(ctx, event); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	if err := ledger.ReleaseWebhook(ctx, event); err != nil {
		t.Fatalf("release processed: %v", err)
	}
	record(models.AlreadySeen)
}
