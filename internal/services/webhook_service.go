package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/solana-agent/backend/internal/helius"
	"github.com/solana-agent/backend/internal/metrics"
	"github.com/solana-agent/backend/internal/models"
	"github.com/solana-agent/backend/internal/repositories"
	"go.uber.org/zap"
)

type WebhookOutcome int

const (
	WebhookAccepted WebhookOutcome = iota
	WebhookDuplicate
	WebhookRejected
)

func (o WebhookOutcome) String() string {
	switch o {
	case WebhookAccepted:
		return "accepted"
	case WebhookDuplicate:
		return "duplicate"
	default:
		return "rejected"
	}
}

// WebhookService reconciles chain webhooks into settled public intents.
type WebhookService struct {
	secret    string
	ledger    Ledger
	directory *WalletService
	transfers *TransferService
	notifier  IntentNotifier
	audit     AuditLogger
	ignore    map[string]struct{}
	lease     time.Duration
	log       *zap.Logger
}

// NewWebhookService builds the reconciler. Transfers sent from ignored
// addresses (the fee payer funding token accounts) are not recorded.
func NewWebhookService(
	secret string,
	ledger Ledger,
	directory *WalletService,
	transfers *TransferService,
	notifier IntentNotifier,
	audit AuditLogger,
	ignoredSenders []string,
	log *zap.Logger,
) *WebhookService {
	ignore := make(map[string]struct{}, len(ignoredSenders))
	for _, a := range ignoredSenders {
		if a != "" {
			ignore[a] = struct{}{}
		}
	}
	return &WebhookService{
		secret:    secret,
		ledger:    ledger,
		directory: directory,
		transfers: transfers,
		notifier:  notifier,
		audit:     audit,
		ignore:    ignore,
		lease:     5 * time.Minute,
		log:       log,
	}
}

// Handle authenticates and processes one webhook delivery. A returned error
// wrapping helius.ErrMalformed is a bad payload; any other error means the
// provider should redeliver.
func (s *WebhookService) Handle(ctx context.Context, body []byte, authorization string) (WebhookOutcome, error) {
	// 1. Shared secret, constant time
	if s.secret == "" || subtle.ConstantTimeCompare([]byte(authorization), []byte(s.secret)) != 1 {
		metrics.WebhookEvents.WithLabelValues("rejected").Inc()
		s.log.Warn("webhook rejected: bad authorization")
		_ = s.audit.Log(ctx, models.AuditLog{
			ActorType:  models.ActorWebhook,
			Action:     models.AuditWebhookRejected,
			EntityType: models.EntityWebhookEvent,
		})
		return WebhookRejected, nil
	}

	// 2. Decode everything before touching the ledger
	txs, err := helius.Decode(body)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("malformed").Inc()
		return WebhookRejected, err
	}
	transfers := make([][]helius.Transfer, len(txs))
	for i := range txs {
		if transfers[i], err = txs[i].Transfers(); err != nil {
			metrics.WebhookEvents.WithLabelValues("malformed").Inc()
			return WebhookRejected, fmt.Errorf("transaction %s: %w", txs[i].Signature, err)
		}
	}

	// 3. One ledger event per transaction signature
	outcome := WebhookDuplicate
	for i, tx := range txs {
		rec, err := s.ledger.RecordWebhook(ctx, tx.Signature, body, s.lease)
		if err != nil {
			return WebhookRejected, fmt.Errorf("record webhook: %w", err)
		}
		if rec == models.AlreadySeen {
			s.log.Debug("duplicate webhook transaction", zap.String("signature", tx.Signature))
			continue
		}
		outcome = WebhookAccepted

		if err := s.process(ctx, tx.Signature, transfers[i]); err != nil {
			if rerr := s.ledger.ReleaseWebhook(ctx, tx.Signature); rerr != nil {
				s.log.Error("failed to release webhook claim", zap.String("signature", tx.Signature), zap.Error(rerr))
			}
			return WebhookRejected, fmt.Errorf("process %s: %w", tx.Signature, err)
		}
		if err := s.ledger.MarkWebhookProcessed(ctx, tx.Signature); err != nil {
			s.log.Error("failed to mark webhook processed", zap.String("signature", tx.Signature), zap.Error(err))
		}
	}

	metrics.WebhookEvents.WithLabelValues(outcome.String()).Inc()
	return outcome, nil
}

func (s *WebhookService) process(ctx context.Context, signature string, transfers []helius.Transfer) error {
	// A transfer we submitted ourselves is settled, not synthesized.
	existing, err := s.ledger.GetIntentBySignature(ctx, signature)
	switch {
	case err == nil:
		if existing.Status == models.IntentStatusPending {
			_, err = s.transfers.SettlePublic(ctx, existing, signature)
			return err
		}
		if existing.Status == models.IntentStatusSettled {
			_, err = s.notifier.EnqueueForIntent(ctx, existing)
		}
		return err
	case !errors.Is(err, repositories.ErrNotFound):
		return err
	}

	for _, tr := range transfers {
		if _, skip := s.ignore[tr.From]; skip {
			continue
		}
		if err := s.recordTransfer(ctx, tr); err != nil {
			return err
		}
	}
	return nil
}

func (s *WebhookService) recordTransfer(ctx context.Context, tr helius.Transfer) error {
	payer, err := s.lookup(ctx, tr.From)
	if err != nil {
		return err
	}
	payee, err := s.lookup(ctx, tr.To)
	if err != nil {
		return err
	}
	if payer == nil && payee == nil {
		s.log.Debug("transfer between unknown addresses",
			zap.String("signature", tr.Signature), zap.String("from", tr.From), zap.String("to", tr.To))
		return nil
	}
	if payee == nil {
		s.log.Info("outgoing transfer to external address", zap.String("signature", tr.Signature), zap.String("to", tr.To))
	}
	if payer == nil {
		s.log.Info("incoming transfer from external address", zap.String("signature", tr.Signature), zap.String("from", tr.From))
	}

	sig := tr.Signature
	intent := &models.TransferIntent{
		ID:           WebhookIntentID(tr.Signature, tr.Index),
		Kind:         models.IntentKindPublic,
		Token:        tr.Token,
		Amount:       tr.Amount,
		PayerAddress: tr.From,
		PayeeAddress: tr.To,
		Status:       models.IntentStatusSettled,
		Stage:        models.StageNotifying,
		TxSignature:  &sig,
	}
	if payer != nil {
		intent.PayerWalletID = &payer.ID
	}
	if payee != nil {
		intent.PayeeWalletID = &payee.ID
	}

	res, err := s.ledger.CreateIntent(ctx, intent)
	if err != nil {
		return fmt.Errorf("create intent: %w", err)
	}
	if res == models.DuplicateIgnored {
		// Reprocessing after a crash; reuse the stored row.
		if intent, err = s.ledger.GetIntent(ctx, intent.ID); err != nil {
			return err
		}
	} else {
		metrics.Transfers.WithLabelValues(string(intent.Kind), "settled").Inc()
		_ = s.audit.Log(ctx, models.AuditLog{
			ActorType:  models.ActorWebhook,
			Action:     models.AuditIntentSettled,
			EntityType: models.EntityIntent,
			EntityID:   &intent.ID,
			Meta:       map[string]any{"signature": sig, "token": intent.Token, "amount": intent.Amount},
		})
	}

	if intent.Stage == models.StageDone {
		return nil
	}
	if _, err := s.notifier.EnqueueForIntent(ctx, intent); err != nil {
		return err
	}
	if err := s.ledger.AdvanceStage(ctx, intent.ID, models.StageNotifying, models.StageDone); err != nil && !errors.Is(err, repositories.ErrConflict) {
		s.log.Warn("advance stage", zap.String("intent_id", intent.ID.String()), zap.Error(err))
	}
	return nil
}

func (s *WebhookService) lookup(ctx context.Context, address string) (*models.Wallet, error) {
	w, err := s.directory.ResolveByAddress(ctx, address)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, nil
	}
	return w, err
}
