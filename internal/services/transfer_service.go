package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/solana-agent/backend/internal/metrics"
	"github.com/solana-agent/backend/internal/models"
	"github.com/solana-agent/backend/internal/repositories"
	"github.com/solana-agent/backend/internal/settlement"
	"go.uber.org/zap"
)

// IntentNotifier enqueues the payer and payee notifications of a settled
// intent. Repeated calls for the same intent create nothing new.
type IntentNotifier interface {
	EnqueueForIntent(ctx context.Context, intent *models.TransferIntent) ([]*models.NotificationJob, error)
}

type TransferOptions struct {
	// PollTimeout bounds how long one request waits for an unknown outcome.
	PollTimeout  time.Duration
	PollInterval time.Duration
	// ExpireAfter is how long a submitted public transaction may stay
	// unseen on chain before its blockhash is considered expired.
	ExpireAfter time.Duration
}

// TransferRequest asks to move Amount minor units of Token from the payer's
// wallet to Payee (a @username or an address). IntentID is the caller's
// idempotency key.
type TransferRequest struct {
	IntentID    uuid.UUID
	PayerUserID uuid.UUID
	Token       models.Token
	Amount      int64
	Payee       string
}

// TransferService is the transfer orchestrator. Every state change goes
// through a compare-and-set on the ledger, so concurrent runners for the same
// intent settle it exactly once.
type TransferService struct {
	ledger    Ledger
	directory *WalletService
	private   PrivateSettler
	public    PublicSettler
	notifier  IntentNotifier
	audit     AuditLogger
	opts      TransferOptions
	log       *zap.Logger
}

func NewTransferService(
	ledger Ledger,
	directory *WalletService,
	private PrivateSettler,
	public PublicSettler,
	notifier IntentNotifier,
	audit AuditLogger,
	opts TransferOptions,
	log *zap.Logger,
) *TransferService {
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.ExpireAfter <= 0 {
		opts.ExpireAfter = 2 * time.Minute
	}
	return &TransferService{
		ledger:    ledger,
		directory: directory,
		private:   private,
		public:    public,
		notifier:  notifier,
		audit:     audit,
		opts:      opts,
		log:       log,
	}
}

type validated struct {
	intent *models.TransferIntent
	payer  *models.Wallet
}

// validate checks the request without writing anything.
func (s *TransferService) validate(ctx context.Context, req TransferRequest, kind models.IntentKind) (*validated, error) {
	if req.IntentID == uuid.Nil {
		return nil, invalid("idempotency key is required")
	}
	if !req.Token.Valid() {
		return nil, invalid("unsupported token %q, use SOL or USDC", string(req.Token))
	}
	if req.Amount <= 0 {
		return nil, invalid("amount must be greater than zero")
	}

	payer, err := s.directory.ResolveByUser(ctx, req.PayerUserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, invalid("you have no wallet yet, send /start first")
		}
		return nil, err
	}
	payee, err := s.directory.ResolveHandle(ctx, req.Payee)
	if err != nil {
		return nil, err
	}
	if kind == models.IntentKindPrivate && payee.Wallet == nil {
		return nil, invalid("private transfers are only possible to registered users")
	}
	if payee.Address == payer.Address {
		return nil, invalid("you cannot send to yourself")
	}

	intent := &models.TransferIntent{
		ID:            req.IntentID,
		Kind:          kind,
		Token:         req.Token,
		Amount:        req.Amount,
		PayerWalletID: &payer.ID,
		PayerAddress:  payer.Address,
		PayeeAddress:  payee.Address,
		Status:        models.IntentStatusPending,
		Stage:         models.StageValidating,
	}
	if payee.Wallet != nil {
		intent.PayeeWalletID = &payee.Wallet.ID
	}
	return &validated{intent: intent, payer: payer}, nil
}

// record durably creates the intent. For a duplicate key it returns the
// stored intent and created=false; the caller must not execute it again.
func (s *TransferService) record(ctx context.Context, intent *models.TransferIntent, actor uuid.UUID) (*models.TransferIntent, bool, error) {
	res, err := s.ledger.CreateIntent(ctx, intent)
	if err != nil {
		return nil, false, err
	}
	if res == models.DuplicateIgnored {
		existing, err := s.ledger.GetIntent(ctx, intent.ID)
		if err != nil {
			return nil, false, err
		}
		if !existing.SameTerms(intent) {
			return nil, false, ErrIdempotencyMismatch
		}
		return existing, false, nil
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: &actor,
		ActorType:   models.ActorUser,
		Action:      models.AuditIntentCreated,
		EntityType:  models.EntityIntent,
		EntityID:    &intent.ID,
		Meta: map[string]any{
			"kind":   intent.Kind,
			"token":  intent.Token,
			"amount": intent.Amount,
			"payee":  intent.PayeeAddress,
		},
	})
	return intent, true, nil
}

// ExecutePrivate runs a shielded transfer through submission and settlement.
// It returns ErrOutcomePending when the shielding service could not confirm
// the outcome in time; the intent stays pending and the worker resumes it.
func (s *TransferService) ExecutePrivate(ctx context.Context, req TransferRequest) (*models.TransferIntent, error) {
	v, err := s.validate(ctx, req, models.IntentKindPrivate)
	if err != nil {
		return nil, err
	}
	intent, created, err := s.record(ctx, v.intent, req.PayerUserID)
	if err != nil {
		return nil, err
	}
	if !created {
		return intent, nil
	}
	return s.runPrivate(ctx, intent, v.payer)
}

func (s *TransferService) runPrivate(ctx context.Context, intent *models.TransferIntent, payer *models.Wallet) (*models.TransferIntent, error) {
	// Submission starts here; from now on the transfer cannot be cancelled.
	if err := s.ledger.AdvanceStage(ctx, intent.ID, models.StageValidating, models.StageSubmitting); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return s.ledger.GetIntent(ctx, intent.ID)
		}
		return nil, err
	}
	intent.Stage = models.StageSubmitting

	started := time.Now()
	receipt, err := s.private.SubmitPrivate(ctx, s.privateTransfer(intent, payer))
	if err == nil && receipt.Status == settlement.ReceiptPending {
		receipt, err = s.pollPrivate(ctx, intent, payer)
	}
	return s.resolvePrivate(ctx, intent, receipt, err, started)
}

func (s *TransferService) privateTransfer(intent *models.TransferIntent, payer *models.Wallet) settlement.PrivateTransfer {
	return settlement.PrivateTransfer{
		Token:          intent.Token,
		Amount:         intent.Amount,
		FromWalletID:   payer.CustodyWalletID,
		FromAddress:    intent.PayerAddress,
		ToAddress:      intent.PayeeAddress,
		IdempotencyKey: intent.ID.String(),
	}
}

func (s *TransferService) resolvePrivate(ctx context.Context, intent *models.TransferIntent, receipt *settlement.ShieldedReceipt, err error, started time.Time) (*models.TransferIntent, error) {
	if err != nil && !errors.Is(err, settlement.ErrRejected) && !errors.Is(err, ErrOutcomePending) {
		// Anything short of a definitive refusal may have executed.
		s.log.Warn("private submission outcome unknown, polling",
			zap.String("intent_id", intent.ID.String()), zap.Error(err))
		payer, perr := s.payerWallet(ctx, intent)
		if perr != nil {
			return intent, perr
		}
		receipt, err = s.pollPrivate(ctx, intent, payer)
	}

	switch {
	case errors.Is(err, ErrOutcomePending):
		metrics.Transfers.WithLabelValues(string(intent.Kind), "pending").Inc()
		return intent, ErrOutcomePending
	case errors.Is(err, settlement.ErrRejected):
		return s.fail(ctx, intent, err.Error())
	case err != nil:
		return intent, err
	case receipt.Status == settlement.ReceiptFailed:
		reason := receipt.Error
		if reason == "" {
			reason = "shielding service reported failure"
		}
		return s.fail(ctx, intent, reason)
	}

	metrics.SettlementLatency.WithLabelValues(string(intent.Kind)).Observe(time.Since(started).Seconds())
	if intent.Stage == models.StageSubmitting {
		s.advance(ctx, intent, models.StageSubmitting, models.StageSettling)
	}
	return s.settle(ctx, intent, models.Outcome{ReceiptRef: receipt.ID, TxSignature: receipt.Signature, FeeAmount: receipt.Fee})
}

// pollPrivate waits for a final receipt. A key the service has never seen is
// resubmitted under the same key, which cannot execute twice.
func (s *TransferService) pollPrivate(ctx context.Context, intent *models.TransferIntent, payer *models.Wallet) (*settlement.ShieldedReceipt, error) {
	key := intent.ID.String()
	deadline := time.Now().Add(s.opts.PollTimeout)
	for {
		r, err := s.private.PollPrivate(ctx, key)
		if errors.Is(err, settlement.ErrNotFound) {
			r, err = s.private.SubmitPrivate(ctx, s.privateTransfer(intent, payer))
		}
		switch {
		case err == nil && r.Status != settlement.ReceiptPending:
			return r, nil
		case errors.Is(err, settlement.ErrRejected):
			return nil, err
		case err != nil:
			s.log.Debug("poll shielded transfer", zap.String("intent_id", key), zap.Error(err))
		}

		if time.Now().Add(s.opts.PollInterval).After(deadline) {
			return nil, ErrOutcomePending
		}
		select {
		case <-time.After(s.opts.PollInterval):
		case <-ctx.Done():
			return nil, ErrOutcomePending
		}
	}
}

// ExecutePublic submits a plain on-chain transfer. The intent settles when
// the chain confirms it, either here, through the webhook, or in the worker,
// whichever wins the ledger transition.
func (s *TransferService) ExecutePublic(ctx context.Context, req TransferRequest) (*models.TransferIntent, error) {
	v, err := s.validate(ctx, req, models.IntentKindPublic)
	if err != nil {
		return nil, err
	}
	intent, created, err := s.record(ctx, v.intent, req.PayerUserID)
	if err != nil {
		return nil, err
	}
	if !created {
		return intent, nil
	}

	// 1. Build and fee-payer-sign; the signature is known before submission
	pt, err := s.public.Build(ctx, intent.Token, intent.Amount, intent.PayerAddress, intent.PayeeAddress)
	if err != nil {
		s.log.Warn("public transfer build failed", zap.String("intent_id", intent.ID.String()), zap.Error(err))
		cerr := s.ledger.CancelPending(ctx, intent.ID, "build failed: "+err.Error())
		if cerr != nil && !errors.Is(cerr, repositories.ErrConflict) {
			return nil, cerr
		}
		metrics.Transfers.WithLabelValues(string(intent.Kind), "failed").Inc()
		return s.ledger.GetIntent(ctx, intent.ID)
	}
	if err := s.ledger.AttachSignature(ctx, intent.ID, pt.Signature); err != nil {
		return nil, fmt.Errorf("attach signature: %w", err)
	}
	intent.TxSignature = &pt.Signature

	// 2. Past this point the transfer cannot be cancelled
	if err := s.ledger.AdvanceStage(ctx, intent.ID, models.StageValidating, models.StageSubmitting); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return s.ledger.GetIntent(ctx, intent.ID)
		}
		return nil, err
	}
	intent.Stage = models.StageSubmitting

	// 3. Submit through custody
	started := time.Now()
	sig, err := s.public.Submit(ctx, v.payer.CustodyWalletID, pt, intent.ID.String())
	if errors.Is(err, settlement.ErrRejected) {
		return s.fail(ctx, intent, err.Error())
	}
	if err != nil {
		s.log.Warn("public submission outcome unknown, polling chain",
			zap.String("intent_id", intent.ID.String()), zap.Error(err))
		sig = pt.Signature
	}
	s.advance(ctx, intent, models.StageSubmitting, models.StageSettling)

	// 4. Wait for confirmation
	state := s.pollPublic(ctx, sig)
	metrics.SettlementLatency.WithLabelValues(string(intent.Kind)).Observe(time.Since(started).Seconds())
	switch state {
	case settlement.SignatureConfirmed:
		return s.SettlePublic(ctx, intent, sig)
	case settlement.SignatureFailed:
		return s.fail(ctx, intent, "transaction failed on chain")
	}
	if err != nil {
		metrics.Transfers.WithLabelValues(string(intent.Kind), "pending").Inc()
		return intent, ErrOutcomePending
	}
	return intent, nil
}

func (s *TransferService) pollPublic(ctx context.Context, sig string) settlement.SignatureState {
	deadline := time.Now().Add(s.opts.PollTimeout)
	for {
		st, err := s.public.Status(ctx, sig)
		if err != nil {
			s.log.Debug("signature status", zap.String("signature", sig), zap.Error(err))
		} else if st != settlement.SignatureUnknown {
			return st
		}
		if time.Now().Add(s.opts.PollInterval).After(deadline) {
			return settlement.SignatureUnknown
		}
		select {
		case <-time.After(s.opts.PollInterval):
		case <-ctx.Done():
			return settlement.SignatureUnknown
		}
	}
}

// SettlePublic settles a submitted public intent once its signature is
// confirmed. Losing the race to another settler is not an error.
func (s *TransferService) SettlePublic(ctx context.Context, intent *models.TransferIntent, sig string) (*models.TransferIntent, error) {
	return s.settle(ctx, intent, models.Outcome{TxSignature: sig})
}

// settle performs pending -> settled and then notifies. A lost race adopts
// the winner's stored outcome and only makes sure notifications exist.
func (s *TransferService) settle(ctx context.Context, intent *models.TransferIntent, out models.Outcome) (*models.TransferIntent, error) {
	// The ledger only settles from settling. A lost advance from an earlier
	// run is repaired here; a conflict means the row is already past it.
	s.advance(ctx, intent, models.StageSubmitting, models.StageSettling)
	out.Stage = models.StageNotifying
	err := s.ledger.Transition(ctx, intent.ID, models.IntentStatusPending, models.IntentStatusSettled, out)
	if err != nil && !errors.Is(err, repositories.ErrConflict) {
		return intent, fmt.Errorf("settle intent: %w", err)
	}

	current, gerr := s.ledger.GetIntent(ctx, intent.ID)
	if gerr != nil {
		return intent, gerr
	}
	if current.Status != models.IntentStatusSettled {
		// Failed by someone else, or never submitted.
		return current, nil
	}

	if err == nil {
		metrics.Transfers.WithLabelValues(string(current.Kind), "settled").Inc()
		_ = s.audit.Log(ctx, models.AuditLog{
			ActorType:  models.ActorSystem,
			Action:     models.AuditIntentSettled,
			EntityType: models.EntityIntent,
			EntityID:   &current.ID,
			Meta:       map[string]any{"receipt": out.ReceiptRef, "signature": out.TxSignature},
		})
		s.log.Info("transfer settled",
			zap.String("intent_id", current.ID.String()),
			zap.String("kind", string(current.Kind)),
		)
	}
	return s.notify(ctx, current)
}

func (s *TransferService) notify(ctx context.Context, intent *models.TransferIntent) (*models.TransferIntent, error) {
	if intent.Stage == models.StageDone {
		return intent, nil
	}
	if _, err := s.notifier.EnqueueForIntent(ctx, intent); err != nil {
		// Settlement stands. The intent stays in notifying and the worker's
		// ListStaleNotifying sweep resumes it.
		s.log.Error("failed to enqueue notifications", zap.String("intent_id", intent.ID.String()), zap.Error(err))
		return intent, nil
	}
	s.advance(ctx, intent, models.StageNotifying, models.StageDone)
	return intent, nil
}

func (s *TransferService) fail(ctx context.Context, intent *models.TransferIntent, reason string) (*models.TransferIntent, error) {
	err := s.ledger.Transition(ctx, intent.ID, models.IntentStatusPending, models.IntentStatusFailed,
		models.Outcome{Stage: models.StageFailed, FailureReason: reason})
	if err != nil && !errors.Is(err, repositories.ErrConflict) {
		return intent, fmt.Errorf("fail intent: %w", err)
	}
	if err == nil {
		metrics.Transfers.WithLabelValues(string(intent.Kind), "failed").Inc()
		_ = s.audit.Log(ctx, models.AuditLog{
			ActorType:  models.ActorSystem,
			Action:     models.AuditIntentFailed,
			EntityType: models.EntityIntent,
			EntityID:   &intent.ID,
			Meta:       map[string]any{"reason": reason},
		})
		s.log.Warn("transfer failed", zap.String("intent_id", intent.ID.String()), zap.String("reason", reason))
	}
	return s.ledger.GetIntent(ctx, intent.ID)
}

// advance moves the stage forward. Losing the compare-and-set is fine: the
// status transition, not the stage, decides the outcome.
func (s *TransferService) advance(ctx context.Context, intent *models.TransferIntent, from, to models.IntentStage) {
	if err := s.ledger.AdvanceStage(ctx, intent.ID, from, to); err != nil {
		if !errors.Is(err, repositories.ErrConflict) {
			s.log.Warn("advance stage", zap.String("intent_id", intent.ID.String()), zap.Error(err))
		}
		return
	}
	intent.Stage = to
}

func (s *TransferService) payerWallet(ctx context.Context, intent *models.TransferIntent) (*models.Wallet, error) {
	if intent.PayerWalletID == nil {
		return nil, fmt.Errorf("intent %s has no payer wallet", intent.ID)
	}
	return s.directory.ResolveByID(ctx, *intent.PayerWalletID)
}

// Resume drives a stale intent forward after a crash or an unresolved poll.
func (s *TransferService) Resume(ctx context.Context, intent *models.TransferIntent) (*models.TransferIntent, error) {
	if intent.Status == models.IntentStatusSettled {
		return s.notify(ctx, intent)
	}
	if intent.Status.Terminal() {
		return intent, nil
	}

	if intent.Kind == models.IntentKindPublic {
		return s.resumePublic(ctx, intent)
	}

	payer, err := s.payerWallet(ctx, intent)
	if err != nil {
		return intent, err
	}
	if intent.Stage == models.StageValidating {
		return s.runPrivate(ctx, intent, payer)
	}
	started := time.Now()
	receipt, err := s.pollPrivate(ctx, intent, payer)
	return s.resolvePrivate(ctx, intent, receipt, err, started)
}

func (s *TransferService) resumePublic(ctx context.Context, intent *models.TransferIntent) (*models.TransferIntent, error) {
	if intent.Stage == models.StageValidating {
		// Never handed to custody.
		if err := s.ledger.CancelPending(ctx, intent.ID, "abandoned before submission"); err != nil && !errors.Is(err, repositories.ErrConflict) {
			return intent, err
		}
		return s.ledger.GetIntent(ctx, intent.ID)
	}
	if intent.TxSignature == nil {
		return s.fail(ctx, intent, "no transaction signature recorded")
	}
	return s.ConfirmPublic(ctx, intent)
}

// ConfirmPublic checks a submitted public intent against the chain.
func (s *TransferService) ConfirmPublic(ctx context.Context, intent *models.TransferIntent) (*models.TransferIntent, error) {
	if intent.TxSignature == nil {
		return intent, nil
	}
	st, err := s.public.Status(ctx, *intent.TxSignature)
	if err != nil {
		return intent, err
	}
	switch st {
	case settlement.SignatureConfirmed:
		return s.SettlePublic(ctx, intent, *intent.TxSignature)
	case settlement.SignatureFailed:
		return s.fail(ctx, intent, "transaction failed on chain")
	}
	if time.Since(intent.UpdatedAt) > s.opts.ExpireAfter {
		return s.fail(ctx, intent, "transaction expired before confirmation")
	}
	return intent, nil
}

// Cancel fails an intent that has not started submission. Only the payer
// may cancel.
func (s *TransferService) Cancel(ctx context.Context, intentID, userID uuid.UUID) (*models.TransferIntent, error) {
	intent, err := s.ledger.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	payer, err := s.directory.ResolveByUser(ctx, userID)
	if err != nil || intent.PayerWalletID == nil || *intent.PayerWalletID != payer.ID {
		return nil, ErrForbidden
	}
	if intent.Status.Terminal() || intent.Stage != models.StageValidating {
		return intent, ErrCancelled
	}
	if err := s.ledger.CancelPending(ctx, intentID, "cancelled by payer"); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return intent, ErrCancelled
		}
		return nil, err
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: &userID,
		ActorType:   models.ActorUser,
		Action:      models.AuditIntentCancelled,
		EntityType:  models.EntityIntent,
		EntityID:    &intentID,
	})
	metrics.Transfers.WithLabelValues(string(intent.Kind), "cancelled").Inc()
	return s.ledger.GetIntent(ctx, intentID)
}

func (s *TransferService) Get(ctx context.Context, id uuid.UUID) (*models.TransferIntent, error) {
	return s.ledger.GetIntent(ctx, id)
}

// GetForUser returns the intent only when userID is its payer or payee.
func (s *TransferService) GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.TransferIntent, error) {
	intent, err := s.ledger.GetIntent(ctx, id)
	if err != nil {
		return nil, err
	}
	w, err := s.directory.ResolveByUser(ctx, userID)
	if err != nil {
		return nil, ErrForbidden
	}
	if (intent.PayerWalletID != nil && *intent.PayerWalletID == w.ID) ||
		(intent.PayeeWalletID != nil && *intent.PayeeWalletID == w.ID) {
		return intent, nil
	}
	return nil, ErrForbidden
}

func (s *TransferService) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.TransferIntent, error) {
	w, err := s.directory.ResolveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s.ledger.ListByWallet(ctx, w.ID, limit, offset)
}
