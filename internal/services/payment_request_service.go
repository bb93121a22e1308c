package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/solana-agent/backend/internal/models"
	"github.com/solana-agent/backend/internal/repositories"
	"go.uber.org/zap"
)

// PaymentRequestService manages "pay me" links that another user settles
// with one tap.
type PaymentRequestService struct {
	requests    PaymentRequestStore
	directory   *WalletService
	transfers   *TransferService
	botUsername string
	ttl         time.Duration
	log         *zap.Logger
}

func NewPaymentRequestService(
	requests PaymentRequestStore,
	directory *WalletService,
	transfers *TransferService,
	botUsername string,
	ttl time.Duration,
	log *zap.Logger,
) *PaymentRequestService {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &PaymentRequestService{
		requests:    requests,
		directory:   directory,
		transfers:   transfers,
		botUsername: botUsername,
		ttl:         ttl,
		log:         log,
	}
}

func newRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func (s *PaymentRequestService) Create(ctx context.Context, payeeUserID uuid.UUID, tok models.Token, amount int64, private bool) (*models.PaymentRequest, error) {
	if !tok.Valid() {
		return nil, invalid("unsupported token %q, use SOL or USDC", string(tok))
	}
	if amount <= 0 {
		return nil, invalid("amount must be greater than zero")
	}
	w, err := s.directory.ResolveByUser(ctx, payeeUserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, invalid("you have no wallet yet, send /start first")
		}
		return nil, err
	}

	req := &models.PaymentRequest{
		PayeeUserID:   payeeUserID,
		WalletAddress: w.Address,
		Token:         tok,
		Amount:        amount,
		IsPrivate:     private,
		Status:        models.PaymentRequestPending,
		ExpiresAt:     time.Now().Add(s.ttl),
	}
	for attempt := 0; attempt < 3; attempt++ {
		req.ID = newRequestID()
		err = s.requests.Create(ctx, req)
		if !errors.Is(err, repositories.ErrDuplicate) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create payment request: %w", err)
	}
	return req, nil
}

// DeepLink opens the bot with the request preloaded.
func (s *PaymentRequestService) DeepLink(req *models.PaymentRequest) string {
	prefix := "pay_"
	if req.IsPrivate {
		prefix = "pay_priv_"
	}
	return fmt.Sprintf("https://t.me/%s?start=%s%s", s.botUsername, prefix, req.ID)
}

func (s *PaymentRequestService) Get(ctx context.Context, id string) (*models.PaymentRequest, error) {
	return s.requests.GetByID(ctx, id)
}

// Pay settles the request from payerUserID's wallet. The payer claims the
// request first and only the claim holder runs a transfer. Paying again
// returns or resumes the holder's intent.
func (s *PaymentRequestService) Pay(ctx context.Context, id string, payerUserID uuid.UUID) (*models.TransferIntent, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	for try := 0; ; try++ {
		if req.HeldBy(payerUserID) {
			if req.Status == models.PaymentRequestSent {
				return s.transfers.Get(ctx, *req.IntentID)
			}
			return s.execute(ctx, req)
		}
		if err := payable(req, payerUserID); err != nil {
			return nil, err
		}

		attempt := req.Attempts + 1
		intentID := PaymentRequestIntentID(req.ID, payerUserID, attempt)
		err := s.requests.Claim(ctx, req.ID, payerUserID, intentID, attempt)
		if err == nil {
			req.Status = models.PaymentRequestPaying
			req.PayerUserID = &payerUserID
			req.IntentID = &intentID
			req.Attempts = attempt
			return s.execute(ctx, req)
		}
		if !errors.Is(err, repositories.ErrConflict) {
			return nil, fmt.Errorf("claim payment request: %w", err)
		}
		if try > 0 {
			return nil, invalid("this payment request is already being paid")
		}
		// Lost the claim; decide again from the winner's state.
		if req, err = s.load(ctx, id); err != nil {
			return nil, err
		}
	}
}

func (s *PaymentRequestService) load(ctx context.Context, id string) (*models.PaymentRequest, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, invalid("payment request not found")
		}
		return nil, err
	}
	return req, nil
}

func payable(req *models.PaymentRequest, payer uuid.UUID) error {
	switch {
	case req.Status == models.PaymentRequestPaying:
		return invalid("this payment request is already being paid")
	case req.Status != models.PaymentRequestPending:
		return invalid("this payment request is no longer open")
	case time.Now().After(req.ExpiresAt):
		return invalid("this payment request has expired")
	case req.PayeeUserID == payer:
		return invalid("you cannot pay your own request")
	}
	return nil
}

// execute runs the transfer for the claim req holds, then resolves the claim.
func (s *PaymentRequestService) execute(ctx context.Context, req *models.PaymentRequest) (*models.TransferIntent, error) {
	tr := TransferRequest{
		IntentID:    *req.IntentID,
		PayerUserID: *req.PayerUserID,
		Token:       req.Token,
		Amount:      req.Amount,
		Payee:       req.WalletAddress,
	}
	var (
		intent *models.TransferIntent
		err    error
	)
	if req.IsPrivate {
		intent, err = s.transfers.ExecutePrivate(ctx, tr)
	} else {
		intent, err = s.transfers.ExecutePublic(ctx, tr)
	}

	if _, rerr := s.resolveClaim(ctx, req); rerr != nil {
		s.log.Error("failed to resolve payment request claim", zap.String("request_id", req.ID), zap.Error(rerr))
	}
	return intent, err
}

// resolveClaim moves a paying request on from the state of its intent. A
// settled intent marks the request sent; a failed or never recorded one
// reopens it for another attempt. A pending intent keeps the claim.
func (s *PaymentRequestService) resolveClaim(ctx context.Context, req *models.PaymentRequest) (string, error) {
	intentID := *req.IntentID
	intent, err := s.transfers.Get(ctx, intentID)

	var status string
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		status, err = models.PaymentRequestPending, s.requests.Release(ctx, req.ID, intentID)
	case err != nil:
		return req.Status, fmt.Errorf("load intent: %w", err)
	case intent.Status == models.IntentStatusSettled:
		status, err = models.PaymentRequestSent, s.requests.MarkSent(ctx, req.ID, intentID)
	case intent.Status == models.IntentStatusFailed:
		status, err = models.PaymentRequestPending, s.requests.Release(ctx, req.ID, intentID)
	default:
		return models.PaymentRequestPaying, nil
	}
	// A conflict means another caller already resolved this claim.
	if err != nil && !errors.Is(err, repositories.ErrConflict) {
		return req.Status, err
	}
	return status, nil
}

// ReconcileClaims resolves claims older than olderThan whose payer went away
// before the transfer finished. It returns how many left the paying state.
func (s *PaymentRequestService) ReconcileClaims(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	reqs, err := s.requests.ListPaying(ctx, olderThan, limit)
	if err != nil {
		return 0, fmt.Errorf("list paying requests: %w", err)
	}
	resolved := 0
	for i := range reqs {
		req := &reqs[i]
		if req.IntentID == nil {
			continue
		}
		status, err := s.resolveClaim(ctx, req)
		if err != nil {
			s.log.Warn("payment request claim unresolved", zap.String("request_id", req.ID), zap.Error(err))
			continue
		}
		if status != models.PaymentRequestPaying {
			resolved++
		}
	}
	return resolved, nil
}

func (s *PaymentRequestService) ExpireOverdue(ctx context.Context) (int64, error) {
	return s.requests.ExpireOverdue(ctx)
}
