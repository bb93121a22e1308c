package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/solana-agent/backend/internal/models"
	"github.com/solana-agent/backend/internal/repositories"
	"github.com/solana-agent/backend/internal/settlement"
	"go.uber.org/zap"
)

// ShieldService manages a user's shielded balance outside of transfers:
// deposits into the pool, withdrawals out of it and balance lookups.
type ShieldService struct {
	directory *WalletService
	pool      ShieldPool
	audit     AuditLogger
	log       *zap.Logger
}

func NewShieldService(directory *WalletService, pool ShieldPool, audit AuditLogger, log *zap.Logger) *ShieldService {
	return &ShieldService{directory: directory, pool: pool, audit: audit, log: log}
}

func (s *ShieldService) wallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	w, err := s.directory.ResolveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, invalid("you have no wallet yet, send /start first")
		}
		return nil, err
	}
	return w, nil
}

func checkAmount(tok models.Token, amount int64) error {
	if !tok.Valid() {
		return invalid("unsupported token %q, use SOL or USDC", string(tok))
	}
	if amount <= 0 {
		return invalid("amount must be greater than zero")
	}
	return nil
}

// Deposit shields amount of tok from the user's wallet. key makes a retried
// request execute at most once.
func (s *ShieldService) Deposit(ctx context.Context, userID, key uuid.UUID, tok models.Token, amount int64) (*settlement.ShieldedReceipt, error) {
	if err := checkAmount(tok, amount); err != nil {
		return nil, err
	}
	w, err := s.wallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	receipt, err := s.pool.Deposit(ctx, settlement.ShieldMove{
		Token:          tok,
		Amount:         amount,
		WalletID:       w.CustodyWalletID,
		Address:        w.Address,
		IdempotencyKey: key.String(),
	})
	if err != nil {
		s.log.Warn("shield deposit failed", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, err
	}
	s.record(ctx, userID, w, models.AuditShieldDeposit, tok, amount, receipt, "")
	return receipt, nil
}

// Withdraw unshields amount of tok to recipient, which may be a @username or
// an address. An empty recipient withdraws to the user's own wallet.
func (s *ShieldService) Withdraw(ctx context.Context, userID, key uuid.UUID, tok models.Token, amount int64, recipient string) (*settlement.ShieldedReceipt, error) {
	if err := checkAmount(tok, amount); err != nil {
		return nil, err
	}
	w, err := s.wallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	to := w.Address
	if recipient != "" {
		payee, err := s.directory.ResolveHandle(ctx, recipient)
		if err != nil {
			return nil, err
		}
		to = payee.Address
	}

	receipt, err := s.pool.Withdraw(ctx, settlement.ShieldMove{
		Token:          tok,
		Amount:         amount,
		WalletID:       w.CustodyWalletID,
		Address:        w.Address,
		ToAddress:      to,
		IdempotencyKey: key.String(),
	})
	if err != nil {
		s.log.Warn("shield withdraw failed", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, err
	}
	s.record(ctx, userID, w, models.AuditShieldWithdraw, tok, amount, receipt, to)
	return receipt, nil
}

// Balance returns the user's shielded balance of tok.
func (s *ShieldService) Balance(ctx context.Context, userID uuid.UUID, tok models.Token) (*settlement.ShieldBalance, error) {
	if !tok.Valid() {
		return nil, invalid("unsupported token %q, use SOL or USDC", string(tok))
	}
	w, err := s.wallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	b, err := s.pool.Balance(ctx, w.Address, tok)
	if err != nil {
		return nil, fmt.Errorf("load shielded balance: %w", err)
	}
	return b, nil
}

func (s *ShieldService) record(ctx context.Context, userID uuid.UUID, w *models.Wallet, action models.AuditAction, tok models.Token, amount int64, r *settlement.ShieldedReceipt, to string) {
	meta := map[string]any{
		"token":   tok,
		"amount":  amount,
		"receipt": r.ID,
		"status":  r.Status,
	}
	if to != "" {
		meta["to"] = to
	}
	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: &userID,
		ActorType:   models.ActorUser,
		Action:      action,
		EntityType:  models.EntityWallet,
		EntityID:    &w.ID,
		Meta:        meta,
	})
	s.log.Info("shielded balance moved",
		zap.String("user_id", userID.String()),
		zap.String("action", string(action)),
		zap.String("status", string(r.Status)),
	)
}
