package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/solana-agent/backend/internal/chain"
	"github.com/solana-agent/backend/internal/models"
	"github.com/solana-agent/backend/internal/repositories"
	"github.com/solana-agent/backend/internal/settlement"
	"go.uber.org/zap"
)

type SwapService struct {
	directory *WalletService
	swapper   Swapper
	audit     AuditLogger
	log       *zap.Logger
}

func NewSwapService(directory *WalletService, swapper Swapper, audit AuditLogger, log *zap.Logger) *SwapService {
	return &SwapService{directory: directory, swapper: swapper, audit: audit, log: log}
}

// resolveMint accepts SOL/USDC or a raw mint address.
func resolveMint(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if tok, ok := models.ParseToken(s); ok {
		return tok.Mint(), true
	}
	if chain.IsAddress(s) {
		return s, true
	}
	return "", false
}

// Swap exchanges amount base units of input for output in the user's wallet.
func (s *SwapService) Swap(ctx context.Context, userID uuid.UUID, input, output string, amount int64) (*settlement.SwapReceipt, error) {
	inMint, ok := resolveMint(input)
	if !ok {
		return nil, invalid("unknown input token %q", input)
	}
	outMint, ok := resolveMint(output)
	if !ok {
		return nil, invalid("unknown output token %q", output)
	}
	if inMint == outMint {
		return nil, invalid("input and output tokens must differ")
	}
	if amount <= 0 {
		return nil, invalid("amount must be greater than zero")
	}

	w, err := s.directory.ResolveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, invalid("you have no wallet yet, send /start first")
		}
		return nil, err
	}

	receipt, err := s.swapper.SubmitSwap(ctx, settlement.SwapRequest{
		InputMint:       inMint,
		OutputMint:      outMint,
		Amount:          amount,
		TakerAddress:    w.Address,
		CustodyWalletID: w.CustodyWalletID,
	})
	if err != nil {
		s.log.Warn("swap failed", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, err
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: &userID,
		ActorType:   models.ActorUser,
		Action:      models.AuditSwapExecuted,
		EntityType:  models.EntityWallet,
		EntityID:    &w.ID,
		Meta: map[string]any{
			"input_mint":  inMint,
			"output_mint": outMint,
			"in_amount":   receipt.InAmount,
			"out_amount":  receipt.OutAmount,
			"signature":   receipt.Signature,
		},
	})
	return receipt, nil
}
