package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/solana-agent/backend/internal/chain"
	"github.com/solana-agent/backend/internal/http/dto"
	"github.com/solana-agent/backend/internal/middleware"
	"github.com/solana-agent/backend/internal/models"
	"github.com/solana-agent/backend/internal/services"
	"go.uber.org/zap"
)

type SwapHandler struct {
	swaps *services.SwapService
	log   *zap.Logger
}

func NewSwapHandler(swaps *services.SwapService, log *zap.Logger) *SwapHandler {
	return &SwapHandler{swaps: swaps, log: log}
}

// Swap exchanges SOL or USDC for another token in the caller's wallet.
// POST /swaps
func (h *SwapHandler) Swap(c *fiber.Ctx) error {
	var req dto.SwapRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	tok, ok := models.ParseToken(req.Input)
	if !ok {
		return badRequest(c, "input must be SOL or USDC")
	}
	amount, err := chain.ParseAmount(req.Amount, tok)
	if err != nil {
		return badRequest(c, err.Error())
	}

	receipt, err := h.swaps.Swap(c.UserContext(), middleware.GetUserID(c), req.Input, req.Output, amount)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.SwapResponse{
		RequestID:   receipt.RequestID,
		Signature:   receipt.Signature,
		InAmount:    receipt.InAmount,
		OutAmount:   receipt.OutAmount,
		ExplorerURL: chain.ExplorerTxURL(receipt.Signature),
	}})
}
