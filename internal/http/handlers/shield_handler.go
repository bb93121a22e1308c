package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/solana-agent/backend/internal/chain"
	"github.com/solana-agent/backend/internal/http/dto"
	"github.com/solana-agent/backend/internal/middleware"
	"github.com/solana-agent/backend/internal/models"
	"github.com/solana-agent/backend/internal/services"
	"github.com/solana-agent/backend/internal/settlement"
	"go.uber.org/zap"
)

type ShieldHandler struct {
	shields *services.ShieldService
	log     *zap.Logger
}

func NewShieldHandler(shields *services.ShieldService, log *zap.Logger) *ShieldHandler {
	return &ShieldHandler{shields: shields, log: log}
}

// Deposit shields funds from the caller's wallet.
// POST /shield/deposits
func (h *ShieldHandler) Deposit(c *fiber.Ctx) error {
	return h.move(c, false)
}

// Withdraw unshields funds to the caller's wallet or to "to".
// POST /shield/withdrawals
func (h *ShieldHandler) Withdraw(c *fiber.Ctx) error {
	return h.move(c, true)
}

func (h *ShieldHandler) move(c *fiber.Ctx, withdraw bool) error {
	key, err := uuid.Parse(c.Get("Idempotency-Key"))
	if err != nil {
		return badRequest(c, "Idempotency-Key header with a UUID is required")
	}
	var req dto.ShieldRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	tok, ok := models.ParseToken(req.Token)
	if !ok {
		return badRequest(c, "token must be SOL or USDC")
	}
	amount, err := chain.ParseAmount(req.Amount, tok)
	if err != nil {
		return badRequest(c, err.Error())
	}

	var receipt *settlement.ShieldedReceipt
	if withdraw {
		receipt, err = h.shields.Withdraw(c.UserContext(), middleware.GetUserID(c), key, tok, amount, req.To)
	} else {
		receipt, err = h.shields.Deposit(c.UserContext(), middleware.GetUserID(c), key, tok, amount)
	}
	if err != nil {
		return respondError(c, h.log, err)
	}

	status := fiber.StatusOK
	if receipt.Status == settlement.ReceiptPending {
		status = fiber.StatusAccepted
	}
	return c.Status(status).JSON(dto.SuccessResponse{OK: true, Data: dto.ShieldReceipt{
		ReceiptID: receipt.ID,
		Status:    string(receipt.Status),
		Fee:       receipt.Fee,
		Error:     receipt.Error,
	}})
}

// Balance returns the caller's shielded balance.
// GET /shield/balance?token=SOL
func (h *ShieldHandler) Balance(c *fiber.Ctx) error {
	tok, ok := models.ParseToken(c.Query("token", string(models.TokenSOL)))
	if !ok {
		return badRequest(c, "token must be SOL or USDC")
	}
	b, err := h.shields.Balance(c.UserContext(), middleware.GetUserID(c), tok)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.ShieldBalance{
		Token:         b.Token,
		Amount:        b.Amount,
		AmountDisplay: chain.FormatAmount(b.Amount, b.Token),
	}})
}
