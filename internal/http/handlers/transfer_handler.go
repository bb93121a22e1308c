package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/solana-agent/backend/internal/chain"
	"github.com/solana-agent/backend/internal/http/dto"
	"github.com/solana-agent/backend/internal/middleware"
	"github.com/solana-agent/backend/internal/models"
	"github.com/solana-agent/backend/internal/services"
	"go.uber.org/zap"
)

type TransferHandler struct {
	transfers *services.TransferService
	log       *zap.Logger
}

func NewTransferHandler(transfers *services.TransferService, log *zap.Logger) *TransferHandler {
	return &TransferHandler{transfers: transfers, log: log}
}

// CreatePrivate runs a shielded transfer.
// POST /transfers/private
func (h *TransferHandler) CreatePrivate(c *fiber.Ctx) error {
	return h.create(c, models.IntentKindPrivate)
}

// CreatePublic runs an on-chain transfer.
// POST /transfers/public
func (h *TransferHandler) CreatePublic(c *fiber.Ctx) error {
	return h.create(c, models.IntentKindPublic)
}

// create requires an Idempotency-Key header holding a UUID; replaying the
// same key returns the original intent.
func (h *TransferHandler) create(c *fiber.Ctx, kind models.IntentKind) error {
	key, err := uuid.Parse(c.Get("Idempotency-Key"))
	if err != nil {
		return badRequest(c, "Idempotency-Key header with a UUID is required")
	}
	var req dto.TransferRequest
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

	tr := services.TransferRequest{
		IntentID:    key,
		PayerUserID: middleware.GetUserID(c),
		Token:       tok,
		Amount:      amount,
		Payee:       req.Payee,
	}
	var intent *models.TransferIntent
	if kind == models.IntentKindPrivate {
		intent, err = h.transfers.ExecutePrivate(c.UserContext(), tr)
	} else {
		intent, err = h.transfers.ExecutePublic(c.UserContext(), tr)
	}
	return h.respondIntent(c, intent, err)
}

func (h *TransferHandler) respondIntent(c *fiber.Ctx, intent *models.TransferIntent, err error) error {
	if errors.Is(err, services.ErrOutcomePending) || (err == nil && intent.Status == models.IntentStatusPending) {
		return c.Status(fiber.StatusAccepted).JSON(dto.SuccessResponse{OK: true, Data: dto.NewIntent(intent)})
	}
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewIntent(intent)})
}

// Get returns an intent the caller takes part in.
// GET /transfers/:id
func (h *TransferHandler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid transfer id")
	}
	intent, err := h.transfers.GetForUser(c.UserContext(), id, middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewIntent(intent)})
}

// List returns the caller's transfers, newest first.
// GET /transfers
func (h *TransferHandler) List(c *fiber.Ctx) error {
	limit, offset := pagination(c)
	list, err := h.transfers.ListForUser(c.UserContext(), middleware.GetUserID(c), limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewIntents(list)})
}

// Cancel fails a transfer that has not been submitted yet.
// POST /transfers/:id/cancel
func (h *TransferHandler) Cancel(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid transfer id")
	}
	intent, err := h.transfers.Cancel(c.UserContext(), id, middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewIntent(intent)})
}

// Resume drives a stuck intent forward immediately instead of waiting for
// the worker sweep.
// POST /admin/transfers/:id/resume
func (h *TransferHandler) Resume(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid transfer id")
	}
	intent, err := h.transfers.Get(c.UserContext(), id)
	if err != nil {
		return respondError(c, h.log, err)
	}
	h.log.Info("manual resume", zap.String("intent_id", id.String()), zap.Int64("admin", middleware.GetTelegramUserID(c)))
	intent, err = h.transfers.Resume(c.UserContext(), intent)
	return h.respondIntent(c, intent, err)
}
