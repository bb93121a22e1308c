package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/solana-agent/backend/internal/chain"
	"github.com/solana-agent/backend/internal/http/dto"
	"github.com/solana-agent/backend/internal/middleware"
	"github.com/solana-agent/backend/internal/models"
	"github.com/solana-agent/backend/internal/services"
	"go.uber.org/zap"
)

type PaymentRequestHandler struct {
	requests *services.PaymentRequestService
	log      *zap.Logger
}

func NewPaymentRequestHandler(requests *services.PaymentRequestService, log *zap.Logger) *PaymentRequestHandler {
	return &PaymentRequestHandler{requests: requests, log: log}
}

func (h *PaymentRequestHandler) view(req *models.PaymentRequest) dto.PaymentRequest {
	return dto.PaymentRequest{
		PaymentRequest: req,
		AmountDisplay:  chain.FormatAmount(req.Amount, req.Token),
		DeepLink:       h.requests.DeepLink(req),
	}
}

// Create opens a payment request payable to the caller. Requests are
// private unless "private": false is sent.
// POST /payment-requests
func (h *PaymentRequestHandler) Create(c *fiber.Ctx) error {
	var body dto.CreatePaymentRequest
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	tok, ok := models.ParseToken(body.Token)
	if !ok {
		return badRequest(c, "token must be SOL or USDC")
	}
	amount, err := chain.ParseAmount(body.Amount, tok)
	if err != nil {
		return badRequest(c, err.Error())
	}
	private := body.Private == nil || *body.Private

	req, err := h.requests.Create(c.UserContext(), middleware.GetUserID(c), tok, amount, private)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true, Data: h.view(req)})
}

// GET /payment-requests/:id
func (h *PaymentRequestHandler) Get(c *fiber.Ctx) error {
	req, err := h.requests.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: h.view(req)})
}

// Pay settles the request from the caller's wallet.
// POST /payment-requests/:id/pay
func (h *PaymentRequestHandler) Pay(c *fiber.Ctx) error {
	intent, err := h.requests.Pay(c.UserContext(), c.Params("id"), middleware.GetUserID(c))
	if errors.Is(err, services.ErrOutcomePending) {
		return c.Status(fiber.StatusAccepted).JSON(dto.SuccessResponse{OK: true, Data: dto.NewIntent(intent)})
	}
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.NewIntent(intent)})
}
