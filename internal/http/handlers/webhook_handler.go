package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/solana-agent/backend/internal/helius"
	"github.com/solana-agent/backend/internal/http/dto"
	"github.com/solana-agent/backend/internal/services"
	"go.uber.org/zap"
)

type WebhookHandler struct {
	webhooks *services.WebhookService
	log      *zap.Logger
}

func NewWebhookHandler(webhooks *services.WebhookService, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks, log: log}
}

// Helius receives enhanced-transaction webhooks. 200 for accepted and
// duplicate deliveries, 401 for a bad secret, 400 for a payload we cannot
// parse, 500 when the provider should redeliver.
// POST /webhooks/helius
func (h *WebhookHandler) Helius(c *fiber.Ctx) error {
	outcome, err := h.webhooks.Handle(c.UserContext(), c.Body(), c.Get("Authorization"))
	switch {
	case errors.Is(err, helius.ErrMalformed):
		h.log.Warn("malformed webhook", zap.Error(err))
		return badRequest(c, err.Error())
	case err != nil:
		h.log.Error("webhook processing failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "processing failed"})
	case outcome == services.WebhookRejected:
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: "unauthorized"})
	}
	return c.JSON(dto.WebhookResponse{Outcome: outcome.String(), ReceivedAt: time.Now().UTC()})
}
