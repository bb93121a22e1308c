package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/solana-agent/backend/internal/http/dto"
	"github.com/solana-agent/backend/internal/middleware"
	"github.com/solana-agent/backend/internal/repositories"
	"github.com/solana-agent/backend/internal/services"
	"github.com/solana-agent/backend/internal/settlement"
	"go.uber.org/zap"
)

// respondError maps service errors to HTTP statuses. Unknown errors are
// logged and hidden behind a 500.
func respondError(c *fiber.Ctx, log *zap.Logger, err error) error {
	status := fiber.StatusInternalServerError
	msg := "internal server error"

	var v *services.ValidationError
	switch {
	case errors.As(err, &v):
		status, msg = fiber.StatusBadRequest, v.Msg
	case errors.Is(err, repositories.ErrNotFound):
		status, msg = fiber.StatusNotFound, "not found"
	case errors.Is(err, services.ErrForbidden):
		status, msg = fiber.StatusForbidden, "forbidden"
	case errors.Is(err, services.ErrIdempotencyMismatch), errors.Is(err, services.ErrCancelled):
		status, msg = fiber.StatusConflict, err.Error()
	case errors.Is(err, settlement.ErrRejected):
		status, msg = fiber.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, services.ErrProvisioningFailed):
		status, msg = fiber.StatusBadGateway, services.ErrProvisioningFailed.Error()
	default:
		log.Error("request failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	return c.Status(status).JSON(dto.ErrorResponse{Error: msg, RequestID: middleware.GetRequestID(c)})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: msg, RequestID: middleware.GetRequestID(c)})
}
