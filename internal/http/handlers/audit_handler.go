package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/solana-agent/backend/internal/http/dto"
	"github.com/solana-agent/backend/internal/models"
	"go.uber.org/zap"
)

type AuditTrail interface {
	Trail(ctx context.Context, entity models.AuditEntity, id uuid.UUID, limit int) ([]models.AuditLog, error)
}

type AuditHandler struct {
	trail AuditTrail
	log   *zap.Logger
}

func NewAuditHandler(trail AuditTrail, log *zap.Logger) *AuditHandler {
	return &AuditHandler{trail: trail, log: log}
}

// Trail lists the audit history of one wallet, intent or webhook event.
// GET /admin/audit/:entity/:id
func (h *AuditHandler) Trail(c *fiber.Ctx) error {
	entity, ok := models.ParseAuditEntity(c.Params("entity"))
	if !ok {
		return badRequest(c, "unknown entity")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid entity id")
	}
	trail, err := h.trail.Trail(c.UserContext(), entity, id, c.QueryInt("limit", 50))
	if err != nil {
		return respondError(c, h.log, err)
	}
	if trail == nil {
		trail = []models.AuditLog{}
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: trail})
}
