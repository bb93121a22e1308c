package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/solana-agent/backend/internal/http/dto"
	"github.com/solana-agent/backend/internal/middleware"
	"github.com/solana-agent/backend/internal/services"
	"go.uber.org/zap"
)

type UserHandler struct {
	directory *services.WalletService
	notify    *services.NotifyService
	log       *zap.Logger
}

func NewUserHandler(directory *services.WalletService, notify *services.NotifyService, log *zap.Logger) *UserHandler {
	return &UserHandler{directory: directory, notify: notify, log: log}
}

func (h *UserHandler) GetMe(c *fiber.Ctx) error {
	user, err := h.directory.GetUser(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: user})
}

// Notifications lists the caller's notification jobs, newest first.
// GET /me/notifications?limit=&offset=
func (h *UserHandler) Notifications(c *fiber.Ctx) error {
	limit, offset := pagination(c)
	jobs, err := h.notify.ListForUser(c.UserContext(), middleware.GetUserID(c), limit, offset)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: jobs})
}

func pagination(c *fiber.Ctx) (limit, offset int) {
	limit = c.QueryInt("limit", 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset = c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
