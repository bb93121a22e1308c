package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/solana-agent/backend/internal/auth"
	"github.com/solana-agent/backend/internal/config"
	"github.com/solana-agent/backend/internal/http/dto"
	"github.com/solana-agent/backend/internal/services"
	"go.uber.org/zap"
)

type AuthHandler struct {
	directory *services.WalletService
	cfg       *config.Config
	log       *zap.Logger
}

func NewAuthHandler(directory *services.WalletService, cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{directory: directory, cfg: cfg, log: log}
}

// TelegramAuth exchanges mini-app initData for a JWT.
// POST /auth/telegram
func (h *AuthHandler) TelegramAuth(c *fiber.Ctx) error {
	var req dto.AuthTelegramRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.InitData == "" {
		return badRequest(c, "init_data is required")
	}

	vals, err := auth.ValidateTelegramWebAppData(req.InitData, h.cfg.WebAppSecret, h.cfg.InitDataMaxAge)
	if err != nil {
		h.log.Debug("telegram auth validation failed", zap.Error(err))
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	tgUser, err := auth.ParseWebAppUser(vals)
	if err != nil {
		return badRequest(c, err.Error())
	}

	user, err := h.directory.EnsureUser(c.UserContext(), tgUser.ID, tgUser.Username)
	if err != nil {
		return respondError(c, h.log, err)
	}

	token, err := auth.GenerateJWT(h.cfg.JWTSecret, user.ID, user.TelegramUserID, h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("failed to generate jwt", zap.Error(err))
		return respondError(c, h.log, err)
	}

	return c.JSON(dto.AuthResponse{Token: token, User: user})
}
