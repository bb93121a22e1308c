package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/solana-agent/backend/internal/commands"
	"github.com/solana-agent/backend/internal/http/dto"
	"go.uber.org/zap"
)

type BotHandler struct {
	commands *commands.Handler
	log      *zap.Logger
}

func NewBotHandler(commands *commands.Handler, log *zap.Logger) *BotHandler {
	return &BotHandler{commands: commands, log: log}
}

// Update handles one chat message relayed by the bot transport and returns
// the reply to send.
// POST /internal/bot/updates
func (h *BotHandler) Update(c *fiber.Ctx) error {
	var u commands.Update
	if err := c.BodyParser(&u); err != nil {
		return badRequest(c, "invalid update")
	}
	if u.TelegramUserID == 0 {
		return badRequest(c, "telegram_user_id is required")
	}

	reply, err := h.commands.Handle(c.UserContext(), u)
	if err != nil {
		h.log.Error("bot command failed",
			zap.Int64("telegram_user_id", u.TelegramUserID),
			zap.Int64("message_id", u.MessageID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "command failed"})
	}
	return c.JSON(reply)
}
