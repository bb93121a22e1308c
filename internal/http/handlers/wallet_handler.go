package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/solana-agent/backend/internal/http/dto"
	"github.com/solana-agent/backend/internal/middleware"
	"github.com/solana-agent/backend/internal/repositories"
	"github.com/solana-agent/backend/internal/services"
	"go.uber.org/zap"
)

type WalletHandler struct {
	directory *services.WalletService
	log       *zap.Logger
}

func NewWalletHandler(directory *services.WalletService, log *zap.Logger) *WalletHandler {
	return &WalletHandler{directory: directory, log: log}
}

// GetWallet returns the caller's custodial wallet.
// GET /me/wallet
func (h *WalletHandler) GetWallet(c *fiber.Ctx) error {
	w, err := h.directory.ResolveByUser(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return c.JSON(dto.SuccessResponse{OK: true, Data: nil})
		}
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: w})
}

// ProvisionWallet creates the caller's wallet, or returns the existing one.
// POST /me/wallet
func (h *WalletHandler) ProvisionWallet(c *fiber.Ctx) error {
	w, err := h.directory.Provision(c.UserContext(), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: w})
}
